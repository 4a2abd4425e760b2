package app

import (
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/hyperifyio/lidlreceipt/internal/receipt"
)

// Column widths in mm: name, quantity, unit price, amount, tax group.
var pdfColumns = [5]float64{86, 22, 26, 26, 16}

// writeReceiptPDF renders one A4 page per receipt: the item table with
// weight and discount sub-lines, then the discount total. Core fonts are
// cp1252, so text goes through the unicode translator.
func writeReceiptPDF(receipts []*receipt.Receipt, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, r := range receipts {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, fmt.Sprintf("Receipt %d", i+1), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr("Date: "+r.Date), "", 1, "L", false, 0, "")
		currency := ""
		if r.Currency != nil {
			currency = r.Currency.Code
			pdf.CellFormat(0, 6, tr("Currency: "+currency), "", 1, "L", false, 0, "")
		}
		pdf.Ln(3)

		pdf.SetFont("Helvetica", "B", 10)
		pdfRow(pdf, tr, "Article", "Qty", "Unit", "Amount", "Tax")
		pdf.SetFont("Helvetica", "", 10)
		for _, it := range r.Items {
			pdfRow(pdf, tr, clip(it.Name, 48), it.Quantity, deref(it.CurrentUnitPrice), deref(it.OriginalAmount), deref(it.TaxGroupName))
			if it.WeightBreakdown != nil {
				pdf.SetFont("Helvetica", "I", 8)
				pdf.CellFormat(0, 5, tr("    "+*it.WeightBreakdown), "", 1, "L", false, 0, "")
				pdf.SetFont("Helvetica", "", 10)
			}
			for _, d := range it.Discounts {
				amount := ""
				if d.Amount != nil {
					amount = "-" + *d.Amount
				}
				pdfRow(pdf, tr, "    "+clip(deref(d.Description), 44), "", "", amount, "")
			}
			if len(it.Discounts) > 0 {
				if net, err := it.NetAmount(); err == nil {
					pdf.SetFont("Helvetica", "I", 9)
					pdfRow(pdf, tr, "    net", "", "", commaDecimal(net), "")
					pdf.SetFont("Helvetica", "", 10)
				}
			}
		}

		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 10)
		if total, err := r.DiscountTotal(); err == nil {
			pdf.CellFormat(0, 6, tr(strings.TrimSpace("Discounts: "+commaDecimal(total)+" "+currency)), "T", 1, "R", false, 0, "")
		}
	}
	return pdf.OutputFileAndClose(outPath)
}

func pdfRow(pdf *gofpdf.Fpdf, tr func(string) string, cells ...string) {
	aligns := [5]string{"L", "R", "R", "R", "C"}
	for i, c := range cells {
		ln := 0
		if i == len(cells)-1 {
			ln = 1
		}
		pdf.CellFormat(pdfColumns[i], 6, tr(c), "", ln, aligns[i], false, 0, "")
	}
}

func commaDecimal(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
