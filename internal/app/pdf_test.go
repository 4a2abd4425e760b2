package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hyperifyio/lidlreceipt/internal/receipt"
)

func TestWriteReceiptPDF(t *testing.T) {
	name := "Crème fraîche"
	amount := "0,89"
	disc := "0,20"
	weight := "1,894 kg x 1,99   EUR/kg"
	rs := []*receipt.Receipt{
		{
			Date:     "2024-05-17T10:42:00",
			Currency: &receipt.Currency{Code: "EUR", Symbol: "EUR"},
			Items: []receipt.LineItem{
				{Name: name, Quantity: "1", OriginalAmount: &amount, Discounts: []receipt.Discount{{Amount: &disc}}},
				{Name: "Bananes", Quantity: "1,894", IsWeight: true, WeightBreakdown: &weight, Discounts: []receipt.Discount{}},
			},
		},
		{Date: "2024-05-18", Items: []receipt.LineItem{}},
	}
	out := filepath.Join(t.TempDir(), "r.pdf")
	if err := writeReceiptPDF(rs, out); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) || len(b) < 500 {
		t.Fatalf("unexpected pdf output (%d bytes)", len(b))
	}
}

func TestCommaDecimalAndClip(t *testing.T) {
	if got := commaDecimal(decimal.RequireFromString("2.3")); got != "2,30" {
		t.Fatalf("commaDecimal=%q", got)
	}
	if got := clip("abcdef", 4); got != "abc…" {
		t.Fatalf("clip=%q", got)
	}
	if got := clip("abc", 4); got != "abc" {
		t.Fatalf("clip short=%q", got)
	}
}
