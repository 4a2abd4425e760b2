package receipt

import "github.com/shopspring/decimal"

// Receipt is the structured form of one printed receipt page.
type Receipt struct {
	Date     string     `json:"date"`
	Currency *Currency  `json:"currency"`
	Items    []LineItem `json:"itemsLine"`
}

// Currency is read from the data-currency attribute. The rendered label is
// not trusted, so Code and Symbol carry the same value.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// LineItem is one purchased article. Amounts keep the receipt's comma-decimal
// text; use ParseAmount or ParseDecimal for arithmetic.
type LineItem struct {
	ArtID            *string    `json:"artId"`
	Name             string     `json:"name"`
	CurrentUnitPrice *string    `json:"currentUnitPrice"`
	TaxGroupName     *string    `json:"taxGroupName"`
	Quantity         string     `json:"quantity"`
	IsWeight         bool       `json:"isWeight"`
	OriginalAmount   *string    `json:"originalAmount"`
	WeightBreakdown  *string    `json:"weightBreakdown,omitempty"`
	Discounts        []Discount `json:"discounts"`
}

// Discount may be assembled from two consecutive lines, so either half can be
// missing.
type Discount struct {
	Description *string `json:"description,omitempty"`
	Amount      *string `json:"amount,omitempty"`
}

// NetAmount returns the original amount minus all discount amounts. A missing
// original amount counts as zero; discounts without an amount are ignored.
func (it LineItem) NetAmount() (decimal.Decimal, error) {
	net := decimal.Zero
	if it.OriginalAmount != nil {
		v, err := ParseAmount(*it.OriginalAmount)
		if err != nil {
			return decimal.Zero, err
		}
		net = v
	}
	for _, d := range it.Discounts {
		if d.Amount == nil {
			continue
		}
		v, err := ParseAmount(*d.Amount)
		if err != nil {
			return decimal.Zero, err
		}
		net = net.Sub(v)
	}
	return net, nil
}

// DiscountTotal sums every discount amount on the receipt.
func (r *Receipt) DiscountTotal() (decimal.Decimal, error) {
	total := decimal.Zero
	if r == nil {
		return total, nil
	}
	for _, it := range r.Items {
		for _, d := range it.Discounts {
			if d.Amount == nil {
				continue
			}
			v, err := ParseAmount(*d.Amount)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(v)
		}
	}
	return total, nil
}

func (it *LineItem) lastDiscount() *Discount {
	if len(it.Discounts) == 0 {
		return nil
	}
	return &it.Discounts[len(it.Discounts)-1]
}

func strPtr(s string) *string { return &s }
