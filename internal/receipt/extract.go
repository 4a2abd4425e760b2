package receipt

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

const (
	// markerPrefix identifies the elements that make up the printed purchase list.
	markerPrefix = "purchase_list_line_"
	// weightMarker appears in the "1,894 kg x 3,99 EUR/kg" annotation lines.
	weightMarker = "kg x"
)

var (
	// Name is everything before the first gap of two or more blanks.
	nameRe = regexp.MustCompile(`^(\S.*?)[\s\p{Zs}]{2,}`)
	// Line total: an amount followed by a lone uppercase tax group letter.
	// Amounts never start inside a longer number; "1.234,56" is read whole.
	taxedAmountRe    = regexp.MustCompile(`(?:^|[^\d.,])(\d{1,3}(?:\.\d{3})+,\d{2}|\d+[.,]\d{2})[\s\p{Zs}]+[A-Z](?:[\s\p{Zs}]|$)`)
	anyAmountRe      = regexp.MustCompile(`(?:^|[^\d.,])(\d{1,3}(?:\.\d{3})+,\d+|\d+,\d+)`)
	discountAmountRe = regexp.MustCompile(`^-?[\s\p{Zs}]*\d+,\d+$`)
)

var errEmptyDocument = errors.New("document is empty")

// Extract parses one receipt page. The date is passed through untouched.
// Missing or malformed fields degrade to nil or defaults; only content that
// cannot be parsed as markup returns a *ParseError.
func Extract(date string, content []byte) (*Receipt, error) {
	return ExtractWithContentType(date, content, "")
}

// ExtractWithContentType is Extract with a Content-Type header value that is
// consulted for the document charset before the markup itself.
func ExtractWithContentType(date string, content []byte, contentType string) (*Receipt, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &ParseError{Err: errEmptyDocument}
	}
	decoded, err := decodeHTML(content, contentType)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	root, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if root == nil {
		return nil, &ParseError{Err: errEmptyDocument}
	}

	r := &Receipt{Date: date, Items: []LineItem{}}
	for _, n := range markerNodes(root) {
		r.apply(n)
	}
	return r, nil
}

// decodeHTML returns content as NFC-normalized UTF-8. Undeclared input that
// is already valid UTF-8 is left alone even when the sniffed prefix looked
// like windows-1252.
func decodeHTML(content []byte, contentType string) ([]byte, error) {
	enc, name, certain := charset.DetermineEncoding(content, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(content)) {
		return norm.NFC.Bytes(content), nil
	}
	out, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return nil, err
	}
	return norm.NFC.Bytes(out), nil
}

// apply folds one marker element into the receipt.
func (r *Receipt) apply(n *html.Node) {
	text := strings.TrimSpace(textContent(n))
	if text == "" {
		return
	}
	class, _ := attr(n, "class")
	switch {
	case strings.Contains(class, "currency"):
		if v, ok := attr(n, "data-currency"); ok {
			r.Currency = &Currency{Code: v, Symbol: v}
		}
	case strings.Contains(class, "article") && strings.Contains(text, weightMarker):
		if last := r.lastItem(); last != nil {
			last.WeightBreakdown = strPtr(text)
		}
	case strings.Contains(class, "article"):
		r.Items = append(r.Items, newLineItem(n, text))
	case strings.Contains(class, "discount"):
		if last := r.lastItem(); last != nil {
			addDiscountLine(last, text)
		}
	}
}

func (r *Receipt) lastItem() *LineItem {
	if len(r.Items) == 0 {
		return nil
	}
	return &r.Items[len(r.Items)-1]
}

func newLineItem(n *html.Node, text string) LineItem {
	item := LineItem{
		ArtID:            optionalAttr(n, "data-art-id"),
		CurrentUnitPrice: optionalAttr(n, "data-unit-price"),
		TaxGroupName:     optionalAttr(n, "data-tax-type"),
		Quantity:         "1",
		Discounts:        []Discount{},
	}
	if q, ok := attr(n, "data-art-quantity"); ok && q != "" {
		item.Quantity = q
	}
	item.IsWeight = strings.ContainsAny(item.Quantity, ",.")

	// The rendered text survives encoding problems that garble the
	// description attribute, so it wins when it can be split.
	if m := nameRe.FindStringSubmatch(text); m != nil {
		item.Name = strings.TrimSpace(m[1])
	} else if desc, ok := attr(n, "data-art-description"); ok {
		item.Name = desc
	}

	if m := taxedAmountRe.FindStringSubmatch(text); m != nil {
		item.OriginalAmount = strPtr(commaAmount(m[1]))
	} else if all := anyAmountRe.FindAllStringSubmatch(text, -1); len(all) > 0 {
		item.OriginalAmount = strPtr(commaAmount(all[len(all)-1][1]))
	}
	return item
}

// commaAmount drops thousands dots from "1.234,56" and turns a lone decimal
// dot into a comma.
func commaAmount(s string) string {
	if strings.Contains(s, ",") {
		return strings.ReplaceAll(s, ".", "")
	}
	return strings.Replace(s, ".", ",", 1)
}

// addDiscountLine merges a discount amount or label into the item's last
// discount when that entry is still missing the other half, and starts a new
// entry otherwise.
func addDiscountLine(item *LineItem, text string) {
	last := item.lastDiscount()
	if discountAmountRe.MatchString(text) {
		amount := strings.TrimSpace(strings.TrimPrefix(text, "-"))
		if last != nil && last.Description != nil && last.Amount == nil {
			last.Amount = strPtr(amount)
			return
		}
		item.Discounts = append(item.Discounts, Discount{Amount: strPtr(amount)})
		return
	}
	if last != nil && last.Amount != nil && last.Description == nil {
		last.Description = strPtr(text)
		return
	}
	item.Discounts = append(item.Discounts, Discount{Description: strPtr(text)})
}

// markerNodes returns purchase list elements in document order.
func markerNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if cur.Type == html.ElementNode {
			if id, ok := attr(cur, "id"); ok && strings.HasPrefix(id, markerPrefix) {
				out = append(out, cur)
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
		}
	}
	dfs(root)
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func optionalAttr(n *html.Node, key string) *string {
	if v, ok := attr(n, key); ok {
		return strPtr(v)
	}
	return nil
}
