package receipt

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var commaDecimalRe = regexp.MustCompile(`^\d+,\d+$`)

// ParseAmount converts a comma-decimal string such as "2,98" into an exact
// decimal value.
func ParseAmount(s string) (decimal.Decimal, error) {
	t := strings.TrimSpace(s)
	if !commaDecimalRe.MatchString(t) {
		return decimal.Zero, &FormatError{Input: s}
	}
	d, err := decimal.NewFromString(strings.Replace(t, ",", ".", 1))
	if err != nil {
		return decimal.Zero, &FormatError{Input: s}
	}
	return d, nil
}

// ParseDecimal converts a comma-decimal string such as "2,98" into a float64.
// It fails with *FormatError unless the input is digits ',' digits.
func ParseDecimal(s string) (float64, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
