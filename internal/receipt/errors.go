package receipt

import "fmt"

// ParseError reports content that could not be turned into a DOM at all.
// Anything that parses, however malformed, yields a best-effort Receipt.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	if e == nil || e.Err == nil {
		return "receipt: parse error"
	}
	return "receipt: parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports a comma-decimal string that is not digits ',' digits.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("receipt: invalid comma-decimal %q", e.Input)
}
