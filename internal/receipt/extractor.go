package receipt

// Extractor turns one receipt page into a Receipt. Implementations must be
// deterministic and free of side effects.
type Extractor interface {
	Extract(date string, content []byte, contentType string) (*Receipt, error)
}

// HTMLExtractor walks the purchase list markup of the printed receipt.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(date string, content []byte, contentType string) (*Receipt, error) {
	return ExtractWithContentType(date, content, contentType)
}
