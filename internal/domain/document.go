package domain

// Document is one page-level unit of loaded text. Documents are immutable
// once returned by a loader.
type Document struct {
	SourceID string
	Page     int
	Text     string
}

// IsBlank reports whether the document carries any non-whitespace text.
func (d Document) IsBlank() bool {
	for _, r := range d.Text {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			continue
		default:
			return false
		}
	}
	return true
}
