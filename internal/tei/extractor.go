package tei

// Extractor converts a structured source document into flattened section
// text. Implementations should be deterministic and free of side effects
// other than diagnostics logging.
type Extractor interface {
	Extract(input []byte) (Document, error)
}

// TEIExtractor adapts Options to the Extractor interface.
type TEIExtractor struct {
	Options Options
}

func (e TEIExtractor) Extract(input []byte) (Document, error) {
	return e.Options.Extract(input)
}
