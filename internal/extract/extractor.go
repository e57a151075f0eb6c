package extract

// Extractor turns a rendered page into the data the ads content script
// would report for it.
type Extractor interface {
	Extract(input []byte, pageURL string) Page
}

// AnchorExtractor reports anchor and area link targets via FromHTML.
type AnchorExtractor struct{}

func (AnchorExtractor) Extract(input []byte, pageURL string) Page {
	return FromHTML(input, pageURL)
}

// Links returns only the link targets of FromHTML.
func Links(input []byte, pageURL string) []string {
	return FromHTML(input, pageURL).Links
}
