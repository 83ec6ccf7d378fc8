package document

import (
	"context"
	"fmt"
	"strings"
)

// Format identifies which extractor handles a file.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatPPTX Format = "pptx"
	FormatTXT  Format = "txt"
)

// ExtractionResult is the plain-text rendering of one document plus a summary
// of the images embedded in it. It is built once per call and never mutated.
type ExtractionResult struct {
	Text              string   `json:"text"`
	ImageCount        int      `json:"imageCount"`
	ImageDescriptions []string `json:"imageDescriptions"`
}

// Extractor turns a file on local disk into an ExtractionResult.
type Extractor interface {
	Format() Format
	Extract(ctx context.Context, path string) (*ExtractionResult, error)
}

// NewResult returns a result with a non-nil description slice.
func NewResult(text string, count int, descriptions []string) *ExtractionResult {
	if descriptions == nil {
		descriptions = []string{}
	}
	return &ExtractionResult{
		Text:              text,
		ImageCount:        count,
		ImageDescriptions: descriptions,
	}
}

// WithImageTrailer returns a copy of r whose text ends with the image
// information block. Results without images are returned unchanged.
func (r *ExtractionResult) WithImageTrailer() *ExtractionResult {
	if r.ImageCount <= 0 {
		return r
	}

	var b strings.Builder
	b.Grow(len(r.Text) + 64 + 32*len(r.ImageDescriptions))
	b.WriteString(r.Text)
	b.WriteString("\n\n--- Image Information ---\n")
	fmt.Fprintf(&b, "Total images: %d\n", r.ImageCount)
	if len(r.ImageDescriptions) > 0 {
		b.WriteString("Details:\n")
		for _, desc := range r.ImageDescriptions {
			b.WriteString("- ")
			b.WriteString(desc)
			b.WriteString("\n")
		}
	}

	descs := make([]string, len(r.ImageDescriptions))
	copy(descs, r.ImageDescriptions)
	return &ExtractionResult{
		Text:              b.String(),
		ImageCount:        r.ImageCount,
		ImageDescriptions: descs,
	}
}

// UnitDescription renders the per-page or per-slide image note,
// e.g. "Page 3: Contains 2 image(s)".
func UnitDescription(unit string, n, count int) string {
	return fmt.Sprintf("%s %d: Contains %d image(s)", unit, n, count)
}
