package text

import (
	"context"
	"os"
	"strings"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

// Extractor returns the contents of a plain-text file. Invalid UTF-8 is
// replaced with U+FFFD.
type Extractor struct {
	logger logger.Logger
}

func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{logger: log.Named("txt")}
}

func (e *Extractor) Format() document.Format {
	return document.FormatTXT
}

func (e *Extractor) Extract(ctx context.Context, path string) (*document.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Text file read", logger.String("path", path), logger.Int("bytes", len(data)))
	return document.NewResult(strings.ToValidUTF8(string(data), "\uFFFD"), 0, nil), nil
}
