package agent

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/agent/document/docx"
	"github.com/feichai0017/study-assistant/internal/agent/document/pdf"
	"github.com/feichai0017/study-assistant/internal/agent/document/pptx"
	"github.com/feichai0017/study-assistant/internal/agent/document/text"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

// Legacy .doc and .ppt are routed to the OOXML extractors; real binary files
// fail there with ExtractionFailed.
var extToFormat = map[string]document.Format{
	".pdf":  document.FormatPDF,
	".docx": document.FormatDOCX,
	".doc":  document.FormatDOCX,
	".pptx": document.FormatPPTX,
	".ppt":  document.FormatPPTX,
	".txt":  document.FormatTXT,
}

type ExtractorConfig struct {
	// ScratchDir is the parent of per-call scratch directories.
	ScratchDir string
	// Timeout bounds a single Extract call; zero means no limit.
	Timeout        time.Duration
	PDFPageWorkers int
}

type ExtractorFactory struct {
	extractors map[document.Format]document.Extractor
	timeout    time.Duration
	logger     logger.Logger
}

func NewExtractorFactory(cfg ExtractorConfig, log logger.Logger) *ExtractorFactory {
	f := &ExtractorFactory{
		extractors: make(map[document.Format]document.Extractor),
		timeout:    cfg.Timeout,
		logger:     log.Named("extractor"),
	}

	f.Register(pdf.NewExtractor(log, pdf.WithPageWorkers(cfg.PDFPageWorkers)))
	f.Register(docx.NewExtractor(cfg.ScratchDir, log))
	f.Register(pptx.NewExtractor(log))
	f.Register(text.NewExtractor(log))

	return f
}

// Register installs e for its format, replacing any previous extractor.
func (f *ExtractorFactory) Register(e document.Extractor) {
	f.extractors[e.Format()] = e
}

// FormatForPath maps a file extension, case-insensitively, to a format.
func FormatForPath(path string) (document.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extToFormat[ext]
	if !ok {
		return "", &document.UnsupportedFormatError{Ext: ext}
	}
	return format, nil
}

// SupportedExtensions lists the extensions accepted by FormatForPath.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extToFormat))
	for ext := range extToFormat {
		exts = append(exts, ext)
	}
	return exts
}

func (f *ExtractorFactory) GetExtractor(path string) (document.Extractor, error) {
	format, err := FormatForPath(path)
	if err != nil {
		f.logger.Error("Unsupported file type",
			logger.String("path", path),
			logger.Error(err),
		)
		return nil, err
	}

	extractor, ok := f.extractors[format]
	if !ok {
		f.logger.Error("No extractor registered", logger.String("format", string(format)))
		return nil, &document.UnsupportedFormatError{Ext: strings.ToLower(filepath.Ext(path))}
	}

	f.logger.Debug("Selected extractor",
		logger.String("path", path),
		logger.String("format", string(format)),
	)
	return extractor, nil
}

// Extract dispatches on the file extension and appends the image trailer.
// Extractor failures are wrapped in *document.ExtractionFailedError and never
// retried.
func (f *ExtractorFactory) Extract(ctx context.Context, path string) (*document.ExtractionResult, error) {
	extractor, err := f.GetExtractor(path)
	if err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := extractor.Extract(ctx, path)
	if err != nil {
		f.logger.Error("Extraction failed",
			logger.String("path", path),
			logger.String("format", string(extractor.Format())),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return nil, &document.ExtractionFailedError{Format: extractor.Format(), Cause: err}
	}

	f.logger.Info("Extraction completed",
		logger.String("path", path),
		logger.String("format", string(extractor.Format())),
		logger.Int("chars", len(result.Text)),
		logger.Int("images", result.ImageCount),
		logger.Duration("elapsed", time.Since(start)),
	)
	return result.WithImageTrailer(), nil
}
