package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

const (
	defaultPageWorkers = 4
	// Form XObjects may nest other forms; deeper chains are not followed.
	maxFormDepth = 8
)

// PageImages is the number of image XObjects reachable from one page.
type PageImages struct {
	Page  int
	Count int
}

// ImageDetector reports per-page image counts for the PDF at path.
type ImageDetector func(ctx context.Context, path string) ([]PageImages, error)

type Extractor struct {
	logger       logger.Logger
	pageWorkers  int
	detectImages ImageDetector
}

type Option func(*Extractor)

// WithPageWorkers bounds how many pages are decoded at once.
func WithPageWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.pageWorkers = n
		}
	}
}

// WithImageDetector replaces the structural image pass.
func WithImageDetector(d ImageDetector) Option {
	return func(e *Extractor) {
		if d != nil {
			e.detectImages = d
		}
	}
}

func NewExtractor(log logger.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		logger:       log.Named("pdf"),
		pageWorkers:  defaultPageWorkers,
		detectImages: DetectImages,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Format() document.Format {
	return document.FormatPDF
}

// Extract reads the text layer and, independently, the image XObjects of each
// page. A failed image pass degrades to a zero count with an advisory note.
func (e *Extractor) Extract(ctx context.Context, path string) (*document.ExtractionResult, error) {
	start := time.Now()

	text, pages, err := e.extractText(ctx, path)
	if err != nil {
		return nil, err
	}

	images := e.imagePass(ctx, path)
	if !images.OK() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("Image detection failed, continuing with text only",
			logger.String("path", path),
			logger.Error(images.Err),
		)
		return document.NewResult(text, 0, []string{
			fmt.Sprintf("Image detection failed: %v", images.Err),
		}), nil
	}

	total := 0
	var descriptions []string
	for _, p := range images.Value {
		if p.Count <= 0 {
			continue
		}
		total += p.Count
		descriptions = append(descriptions, document.UnitDescription("Page", p.Page, p.Count))
	}

	e.logger.Info("PDF extracted",
		logger.Int("pages", pages),
		logger.Int("images", total),
		logger.Duration("elapsed", time.Since(start)),
	)
	return document.NewResult(text, total, descriptions), nil
}

func (e *Extractor) imagePass(ctx context.Context, path string) document.BestEffort[[]PageImages] {
	counts, err := e.detectImages(ctx, path)
	if err != nil {
		return document.FellBack[[]PageImages](nil, err)
	}
	return document.Succeeded(counts)
}

// extractText decodes pages concurrently and joins them in page order.
func (e *Extractor) extractText(ctx context.Context, path string) (string, int, error) {
	f, reader, err := openReader(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	numPages := 0
	if err := guard(func() error {
		numPages = reader.NumPage()
		return nil
	}); err != nil {
		return "", 0, err
	}
	if numPages <= 0 {
		return "", 0, nil
	}

	texts := make([]string, numPages)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.pageWorkers)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			return guard(func() error {
				page := reader.Page(pageNum)
				// A page without content streams is blank.
				if page.V.IsNull() || page.V.Key("Contents").IsNull() {
					return nil
				}
				text, err := page.GetPlainText(nil)
				if err != nil {
					return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
				}
				texts[pageNum-1] = text
				e.logger.Debug("Page decoded",
					logger.Int("page", pageNum),
					logger.Int("chars", len(text)),
				)
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return "", 0, err
	}
	return strings.Join(texts, "\n\n"), numPages, nil
}

// DetectImages opens path on its own and counts, for each page, the image
// XObjects in its resources, descending into form XObjects.
func DetectImages(ctx context.Context, path string) ([]PageImages, error) {
	f, reader, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []PageImages
	err = guard(func() error {
		n := reader.NumPage()
		for i := 1; i <= n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			page := reader.Page(i)
			if page.V.IsNull() {
				continue
			}
			out = append(out, PageImages{Page: i, Count: countImageXObjects(page.Resources(), 0)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func countImageXObjects(resources pdf.Value, depth int) int {
	if resources.IsNull() || depth > maxFormDepth {
		return 0
	}
	xobjects := resources.Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return 0
	}

	count := 0
	for _, name := range xobjects.Keys() {
		xo := xobjects.Key(name)
		switch xo.Key("Subtype").Name() {
		case "Image":
			count++
		case "Form":
			count += countImageXObjects(xo.Key("Resources"), depth+1)
		}
	}
	return count
}

func openReader(path string) (*os.File, *pdf.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	var reader *pdf.Reader
	err = guard(func() error {
		var rerr error
		reader, rerr = pdf.NewReader(f, info.Size())
		return rerr
	})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, reader, nil
}

var errMalformed = errors.New("malformed pdf structure")

// guard turns a panic raised by the pdf reader on malformed input into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errMalformed, r)
		}
	}()
	return fn()
}
