package docx

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/agent/document/ooxml"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/scratch"
)

const mainPart = "word/document.xml"

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type Extractor struct {
	scratchBase string
	logger      logger.Logger
}

// NewExtractor returns a DOCX extractor whose per-call image directories are
// created under scratchBase (os.TempDir() when empty).
func NewExtractor(scratchBase string, log logger.Logger) *Extractor {
	return &Extractor{
		scratchBase: scratchBase,
		logger:      log.Named("docx"),
	}
}

func (e *Extractor) Format() document.Format {
	return document.FormatDOCX
}

// Extract runs a rich HTML conversion to count embedded images and a plain
// conversion for the text, then marks the images with [IMAGE k] tokens.
func (e *Extractor) Extract(ctx context.Context, path string) (*document.ExtractionResult, error) {
	start := time.Now()

	arc, err := ooxml.Open(path)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	root, err := arc.ParsePart(mainPart)
	if err != nil {
		return nil, err
	}
	rels, err := arc.Relationships(mainPart)
	if err != nil {
		return nil, err
	}

	dir, err := scratch.New(e.scratchBase, scratchLabel(path))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			e.logger.Warn("Failed to remove scratch dir",
				logger.String("dir", dir.Path()),
				logger.Error(cerr),
			)
		}
	}()

	paras, err := readParagraphs(ctx, root)
	if err != nil {
		return nil, err
	}

	conv := &htmlConverter{arc: arc, rels: rels, dir: dir, logger: e.logger}
	rendered, err := conv.convert(ctx, paras)
	if err != nil {
		return nil, err
	}
	imageCount, err := countImages(rendered)
	if err != nil {
		return nil, err
	}

	texts := rawText(paras)
	var descriptions []string
	if imageCount > 0 {
		texts = insertImagePlaceholders(texts, imageCount)
		descriptions = []string{fmt.Sprintf("Document contains %d image(s)", imageCount)}
	}

	e.logger.Info("Document extracted",
		logger.Int("paragraphs", len(paras)),
		logger.Int("images", imageCount),
		logger.Duration("elapsed", time.Since(start)),
	)

	return document.NewResult(joinParagraphs(texts), imageCount, descriptions), nil
}

// scratchLabel derives a readable directory prefix from the upload name; the
// scratch package appends a random suffix for uniqueness.
func scratchLabel(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = unsafeLabel.ReplaceAllString(stem, "_")
	if len(stem) > 32 {
		stem = stem[:32]
	}
	return "docx-" + stem
}
