package pptx

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/agent/document/ooxml"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slideRef struct {
	name   string
	number int
}

type Extractor struct {
	logger logger.Logger
}

func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{logger: log.Named("pptx")}
}

func (e *Extractor) Format() document.Format {
	return document.FormatPPTX
}

// Extract renders each slide as a "Slide n:" block in numeric slide order,
// noting how many images the slide references.
func (e *Extractor) Extract(ctx context.Context, path string) (*document.ExtractionResult, error) {
	start := time.Now()

	arc, err := ooxml.Open(path)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	slides := orderedSlides(arc.Names())

	var (
		b            strings.Builder
		total        int
		descriptions []string
	)
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		root, err := arc.ParsePart(s.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", s.number, err)
		}

		texts := collectText(root)
		refs := collectImageRefs(root)

		fmt.Fprintf(&b, "Slide %d:\n", s.number)
		b.WriteString(strings.Join(texts, "\n"))
		if k := len(refs); k > 0 {
			fmt.Fprintf(&b, "\n[This slide contains %d image(s)]\n", k)
			descriptions = append(descriptions, document.UnitDescription("Slide", s.number, k))
			total += k
		}
		b.WriteString("\n\n")

		e.logger.Debug("Slide extracted",
			logger.Int("slide", s.number),
			logger.Int("runs", len(texts)),
			logger.Int("images", len(refs)),
		)
	}

	e.logger.Info("Presentation extracted",
		logger.Int("slides", len(slides)),
		logger.Int("images", total),
		logger.Duration("elapsed", time.Since(start)),
	)

	return document.NewResult(b.String(), total, descriptions), nil
}

// orderedSlides picks the slide parts out of names and sorts them by the
// number in the file name, so slide10 follows slide2.
func orderedSlides(names []string) []slideRef {
	slides := make([]slideRef, 0, len(names))
	for _, name := range names {
		m := slidePart.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideRef{name: name, number: n})
	}
	sort.SliceStable(slides, func(i, j int) bool {
		return slides[i].number < slides[j].number
	})
	return slides
}
