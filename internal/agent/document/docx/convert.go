package docx

import (
	"context"
	"fmt"
	"html"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/feichai0017/study-assistant/internal/agent/document/ooxml"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/scratch"
)

// segment is a piece of paragraph content: text, or an image reference.
type segment struct {
	text     string
	imageRel string
	isImage  bool
}

type paragraph struct {
	segments []segment
}

func (p paragraph) text() string {
	var b strings.Builder
	for _, s := range p.segments {
		if !s.isImage {
			b.WriteString(s.text)
		}
	}
	return b.String()
}

// readParagraphs returns every w:p of the document body in document order.
// Paragraphs nested in text boxes follow the paragraph that hosts them.
func readParagraphs(ctx context.Context, root *xmlquery.Node) ([]paragraph, error) {
	var nodes []*xmlquery.Node
	ooxml.Walk(root, func(n *xmlquery.Node) bool {
		if ooxml.IsElement(n, ooxml.NSWordprocessingML, "p") {
			nodes = append(nodes, n)
		}
		return n.Type == xmlquery.ElementNode || n.Type == xmlquery.DocumentNode
	})

	paras := make([]paragraph, 0, len(nodes))
	for i, n := range nodes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		paras = append(paras, paragraph{segments: paragraphSegments(n)})
	}
	return paras, nil
}

func paragraphSegments(p *xmlquery.Node) []segment {
	var segs []segment
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		ooxml.Walk(c, func(n *xmlquery.Node) bool {
			if n.Type != xmlquery.ElementNode {
				return false
			}
			switch {
			case ooxml.IsElement(n, ooxml.NSWordprocessingML, "p"):
				return false
			case ooxml.IsElement(n, ooxml.NSWordprocessingML, "t"):
				segs = append(segs, segment{text: ooxml.Text(n)})
				return false
			case ooxml.IsElement(n, ooxml.NSWordprocessingML, "tab"):
				segs = append(segs, segment{text: "\t"})
				return false
			case ooxml.IsElement(n, ooxml.NSWordprocessingML, "br"),
				ooxml.IsElement(n, ooxml.NSWordprocessingML, "cr"):
				segs = append(segs, segment{text: "\n"})
				return false
			case ooxml.IsElement(n, ooxml.NSDrawingML, "blip"):
				id, _ := ooxml.AttrValue(n, ooxml.NSRelationships, "embed")
				segs = append(segs, segment{imageRel: id, isImage: true})
				return false
			case ooxml.IsElement(n, ooxml.NSVML, "imagedata"):
				id, _ := ooxml.AttrValue(n, ooxml.NSRelationships, "id")
				segs = append(segs, segment{imageRel: id, isImage: true})
				return false
			}
			return true
		})
	}
	return segs
}

// rawText is the markup-free conversion: one string per paragraph.
func rawText(paras []paragraph) []string {
	out := make([]string, len(paras))
	for i, p := range paras {
		out[i] = p.text()
	}
	return out
}

// joinParagraphs follows every paragraph with a blank line.
func joinParagraphs(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	return strings.Join(texts, "\n\n") + "\n\n"
}

// htmlConverter renders paragraphs to HTML, writing every resolvable image
// into dir and emitting an <img> for it.
type htmlConverter struct {
	arc    *ooxml.Archive
	rels   map[string]ooxml.Relationship
	dir    *scratch.Dir
	logger logger.Logger
	images int
}

func (c *htmlConverter) convert(ctx context.Context, paras []paragraph) (string, error) {
	var b strings.Builder
	for _, p := range paras {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		b.WriteString("<p>")
		for _, s := range p.segments {
			if !s.isImage {
				b.WriteString(html.EscapeString(s.text))
				continue
			}
			src, ok := c.writeImage(s.imageRel)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, `<img src="%s" alt="Image %d" />`, html.EscapeString(src), c.images)
		}
		b.WriteString("</p>")
	}
	return b.String(), nil
}

func (c *htmlConverter) writeImage(relID string) (string, bool) {
	rel, ok := c.rels[relID]
	if !ok || rel.External() {
		c.logger.Warn("Skipping unresolved image",
			logger.String("relId", relID),
			logger.Bool("external", ok && rel.External()),
		)
		return "", false
	}

	part := ooxml.ResolveTarget("word/document.xml", rel.Target)
	data, err := c.arc.ReadPart(part)
	if err != nil {
		c.logger.Warn("Skipping unreadable image",
			logger.String("relId", relID),
			logger.String("part", part),
			logger.Error(err),
		)
		return "", false
	}

	c.images++
	name := fmt.Sprintf("image-%d%s", c.images, strings.ToLower(path.Ext(part)))
	written, err := c.dir.Write(name, data)
	if err != nil {
		c.images--
		c.logger.Warn("Failed to write image to scratch dir", logger.Error(err))
		return "", false
	}
	return written, true
}

// countImages counts the <img> markers in rendered HTML.
func countImages(rendered string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return 0, fmt.Errorf("failed to parse rendered html: %w", err)
	}
	return doc.Find("img").Length(), nil
}

// insertImagePlaceholders appends "\n[IMAGE k]" to paragraph min(k-1, last).
// The position is approximate; it does not follow the image's real anchor.
func insertImagePlaceholders(texts []string, count int) []string {
	if count <= 0 {
		return texts
	}
	out := make([]string, len(texts))
	copy(out, texts)
	if len(out) == 0 {
		out = []string{""}
	}
	for i := 0; i < count; i++ {
		at := i
		if at > len(out)-1 {
			at = len(out) - 1
		}
		out[at] += fmt.Sprintf("\n[IMAGE %d]", i+1)
	}
	return out
}
