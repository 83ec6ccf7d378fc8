package pptx

import (
	"github.com/antchfx/xmlquery"

	"github.com/feichai0017/study-assistant/internal/agent/document/ooxml"
)

// ImageRef is one embedded image referenced from a slide.
type ImageRef struct {
	// RelID is the relationship id of the image part, or "image-ref" when
	// the reference carries no id.
	RelID string
}

const anonymousRef = "image-ref"

// collectText returns every DrawingML text run (a:t) in document order.
func collectText(root *xmlquery.Node) []string {
	var runs []string
	ooxml.Walk(root, func(n *xmlquery.Node) bool {
		if n.Type != xmlquery.ElementNode && n.Type != xmlquery.DocumentNode {
			return false
		}
		if ooxml.IsElement(n, ooxml.NSDrawingML, "t") {
			runs = append(runs, ooxml.Text(n))
			return false
		}
		return true
	})
	return runs
}

// collectImageRefs returns one ref per element that either owns an a:blip
// child or carries an r:embed attribute. Matches are not descended into, so
// a blipFill and its blip count once.
func collectImageRefs(root *xmlquery.Node) []ImageRef {
	var refs []ImageRef
	ooxml.Walk(root, func(n *xmlquery.Node) bool {
		if n.Type != xmlquery.ElementNode {
			return n.Type == xmlquery.DocumentNode
		}
		if blip := ooxml.FirstChildElement(n, ooxml.NSDrawingML, "blip"); blip != nil {
			id, _ := ooxml.AttrValue(blip, ooxml.NSRelationships, "embed")
			refs = append(refs, newRef(id))
			return false
		}
		if id, ok := ooxml.AttrValue(n, ooxml.NSRelationships, "embed"); ok {
			refs = append(refs, newRef(id))
			return false
		}
		return true
	})
	return refs
}

func newRef(id string) ImageRef {
	if id == "" {
		id = anonymousRef
	}
	return ImageRef{RelID: id}
}
