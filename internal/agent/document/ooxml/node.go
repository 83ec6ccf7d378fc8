package ooxml

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

// Walk visits n and its descendants depth-first in document order. When
// visit returns false the node's children are skipped. Fallback branches of
// mc:AlternateContent are never entered, so each object is seen once.
func Walk(n *xmlquery.Node, visit func(*xmlquery.Node) bool) {
	if n == nil {
		return
	}
	if IsElement(n, NSMarkupCompat, "Fallback") {
		return
	}
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, visit)
	}
}

// IsElement reports whether n is the element {ns}local.
func IsElement(n *xmlquery.Node, ns, local string) bool {
	return n != nil &&
		n.Type == xmlquery.ElementNode &&
		n.Data == local &&
		n.NamespaceURI == ns
}

// AttrValue returns the value of attribute {ns}local on an element.
// Pass ns == "" for unqualified attributes.
func AttrValue(n *xmlquery.Node, ns, local string) (string, bool) {
	if n == nil || n.Type != xmlquery.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Name.Local == local && a.NamespaceURI == ns {
			return a.Value, true
		}
	}
	return "", false
}

// Text concatenates the character data directly under n.
func Text(n *xmlquery.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// FirstChildElement returns the first element child of n named {ns}local.
func FirstChildElement(n *xmlquery.Node, ns, local string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c, ns, local) {
			return c
		}
	}
	return nil
}
