// Package ooxml reads Office Open XML packages (docx, pptx): ZIP parts,
// relationship tables, and parsed XML trees.
package ooxml

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Namespaces used by the extractors.
const (
	NSDrawingML        = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NSRelationships    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	NSPackageRels      = "http://schemas.openxmlformats.org/package/2006/relationships"
	NSWordprocessingML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NSVML              = "urn:schemas-microsoft-com:vml"
	NSMarkupCompat     = "http://schemas.openxmlformats.org/markup-compatibility/2006"

	RelTypeImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// maxPartSize caps how much of a single decompressed part is read.
const maxPartSize = 256 << 20

var ErrPartNotFound = errors.New("part not found")

// Archive is an opened OOXML package.
type Archive struct {
	zr    *zip.ReadCloser
	parts map[string]*zip.File
}

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID         string
	Type       string
	Target     string
	TargetMode string
}

// External reports whether the target lives outside the package.
func (r Relationship) External() bool {
	return strings.EqualFold(r.TargetMode, "External")
}

// Open opens the package at path.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[normalize(f.Name)] = f
	}
	return &Archive{zr: zr, parts: parts}, nil
}

func (a *Archive) Close() error {
	return a.zr.Close()
}

// Names returns every part name, sorted.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.parts))
	for name := range a.parts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Archive) Has(name string) bool {
	_, ok := a.parts[normalize(name)]
	return ok
}

// ReadPart returns the decompressed bytes of a part.
func (a *Archive) ReadPart(name string) ([]byte, error) {
	f, ok := a.parts[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrPartNotFound)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", name, err)
	}
	if len(data) > maxPartSize {
		return nil, fmt.Errorf("part %s exceeds %d bytes", name, maxPartSize)
	}
	return data, nil
}

// ParsePart parses an XML part into a node tree.
func (a *Archive) ParsePart(name string) (*xmlquery.Node, error) {
	data, err := a.ReadPart(name)
	if err != nil {
		return nil, err
	}
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse part %s: %w", name, err)
	}
	return root, nil
}

// Relationships loads the relationship table owned by part, keyed by id.
// A part without a .rels companion has no relationships.
func (a *Archive) Relationships(part string) (map[string]Relationship, error) {
	relsName := RelsPartName(part)
	if !a.Has(relsName) {
		return map[string]Relationship{}, nil
	}

	root, err := a.ParsePart(relsName)
	if err != nil {
		return nil, err
	}

	rels := make(map[string]Relationship)
	Walk(root, func(n *xmlquery.Node) bool {
		if IsElement(n, NSPackageRels, "Relationship") {
			id, _ := AttrValue(n, "", "Id")
			if id != "" {
				typ, _ := AttrValue(n, "", "Type")
				target, _ := AttrValue(n, "", "Target")
				mode, _ := AttrValue(n, "", "TargetMode")
				rels[id] = Relationship{ID: id, Type: typ, Target: target, TargetMode: mode}
			}
			return false
		}
		return true
	})
	return rels, nil
}

// RelsPartName maps "word/document.xml" to "word/_rels/document.xml.rels".
func RelsPartName(part string) string {
	part = normalize(part)
	return path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
}

// ResolveTarget resolves a relationship target against the part that owns it.
func ResolveTarget(part, target string) string {
	if strings.HasPrefix(target, "/") {
		return normalize(target)
	}
	return normalize(path.Join(path.Dir(normalize(part)), target))
}

func normalize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
