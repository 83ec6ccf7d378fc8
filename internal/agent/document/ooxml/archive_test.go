package ooxml

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/testutil"
)

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com" TargetMode="External"/>
</Relationships>`

func TestArchiveRelationships(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "a.docx", []testutil.Part{
		{Name: "word/document.xml", Data: `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"/>`},
		{Name: "word/_rels/document.xml.rels", Data: relsXML},
		{Name: "word/media/image1.png", Data: "png"},
	})

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Has("word/media/image1.png"))
	assert.Len(t, a.Names(), 3)

	rels, err := a.Relationships("word/document.xml")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, RelTypeImage, rels["rId1"].Type)
	assert.False(t, rels["rId1"].External())
	assert.True(t, rels["rId2"].External())

	assert.Equal(t, "word/media/image1.png", ResolveTarget("word/document.xml", rels["rId1"].Target))
	assert.Equal(t, "ppt/media/image2.png", ResolveTarget("ppt/slides/slide1.xml", "../media/image2.png"))
	assert.Equal(t, "word/media/x.png", ResolveTarget("word/document.xml", "/word/media/x.png"))

	none, err := a.Relationships("word/styles.xml")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = a.ReadPart("word/missing.xml")
	assert.ErrorIs(t, err, ErrPartNotFound)
}

func TestOpenRejectsNonZip(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "bad.pptx", []byte("not a zip"))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestWalkSkipsFallbackAndHonoursPrune(t *testing.T) {
	doc := `<root xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <mc:AlternateContent>
    <mc:Choice><a:t>choice</a:t></mc:Choice>
    <mc:Fallback><a:t>fallback</a:t></mc:Fallback>
  </mc:AlternateContent>
  <a:p><a:t>kept</a:t><a:skip><a:t>pruned</a:t></a:skip></a:p>
</root>`
	root, err := xmlquery.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var got []string
	Walk(root, func(n *xmlquery.Node) bool {
		if IsElement(n, NSDrawingML, "skip") {
			return false
		}
		if IsElement(n, NSDrawingML, "t") {
			got = append(got, Text(n))
		}
		return true
	})
	assert.Equal(t, []string{"choice", "kept"}, got)
}

func TestAttrValueNamespaces(t *testing.T) {
	doc := `<a:blip xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" r:embed="rId7" cstate="print"/>`
	root, err := xmlquery.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var blip *xmlquery.Node
	Walk(root, func(n *xmlquery.Node) bool {
		if IsElement(n, NSDrawingML, "blip") {
			blip = n
		}
		return true
	})
	require.NotNil(t, blip)

	v, ok := AttrValue(blip, NSRelationships, "embed")
	assert.True(t, ok)
	assert.Equal(t, "rId7", v)

	v, ok = AttrValue(blip, "", "cstate")
	assert.True(t, ok)
	assert.Equal(t, "print", v)

	_, ok = AttrValue(blip, "", "embed")
	assert.False(t, ok)
}
