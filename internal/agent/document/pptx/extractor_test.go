package pptx

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/testutil"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

const slideNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

func textShape(runs ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sp><p:txBody><a:p>`)
	for _, r := range runs {
		fmt.Fprintf(&b, `<a:r><a:rPr lang="en-US"/><a:t>%s</a:t></a:r>`, r)
	}
	b.WriteString(`</a:p></p:txBody></p:sp>`)
	return b.String()
}

func picture(relID string) string {
	return fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="4" name="Picture"/></p:nvPicPr>`+
		`<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill></p:pic>`, relID)
}

func slide(shapes ...string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<p:sld ` + slideNS + `><p:cSld><p:spTree>` + strings.Join(shapes, "") + `</p:spTree></p:cSld></p:sld>`
}

func newExtractor() *Extractor {
	return NewExtractor(logger.NewTestLogger())
}

func TestExtractOrdersSlidesNumerically(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "deck.pptx", []testutil.Part{
		{Name: "[Content_Types].xml", Data: `<Types/>`},
		{Name: "ppt/slides/slide10.xml", Data: slide(textShape("ten"))},
		{Name: "ppt/slides/slide2.xml", Data: slide(textShape("two"))},
		{Name: "ppt/slides/slide1.xml", Data: slide(textShape("one"))},
		{Name: "ppt/slides/_rels/slide1.xml.rels", Data: `<Relationships/>`},
	})

	res, err := newExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Slide 1:\none\n\nSlide 2:\ntwo\n\nSlide 10:\nten\n\n", res.Text)
	assert.Zero(t, res.ImageCount)
	assert.Empty(t, res.ImageDescriptions)
}

func TestExtractCountsImagesPerSlide(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "deck.pptx", []testutil.Part{
		{Name: "ppt/slides/slide1.xml", Data: slide(textShape("Intro"))},
		{Name: "ppt/slides/slide2.xml", Data: slide(textShape("Charts", "and more"), picture("rId2"), picture("rId3"))},
		{Name: "ppt/slides/slide3.xml", Data: slide(textShape("Outro"))},
	})

	res, err := newExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ImageCount)
	assert.Equal(t, []string{"Slide 2: Contains 2 image(s)"}, res.ImageDescriptions)

	blocks := strings.Split(strings.TrimSuffix(res.Text, "\n\n"), "\n\nSlide ")
	require.Len(t, blocks, 3)
	assert.NotContains(t, blocks[0], "[This slide contains")
	assert.Contains(t, blocks[1], "Charts\nand more\n[This slide contains 2 image(s)]")
	assert.NotContains(t, blocks[2], "[This slide contains")
	assert.Equal(t, 1, strings.Count(res.Text, "[This slide contains 2 image(s)]"))
}

func TestExtractEmptyDeck(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "empty.pptx", []testutil.Part{
		{Name: "ppt/presentation.xml", Data: `<p:presentation ` + slideNS + `/>`},
	})

	res, err := newExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Zero(t, res.ImageCount)
	assert.NotNil(t, res.ImageDescriptions)
	assert.Empty(t, res.ImageDescriptions)
}

func TestExtractIsIdempotent(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "deck.pptx", []testutil.Part{
		{Name: "ppt/slides/slide1.xml", Data: slide(textShape("a"), picture("rId1"))},
		{Name: "ppt/slides/slide2.xml", Data: slide(textShape("b"))},
	})

	e := newExtractor()
	first, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractHonoursCancellation(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "deck.pptx", []testutil.Part{
		{Name: "ppt/slides/slide1.xml", Data: slide(textShape("a"))},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newExtractor().Extract(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractRejectsMalformedSlide(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "deck.pptx", []testutil.Part{
		{Name: "ppt/slides/slide1.xml", Data: `<p:sld ` + slideNS + `><p:cSld>`},
	})

	_, err := newExtractor().Extract(context.Background(), path)
	assert.Error(t, err)
}

func TestOrderedSlidesIgnoresOtherParts(t *testing.T) {
	got := orderedSlides([]string{
		"ppt/slides/slide3.xml",
		"ppt/slides/_rels/slide3.xml.rels",
		"ppt/slideLayouts/slideLayout1.xml",
		"ppt/slides/slide12.xml",
		"ppt/notesSlides/notesSlide1.xml",
	})
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].number)
	assert.Equal(t, 12, got[1].number)
}
