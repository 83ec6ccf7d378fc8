package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/testutil"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

const (
	pptxNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
		`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
		`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
)

func slideXML(text string, images int) string {
	body := `<p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>`
	for i := 0; i < images; i++ {
		body += `<p:pic><p:blipFill><a:blip r:embed="rId` + string(rune('1'+i)) + `"/></p:blipFill></p:pic>`
	}
	return `<p:sld ` + pptxNS + `><p:cSld><p:spTree>` + body + `</p:spTree></p:cSld></p:sld>`
}

func writeDeck(t *testing.T, dir string) string {
	return testutil.WriteZip(t, dir, "deck.pptx", []testutil.Part{
		{Name: "ppt/slides/slide1.xml", Data: slideXML("Intro", 0)},
		{Name: "ppt/slides/slide2.xml", Data: slideXML("Diagram", 2)},
		{Name: "ppt/slides/slide3.xml", Data: slideXML("Outro", 0)},
	})
}

func writeDoc(t *testing.T, dir string) string {
	doc := `<w:document ` + docxNS + `><w:body>` +
		`<w:p><w:r><w:t>One</w:t></w:r><w:r><w:drawing><a:blip r:embed="rId1"/></w:drawing></w:r></w:p>` +
		`<w:p><w:r><w:t>Two</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	return testutil.WriteZip(t, dir, "notes.docx", []testutil.Part{
		{Name: "word/document.xml", Data: doc},
		{Name: "word/_rels/document.xml.rels", Data: `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>` +
			`</Relationships>`},
		{Name: "word/media/image1.png", Data: "png"},
	})
}

func newFactory(t *testing.T, cfg ExtractorConfig) *ExtractorFactory {
	t.Helper()
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = t.TempDir()
	}
	return NewExtractorFactory(cfg, logger.NewTestLogger())
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want document.Format
	}{
		{"a.pdf", document.FormatPDF},
		{"A.PDF", document.FormatPDF},
		{"b.docx", document.FormatDOCX},
		{"b.doc", document.FormatDOCX},
		{"c.Pptx", document.FormatPPTX},
		{"c.ppt", document.FormatPPTX},
		{"dir.with.dots/d.txt", document.FormatTXT},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatForPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractUnsupportedFormatWithoutReading(t *testing.T) {
	f := newFactory(t, ExtractorConfig{})

	_, err := f.Extract(context.Background(), "/definitely/not/here/file.xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)

	var unsupported *document.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, ".xyz", unsupported.Ext)
	assert.NotErrorIs(t, err, document.ErrExtractionFailed)
}

func TestExtractNoExtension(t *testing.T) {
	_, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), "README")
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
}

func TestExtractAppendsTrailerForDeck(t *testing.T) {
	path := writeDeck(t, t.TempDir())

	res, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ImageCount)
	assert.Equal(t, []string{"Slide 2: Contains 2 image(s)"}, res.ImageDescriptions)
	assert.True(t, strings.HasSuffix(res.Text,
		"\n\n--- Image Information ---\nTotal images: 2\nDetails:\n- Slide 2: Contains 2 image(s)\n"))
	assert.True(t, strings.HasPrefix(res.Text, "Slide 1:\nIntro\n\n"))
}

func TestExtractDocxTrailer(t *testing.T) {
	path := writeDoc(t, t.TempDir())

	res, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "One\n[IMAGE 1]\n\nTwo\n\n"+
		"\n\n--- Image Information ---\nTotal images: 1\nDetails:\n- Document contains 1 image(s)\n", res.Text)
}

func TestExtractPDFWithoutImagesHasNoTrailer(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "lecture.pdf", testutil.BuildPDF([]testutil.PDFPage{{Text: "Hello"}}))

	res, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.NotContains(t, res.Text, "Image Information")
}

func TestExtractPlainText(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "notes.TXT", []byte("plain notes"))

	res, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "plain notes", res.Text)
}

func TestExtractWrapsFailures(t *testing.T) {
	dir := t.TempDir()
	legacy := testutil.WriteFile(t, dir, "old.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})

	_, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), legacy)
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrExtractionFailed)

	var failed *document.ExtractionFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, document.FormatDOCX, failed.Format)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestExtractMissingFileIsExtractionFailure(t *testing.T) {
	_, err := newFactory(t, ExtractorConfig{}).Extract(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"))
	assert.ErrorIs(t, err, document.ErrExtractionFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type slowExtractor struct{}

func (slowExtractor) Format() document.Format { return document.FormatTXT }

func (slowExtractor) Extract(ctx context.Context, _ string) (*document.ExtractionResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return document.NewResult("late", 0, nil), nil
	}
}

func TestExtractTimeout(t *testing.T) {
	f := newFactory(t, ExtractorConfig{Timeout: 20 * time.Millisecond})
	f.Register(slowExtractor{})

	_, err := f.Extract(context.Background(), "slow.txt")
	assert.ErrorIs(t, err, document.ErrExtractionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractIsIdempotent(t *testing.T) {
	path := writeDeck(t, t.TempDir())
	f := newFactory(t, ExtractorConfig{})

	first, err := f.Extract(context.Background(), path)
	require.NoError(t, err)
	second, err := f.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConcurrentExtractionsAcrossFormats(t *testing.T) {
	dir := t.TempDir()
	scratchDir := t.TempDir()
	paths := []string{
		writeDeck(t, dir),
		writeDoc(t, dir),
		testutil.WriteFile(t, dir, "p.pdf", testutil.BuildPDF([]testutil.PDFPage{{Text: "pdf", Images: 1}})),
		testutil.WriteFile(t, dir, "t.txt", []byte("txt")),
	}

	f := newFactory(t, ExtractorConfig{ScratchDir: scratchDir})
	want := make([]*document.ExtractionResult, len(paths))
	for i, p := range paths {
		res, err := f.Extract(context.Background(), p)
		require.NoError(t, err)
		want[i] = res
	}

	var wg sync.WaitGroup
	for round := 0; round < 6; round++ {
		for i, p := range paths {
			wg.Add(1)
			go func(i int, p string) {
				defer wg.Done()
				got, err := f.Extract(context.Background(), p)
				assert.NoError(t, err)
				assert.Equal(t, want[i], got)
			}(i, p)
		}
	}
	wg.Wait()

	left, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	sort.Strings(exts)
	assert.Equal(t, []string{".doc", ".docx", ".pdf", ".ppt", ".pptx", ".txt"}, exts)
}
