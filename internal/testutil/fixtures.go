// Package testutil builds small document fixtures on disk for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Part is one archive entry, written in slice order.
type Part struct {
	Name string
	Data string
}

// WriteZip writes parts into dir/name and returns the path.
func WriteZip(t testing.TB, dir, name string, parts []Part) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.Create(p.Name)
		if err != nil {
			t.Fatalf("create %s: %v", p.Name, err)
		}
		if _, err := w.Write([]byte(p.Data)); err != nil {
			t.Fatalf("write %s: %v", p.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return WriteFile(t, dir, name, buf.Bytes())
}

// WriteFile writes raw bytes into dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// PDFPage describes one page of a generated PDF.
type PDFPage struct {
	Text   string
	Images int
	// NoContents omits the page's /Contents entry, which makes it blank.
	NoContents bool
}

// BuildPDF renders a minimal but well-formed PDF: one Helvetica text line
// per page and the requested number of image XObjects in each page's
// resources. A shared form XObject is never emitted, so counts are exact.
func BuildPDF(pages []PDFPage) []byte {
	var objs []string
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	catalog := add("") // patched below
	pagesObj := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	kids := make([]string, 0, len(pages))
	for _, p := range pages {
		var xobjs []string
		for i := 0; i < p.Images; i++ {
			img := add(stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", "\x00"))
			xobjs = append(xobjs, fmt.Sprintf("/Im%d %d 0 R", i+1, img))
		}

		content := ""
		if p.Text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escapePDF(p.Text))
		}
		for i := 0; i < p.Images; i++ {
			content += fmt.Sprintf(" q 10 0 0 10 0 0 cm /Im%d Do Q", i+1)
		}
		contentsRef := ""
		if !p.NoContents {
			contentsRef = fmt.Sprintf(" /Contents %d 0 R", add(stream("", content)))
		}

		res := fmt.Sprintf("<< /Font << /F1 %d 0 R >>", font)
		if len(xobjs) > 0 {
			res += " /XObject << " + strings.Join(xobjs, " ") + " >>"
		}
		res += " >>"

		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources %s%s >>",
			pagesObj, res, contentsRef))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	objs[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, catalog, xref)
	return buf.Bytes()
}

func stream(dict, data string) string {
	if dict != "" {
		dict += " "
	}
	return fmt.Sprintf("<< %s/Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
