package reader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

// buildTestZip creates an in-memory ZIP archive from files (path → content).
// It calls t.Fatal on any error.
func buildTestZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	if mt, ok := files["mimetype"]; ok {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
		if err != nil {
			t.Fatalf("buildTestZip: create mimetype: %v", err)
		}
		if _, err := io.WriteString(fw, mt); err != nil {
			t.Fatalf("buildTestZip: write mimetype: %v", err)
		}
	}
	for name, content := range files {
		if name == "mimetype" {
			continue
		}
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestZip: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("buildTestZip: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestZip: close writer: %v", err)
	}
	return buf.Bytes()
}

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// testPackage assembles a package document. meta is inserted into
// <metadata>, items into <manifest>, spine into <spine> and guide after it.
type testPackage struct {
	meta  string
	items string
	spine string
	guide string
}

func (p testPackage) String() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>The Test Book</dc:title>
    <dc:creator>Ada Writer</dc:creator>
    <dc:identifier id="bookid">urn:uuid:0000</dc:identifier>
    %s
  </metadata>
  <manifest>
    %s
  </manifest>
  <spine toc="ncx">
    %s
  </spine>
  %s
</package>`, p.meta, p.items, p.spine, p.guide)
}

func xhtml(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Page</title></head>
<body>
` + body + `
</body>
</html>`
}

// minimalEPUB returns the files of a one-chapter book.
func minimalEPUB() map[string]string {
	return map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf": testPackage{
			items: `<item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>`,
			spine: `<itemref idref="ch1"/>`,
		}.String(),
		"OEBPS/text/ch1.xhtml": xhtml(`<h1>The First Chapter</h1>
<p>It was a bright cold day in April, and the clocks were striking thirteen.</p>`),
	}
}

// jpegBytes is not a real image; covers are copied, never decoded.
var jpegBytes = "\xff\xd8\xff\xe0fake-jpeg-payload"

// discardLogger keeps expected warnings out of test output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureLogger returns a logger writing text records into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeDocument is a PDFDocument serving canned page runs.
type fakeDocument struct {
	pages   [][]string
	errs    map[int]error
	info    PDFInfo
	infoErr error
	closed  int
	visited []int
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) PageText(_ context.Context, n int) ([]string, error) {
	d.visited = append(d.visited, n)
	if err := d.errs[n]; err != nil {
		return nil, err
	}
	return d.pages[n-1], nil
}

func (d *fakeDocument) Info(context.Context) (PDFInfo, error) {
	return d.info, d.infoErr
}

func (d *fakeDocument) Close() error {
	d.closed++
	return nil
}

type fakeEngine struct {
	doc     *fakeDocument
	openErr error
}

func (e *fakeEngine) Open(context.Context, []byte) (PDFDocument, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.doc, nil
}
