package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LedongthucEngine is the default PDFEngine, backed by github.com/ledongthuc/pdf.
// The library panics on some malformed files; those panics come back as errors.
type LedongthucEngine struct{}

// Open parses the cross-reference table of data.
func (LedongthucEngine) Open(_ context.Context, data []byte) (doc PDFDocument, err error) {
	defer recoverInto(&err)
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &ledongthucDocument{r: r}, nil
}

type ledongthucDocument struct {
	r *pdf.Reader
}

func (d *ledongthucDocument) NumPages() (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return d.r.NumPage()
}

func (d *ledongthucDocument) Info(_ context.Context) (info PDFInfo, err error) {
	defer recoverInto(&err)
	dict := d.r.Trailer().Key("Info")
	if dict.IsNull() {
		return PDFInfo{}, errors.New("no info dictionary")
	}
	return PDFInfo{
		Title:  dict.Key("Title").Text(),
		Author: dict.Key("Author").Text(),
	}, nil
}

// PageText groups glyphs into lines by baseline. A vertical gap of more than
// paragraphGap line heights is reported as a "\n\n" run.
func (d *ledongthucDocument) PageText(_ context.Context, n int) (runs []string, err error) {
	defer recoverInto(&err)
	page := d.r.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d is empty", n)
	}
	return groupLines(page.Content().Text), nil
}

func (d *ledongthucDocument) Close() error {
	d.r = nil
	return nil
}

const paragraphGap = 1.8

func groupLines(glyphs []pdf.Text) []string {
	var (
		runs  []string
		line  strings.Builder
		prev  pdf.Text
		first = true
	)
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			runs = append(runs, s)
		}
		line.Reset()
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := math.Max(g.FontSize, 1)
		if !first {
			dy := math.Abs(prev.Y - g.Y)
			switch {
			case dy > size*paragraphGap:
				flush()
				runs = append(runs, "\n\n")
			case dy > size*0.5:
				flush()
			case g.X-(prev.X+prev.W) > size*0.2:
				line.WriteByte(' ')
			}
		}
		line.WriteString(g.S)
		prev, first = g, false
	}
	flush()
	return runs
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdf: recovered from panic: %v", r)
	}
}
