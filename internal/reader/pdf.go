package reader

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/oodadoudou/ZenithAI-Reader/internal/heading"
)

const mediaTypePDF = "application/pdf"

// PDFEngine opens PDF documents for text extraction.
type PDFEngine interface {
	Open(ctx context.Context, data []byte) (PDFDocument, error)
}

// PDFDocument is an open document handle. Pages are numbered from 1.
type PDFDocument interface {
	NumPages() int
	// PageText returns the page's text runs in reading order. A run of
	// "\n\n" marks a paragraph gap.
	PageText(ctx context.Context, page int) ([]string, error)
	Info(ctx context.Context) (PDFInfo, error)
	Close() error
}

// PDFInfo is the document information dictionary.
type PDFInfo struct {
	Title  string
	Author string
}

// PDFParser extracts paragraphs page by page.
type PDFParser struct {
	Engine      PDFEngine
	Heading     heading.Rule
	LabelLength int
	Logger      *slog.Logger
}

func (p *PDFParser) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// withDocument opens data and runs fn with the handle, closing it on every path.
func (p *PDFParser) withDocument(ctx context.Context, data []byte, fn func(PDFDocument) error) (err error) {
	engine := p.Engine
	if engine == nil {
		engine = LedongthucEngine{}
	}
	doc, err := engine.Open(ctx, data)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close pdf: %w", cerr)
		}
	}()
	return fn(doc)
}

// ExtractMetadata reads the information dictionary. A missing or unreadable
// dictionary leaves the defaults in place.
func (p *PDFParser) ExtractMetadata(ctx context.Context, _ string, data []byte) (Metadata, error) {
	meta := Metadata{Title: "Untitled PDF", MediaType: mediaTypePDF}
	err := p.withDocument(ctx, data, func(doc PDFDocument) error {
		info, err := doc.Info(ctx)
		if err != nil {
			p.logger().Debug("pdf info unavailable", "error", err)
			return nil
		}
		if t := strings.TrimSpace(info.Title); t != "" {
			meta.Title = t
		}
		meta.Author = strings.TrimSpace(info.Author)
		return nil
	})
	if err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Parse walks pages in order. A page that fails is logged and skipped.
func (p *PDFParser) Parse(ctx context.Context, data []byte) (Content, error) {
	var c Content
	err := p.withDocument(ctx, data, func(doc PDFDocument) error {
		log := p.logger()
		for page := 1; page <= doc.NumPages(); page++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			runs, err := doc.PageText(ctx, page)
			if err != nil {
				log.Warn("skipping pdf page", "page", page, "error", err)
				continue
			}
			parts := splitPage(strings.Join(runs, " "))
			if len(parts) == 0 {
				continue
			}
			if candidate := heading.Label(parts[0], p.LabelLength); p.Heading.Match(candidate) {
				c.Chapters = append(c.Chapters, Chapter{Title: candidate, Index: len(c.Paragraphs)})
			}
			c.Paragraphs = append(c.Paragraphs, parts...)
		}
		return nil
	})
	if err != nil {
		return Content{}, err
	}
	return c, nil
}

var (
	lineBreaks  = regexp.MustCompile(`(?:\r?\n){2,}`)
	sentenceGap = regexp.MustCompile(`[.?!]\s{2,}`)
)

// splitPage splits page text on blank lines, or failing that on sentence
// ends followed by two or more spaces. Otherwise the page is one paragraph.
func splitPage(text string) []string {
	if parts := collapseParts(lineBreaks.Split(text, -1)); len(parts) > 1 {
		return parts
	}
	if parts := collapseParts(splitSentences(text)); len(parts) > 1 {
		return parts
	}
	if whole := normalizeSpace(text); whole != "" {
		return []string{whole}
	}
	return nil
}

func splitSentences(text string) []string {
	var parts []string
	start := 0
	for _, loc := range sentenceGap.FindAllStringIndex(text, -1) {
		parts = append(parts, text[start:loc[0]+1])
		start = loc[1]
	}
	return append(parts, text[start:])
}

func collapseParts(parts []string) []string {
	out := parts[:0:0]
	for _, part := range parts {
		if s := normalizeSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
