package reader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/oodadoudou/ZenithAI-Reader/internal/heading"
)

// Format identifies one of the supported book formats.
type Format int

const (
	FormatUnknown Format = iota
	FormatTXT
	FormatEPUB
	FormatPDF
)

var formats = []Format{FormatTXT, FormatEPUB, FormatPDF}

func (f Format) String() string {
	switch f {
	case FormatTXT:
		return "TXT"
	case FormatEPUB:
		return "EPUB"
	case FormatPDF:
		return "PDF"
	}
	return "unknown"
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return ""
	}
	return "." + strings.ToLower(f.String())
}

// FormatFor maps a file name, extension or bare extension hint to a Format.
func FormatFor(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimSpace(name))
	if e := filepath.Ext(ext); e != "" {
		ext = e
	}
	ext = strings.TrimPrefix(ext, ".")
	switch ext {
	case "txt":
		return FormatTXT, nil
	case "epub":
		return FormatEPUB, nil
	case "pdf":
		return FormatPDF, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// SupportedFormats returns format names with their extensions.
func SupportedFormats() []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, f.String()+" ("+f.Extension()+")")
	}
	return out
}

// Parser is the capability shared by every format.
type Parser interface {
	ExtractMetadata(ctx context.Context, fileName string, data []byte) (Metadata, error)
	Parse(ctx context.Context, data []byte) (Content, error)
}

// Options tunes the parsers. Zero fields are replaced by DefaultOptions.
type Options struct {
	TextHeading heading.Rule
	PDFHeading  heading.Rule

	// LabelLength caps chapter titles, in runes.
	LabelLength int

	// MinParagraphLength is the normalized length an EPUB block must exceed
	// to count as a paragraph.
	MinParagraphLength int

	// MinHeadingLength is the minimum normalized length of an EPUB heading.
	MinHeadingLength int

	// FallbackThreshold is the paragraph count from which chapterless books
	// get synthesized section markers.
	FallbackThreshold int

	PDFEngine PDFEngine
	Logger    *slog.Logger
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		TextHeading:        heading.Text,
		PDFHeading:         heading.PDF,
		LabelLength:        heading.DefaultLabelLength,
		MinParagraphLength: 20,
		MinHeadingLength:   3,
		FallbackThreshold:  10,
		PDFEngine:          LedongthucEngine{},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TextHeading.UpperRatio == 0 && o.TextHeading.Keywords == nil {
		o.TextHeading = d.TextHeading
	}
	if o.PDFHeading.UpperRatio == 0 && o.PDFHeading.Keywords == nil {
		o.PDFHeading = d.PDFHeading
	}
	if o.LabelLength <= 0 {
		o.LabelLength = d.LabelLength
	}
	if o.MinParagraphLength <= 0 {
		o.MinParagraphLength = d.MinParagraphLength
	}
	if o.MinHeadingLength <= 0 {
		o.MinHeadingLength = d.MinHeadingLength
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = d.FallbackThreshold
	}
	if o.PDFEngine == nil {
		o.PDFEngine = d.PDFEngine
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Ingester routes books to their format parser.
type Ingester struct {
	opts Options
}

// NewIngester creates an Ingester with opts.
func NewIngester(opts Options) *Ingester {
	return &Ingester{opts: opts.withDefaults()}
}

var defaultIngester = NewIngester(Options{})

// ParseBook parses data with the default Ingester.
func ParseBook(ctx context.Context, fileName string, data []byte) (*Book, error) {
	return defaultIngester.ParseBook(ctx, fileName, data)
}

// ExtractMetadata reads metadata with the default Ingester.
func ExtractMetadata(ctx context.Context, fileName string, data []byte) (Metadata, error) {
	return defaultIngester.ExtractMetadata(ctx, fileName, data)
}

// Parser returns the parser for f.
func (in *Ingester) Parser(f Format) (Parser, error) {
	o := in.opts
	switch f {
	case FormatTXT:
		return &TXTParser{Heading: o.TextHeading, LabelLength: o.LabelLength}, nil
	case FormatEPUB:
		return &EPUBParser{
			MinParagraphLength: o.MinParagraphLength,
			MinHeadingLength:   o.MinHeadingLength,
			LabelLength:        o.LabelLength,
			Logger:             o.Logger,
		}, nil
	case FormatPDF:
		return &PDFParser{
			Engine:      o.PDFEngine,
			Heading:     o.PDFHeading,
			LabelLength: o.LabelLength,
			Logger:      o.Logger,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// ExtractMetadata reads title, author and cover without parsing the body.
func (in *Ingester) ExtractMetadata(ctx context.Context, fileName string, data []byte) (Metadata, error) {
	f, err := FormatFor(fileName)
	if err != nil {
		return Metadata{}, err
	}
	p, err := in.Parser(f)
	if err != nil {
		return Metadata{}, err
	}
	return p.ExtractMetadata(ctx, fileName, data)
}

// ParseBook parses a whole book. Unsupported formats, unreadable containers
// and books without any paragraph are errors; no partial book is returned.
func (in *Ingester) ParseBook(ctx context.Context, fileName string, data []byte) (*Book, error) {
	f, err := FormatFor(fileName)
	if err != nil {
		return nil, err
	}
	p, err := in.Parser(f)
	if err != nil {
		return nil, err
	}

	meta, err := p.ExtractMetadata(ctx, fileName, data)
	if err != nil {
		return nil, fmt.Errorf("read %s metadata: %w", f, err)
	}
	content, err := p.Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f, err)
	}
	if len(content.Paragraphs) == 0 {
		return nil, fmt.Errorf("parse %s: %w", f, ErrNoContent)
	}

	chapters := chaptersWithin(content.Chapters, len(content.Paragraphs))
	if len(chapters) == 0 && len(content.Paragraphs) >= in.opts.FallbackThreshold {
		chapters = fallbackChapters(len(content.Paragraphs))
	}

	in.opts.Logger.Info("parsed book",
		"format", f.String(),
		"title", meta.Title,
		"paragraphs", len(content.Paragraphs),
		"chapters", len(chapters),
	)

	return &Book{
		Title:      meta.Title,
		Author:     meta.Author,
		Format:     f,
		Paragraphs: content.Paragraphs,
		Chapters:   chapters,
		TOC:        content.TOC,
	}, nil
}

// chaptersWithin drops markers that do not point at one of n paragraphs,
// such as a heading on a trailing page with no text after it.
func chaptersWithin(chapters []Chapter, n int) []Chapter {
	kept := chapters[:0:0]
	for _, ch := range chapters {
		if ch.Index >= 0 && ch.Index < n {
			kept = append(kept, ch)
		}
	}
	return kept
}

// fallbackChapters splits n paragraphs into 2..6 equal segments and marks
// each boundary between them.
func fallbackChapters(n int) []Chapter {
	segments := min(max(n/10, 2), 6)
	chapters := make([]Chapter, 0, segments-1)
	for i := 1; i < segments; i++ {
		chapters = append(chapters, Chapter{
			Title: fmt.Sprintf("Section %d", i),
			Index: i * n / segments,
		})
	}
	return chapters
}
