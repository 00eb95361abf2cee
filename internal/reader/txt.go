package reader

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oodadoudou/ZenithAI-Reader/internal/heading"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	mediaTypeText = "text/plain"

	// textSniffSize is how much of a text file is decoded to find a title.
	textSniffSize = 4096
)

var (
	blankLines    = regexp.MustCompile(`\r?\n\s*\r?\n+`)
	hspace        = regexp.MustCompile(`[\t ]+`)
	nameSeparator = regexp.MustCompile(`[_-]+`)
)

// TXTParser parses plain text. Paragraphs are separated by blank lines.
type TXTParser struct {
	Heading     heading.Rule
	LabelLength int
}

// ExtractMetadata uses the first line as the title when it reads like a
// heading, and the file name otherwise.
func (p *TXTParser) ExtractMetadata(_ context.Context, fileName string, data []byte) (Metadata, error) {
	head := data
	if len(head) > textSniffSize {
		head = head[:textSniffSize]
	}

	title := ""
	for _, line := range strings.Split(decodeText(head), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len([]rune(line)) < heading.DefaultLabelLength && p.Heading.Match(line) {
			title = line
		}
		break
	}
	if title == "" {
		title = titleFromFileName(fileName)
	}

	return Metadata{Title: title, MediaType: mediaTypeText}, nil
}

// Parse splits data into paragraphs. Paragraphs that look like headings
// also become chapters.
func (p *TXTParser) Parse(ctx context.Context, data []byte) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	var c Content
	for _, block := range blankLines.Split(decodeText(data), -1) {
		para := strings.TrimSpace(hspace.ReplaceAllString(block, " "))
		if para == "" {
			continue
		}
		if p.Heading.Match(para) {
			c.Chapters = append(c.Chapters, Chapter{
				Title: heading.Label(para, p.LabelLength),
				Index: len(c.Paragraphs),
			})
		}
		c.Paragraphs = append(c.Paragraphs, para)
	}
	return c, nil
}

// decodeText decodes UTF-8, or UTF-16 when a byte order mark says so.
// Invalid sequences become U+FFFD.
func decodeText(data []byte) string {
	dec := xunicode.BOMOverride(xunicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}

func titleFromFileName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	title := strings.TrimSpace(nameSeparator.ReplaceAllString(base, " "))
	if title == "" {
		return "Untitled"
	}
	return title
}
