package reader

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const mediaTypeNCX = "application/x-dtbncx+xml"

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// readTOC maps the NCX navigation tree onto paragraph indices. starts holds
// the first paragraph index of every parsed spine document.
func readTOC(pkg *epubPackage, starts map[string]int, paragraphs []string) ([]TOCEntry, error) {
	if len(paragraphs) == 0 {
		return nil, nil
	}

	var href string
	for _, item := range pkg.manifest() {
		if item.MediaType == mediaTypeNCX {
			href = item.Href
			break
		}
	}
	if href == "" {
		return nil, errors.New("no NCX file found in EPUB")
	}

	ncxPath := resolvePath(pkg.rootPath, href)
	if !pkg.arc.has(ncxPath) && pkg.arc.has(href) {
		ncxPath = normalizeEntryPath(href)
	}
	raw, err := pkg.arc.read(ncxPath)
	if err != nil {
		return nil, err
	}
	var toc ncx
	if err := xml.Unmarshal(numericEntities(raw), &toc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}

	byDoc := make(map[string]int, len(starts))
	for doc, idx := range starts {
		byDoc[docKey(doc)] = idx
	}
	t := tocBuilder{ncxPath: ncxPath, starts: byDoc, paragraphs: paragraphs}
	t.flatten(toc.NavMap.NavPoints, 0)
	return t.entries, nil
}

func docKey(p string) string {
	if dec, err := url.PathUnescape(p); err == nil {
		p = dec
	}
	return strings.ToLower(p)
}

type tocBuilder struct {
	ncxPath    string
	starts     map[string]int
	paragraphs []string
	entries    []TOCEntry
}

// flatten appends nav points depth first. Points into documents that
// produced no text are dropped; their children are kept.
func (t *tocBuilder) flatten(points []navPoint, level int) {
	for _, np := range points {
		target := resolvePath(t.ncxPath, np.Content.Src)
		if idx, ok := t.starts[docKey(target)]; ok {
			idx = min(idx, len(t.paragraphs)-1)
			t.entries = append(t.entries, TOCEntry{
				Title:     strings.TrimSpace(np.Label.Text),
				Preview:   preview(t.paragraphs[idx]),
				Paragraph: idx,
				Level:     level,
			})
		}
		t.flatten(np.Children, level+1)
	}
}

func preview(paragraph string) string {
	words := strings.Fields(paragraph)
	if len(words) <= 10 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:10], " ") + "..."
}
