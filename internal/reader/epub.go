package reader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/oodadoudou/ZenithAI-Reader/internal/heading"
	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
)

const (
	mediaTypeEPUB    = "application/epub+zip"
	containerPath    = "META-INF/container.xml"
	defaultCoverType = "image/jpeg"
)

var (
	rootfileExpr  = xpath.MustCompile(`//*[local-name()='rootfile']`)
	titleExpr     = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='title']`)
	creatorExpr   = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='creator']`)
	metaCoverExpr = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='meta'][@name='cover']`)
	manifestExpr  = xpath.MustCompile(`//*[local-name()='manifest']/*[local-name()='item']`)
	spineExpr     = xpath.MustCompile(`//*[local-name()='spine']/*[local-name()='itemref']`)
	guideExpr     = xpath.MustCompile(`//*[local-name()='guide']/*[local-name()='reference']`)
)

var (
	headingTags = map[string]bool{"h1": true, "h2": true, "h3": true}
	blockTags   = map[string]bool{"p": true, "div": true, "section": true}
	skipTags    = map[string]bool{"head": true, "script": true, "style": true}
)

// EPUBParser parses EPUB 2 and 3 packages.
type EPUBParser struct {
	// MinParagraphLength is the normalized length a block must exceed.
	MinParagraphLength int

	// MinHeadingLength is the minimum normalized length of a chapter heading.
	MinHeadingLength int

	LabelLength int
	Logger      *slog.Logger
}

func (p *EPUBParser) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// epubPackage is an opened archive together with its package document.
type epubPackage struct {
	arc      *archive
	rootPath string
	doc      *xmlquery.Node
}

func openPackage(data []byte) (*epubPackage, error) {
	arc, err := openArchive(data)
	if err != nil {
		return nil, err
	}
	rootPath, err := rootFile(arc)
	if err != nil {
		return nil, err
	}
	raw, err := arc.read(rootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEPUB, err)
	}
	doc, err := parseXML(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: package document %s: %v", ErrInvalidEPUB, rootPath, err)
	}
	return &epubPackage{arc: arc, rootPath: rootPath, doc: doc}, nil
}

// rootFile returns the package document path named by container.xml.
func rootFile(arc *archive) (string, error) {
	raw, err := arc.read(containerPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEPUB, err)
	}
	doc, err := parseXML(raw)
	if err != nil {
		return "", fmt.Errorf("%w: container: %v", ErrInvalidEPUB, err)
	}
	node := xmlquery.QuerySelector(doc, rootfileExpr)
	if node == nil {
		return "", fmt.Errorf("%w: rootfile missing", ErrInvalidEPUB)
	}
	fullPath := strings.TrimSpace(node.SelectAttr("full-path"))
	if fullPath == "" {
		return "", fmt.Errorf("%w: rootfile has no full-path", ErrInvalidEPUB)
	}
	return normalizeEntryPath(fullPath), nil
}

func (pkg *epubPackage) manifest() []manifestItem {
	nodes := xmlquery.QuerySelectorAll(pkg.doc, manifestExpr)
	items := make([]manifestItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, manifestItem{
			ID:         n.SelectAttr("id"),
			Href:       n.SelectAttr("href"),
			MediaType:  n.SelectAttr("media-type"),
			Properties: n.SelectAttr("properties"),
		})
	}
	return items
}

func firstText(doc *xmlquery.Node, expr *xpath.Expr) string {
	if n := xmlquery.QuerySelector(doc, expr); n != nil {
		return strings.TrimSpace(n.InnerText())
	}
	return ""
}

// ExtractMetadata reads title, creator and cover from the package document.
// Cover problems never fail the call.
func (p *EPUBParser) ExtractMetadata(_ context.Context, _ string, data []byte) (Metadata, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return Metadata{}, err
	}
	title := firstText(pkg.doc, titleExpr)
	if title == "" {
		title = "Untitled"
	}
	return Metadata{
		Title:     title,
		Author:    firstText(pkg.doc, creatorExpr),
		MediaType: mediaTypeEPUB,
		Cover:     pkg.cover(p.logger()),
		RootPath:  pkg.rootPath,
	}, nil
}

// Parse walks the spine in reading order. Spine items that cannot be found,
// read or parsed are logged and skipped.
func (p *EPUBParser) Parse(ctx context.Context, data []byte) (Content, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return Content{}, err
	}
	log := p.logger()

	w := &xhtmlWalker{
		minParagraph: p.MinParagraphLength,
		minHeading:   p.MinHeadingLength,
		labelLength:  p.LabelLength,
	}
	starts := make(map[string]int)
	for _, it := range pkg.spine(data) {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		if it.href == "" {
			log.Warn("skipping spine item", "idref", it.idref, "error", "no manifest entry")
			continue
		}
		raw, err := pkg.readSpineItem(it)
		if err != nil {
			log.Warn("skipping spine item", "href", it.href, "error", err)
			continue
		}
		doc, err := parseXML(raw)
		if err != nil {
			log.Warn("skipping spine item", "href", it.href, "error", err)
			continue
		}
		if _, seen := starts[it.full]; !seen {
			starts[it.full] = len(w.content.Paragraphs)
		}
		w.walk(doc)
	}

	c := w.content
	c.Chapters = chaptersWithin(c.Chapters, len(c.Paragraphs))
	toc, err := readTOC(pkg, starts, c.Paragraphs)
	if err != nil {
		log.Debug("no table of contents", "error", err)
	}
	c.TOC = toc
	return c, nil
}

// spineItem is one entry of the reading order. item is set when goreader
// resolved the package; it is nil on the fallback path.
type spineItem struct {
	idref string
	href  string
	full  string
	item  *epub.Item
}

// spine lists the reading order. goreader resolves itemrefs against the
// manifest for well formed packages. Packages it rejects, such as ones with
// dangling itemrefs, are read from the package document instead so that the
// broken references can be skipped one by one.
func (pkg *epubPackage) spine(data []byte) []spineItem {
	rc, err := epub.NewReader(bytes.NewReader(data), int64(len(data)))
	if err == nil && len(rc.Rootfiles) > 0 && normalizeEntryPath(rc.Rootfiles[0].FullPath) == pkg.rootPath {
		refs := rc.Rootfiles[0].Spine.Itemrefs
		items := make([]spineItem, 0, len(refs))
		for _, ref := range refs {
			items = append(items, spineItem{
				idref: ref.IDREF,
				href:  ref.HREF,
				full:  resolvePath(pkg.rootPath, ref.HREF),
				item:  ref.Item,
			})
		}
		return items
	}

	byID := make(map[string]manifestItem)
	for _, item := range pkg.manifest() {
		byID[item.ID] = item
	}
	refs := xmlquery.QuerySelectorAll(pkg.doc, spineExpr)
	items := make([]spineItem, 0, len(refs))
	for _, ref := range refs {
		idref := ref.SelectAttr("idref")
		it := spineItem{idref: idref, href: byID[idref].Href}
		if it.href != "" {
			it.full = resolvePath(pkg.rootPath, it.href)
		}
		items = append(items, it)
	}
	return items
}

// readSpineItem opens the item through goreader when it located the entry
// and through the tolerant archive lookup otherwise, e.g. for percent-encoded
// or differently cased hrefs.
func (pkg *epubPackage) readSpineItem(it spineItem) ([]byte, error) {
	if it.item == nil {
		return pkg.arc.read(it.full)
	}
	r, err := it.item.Open()
	if errors.Is(err, epub.ErrBadManifest) {
		return pkg.arc.read(it.full)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", it.href, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", it.href, err)
	}
	if len(raw) > maxEntrySize {
		return nil, fmt.Errorf("entry %s too large", it.href)
	}
	return raw, nil
}

type xhtmlWalker struct {
	minParagraph int
	minHeading   int
	labelLength  int
	content      Content
}

// walk emits headings and blocks in document order. Text outside any
// p, div or section is not part of a paragraph.
func (w *xhtmlWalker) walk(n *xmlquery.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		name := strings.ToLower(c.Data)
		switch {
		case skipTags[name]:
		case headingTags[name]:
			w.heading(c)
		case blockTags[name]:
			w.block(c)
		default:
			w.walk(c)
		}
	}
}

// block emits a leaf block whole. A block holding other blocks is split:
// its loose text and inline children become paragraphs of their own between
// the nested blocks, which are walked in turn.
func (w *xhtmlWalker) block(n *xmlquery.Node) {
	if !containsBlock(n) {
		w.paragraph(n.InnerText())
		return
	}
	var run strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			run.WriteString(c.Data)
			continue
		case xmlquery.ElementNode:
		default:
			continue
		}
		name := strings.ToLower(c.Data)
		if skipTags[name] {
			continue
		}
		if !headingTags[name] && !blockTags[name] && !containsBlock(c) {
			run.WriteString(c.InnerText())
			continue
		}

		w.paragraph(run.String())
		run.Reset()
		switch {
		case headingTags[name]:
			w.heading(c)
		case blockTags[name]:
			w.block(c)
		default:
			w.walk(c)
		}
	}
	w.paragraph(run.String())
}

func (w *xhtmlWalker) heading(n *xmlquery.Node) {
	title := normalizeSpace(n.InnerText())
	if len([]rune(title)) >= w.minHeading {
		w.content.Chapters = append(w.content.Chapters, Chapter{
			Title: heading.Label(title, w.labelLength),
			Index: len(w.content.Paragraphs),
		})
	}
}

func (w *xhtmlWalker) paragraph(raw string) {
	text := normalizeSpace(raw)
	if len([]rune(text)) > w.minParagraph {
		w.content.Paragraphs = append(w.content.Paragraphs, text)
	}
}

func containsBlock(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		name := strings.ToLower(c.Data)
		if blockTags[name] || headingTags[name] || containsBlock(c) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var namedEntity = regexp.MustCompile(`&([A-Za-z][A-Za-z0-9]*);`)

// parseXML parses an XML or XHTML document. HTML named entities, which XML
// does not predefine, are rewritten to numeric references first.
func parseXML(raw []byte) (*xmlquery.Node, error) {
	return xmlquery.Parse(bytes.NewReader(numericEntities(raw)))
}

func numericEntities(raw []byte) []byte {
	return namedEntity.ReplaceAllFunc(raw, func(m []byte) []byte {
		switch string(m[1 : len(m)-1]) {
		case "amp", "lt", "gt", "quot", "apos":
			return m
		}
		decoded := html.UnescapeString(string(m))
		// A trailing semicolon means only a legacy prefix such as &not matched.
		if decoded == string(m) || (strings.HasSuffix(decoded, ";") && decoded != ";") {
			return m
		}
		var b strings.Builder
		for _, r := range decoded {
			fmt.Fprintf(&b, "&#%d;", r)
		}
		return []byte(b.String())
	})
}

// cover runs the cover strategies in order. A strategy whose image entry is
// absent hands over to the next one; any other failure ends the search.
func (pkg *epubPackage) cover(log *slog.Logger) string {
	manifest := pkg.manifest()
	strategies := []struct {
		name string
		find func([]manifestItem) (manifestItem, bool)
	}{
		{"meta", pkg.metaCover},
		{"properties", propertiesCover},
		{"guide", pkg.guideCover},
	}
	for _, s := range strategies {
		item, ok := s.find(manifest)
		if !ok {
			continue
		}
		uri, err := pkg.dataURI(item)
		if errors.Is(err, ErrEntryNotFound) {
			log.Debug("cover entry missing", "strategy", s.name, "href", item.Href)
			continue
		}
		if err != nil {
			log.Debug("cover unreadable", "strategy", s.name, "href", item.Href, "error", err)
			return ""
		}
		return uri
	}
	return ""
}

func (pkg *epubPackage) metaCover(manifest []manifestItem) (manifestItem, bool) {
	n := xmlquery.QuerySelector(pkg.doc, metaCoverExpr)
	if n == nil {
		return manifestItem{}, false
	}
	id := strings.TrimSpace(n.SelectAttr("content"))
	if id == "" {
		return manifestItem{}, false
	}
	for _, item := range manifest {
		if item.ID == id {
			return item, item.Href != ""
		}
	}
	return manifestItem{}, false
}

func propertiesCover(manifest []manifestItem) (manifestItem, bool) {
	for _, item := range manifest {
		for _, prop := range strings.Fields(item.Properties) {
			if prop == "cover-image" && item.Href != "" {
				return item, true
			}
		}
	}
	return manifestItem{}, false
}

// guideCover follows a guide reference of type cover. When the reference is
// a page rather than an image, the page's first image is used.
func (pkg *epubPackage) guideCover(manifest []manifestItem) (manifestItem, bool) {
	var href string
	for _, ref := range xmlquery.QuerySelectorAll(pkg.doc, guideExpr) {
		switch strings.ToLower(strings.TrimSpace(ref.SelectAttr("type"))) {
		case "cover", "cover-image":
			href = ref.SelectAttr("href")
		}
		if href != "" {
			break
		}
	}
	if href == "" {
		return manifestItem{}, false
	}

	target := resolvePath(pkg.rootPath, href)
	item := pkg.itemForPath(manifest, target)
	if !isPage(item.MediaType, target) {
		return item, true
	}

	page, err := pkg.arc.read(target)
	if err != nil {
		// Let dataURI report the same failure.
		return item, true
	}
	src := firstImage(page)
	if src == "" {
		return manifestItem{}, false
	}
	return pkg.itemForPath(manifest, resolvePath(target, src)), true
}

// itemForPath finds the manifest item stored at full, or synthesizes one.
// Href on the returned item is always relative to the package document.
func (pkg *epubPackage) itemForPath(manifest []manifestItem, full string) manifestItem {
	for _, item := range manifest {
		if resolvePath(pkg.rootPath, item.Href) == full {
			return item
		}
	}
	return manifestItem{Href: "/" + full}
}

func isPage(mediaType, name string) bool {
	if strings.Contains(mediaType, "html") {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range []string{".xhtml", ".html", ".htm"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// firstImage returns the src of the first img, or the href of the first SVG
// image, in an HTML page.
func firstImage(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var found string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "img":
				found = attr(n, "src")
			case "image":
				if found = attr(n, "href"); found == "" {
					found = attr(n, "xlink:href")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if name == key || a.Key == key {
			return a.Val
		}
	}
	return ""
}

func (pkg *epubPackage) dataURI(item manifestItem) (string, error) {
	raw, err := pkg.arc.read(resolvePath(pkg.rootPath, item.Href))
	if err != nil {
		return "", err
	}
	mediaType := strings.TrimSpace(item.MediaType)
	if mediaType == "" {
		mediaType = defaultCoverType
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
