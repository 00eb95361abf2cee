package reader

// Book is the canonical in-memory form of a parsed document.
type Book struct {
	Title  string
	Author string
	Format Format

	// Paragraphs are immutable for the session. A paragraph's identity is its
	// index, which is only stable for this parse.
	Paragraphs []string

	// Chapters are ordered by Index.
	Chapters []Chapter

	// TOC is the publisher's table of contents, when the format carries one.
	TOC []TOCEntry
}

// Chapter marks the paragraph at which a chapter starts.
type Chapter struct {
	Title string
	Index int
}

// TOCEntry represents a single entry in a table of contents
type TOCEntry struct {
	Title     string
	Preview   string
	Paragraph int
	Level     int
}

// Metadata is the result of a metadata-only extraction.
type Metadata struct {
	Title     string
	Author    string
	MediaType string

	// Cover is a data: URI, empty when no cover could be read.
	Cover string

	// RootPath is the package document path (EPUB only).
	RootPath string
}

// Content is what a format parser produces.
type Content struct {
	Paragraphs []string
	Chapters   []Chapter
	TOC        []TOCEntry
}
