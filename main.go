// Command zenith reads TXT, EPUB and PDF books in the terminal, and lists,
// searches and edits the bookmarks and highlights saved for them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/oodadoudou/ZenithAI-Reader/internal/annotation"
	"github.com/oodadoudou/ZenithAI-Reader/internal/bookmark"
	"github.com/oodadoudou/ZenithAI-Reader/internal/config"
	"github.com/oodadoudou/ZenithAI-Reader/internal/logging"
	"github.com/oodadoudou/ZenithAI-Reader/internal/reader"
	"github.com/oodadoudou/ZenithAI-Reader/internal/search"
	"github.com/oodadoudou/ZenithAI-Reader/internal/state"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI defines the command-line interface for zenith.
type CLI struct {
	Config    string `name:"config" help:"Configuration file (default: XDG_CONFIG_HOME/zenith/config.yml)" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, error"`
	LogFormat string `name:"log-format" help:"Log format: text, json"`

	Read        ReadCmd        `cmd:"" help:"Speed read a book in the terminal"`
	Info        InfoCmd        `cmd:"" help:"Show book metadata"`
	Chapters    ChaptersCmd    `cmd:"" help:"List chapters and the table of contents"`
	Search      SearchCmd      `cmd:"" help:"Search a book"`
	Bookmarks   BookmarksCmd   `cmd:"" help:"List or remove saved bookmarks"`
	Annotations AnnotationsCmd `cmd:"" help:"List, annotate or remove saved highlights"`
	Annotate    AnnotateCmd    `cmd:"" help:"Highlight a span of a paragraph"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

// app is bound into every command's Run.
type app struct {
	ctx      context.Context
	cfg      *config.Config
	logger   *slog.Logger
	out      io.Writer
	ingester *reader.Ingester
}

// openedBook is a parsed book plus its identity in the state store.
type openedBook struct {
	*reader.Book
	id   string
	data []byte
}

func (a *app) openBook(path string) (*openedBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	book, err := a.ingester.ParseBook(a.ctx, filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &openedBook{Book: book, id: state.BookID(data), data: data}, nil
}

func (a *app) store() (*state.Store, error) {
	return state.NewStore(a.cfg.State.Dir)
}

func (a *app) bookmarks(store *state.Store, b *openedBook) []bookmark.Bookmark {
	rc := bookmark.Reconciler{SnippetLength: a.cfg.Bookmarks.SnippetLength}
	raw := store.Bookmarks(b.id)
	marks := rc.Reconcile(raw, b.Paragraphs)
	if dropped := len(raw) - len(marks); dropped > 0 {
		a.logger.Info("dropped stale bookmarks", "book", b.id, "count", dropped)
	}
	return marks
}

func (a *app) annotations(store *state.Store, b *openedBook) []annotation.Annotation {
	raw := store.Annotations(b.id)
	anns := annotation.Reconcile(raw, b.Paragraphs)
	if dropped := len(raw) - len(anns); dropped > 0 {
		a.logger.Info("dropped stale annotations", "book", b.id, "count", dropped)
	}
	return anns
}

// ReadCmd runs the RSVP reader.
type ReadCmd struct {
	File  string `arg:"" help:"Book to read (.txt, .epub, .pdf)" type:"existingfile"`
	WPM   int    `short:"w" help:"Words per minute (default from config)"`
	Fresh bool   `help:"Start from the beginning instead of the saved position"`
	TOC   bool   `name:"toc" help:"Open the chapter list first"`
}

func (c *ReadCmd) Run(a *app) error {
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	store, err := a.store()
	if err != nil {
		return err
	}

	wpm := c.WPM
	if wpm <= 0 {
		wpm = a.cfg.Reader.WPM
	}
	s := &session{
		searchOpts: a.cfg.SearchOptions(),
		bookmarks:  a.bookmarks(store, b),
		marks:      bookmark.Reconciler{SnippetLength: a.cfg.Bookmarks.SnippetLength},
	}
	m := newModel(b.Book, wpm, s)
	if token := store.Position(b.id); token != "" && !c.Fresh {
		if !m.Seek(token) {
			a.logger.Warn("saved position no longer fits the book", "book", b.id, "position", token)
		}
	}
	if c.TOC && len(m.Chapters) > 0 {
		m.Paused = true
		m.showTOC = true
		m.tocCursor = m.CurrentChapter
	}

	a.logger.Info("reading", "title", b.Title, "words", len(m.Words), "wpm", wpm)
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(a.ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run reader: %w", err)
	}
	if fm, ok := final.(model); ok {
		m = fm
	}
	return saveSession(store, b.id, m)
}

func saveSession(store *state.Store, id string, m model) error {
	if err := store.SetPosition(id, m.Position()); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	if err := store.SetBookmarks(id, m.bookmarks); err != nil {
		return fmt.Errorf("save bookmarks: %w", err)
	}
	return nil
}

// InfoCmd prints metadata.
type InfoCmd struct {
	File string `arg:"" help:"Book file" type:"existingfile"`
}

func (c *InfoCmd) Run(a *app) error {
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	meta, err := a.ingester.ExtractMetadata(a.ctx, filepath.Base(c.File), b.data)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Title:      %s\n", meta.Title)
	if meta.Author != "" {
		fmt.Fprintf(a.out, "Author:     %s\n", meta.Author)
	}
	fmt.Fprintf(a.out, "Format:     %s (%s)\n", b.Format, meta.MediaType)
	if meta.RootPath != "" {
		fmt.Fprintf(a.out, "Package:    %s\n", meta.RootPath)
	}
	cover := "none"
	if meta.Cover != "" {
		cover, _, _ = strings.Cut(meta.Cover, ";")
	}
	fmt.Fprintf(a.out, "Cover:      %s\n", cover)
	fmt.Fprintf(a.out, "Paragraphs: %d\n", len(b.Paragraphs))
	fmt.Fprintf(a.out, "Chapters:   %d\n", len(b.Chapters))
	if len(b.TOC) > 0 {
		fmt.Fprintf(a.out, "TOC:        %d entries\n", len(b.TOC))
	}
	fmt.Fprintf(a.out, "ID:         %s\n", b.id)
	return nil
}

// ChaptersCmd lists chapter markers.
type ChaptersCmd struct {
	File string `arg:"" help:"Book file" type:"existingfile"`
	TOC  bool   `name:"toc" help:"Show the publisher's table of contents instead"`
}

func (c *ChaptersCmd) Run(a *app) error {
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	if c.TOC {
		if len(b.TOC) == 0 {
			fmt.Fprintln(a.out, "No table of contents.")
			return nil
		}
		for _, e := range b.TOC {
			fmt.Fprintf(a.out, "%5d  %s%s\n", e.Paragraph, strings.Repeat("  ", e.Level), e.Title)
		}
		return nil
	}
	if len(b.Chapters) == 0 {
		fmt.Fprintln(a.out, "No chapters.")
		return nil
	}
	for i, ch := range b.Chapters {
		fmt.Fprintf(a.out, "%3d  %5d  %s\n", i+1, ch.Index, ch.Title)
	}
	return nil
}

// SearchCmd runs a full-text query.
type SearchCmd struct {
	File  string   `arg:"" help:"Book file" type:"existingfile"`
	Query []string `arg:"" help:"Search terms"`
	Limit int      `help:"Maximum results (default from config)"`
}

func (c *SearchCmd) Run(a *app) error {
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	opts := a.cfg.SearchOptions()
	if c.Limit > 0 {
		opts.Limit = c.Limit
	}
	q := strings.Join(c.Query, " ")
	results := search.Query(search.Build(b.Paragraphs), q, opts)
	a.logger.Debug("search", "query", q, "results", len(results))
	if len(results) == 0 {
		fmt.Fprintf(a.out, "No matches for %q.\n", q)
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(a.out, "%5d  %3d  %s\n", r.Paragraph, r.Score, bookmark.Snippet(b.Paragraphs[r.Paragraph], 100))
	}
	return nil
}

// BookmarksCmd lists saved bookmarks after reconciling them with the book.
type BookmarksCmd struct {
	File   string `arg:"" help:"Book file" type:"existingfile"`
	Filter string `help:"Only bookmarks whose snippet contains this text"`
	Sort   string `help:"Order: recent, paraAsc, paraDesc (default from config)"`
	Remove string `help:"Remove the bookmark with this ID"`
}

func (c *BookmarksCmd) Run(a *app) error {
	mode := a.cfg.BookmarkSort()
	if c.Sort != "" {
		m, err := bookmark.ParseSortMode(c.Sort)
		if err != nil {
			return err
		}
		mode = m
	}
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	store, err := a.store()
	if err != nil {
		return err
	}

	marks := a.bookmarks(store, b)
	if c.Remove != "" {
		var ok bool
		if marks, ok = bookmark.Remove(marks, c.Remove); !ok {
			return fmt.Errorf("no bookmark %q", c.Remove)
		}
	}
	// Persist the repaired list so generated IDs stay stable.
	if err := store.SetBookmarks(b.id, marks); err != nil {
		return err
	}

	list := bookmark.Sort(bookmark.Filter(marks, c.Filter), mode)
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No bookmarks.")
		return nil
	}
	for _, bm := range list {
		fmt.Fprintf(a.out, "%s  %5d:%-4d  %s\n", bm.ID, bm.ParaIndex, bm.CharOffset, bm.Snippet)
	}
	return nil
}

// AnnotationsCmd lists saved highlights and edits their notes.
type AnnotationsCmd struct {
	File   string `arg:"" help:"Book file" type:"existingfile"`
	ID     string `name:"id" help:"Annotation to edit"`
	Note   string `help:"Set the note of --id"`
	Remove bool   `help:"Remove --id"`
}

func (c *AnnotationsCmd) Run(a *app) error {
	if (c.Remove || c.Note != "") && c.ID == "" {
		return errors.New("--note and --remove need --id")
	}
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	store, err := a.store()
	if err != nil {
		return err
	}

	anns := a.annotations(store, b)
	if c.ID != "" {
		var ok bool
		switch {
		case c.Remove:
			anns, ok = annotation.Remove(anns, c.ID)
		case c.Note != "":
			anns, ok = annotation.SetNote(anns, c.ID, c.Note)
		default:
			ok = true
		}
		if !ok {
			return fmt.Errorf("no annotation %q", c.ID)
		}
	}
	if err := store.SetAnnotations(b.id, anns); err != nil {
		return err
	}

	if len(anns) == 0 {
		fmt.Fprintln(a.out, "No annotations.")
		return nil
	}
	for _, an := range anns {
		if c.ID != "" && an.ID != c.ID {
			continue
		}
		fmt.Fprintf(a.out, "%s  %5d:%d-%d  [%s]  %s\n", an.ID, an.ParaIndex, an.Start, an.End, an.Color, an.Text)
		if an.Note != "" {
			fmt.Fprintf(a.out, "      note: %s\n", an.Note)
		}
	}
	return nil
}

// AnnotateCmd adds a highlight.
type AnnotateCmd struct {
	File      string `arg:"" help:"Book file" type:"existingfile"`
	Paragraph int    `arg:"" help:"Paragraph index"`
	Start     int    `arg:"" help:"First character (inclusive)"`
	End       int    `arg:"" help:"Last character (exclusive)"`
	Color     string `default:"${default_color}" help:"Highlight color"`
	Note      string `help:"Attach a note"`
}

func (c *AnnotateCmd) Run(a *app) error {
	b, err := a.openBook(c.File)
	if err != nil {
		return err
	}
	store, err := a.store()
	if err != nil {
		return err
	}

	an, err := annotation.Reconciler{}.New(b.Paragraphs, c.Paragraph, c.Start, c.End, c.Color)
	if err != nil {
		return err
	}
	an.Note = c.Note
	anns := append(a.annotations(store, b), an)
	if err := store.SetAnnotations(b.id, anns); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  %q\n", an.ID, an.Text)
	return nil
}

// VersionCmd prints build information.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "zenith %s (commit: %s, built: %s)\n", version, commit, date)
	return nil
}

// run parses args, loads configuration and executes the selected command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...kong.Option) error {
	var cli CLI
	opts = append([]kong.Option{
		kong.Name("zenith"),
		kong.Description("Zenith - terminal reader for TXT, EPUB and PDF books"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"default_color": annotation.DefaultColor},
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}, opts...)
	parser, err := kong.New(&cli, opts...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	logger, err := logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	return kctx.Run(&app{
		ctx:      ctx,
		cfg:      cfg,
		logger:   logger,
		out:      stdout,
		ingester: reader.NewIngester(cfg.ReaderOptions(logger)),
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
