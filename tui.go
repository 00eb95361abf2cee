package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oodadoudou/ZenithAI-Reader/internal/bookmark"
	"github.com/oodadoudou/ZenithAI-Reader/internal/cfi"
	"github.com/oodadoudou/ZenithAI-Reader/internal/reader"
	"github.com/oodadoudou/ZenithAI-Reader/internal/search"
)

var (
	erpStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	wordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAFF"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)
)

const (
	minWPM  = 100
	maxWPM  = 1500
	wpmStep = 50
)

// session is what the reader view needs beyond the word stream.
type session struct {
	book       *reader.Book
	index      search.Index
	searchOpts search.Options
	bookmarks  []bookmark.Bookmark
	marks      bookmark.Reconciler
}

type model struct {
	*reader.Reader
	*session

	query     textinput.Model
	searching bool
	hits      []search.Result
	hit       int

	showTOC   bool
	tocCursor int

	message  string
	quitting bool
	width    int
	height   int
}

type tickMsg time.Time

func newModel(book *reader.Book, wpm int, s *session) model {
	if s == nil {
		s = &session{}
	}
	s.book = book
	if s.index == nil {
		s.index = search.Build(book.Paragraphs)
	}
	q := textinput.New()
	q.Placeholder = "search"
	q.Prompt = "/"
	q.CharLimit = 200

	return model{
		Reader:  reader.NewReader(book, wpm),
		session: s,
		query:   q,
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd {
	return tick(m.GetDelay())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.showTOC {
			return m.updateTOC(msg)
		}
		return m.updateReading(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if m.Paused || m.searching || m.showTOC {
			return m, nil
		}

		if m.Advance() {
			return m, tick(m.GetDelay())
		}

		// Reached the end
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m model) updateReading(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ":
		m.Paused = !m.Paused
		if !m.Paused {
			return m, tick(m.GetDelay())
		}
		return m, nil

	case "+", "=", "up":
		if m.WPM < maxWPM {
			m.WPM += wpmStep
		}
		return m, nil

	case "-", "down":
		if m.WPM > minWPM {
			m.WPM -= wpmStep
		}
		return m, nil

	case "left":
		m.pauseOnArrow()
		m.JumpToPrevSentence()
		return m, nil

	case "right":
		m.pauseOnArrow()
		m.JumpToNextSentence()
		return m, nil

	case "/":
		m.Paused = true
		m.searching = true
		m.query.SetValue("")
		return m, m.query.Focus()

	case "n":
		m.stepHit(1)
		return m, nil

	case "N":
		m.stepHit(-1)
		return m, nil

	case "b":
		m.addBookmark()
		return m, nil

	case "t":
		m.Paused = true
		m.showTOC = true
		m.tocCursor = m.CurrentChapter
		return m, nil

	case "q", "Q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) pauseOnArrow() {
	now := time.Now()
	if now.Sub(m.LastArrowPress) > 500*time.Millisecond {
		m.Paused = true
	}
	m.LastArrowPress = now
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.query.Blur()
		return m, nil

	case tea.KeyEnter:
		m.searching = false
		m.query.Blur()
		m.runSearch(m.query.Value())
		return m, nil
	}

	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	return m, cmd
}

func (m *model) runSearch(q string) {
	m.hits = search.Query(m.index, q, m.searchOpts)
	m.hit = 0
	if len(m.hits) == 0 {
		m.message = fmt.Sprintf("No matches for %q", strings.TrimSpace(q))
		return
	}
	m.JumpToParagraph(m.hits[0].Paragraph)
	m.message = fmt.Sprintf("Match 1/%d", len(m.hits))
}

func (m *model) stepHit(delta int) {
	if len(m.hits) == 0 {
		m.message = "No search results"
		return
	}
	m.hit = (m.hit + delta + len(m.hits)) % len(m.hits)
	m.JumpToParagraph(m.hits[m.hit].Paragraph)
	m.message = fmt.Sprintf("Match %d/%d", m.hit+1, len(m.hits))
}

func (m *model) addBookmark() {
	pos, _ := cfi.Decode(m.Position())
	b, err := m.marks.New(m.book.Paragraphs, pos.Paragraph, pos.Offset)
	if err != nil {
		m.message = err.Error()
		return
	}
	m.bookmarks = append([]bookmark.Bookmark{b}, m.bookmarks...)
	m.message = "Bookmarked: " + bookmark.Snippet(b.Snippet, 40)
}

func (m model) updateTOC(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.tocCursor > 0 {
			m.tocCursor--
		}
	case "down", "j":
		if m.tocCursor < len(m.Chapters)-1 {
			m.tocCursor++
		}
	case "enter":
		m.JumpToChapter(m.tocCursor)
		m.showTOC = false
	case "t", "esc":
		m.showTOC = false
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		if m.AtEnd() {
			return completeStyle.Render("\n  Reading complete!\n")
		}
		return ""
	}

	if len(m.Words) == 0 {
		return "No text to read."
	}
	if m.showTOC {
		return m.tocView()
	}

	word := m.CurrentWord()
	formatted := formatWord(word)

	pause := ""
	if m.Paused {
		pause = pausedStyle.Render(" [PAUSED]")
	}

	current, total := m.Progress()
	chapter := ""
	if title := m.CurrentChapterTitle(); title != "" {
		chapter = title + " | "
	}
	status := statusStyle.Render(
		fmt.Sprintf("%sWord %d/%d | %d WPM%s",
			chapter,
			current,
			total,
			m.WPM,
			pause,
		),
	)

	controls := controlsStyle.Render("SPACE: pause/play  ↑/↓: speed  ←/→: sentence  /: search  n/N: matches  b: bookmark  t: chapters  Q: quit")
	footer := controls
	switch {
	case m.searching:
		footer = m.query.View()
	case m.message != "":
		footer = messageStyle.Render(m.message) + "\n" + controls
	}

	// Reserve lines for status at top and footer at bottom
	avail := max(m.height-1-lipgloss.Height(footer), 1)
	vPad := avail / 2

	var sb strings.Builder

	sb.WriteString(status)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("\n", vPad))
	sb.WriteString(anchorORPText(formatted, word, m.width))
	sb.WriteString(strings.Repeat("\n", avail-vPad))
	sb.WriteString(footer)

	return sb.String()
}

func (m model) tocView() string {
	var sb strings.Builder
	sb.WriteString(statusStyle.Render(m.book.Title + " | Chapters"))
	sb.WriteString("\n\n")
	if len(m.Chapters) == 0 {
		sb.WriteString("  No chapters.\n")
	}

	// Keep the cursor on screen.
	rows := max(m.height-4, 1)
	first := max(0, min(m.tocCursor-rows/2, len(m.Chapters)-rows))
	for i := first; i < len(m.Chapters) && i < first+rows; i++ {
		line := fmt.Sprintf("  %s", m.Chapters[i].Title)
		if i == m.tocCursor {
			line = cursorStyle.Render("> " + m.Chapters[i].Title)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(controlsStyle.Render("↑/↓: move  ENTER: jump  T/ESC: back"))
	return sb.String()
}

func formatWord(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return ""
	}
	orp := reader.GetORPPosition(word)
	return wordStyle.Render(string(runes[:orp])) +
		erpStyle.Render(string(runes[orp])) +
		wordStyle.Render(string(runes[orp+1:]))
}

func anchorORPText(text string, word string, width int) string {
	pad := max(width/2-reader.GetORPPosition(word), 0)
	return strings.Repeat(" ", pad) + text
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
