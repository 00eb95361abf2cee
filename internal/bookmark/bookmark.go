// Package bookmark reconciles persisted bookmarks against a freshly parsed
// paragraph list, and filters and orders them for display.
package bookmark

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oodadoudou/ZenithAI-Reader/internal/cfi"
	"github.com/oodadoudou/ZenithAI-Reader/internal/record"
)

// DefaultSnippetLength is the snippet size, in runes, including the ellipsis.
const DefaultSnippetLength = 140

const ellipsis = "…"

// ErrOutOfRange is returned when a new bookmark does not fit the book.
var ErrOutOfRange = errors.New("bookmark out of range")

// Raw is a persisted bookmark of unknown shape.
type Raw = record.Raw

// Bookmark marks a character offset (in runes) inside one paragraph.
type Bookmark struct {
	ID         string `json:"id"`
	ParaIndex  int    `json:"paraIndex"`
	CreatedAt  int64  `json:"createdAt"`
	Snippet    string `json:"snippet"`
	CharOffset int    `json:"charOffset"`
	CFI        string `json:"cfi"`
}

// Reconciler repairs persisted bookmarks. Zero value uses the wall clock,
// random UUIDs and DefaultSnippetLength.
type Reconciler struct {
	Now           func() time.Time
	NewID         func() string
	SnippetLength int
}

func (rc Reconciler) source() record.Source {
	return record.Source{Now: rc.Now, NewID: rc.NewID}
}

// Reconcile reconciles raw with the default Reconciler.
func Reconcile(raw []Raw, paragraphs []string) []Bookmark {
	return Reconciler{}.Reconcile(raw, paragraphs)
}

// Reconcile validates every record against paragraphs. Records whose
// paragraph no longer exists are dropped silently. The result is ordered by
// CreatedAt, newest first.
func (rc Reconciler) Reconcile(raw []Raw, paragraphs []string) []Bookmark {
	src := rc.source()
	out := make([]Bookmark, 0, len(raw))
	for _, r := range raw {
		para, ok := r.Paragraph("paraIndex", "cfi", len(paragraphs))
		if !ok {
			continue
		}
		n := len([]rune(paragraphs[para]))
		token := r.Token("cfi")

		offset, ok := explicitOffset(r)
		if !ok {
			if pos, decoded := cfi.Decode(token); decoded {
				offset = pos.Offset
			}
		}
		offset = record.Clamp(offset, 0, n)

		if token == "" {
			token = cfi.Encode(para, offset)
		}
		snippet, _ := r.String("snippet")
		if snippet == "" {
			snippet = Snippet(paragraphs[para], rc.SnippetLength)
		}

		out = append(out, Bookmark{
			ID:         src.RecordID(r, "id"),
			ParaIndex:  para,
			CreatedAt:  src.CreatedAt(r, "createdAt"),
			Snippet:    snippet,
			CharOffset: offset,
			CFI:        token,
		})
	}
	slices.SortStableFunc(out, newestFirst)
	return out
}

// explicitOffset reads charOffset, or chars as written by older versions.
func explicitOffset(r Raw) (int, bool) {
	for _, key := range []string{"charOffset", "chars"} {
		if v, ok := r.Int(key); ok && v >= 0 {
			return v, true
		}
	}
	return 0, false
}

// Snippet collapses whitespace in text and shortens it to at most max runes,
// cutting at a word boundary and ending with an ellipsis. max <= 0 means
// DefaultSnippetLength.
func Snippet(text string, max int) string {
	if max <= 0 {
		max = DefaultSnippetLength
	}
	normalized := strings.Join(strings.Fields(text), " ")
	runes := []rune(normalized)
	if len(runes) <= max {
		return normalized
	}
	slice := []rune(strings.TrimSpace(string(runes[:max-1])))
	if cut := lastSpace(slice); cut > 4 {
		slice = slice[:cut]
	}
	return strings.TrimSpace(string(slice)) + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// Filter returns the bookmarks whose snippet contains q, ignoring case.
// A blank query returns a copy of list.
func Filter(list []Bookmark, q string) []Bookmark {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return slices.Clone(list)
	}
	var out []Bookmark
	for _, b := range list {
		if strings.Contains(strings.ToLower(b.Snippet), q) {
			out = append(out, b)
		}
	}
	return out
}

// SortMode selects a display order.
type SortMode string

const (
	SortRecent   SortMode = "recent"
	SortParaAsc  SortMode = "paraAsc"
	SortParaDesc SortMode = "paraDesc"
)

// ParseSortMode parses a sort mode name. The empty string means SortRecent.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.TrimSpace(s)); m {
	case "":
		return SortRecent, nil
	case SortRecent, SortParaAsc, SortParaDesc:
		return m, nil
	}
	return "", fmt.Errorf("unknown bookmark sort mode %q", s)
}

// Sort returns a sorted copy of list. Ties are broken newest first; unknown
// modes sort by recency.
func Sort(list []Bookmark, mode SortMode) []Bookmark {
	out := slices.Clone(list)
	switch mode {
	case SortParaAsc:
		slices.SortStableFunc(out, func(a, b Bookmark) int {
			if c := cmp.Compare(a.ParaIndex, b.ParaIndex); c != 0 {
				return c
			}
			return newestFirst(a, b)
		})
	case SortParaDesc:
		slices.SortStableFunc(out, func(a, b Bookmark) int {
			if c := cmp.Compare(b.ParaIndex, a.ParaIndex); c != 0 {
				return c
			}
			return newestFirst(a, b)
		})
	default:
		slices.SortStableFunc(out, newestFirst)
	}
	return out
}

func newestFirst(a, b Bookmark) int {
	return cmp.Compare(b.CreatedAt, a.CreatedAt)
}

// New creates a bookmark at rune offset of paragraph para.
func (rc Reconciler) New(paragraphs []string, para, offset int) (Bookmark, error) {
	if para < 0 || para >= len(paragraphs) {
		return Bookmark{}, fmt.Errorf("%w: paragraph %d of %d", ErrOutOfRange, para, len(paragraphs))
	}
	offset = record.Clamp(offset, 0, len([]rune(paragraphs[para])))
	src := rc.source()
	return Bookmark{
		ID:         src.ID(),
		ParaIndex:  para,
		CreatedAt:  src.Millis(),
		Snippet:    Snippet(paragraphs[para], rc.SnippetLength),
		CharOffset: offset,
		CFI:        cfi.Encode(para, offset),
	}, nil
}

// Remove returns a copy of list without bookmark id.
func Remove(list []Bookmark, id string) ([]Bookmark, bool) {
	i := slices.IndexFunc(list, func(b Bookmark) bool { return b.ID == id })
	if i < 0 {
		return list, false
	}
	return slices.Delete(slices.Clone(list), i, i+1), true
}
