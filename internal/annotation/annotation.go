// Package annotation reconciles persisted highlights against a freshly
// parsed paragraph list and edits them during a reading session.
package annotation

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

// DefaultColor is used when a record carries no color.
const DefaultColor = "sun"

// ErrOutOfRange is returned when a new annotation does not fit the book.
var ErrOutOfRange = errors.New("annotation out of range")

// Raw is a persisted annotation of unknown shape.
type Raw = record.Raw

// Annotation is a highlighted span of one paragraph. Start and End are rune
// offsets, End exclusive.
type Annotation struct {
	ID        string `json:"id"`
	Color     string `json:"color"`
	ParaIndex int    `json:"paraIndex"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
	Note      string `json:"note"`
	CFI       string `json:"cfi"`
}

// Reconciler repairs persisted annotations. Zero value uses the wall clock
// and random UUIDs.
type Reconciler struct {
	Now   func() time.Time
	NewID func() string
}

func (rc Reconciler) source() record.Source {
	return record.Source{Now: rc.Now, NewID: rc.NewID}
}

// Reconcile reconciles raw with the default Reconciler.
func Reconcile(raw []Raw, paragraphs []string) []Annotation {
	return Reconciler{}.Reconcile(raw, paragraphs)
}

// Reconcile validates every record against paragraphs and fills in missing
// fields. Records whose paragraph no longer exists are dropped silently.
// The result is ordered by CreatedAt, oldest first.
func (rc Reconciler) Reconcile(raw []Raw, paragraphs []string) []Annotation {
	src := rc.source()
	out := make([]Annotation, 0, len(raw))
	for _, r := range raw {
		if a, ok := reconcileOne(src, r, paragraphs); ok {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b Annotation) int {
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})
	return out
}

func reconcileOne(src record.Source, r Raw, paragraphs []string) (Annotation, bool) {
	para, ok := r.Paragraph("paraIndex", "cfi", len(paragraphs))
	if !ok {
		return Annotation{}, false
	}
	runes := []rune(paragraphs[para])
	n := len(runes)
	token := r.Token("cfi")
	supplied, _ := r.String("text")

	start, ok := r.Int("start")
	if !ok {
		if pos, decoded := cfi.Decode(token); decoded {
			start = pos.Offset
		}
	}
	start = record.Clamp(start, 0, n)

	end, ok := r.Int("end")
	if !ok {
		end = start + len([]rune(supplied))
	}
	end = record.Clamp(end, start, n)

	color, _ := r.String("color")
	if strings.TrimSpace(color) == "" {
		color = DefaultColor
	}
	if token == "" {
		token = cfi.Encode(para, start)
	}
	text := supplied
	if strings.TrimSpace(text) == "" {
		text = string(runes[start:end])
	}
	note, _ := r.String("note")

	return Annotation{
		ID:        src.RecordID(r, "id"),
		Color:     color,
		ParaIndex: para,
		Start:     start,
		End:       end,
		Text:      text,
		CreatedAt: src.CreatedAt(r, "createdAt"),
		Note:      note,
		CFI:       token,
	}, true
}

// New creates an annotation over runes [start, end) of paragraph para.
func (rc Reconciler) New(paragraphs []string, para, start, end int, color string) (Annotation, error) {
	if para < 0 || para >= len(paragraphs) {
		return Annotation{}, fmt.Errorf("%w: paragraph %d of %d", ErrOutOfRange, para, len(paragraphs))
	}
	runes := []rune(paragraphs[para])
	if start < 0 || end > len(runes) || start >= end {
		return Annotation{}, fmt.Errorf("%w: span [%d, %d) of %d runes", ErrOutOfRange, start, end, len(runes))
	}
	if color == "" {
		color = DefaultColor
	}
	src := rc.source()
	return Annotation{
		ID:        src.ID(),
		Color:     color,
		ParaIndex: para,
		Start:     start,
		End:       end,
		Text:      string(runes[start:end]),
		CreatedAt: src.Millis(),
		CFI:       cfi.Encode(para, start),
	}, nil
}

// SetNote returns a copy of list with the note of annotation id replaced.
func SetNote(list []Annotation, id, note string) ([]Annotation, bool) {
	i := slices.IndexFunc(list, func(a Annotation) bool { return a.ID == id })
	if i < 0 {
		return list, false
	}
	out := slices.Clone(list)
	out[i].Note = note
	return out, true
}

// Remove returns a copy of list without annotation id.
func Remove(list []Annotation, id string) ([]Annotation, bool) {
	i := slices.IndexFunc(list, func(a Annotation) bool { return a.ID == id })
	if i < 0 {
		return list, false
	}
	return slices.Delete(slices.Clone(list), i, i+1), true
}
