package annotation

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oodadoudou/ZenithAI-Reader/internal/cfi"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func testReconciler() Reconciler {
	n := 0
	return Reconciler{
		Now: func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("gen-%d", n)
		},
	}
}

var paragraphs = []string{
	"Call me Ishmael.",
	"Some years ago, never mind how long precisely.",
	"Café society.",
}

func decodeRaw(t *testing.T, s string) []Raw {
	t.Helper()
	var raw []Raw
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestReconcileFillsDefaults(t *testing.T) {
	raw := decodeRaw(t, `[{"paraIndex": 1, "start": 5, "end": 10}]`)

	got := testReconciler().Reconcile(raw, paragraphs)
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, "gen-1", a.ID)
	assert.Equal(t, DefaultColor, a.Color)
	assert.Equal(t, 1, a.ParaIndex)
	assert.Equal(t, 5, a.Start)
	assert.Equal(t, 10, a.End)
	assert.Equal(t, "years", a.Text)
	assert.Equal(t, fixedNow.UnixMilli(), a.CreatedAt)
	assert.Equal(t, "", a.Note)
	assert.Equal(t, cfi.Encode(1, 5), a.CFI)
}

func TestReconcileKeepsSuppliedFields(t *testing.T) {
	raw := decodeRaw(t, `[{
		"id": "keep", "color": "sea", "paraIndex": 0, "start": 0, "end": 4,
		"text": "Call", "createdAt": 42, "note": "opening", "cfi": "epubcfi(custom)"
	}]`)

	got := testReconciler().Reconcile(raw, paragraphs)
	require.Len(t, got, 1)
	assert.Equal(t, Annotation{
		ID: "keep", Color: "sea", ParaIndex: 0, Start: 0, End: 4,
		Text: "Call", CreatedAt: 42, Note: "opening", CFI: "epubcfi(custom)",
	}, got[0])
}

func TestReconcileParagraphResolution(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   int
		keep   bool
	}{
		{"explicit", `{"paraIndex": 2}`, 2, true},
		{"explicit float floors", `{"paraIndex": 1.7}`, 1, true},
		{"explicit out of range uses token", `{"paraIndex": 9, "cfi": "` + jsonToken(0, 3) + `"}`, 0, true},
		{"negative uses token", `{"paraIndex": -1, "cfi": "` + jsonToken(2, 0) + `"}`, 2, true},
		{"string index uses token", `{"paraIndex": "1", "cfi": "` + jsonToken(0, 0) + `"}`, 0, true},
		{"token only", `{"cfi": "` + jsonToken(1, 4) + `"}`, 1, true},
		{"token out of range", `{"cfi": "` + jsonToken(3, 0) + `"}`, 0, false},
		{"nothing", `{"text": "floating"}`, 0, false},
		{"garbage token", `{"cfi": "not a token"}`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testReconciler().Reconcile(decodeRaw(t, "["+tt.record+"]"), paragraphs)
			if !tt.keep {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].ParaIndex)
		})
	}
}

func jsonToken(p, o int) string {
	return cfi.Encode(p, o)
}

func TestReconcileOffsets(t *testing.T) {
	tests := []struct {
		name       string
		record     string
		start, end int
		text       string
	}{
		{"explicit start wins over token", `{"paraIndex": 0, "start": 5, "cfi": "` + jsonToken(0, 9) + `"}`, 5, 5, ""},
		{"token offset when start missing", `{"paraIndex": 0, "cfi": "` + jsonToken(0, 5) + `", "text": "me"}`, 5, 7, "me"},
		{"end from supplied text", `{"paraIndex": 0, "start": 0, "text": "Call me"}`, 0, 7, "Call me"},
		{"start clamped", `{"paraIndex": 0, "start": 500}`, 16, 16, ""},
		{"negative start clamped", `{"paraIndex": 0, "start": -4, "end": 4}`, 0, 4, "Call"},
		{"end before start", `{"paraIndex": 0, "start": 5, "end": 2}`, 5, 5, ""},
		{"end past paragraph", `{"paraIndex": 0, "start": 8, "end": 99}`, 8, 16, "Ishmael."},
		{"blank text derived", `{"paraIndex": 2, "start": 0, "end": 4, "text": "   "}`, 0, 4, "Café"},
		{"rune offsets", `{"paraIndex": 2, "start": 5, "end": 12}`, 5, 12, "society"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testReconciler().Reconcile(decodeRaw(t, "["+tt.record+"]"), paragraphs)
			require.Len(t, got, 1)
			assert.Equal(t, tt.start, got[0].Start)
			assert.Equal(t, tt.end, got[0].End)
			assert.Equal(t, tt.text, got[0].Text)
		})
	}
}

func TestReconcileCreatedAt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{"number", `1000`, 1000},
		{"numeric string", `"2500"`, 2500},
		{"zero", `0`, fixedNow.UnixMilli()},
		{"text", `"yesterday"`, fixedNow.UnixMilli()},
		{"null", `null`, fixedNow.UnixMilli()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := decodeRaw(t, `[{"paraIndex": 0, "createdAt": `+tt.value+`}]`)
			got := testReconciler().Reconcile(raw, paragraphs)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].CreatedAt)
		})
	}
}

func TestReconcileSortsOldestFirst(t *testing.T) {
	raw := decodeRaw(t, `[
		{"id": "c", "paraIndex": 0, "createdAt": 30},
		{"id": "a", "paraIndex": 1, "createdAt": 10},
		{"id": "b1", "paraIndex": 2, "createdAt": 20},
		{"id": "b2", "paraIndex": 0, "createdAt": 20}
	]`)
	got := testReconciler().Reconcile(raw, paragraphs)
	var ids []string
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}

func TestReconcileAfterBookShrinks(t *testing.T) {
	var raw []Raw
	for p := 0; p < 50; p++ {
		raw = append(raw, Raw{"paraIndex": float64(p), "start": float64(p), "end": float64(p + 3)})
		raw = append(raw, Raw{"cfi": cfi.Encode(p, p*2)})
	}
	for _, n := range []int{0, 1, 3, 10, 49} {
		shrunk := make([]string, n)
		for i := range shrunk {
			shrunk[i] = "short"
		}
		got := testReconciler().Reconcile(raw, shrunk)
		for _, a := range got {
			assert.GreaterOrEqual(t, a.ParaIndex, 0)
			assert.Less(t, a.ParaIndex, n)
			assert.LessOrEqual(t, a.End, 5)
			assert.LessOrEqual(t, a.Start, a.End)
		}
		if n == 0 {
			assert.Empty(t, got)
		}
	}
}

func TestReconcileDefaultsToRandomIDs(t *testing.T) {
	got := Reconcile([]Raw{{"paraIndex": float64(0)}, {"paraIndex": float64(1)}}, paragraphs)
	require.Len(t, got, 2)
	assert.Len(t, got[0].ID, 36)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.NotZero(t, got[0].CreatedAt)
}

func TestNew(t *testing.T) {
	rc := testReconciler()
	a, err := rc.New(paragraphs, 0, 5, 7, "")
	require.NoError(t, err)
	assert.Equal(t, "me", a.Text)
	assert.Equal(t, DefaultColor, a.Color)
	assert.Equal(t, "gen-1", a.ID)
	assert.Equal(t, cfi.Encode(0, 5), a.CFI)
	assert.Equal(t, fixedNow.UnixMilli(), a.CreatedAt)

	for _, span := range [][3]int{{3, 0, 1}, {-1, 0, 1}, {0, 4, 4}, {0, 2, 1}, {0, -1, 2}, {0, 0, 17}} {
		_, err := rc.New(paragraphs, span[0], span[1], span[2], "sea")
		assert.ErrorIs(t, err, ErrOutOfRange, "span %v", span)
	}
}

func TestSetNoteAndRemove(t *testing.T) {
	list := []Annotation{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	noted, ok := SetNote(list, "b", "remember this")
	require.True(t, ok)
	assert.Equal(t, "remember this", noted[1].Note)
	assert.Empty(t, list[1].Note, "input must not change")

	_, ok = SetNote(list, "zzz", "x")
	assert.False(t, ok)

	removed, ok := Remove(list, "a")
	require.True(t, ok)
	assert.Equal(t, []Annotation{{ID: "b"}, {ID: "c"}}, removed)
	assert.Len(t, list, 3)

	same, ok := Remove(list, "zzz")
	assert.False(t, ok)
	assert.Equal(t, list, same)
}
