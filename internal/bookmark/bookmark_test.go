package bookmark

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

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
			return fmt.Sprintf("bm-%d", n)
		},
	}
}

var paragraphs = []string{
	"It is a truth universally acknowledged.",
	"However little known the feelings or views of such a man may be.",
	"Short.",
}

func decodeRaw(t *testing.T, s string) []Raw {
	t.Helper()
	var raw []Raw
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestReconcile(t *testing.T) {
	raw := decodeRaw(t, fmt.Sprintf(`[
		{"id": "old", "paraIndex": 0, "createdAt": 100, "snippet": "custom"},
		{"paraIndex": 1, "chars": 8, "createdAt": 300},
		{"cfi": %q, "createdAt": 200},
		{"paraIndex": 7},
		{"cfi": %q},
		{"snippet": "orphan"}
	]`, cfi.Encode(2, 3), cfi.Encode(40, 0)))

	got := testReconciler().Reconcile(raw, paragraphs)
	require.Len(t, got, 3)

	assert.Equal(t, Bookmark{
		ID: "bm-1", ParaIndex: 1, CreatedAt: 300,
		Snippet:    paragraphs[1],
		CharOffset: 8, CFI: cfi.Encode(1, 8),
	}, got[0])
	assert.Equal(t, Bookmark{
		ID: "bm-2", ParaIndex: 2, CreatedAt: 200,
		Snippet:    "Short.",
		CharOffset: 3, CFI: cfi.Encode(2, 3),
	}, got[1])
	assert.Equal(t, Bookmark{
		ID: "old", ParaIndex: 0, CreatedAt: 100,
		Snippet:    "custom",
		CharOffset: 0, CFI: cfi.Encode(0, 0),
	}, got[2])
}

func TestReconcileOffsets(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   int
	}{
		{"charOffset", `{"paraIndex": 0, "charOffset": 5}`, 5},
		{"legacy chars", `{"paraIndex": 0, "chars": 6}`, 6},
		{"charOffset before chars", `{"paraIndex": 0, "charOffset": 2, "chars": 9}`, 2},
		{"explicit beats token", `{"paraIndex": 0, "charOffset": 1, "cfi": "` + cfi.Encode(0, 9) + `"}`, 1},
		{"token offset", `{"paraIndex": 0, "cfi": "` + cfi.Encode(0, 9) + `"}`, 9},
		{"negative ignored", `{"paraIndex": 0, "chars": -3}`, 0},
		{"clamped to paragraph", `{"paraIndex": 2, "charOffset": 100}`, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testReconciler().Reconcile(decodeRaw(t, "["+tt.record+"]"), paragraphs)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].CharOffset)
		})
	}
}

func TestReconcileNeverEscapesParagraphs(t *testing.T) {
	var raw []Raw
	for p := -5; p < 60; p++ {
		raw = append(raw, Raw{"paraIndex": float64(p), "charOffset": float64(p * 7)})
		raw = append(raw, Raw{"cfi": cfi.Encode(p, p)})
	}
	for n := 0; n < 8; n++ {
		paras := make([]string, n)
		for i := range paras {
			paras[i] = strings.Repeat("w ", i+1)
		}
		got := testReconciler().Reconcile(raw, paras)
		for i, b := range got {
			require.GreaterOrEqual(t, b.ParaIndex, 0)
			require.Less(t, b.ParaIndex, n)
			require.LessOrEqual(t, b.CharOffset, utf8.RuneCountInString(paras[b.ParaIndex]))
			if i > 0 {
				require.GreaterOrEqual(t, got[i-1].CreatedAt, b.CreatedAt)
			}
		}
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 30)

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"empty", "", 140, ""},
		{"whitespace", " \n\t ", 140, ""},
		{"collapse", "  a \n\n b\t c ", 140, "a b c"},
		{"fits exactly", "abcde", 5, "abcde"},
		{"word boundary", "the quick brown fox", 12, "the quick…"},
		{"no usable space", "abcd efghijklmnop", 10, "abcd efgh…"},
		{"single long word", "abcdefghijklmnop", 6, "abcde…"},
		{"default length", long, 0, long[:137] + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.in, tt.max))
		})
	}
}

func TestSnippetBounds(t *testing.T) {
	inputs := []string{
		strings.Repeat("ünïcödé wörds ", 40),
		strings.Repeat("x", 500),
		"spaced    out\n\n\ttext that keeps going and going and going past the limit",
	}
	for _, in := range inputs {
		for _, max := range []int{1, 2, 5, 20, 140} {
			got := Snippet(in, max)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), max, "Snippet(%q, %d) = %q", in, max, got)
			assert.NotContains(t, got, "  ")
		}
	}
}

func TestFilter(t *testing.T) {
	list := []Bookmark{
		{ID: "a", Snippet: "The Whale"},
		{ID: "b", Snippet: "a white whale appears"},
		{ID: "c", Snippet: "nothing here"},
	}
	ids := func(bs []Bookmark) []string {
		var out []string
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, ids(Filter(list, "  WHALE ")))
	assert.Equal(t, []string{"a", "b", "c"}, ids(Filter(list, "")))
	assert.Empty(t, Filter(list, "kraken"))
}

func TestSort(t *testing.T) {
	list := []Bookmark{
		{ID: "p2-old", ParaIndex: 2, CreatedAt: 1},
		{ID: "p1", ParaIndex: 1, CreatedAt: 5},
		{ID: "p2-new", ParaIndex: 2, CreatedAt: 9},
		{ID: "p0", ParaIndex: 0, CreatedAt: 3},
	}
	ids := func(bs []Bookmark) []string {
		var out []string
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}

	assert.Equal(t, []string{"p2-new", "p1", "p0", "p2-old"}, ids(Sort(list, SortRecent)))
	assert.Equal(t, []string{"p0", "p1", "p2-new", "p2-old"}, ids(Sort(list, SortParaAsc)))
	assert.Equal(t, []string{"p2-new", "p2-old", "p1", "p0"}, ids(Sort(list, SortParaDesc)))
	assert.Equal(t, ids(Sort(list, SortRecent)), ids(Sort(list, "bogus")))
	assert.Equal(t, "p2-old", list[0].ID, "input must not change")
}

func TestParseSortMode(t *testing.T) {
	for in, want := range map[string]SortMode{
		"":         SortRecent,
		"recent":   SortRecent,
		"paraAsc":  SortParaAsc,
		"paraDesc": SortParaDesc,
	} {
		got, err := ParseSortMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSortMode("alphabetical")
	assert.Error(t, err)
}

func TestNewAndRemove(t *testing.T) {
	rc := testReconciler()
	b, err := rc.New(paragraphs, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, "bm-1", b.ID)
	assert.Equal(t, len([]rune(paragraphs[1])), b.CharOffset)
	assert.Equal(t, paragraphs[1], b.Snippet)
	assert.Equal(t, fixedNow.UnixMilli(), b.CreatedAt)

	_, err = rc.New(paragraphs, 3, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	list := []Bookmark{b, {ID: "other"}}
	left, ok := Remove(list, "bm-1")
	require.True(t, ok)
	assert.Equal(t, []Bookmark{{ID: "other"}}, left)
	_, ok = Remove(list, "missing")
	assert.False(t, ok)
}
