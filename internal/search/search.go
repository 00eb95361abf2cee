// Package search builds a small stemmed term index over a book's paragraphs
// and ranks paragraphs against free-text queries.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLimit caps query results when Options.Limit is not positive.
const DefaultLimit = 25

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be but by for if in into
		is it of on or such that the their then there these
		they this to was will with were from your you we our`) {
		stopWords[w] = struct{}{}
	}
}

// Entry holds the stemmed term frequencies of one paragraph.
type Entry struct {
	Paragraph int            `json:"index"`
	Terms     map[string]int `json:"freq"`
	Length    int            `json:"length"`
}

// Index is one Entry per paragraph, in paragraph order.
type Index []Entry

// Options tunes Query.
type Options struct {
	Limit int
}

// Result is a matching paragraph and its score.
type Result struct {
	Paragraph int `json:"index"`
	Score     int `json:"score"`
}

// Build indexes paragraphs. Stop words are not indexed.
func Build(paragraphs []string) Index {
	idx := make(Index, len(paragraphs))
	for i, text := range paragraphs {
		terms := make(map[string]int)
		for _, tok := range Tokenize(text) {
			if isStopWord(tok) {
				continue
			}
			terms[Stem(tok)]++
		}
		idx[i] = Entry{Paragraph: i, Terms: terms, Length: utf8.RuneCountInString(text)}
	}
	return idx
}

// Query ranks the entries of idx against text. Each distinct query term adds
// twice its frequency in a paragraph plus one for being present at all.
// Results are ordered by score, then paragraph; paragraphs that match no
// term are omitted.
func Query(idx Index, text string, opts Options) []Result {
	terms := queryTerms(text)
	if len(idx) == 0 || len(terms) == 0 {
		return nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var results []Result
	for _, e := range idx {
		hits, coverage := 0, 0
		for _, term := range terms {
			if n := e.Terms[term]; n > 0 {
				hits += n
				coverage++
			}
		}
		if hits > 0 {
			results = append(results, Result{Paragraph: e.Paragraph, Score: hits*2 + coverage})
		}
	}
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Paragraph, b.Paragraph)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func queryTerms(text string) []string {
	var terms []string
	for _, tok := range Tokenize(text) {
		if isStopWord(tok) {
			continue
		}
		if s := Stem(tok); !slices.Contains(terms, s) {
			terms = append(terms, s)
		}
	}
	return terms
}

func isStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

// Tokenize folds text to lowercase ASCII words: diacritics are removed after
// canonical decomposition and anything outside [a-z0-9] separates tokens.
func Tokenize(text string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return tokenPattern.FindAllString(strings.ToLower(folded), -1)
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int // token must be longer than this
}

// Order matters: the first applicable rule wins.
var suffixRules = []suffixRule{
	{"ies", "y", 4},
	{"ings", "", 6},
	{"ing", "", 5},
	{"ed", "", 4},
	{"ers", "", 5},
	{"er", "", 4},
	{"ly", "", 4},
	{"ment", "", 6},
	{"es", "", 4},
	{"s", "", 3},
}

// Stem strips one common English suffix from a lowercase token.
func Stem(tok string) string {
	if len(tok) <= 2 {
		return tok
	}
	for _, r := range suffixRules {
		if len(tok) > r.minLen && strings.HasSuffix(tok, r.suffix) {
			return strings.TrimSuffix(tok, r.suffix) + r.replacement
		}
	}
	return tok
}
