// Package heading decides whether a text fragment reads like a chapter
// heading. The check is approximate: it looks for a leading keyword or a
// mostly-uppercase line, and both false positives and misses are expected.
package heading

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultLabelLength is the rune length chapter titles are truncated to.
const DefaultLabelLength = 80

// Rule is a configurable heading predicate.
type Rule struct {
	// Keywords are matched case-insensitively at the start of the fragment
	// and must be followed by a word boundary.
	Keywords []string

	// UpperRatio is the share of uppercase letters above which a fragment
	// counts as a heading.
	UpperRatio float64
}

var (
	// Text is the rule used for plain text books.
	Text = Rule{
		Keywords:   []string{"chapter", "part", "section"},
		UpperRatio: 0.6,
	}

	// PDF is the rule used for extracted PDF pages, which carry more
	// uppercase running headers and so need a stricter ratio.
	PDF = Rule{
		Keywords:   []string{"chapter", "part", "section", "capítulo"},
		UpperRatio: 0.7,
	}
)

// WithRatio returns a copy of r using ratio as its uppercase threshold.
func (r Rule) WithRatio(ratio float64) Rule {
	r.UpperRatio = ratio
	return r
}

// Match reports whether fragment looks like a heading under r.
func (r Rule) Match(fragment string) bool {
	s := strings.TrimSpace(fragment)
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, kw := range r.Keywords {
		if hasKeyword(lower, kw) {
			return true
		}
	}

	var letters, upper int
	for _, c := range s {
		if !unicode.IsLetter(c) {
			continue
		}
		letters++
		if unicode.IsUpper(c) {
			upper++
		}
	}
	if letters == 0 {
		return false
	}
	return float64(upper)/float64(letters) > r.UpperRatio
}

var wordChar = regexp.MustCompile(`^[\p{L}\p{N}_]`)

func hasKeyword(lower, kw string) bool {
	if kw == "" || !strings.HasPrefix(lower, kw) {
		return false
	}
	return !wordChar.MatchString(lower[len(kw):])
}

// Label truncates fragment to at most n runes.
func Label(fragment string, n int) string {
	if n <= 0 {
		n = DefaultLabelLength
	}
	runes := []rune(fragment)
	if len(runes) <= n {
		return fragment
	}
	return string(runes[:n])
}
