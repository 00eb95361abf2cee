// Package cfi encodes reading positions as opaque, EPUB-CFI shaped tokens.
//
// A token pins a character offset inside one paragraph of a parsed book. The
// paragraph index is only meaningful against the paragraph slice it was
// minted from, so consumers must re-validate decoded positions before use.
package cfi

import (
	"fmt"
	"regexp"
	"strconv"
)

// basePath is the fixed package/spine prefix every token carries.
const basePath = "/6/2[zenith]!/4/2"

var tokenPattern = regexp.MustCompile(`para-(\d+)\]text\(\)\[1\]:(\d+)`)

// Position is a paragraph index plus a character offset within it.
type Position struct {
	Paragraph int
	Offset    int
}

// Encode builds a token for the given paragraph and offset.
// Negative inputs are treated as zero.
func Encode(para, offset int) string {
	para = clamp(para)
	offset = clamp(offset)
	node := max(1, para+1) * 2
	return fmt.Sprintf("epubcfi(%s/%d[para-%d]text()[1]:%d)", basePath, node, para, offset)
}

// Decode extracts the position from token. It reports false when the token
// does not carry the paragraph and offset markers.
func Decode(token string) (Position, bool) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return Position{}, false
	}
	para, err := strconv.Atoi(m[1])
	if err != nil {
		return Position{}, false
	}
	offset, err := strconv.Atoi(m[2])
	if err != nil {
		return Position{}, false
	}
	return Position{Paragraph: para, Offset: offset}, true
}

// Resolve decodes token, falling back to the start of fallbackPara when the
// token is malformed.
func Resolve(token string, fallbackPara int) Position {
	p, ok := Decode(token)
	if !ok {
		return Position{Paragraph: clamp(fallbackPara)}
	}
	return Position{Paragraph: clamp(p.Paragraph), Offset: clamp(p.Offset)}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
