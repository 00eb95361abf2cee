// Package reader turns TXT, EPUB and PDF files into a Book of ordered
// paragraphs and chapter markers, and provides RSVP (Rapid Serial Visual
// Presentation) speed reading over a Book.
package reader

import (
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oodadoudou/ZenithAI-Reader/internal/cfi"
)

// Reader holds the state for an RSVP speed reading session.
type Reader struct {
	Words          []string
	SentenceStarts []int
	CurrentIndex   int
	WPM            int
	Paused         bool
	LastArrowPress time.Time

	// Chapter support
	Chapters       []Chapter
	TOC            []TOCEntry
	CurrentChapter int

	// wordPara and wordOffset locate each word in the book's paragraphs.
	// paraStart is the first word of each paragraph.
	wordPara   []int
	wordOffset []int
	paraStart  []int
}

// NewReader creates a new Reader over book at the given words-per-minute setting.
func NewReader(book *Book, wpm int) *Reader {
	r := &Reader{WPM: wpm}
	if book == nil {
		return r
	}
	r.paraStart = make([]int, len(book.Paragraphs))
	for p, para := range book.Paragraphs {
		r.paraStart[p] = len(r.Words)
		for _, w := range splitWords(para) {
			r.Words = append(r.Words, w.text)
			r.wordPara = append(r.wordPara, p)
			r.wordOffset = append(r.wordOffset, w.offset)
		}
	}
	r.SentenceStarts = FindSentenceStarts(r.Words)
	r.SetChapters(book.Chapters, book.TOC)
	return r
}

type wordSpan struct {
	text   string
	offset int
}

// splitWords is strings.Fields that also reports each word's rune offset.
func splitWords(s string) []wordSpan {
	var (
		words     []wordSpan
		start     = -1
		runes     int
		byteStart int
	)
	for i, c := range s {
		if unicode.IsSpace(c) {
			if start >= 0 {
				words = append(words, wordSpan{text: s[byteStart:i], offset: start})
				start = -1
			}
		} else if start < 0 {
			start, byteStart = runes, i
		}
		runes++
	}
	if start >= 0 {
		words = append(words, wordSpan{text: s[byteStart:], offset: start})
	}
	return words
}

// FindSentenceStarts returns indices of words that start sentences.
func FindSentenceStarts(words []string) []int {
	starts := []int{0}
	for i, word := range words {
		if len(word) > 0 {
			last := word[len(word)-1]
			if last == '.' || last == '!' || last == '?' {
				if i+1 < len(words) {
					starts = append(starts, i+1)
				}
			}
		}
	}
	return starts
}

// GetORPPosition returns the Optimal Recognition Point index for a word.
// This is the character (rune) position where the eye should focus for fastest recognition.
func GetORPPosition(word string) int {
	length := utf8.RuneCountInString(word)
	if length <= 1 {
		return 0
	} else if length <= 5 {
		return 1
	}
	return length / 3
}

// JumpToPrevSentence moves to the start of the previous sentence.
func (r *Reader) JumpToPrevSentence() {
	for i := len(r.SentenceStarts) - 1; i >= 0; i-- {
		if r.SentenceStarts[i] < r.CurrentIndex {
			r.CurrentIndex = r.SentenceStarts[i]
			r.updateCurrentChapter()
			return
		}
	}
	r.CurrentIndex = 0
	r.updateCurrentChapter()
}

// JumpToNextSentence moves to the start of the next sentence.
func (r *Reader) JumpToNextSentence() {
	for i := 0; i < len(r.SentenceStarts); i++ {
		if r.SentenceStarts[i] > r.CurrentIndex {
			r.CurrentIndex = r.SentenceStarts[i]
			r.updateCurrentChapter()
			return
		}
	}
	if len(r.Words) > 0 {
		r.CurrentIndex = len(r.Words) - 1
	}
	r.updateCurrentChapter()
}

// GetDelay returns the duration to display each word based on WPM.
func (r *Reader) GetDelay() time.Duration {
	if r.WPM <= 0 {
		return time.Second
	}
	return time.Duration(60.0/float64(r.WPM)*1000) * time.Millisecond
}

// CurrentWord returns the word at the current index.
func (r *Reader) CurrentWord() string {
	if r.CurrentIndex >= 0 && r.CurrentIndex < len(r.Words) {
		return r.Words[r.CurrentIndex]
	}
	return ""
}

// Progress returns the current position and total word count.
func (r *Reader) Progress() (current, total int) {
	return r.CurrentIndex + 1, len(r.Words)
}

// Advance moves to the next word. Returns true if there are more words.
func (r *Reader) Advance() bool {
	if r.CurrentIndex < len(r.Words)-1 {
		r.CurrentIndex++
		r.updateCurrentChapter()
		return true
	}
	return false
}

// AtEnd returns true if the reader is at the last word.
func (r *Reader) AtEnd() bool {
	return r.CurrentIndex >= len(r.Words)-1
}

// CurrentParagraph returns the paragraph index of the current word.
func (r *Reader) CurrentParagraph() int {
	if r.CurrentIndex >= 0 && r.CurrentIndex < len(r.wordPara) {
		return r.wordPara[r.CurrentIndex]
	}
	return 0
}

// Position returns a position token for the current word.
func (r *Reader) Position() string {
	if r.CurrentIndex < 0 || r.CurrentIndex >= len(r.wordPara) {
		return cfi.Encode(0, 0)
	}
	return cfi.Encode(r.wordPara[r.CurrentIndex], r.wordOffset[r.CurrentIndex])
}

// Seek moves to the word at token. It reports false, leaving the reader at
// the start, when the token does not point into this book.
func (r *Reader) Seek(token string) bool {
	pos, ok := cfi.Decode(token)
	if !ok || pos.Paragraph >= len(r.paraStart) {
		r.CurrentIndex = 0
		r.updateCurrentChapter()
		return false
	}
	first := r.paraStart[pos.Paragraph]
	end := len(r.Words)
	if pos.Paragraph+1 < len(r.paraStart) {
		end = r.paraStart[pos.Paragraph+1]
	}
	// Last word of the paragraph starting at or before the offset.
	n := sort.Search(end-first, func(i int) bool {
		return r.wordOffset[first+i] > pos.Offset
	})
	r.CurrentIndex = first + max(n-1, 0)
	r.updateCurrentChapter()
	return true
}

// JumpToParagraph moves to the first word of paragraph p.
func (r *Reader) JumpToParagraph(p int) {
	if p >= 0 && p < len(r.paraStart) && r.paraStart[p] < len(r.Words) {
		r.CurrentIndex = r.paraStart[p]
		r.updateCurrentChapter()
	}
}

// JumpToChapter jumps to the start of chapter i and updates current chapter.
func (r *Reader) JumpToChapter(i int) {
	if i >= 0 && i < len(r.Chapters) {
		r.JumpToParagraph(r.Chapters[i].Index)
	}
}

// updateCurrentChapter sets CurrentChapter based on CurrentIndex.
func (r *Reader) updateCurrentChapter() {
	para := r.CurrentParagraph()
	for i := len(r.Chapters) - 1; i >= 0; i-- {
		if para >= r.Chapters[i].Index {
			r.CurrentChapter = i
			return
		}
	}
	r.CurrentChapter = 0
}

// CurrentChapterTitle returns the title of the current chapter.
func (r *Reader) CurrentChapterTitle() string {
	if r.CurrentChapter >= 0 && r.CurrentChapter < len(r.Chapters) {
		return r.Chapters[r.CurrentChapter].Title
	}
	return ""
}

// SetChapters sets the chapter data and updates the current chapter.
func (r *Reader) SetChapters(chapters []Chapter, toc []TOCEntry) {
	r.Chapters = chapters
	r.TOC = toc
	r.updateCurrentChapter()
}
