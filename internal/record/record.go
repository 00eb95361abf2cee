// Package record reads loosely typed persisted records. Records come from
// JSON written by older versions of the application, so every field may be
// missing, mistyped or stale; accessors report what they could use.
package record

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oodadoudou/ZenithAI-Reader/internal/cfi"
)

// Raw is one persisted record decoded without a schema.
type Raw map[string]any

// Float returns the field as a finite number. Strings are not numbers here.
func (r Raw) Float(key string) (float64, bool) {
	var f float64
	switch v := r[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int returns the field floored to an integer, saturating at the int range.
func (r Raw) Int(key string) (int, bool) {
	f, ok := r.Float(key)
	if !ok {
		return 0, false
	}
	f = math.Floor(f)
	switch {
	case f >= math.MaxInt:
		return math.MaxInt, true
	case f <= math.MinInt:
		return math.MinInt, true
	}
	return int(f), true
}

// String returns the field if it is a string.
func (r Raw) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Token returns the position token of the record, if it has a non-empty one.
func (r Raw) Token(key string) string {
	s, _ := r.String(key)
	return s
}

// Paragraph resolves the record's paragraph against n paragraphs: the
// explicit index under key when it is in range, else the paragraph of the
// token under tokenKey when in range.
func (r Raw) Paragraph(key, tokenKey string, n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	if p, ok := r.Int(key); ok && p >= 0 && p < n {
		return p, true
	}
	if pos, ok := cfi.Decode(r.Token(tokenKey)); ok && pos.Paragraph < n {
		return pos.Paragraph, true
	}
	return 0, false
}

// Source supplies the clock and identifiers for regenerated fields.
type Source struct {
	Now   func() time.Time
	NewID func() string
}

// Millis returns the current time in Unix milliseconds.
func (s Source) Millis() int64 {
	if s.Now != nil {
		return s.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

// ID returns a fresh identifier.
func (s Source) ID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// RecordID returns the record's id or a fresh one. Non-blank strings are
// kept; non-zero numbers are kept in their shortest decimal form.
func (s Source) RecordID(r Raw, key string) string {
	if id, ok := r.String(key); ok && strings.TrimSpace(id) != "" {
		return id
	}
	if f, ok := r.Float(key); ok && f != 0 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s.ID()
}

// CreatedAt returns the record's timestamp in milliseconds. Numeric strings
// count; zero, missing and non-numeric values are replaced by the current time.
func (s Source) CreatedAt(r Raw, key string) int64 {
	f, ok := r.Float(key)
	if !ok {
		if str, isStr := r.String(key); isStr {
			if n, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				f, ok = n, true
			}
		}
	}
	if !ok || f == 0 || math.Abs(f) > 1<<62 {
		return s.Millis()
	}
	return int64(f)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
