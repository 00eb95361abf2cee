// Package state persists per-book reading state: the last position token and
// the raw annotation and bookmark arrays. Records are returned undecoded so
// callers can reconcile them against the current parse of the book.
package state

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/oodadoudou/ZenithAI-Reader/internal/record"
)

const (
	stateFileName = "library.json"
	hashBytes     = 8192 // First 8KB for content hash
)

// BookState is everything remembered about one book.
type BookState struct {
	Position    string          `json:"position,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
	Bookmarks   json.RawMessage `json:"bookmarks,omitempty"`
}

// Store manages persistent reading state
type Store struct {
	path string
	data map[string]BookState
	mu   sync.RWMutex
}

// NewStore creates or loads state from dir. An empty dir means DefaultDir().
// A corrupt state file is not fatal; the store starts empty.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	store := &Store{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]BookState),
	}
	if err := store.load(); err != nil || store.data == nil {
		store.data = make(map[string]BookState)
	}
	return store, nil
}

// DefaultDir returns XDG_STATE_HOME/zenith or ~/.local/state/zenith
func DefaultDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "zenith")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "zenith")
}

// Path is the state file location.
func (s *Store) Path() string {
	return s.path
}

// BookID identifies a book by the BLAKE3 hash of its first 8 KiB.
func BookID(data []byte) string {
	if len(data) > hashBytes {
		data = data[:hashBytes]
	}
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// FileID is BookID for a file on disk, reading only the hashed prefix.
func FileID(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return BookID(buf[:n]), nil
}

// Position returns the saved position token for the book, or "".
func (s *Store) Position(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[id].Position
}

// SetPosition saves the position token for the book.
func (s *Store) SetPosition(id, token string) error {
	return s.update(id, func(b *BookState) error {
		b.Position = token
		return nil
	})
}

// Annotations returns the stored annotation records of the book.
func (s *Store) Annotations(id string) []record.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decodeRecords(s.data[id].Annotations)
}

// SetAnnotations stores v, which must marshal to a JSON array.
func (s *Store) SetAnnotations(id string, v any) error {
	return s.update(id, func(b *BookState) error {
		raw, err := encodeRecords(v)
		b.Annotations = raw
		return err
	})
}

// Bookmarks returns the stored bookmark records of the book.
func (s *Store) Bookmarks(id string) []record.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decodeRecords(s.data[id].Bookmarks)
}

// SetBookmarks stores v, which must marshal to a JSON array.
func (s *Store) SetBookmarks(id string, v any) error {
	return s.update(id, func(b *BookState) error {
		raw, err := encodeRecords(v)
		b.Bookmarks = raw
		return err
	})
}

// Clear removes everything saved for the book
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return s.save()
}

func (s *Store) update(id string, fn func(*BookState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.data[id]
	if err := fn(&b); err != nil {
		return err
	}
	s.data[id] = b
	return s.save()
}

func encodeRecords(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || (trimmed[0] != '[' && !bytes.Equal(trimmed, []byte("null"))) {
		return nil, fmt.Errorf("encode records: want a JSON array, got %.20s", raw)
	}
	return raw, nil
}

// decodeRecords keeps the objects of a stored array and skips anything else.
func decodeRecords(raw json.RawMessage) []record.Raw {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]record.Raw, 0, len(items))
	for _, item := range items {
		var r record.Raw
		if err := json.Unmarshal(item, &r); err != nil || r == nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
