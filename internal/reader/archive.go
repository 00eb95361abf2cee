package reader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// maxEntrySize bounds the uncompressed size of a single archive entry.
const maxEntrySize = 256 << 20

// archive is a zip file held in memory with tolerant path lookup.
type archive struct {
	files   map[string]*zip.File
	folded  map[string]*zip.File
	entries []string
}

func openArchive(data []byte) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %v", ErrInvalidEPUB, err)
	}
	a := &archive{
		files:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := normalizeEntryPath(f.Name)
		if _, ok := a.files[name]; ok {
			continue
		}
		a.files[name] = f
		a.entries = append(a.entries, name)
		lower := strings.ToLower(name)
		if _, ok := a.folded[lower]; !ok {
			a.folded[lower] = f
		}
	}
	return a, nil
}

func normalizeEntryPath(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return strings.TrimLeft(name, "/")
}

// lookup finds an entry by exact path, then percent-decoded, then ignoring case.
func (a *archive) lookup(name string) (*zip.File, bool) {
	name = normalizeEntryPath(name)
	candidates := []string{name}
	if dec, err := url.PathUnescape(name); err == nil && dec != name {
		candidates = append(candidates, dec)
	}
	for _, c := range candidates {
		if f, ok := a.files[c]; ok {
			return f, true
		}
	}
	for _, c := range candidates {
		if f, ok := a.folded[strings.ToLower(c)]; ok {
			return f, true
		}
	}
	return nil, false
}

func (a *archive) has(name string) bool {
	_, ok := a.lookup(name)
	return ok
}

func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("entry %s too large: %d bytes", name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry %s too large", name)
	}
	return data, nil
}

// resolvePath resolves rel against the directory of base. Remote URLs are
// returned unchanged; fragments are dropped.
func resolvePath(base, rel string) string {
	if rel == "" {
		return ""
	}
	lower := strings.ToLower(rel)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return rel
	}
	if i := strings.IndexByte(rel, '#'); i >= 0 {
		rel = rel[:i]
	}

	var parts []string
	if !strings.HasPrefix(rel, "/") {
		parts = strings.Split(normalizeEntryPath(base), "/")
		parts = parts[:len(parts)-1]
	}
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}
