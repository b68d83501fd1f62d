// Package library persists the table that maps flattened paths back to the
// paths they had before a rename.
//
// The document is a flat JSON object of strings. Keys and values are written
// root-relative with a "./" prefix, e.g. {"./a_b.jpg": "./a/b.jpg"}.
package library

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/afero"
	"github.com/tailscale/hujson"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/pathcodec"
)

// DefaultName is the file name of the library inside the root.
const DefaultName = ".rename_lib"

// Library is the flattened path -> original path table of one root.
// Entries are only ever added.
type Library struct {
	entries map[string]string
	keys    map[pathcodec.RelPath]struct{}
}

// New returns an empty library.
func New() *Library {
	return &Library{
		entries: make(map[string]string),
		keys:    make(map[pathcodec.RelPath]struct{}),
	}
}

// Load reads and parses the document at path. Comments and trailing commas
// are tolerated; anything other than an object of strings is an error.
func Load(fs afero.Fs, path string) (*Library, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a library document.
func Parse(data []byte) (*Library, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid library document: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return nil, fmt.Errorf("invalid library document: %w", err)
	}

	lib := New()
	for k, v := range raw {
		lib.entries[k] = v
		lib.keys[pathcodec.Clean(k)] = struct{}{}
	}
	return lib, nil
}

// Key formats rel the way it is stored in the document.
func Key(rel pathcodec.RelPath) string {
	return "./" + string(rel)
}

// Add records that original now lives at flattened.
func (l *Library) Add(flattened, original pathcodec.RelPath) {
	l.entries[Key(flattened)] = Key(original)
	l.keys[flattened] = struct{}{}
}

// Has reports whether rel is already recorded as a flattened path, in any
// of the spellings a document may use for it.
func (l *Library) Has(rel pathcodec.RelPath) bool {
	_, ok := l.keys[rel]
	return ok
}

// Len returns the number of entries.
func (l *Library) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the raw table.
func (l *Library) Entries() map[string]string {
	out := make(map[string]string, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}

// Marshal encodes the table with sorted keys and literal UTF-8 characters.
func (l *Library) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(l.entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save overwrites the document at path.
func (l *Library) Save(fs fsys.FS, path string) error {
	data, err := l.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}
	if err := fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write library %s: %w", path, err)
	}
	return nil
}

// Remove deletes the document at path. A missing document is not an error.
func Remove(fs afero.Fs, path string) error {
	err := fs.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to remove library %s: %w", path, err)
}

// Rejected is an entry that did not survive [Library.Resolve].
type Rejected struct {
	Flattened string
	Original  string
}

// Resolve reinterprets every entry relative to root and returns the usable
// flattened -> original table. Entries whose key or value resolves outside
// root are dropped, logged and returned in the second result. root must be
// absolute.
func (l *Library) Resolve(root string, logger *slog.Logger) (map[pathcodec.RelPath]pathcodec.RelPath, []Rejected) {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := make(map[pathcodec.RelPath]pathcodec.RelPath, len(keys))
	var rejected []Rejected
	for _, k := range keys {
		v := l.entries[k]
		flat, kerr := pathcodec.Normalize(root, k)
		orig, verr := pathcodec.Normalize(root, v)
		if kerr != nil || verr != nil {
			if logger != nil {
				logger.Warn(fmt.Sprintf("Library entry %s -> %s is outside root scope. Skip.", k, v),
					"flattened", k, "original", v)
			}
			rejected = append(rejected, Rejected{Flattened: k, Original: v})
			continue
		}
		table[flat] = orig
	}
	return table, rejected
}
