// Package pathcodec converts between root-relative paths and the
// single-segment names used in a flattened directory.
//
// Relative paths are always slash separated inside this package; callers
// convert with [RelPath.Native] at the filesystem boundary.
package pathcodec

import (
	"path"
	"path/filepath"
	"strings"
)

const (
	// Delimiter replaces path separators in a flattened name.
	Delimiter = "_"
	// Escape stands for a literal underscore when decoding heuristically.
	Escape = "-U"
)

// RelPath is a slash separated path relative to the root being processed.
// The empty RelPath is the root itself.
type RelPath string

// FlatName is a single path segment that encodes a nested RelPath.
type FlatName string

// NewRelPath builds a RelPath from a native relative path.
func NewRelPath(native string) RelPath {
	return RelPath(filepath.ToSlash(native))
}

// Join appends name to p.
func (p RelPath) Join(name string) RelPath {
	if p == "" {
		return RelPath(name)
	}
	return RelPath(string(p) + "/" + name)
}

// Dir returns the parent of p, or the empty RelPath for top-level entries.
func (p RelPath) Dir() RelPath {
	i := strings.LastIndex(string(p), "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the last segment of p.
func (p RelPath) Base() string {
	return path.Base(string(p))
}

// Native returns p with the platform separator.
func (p RelPath) Native() string {
	return filepath.FromSlash(string(p))
}

// String implements fmt.Stringer.
func (p RelPath) String() string {
	return string(p)
}

// Clean canonicalizes a relative path as it may appear in a library
// document: platform separators become slashes and leading "./" is dropped.
func Clean(raw string) RelPath {
	s := path.Clean(filepath.ToSlash(raw))
	if s == "." {
		return ""
	}
	return RelPath(s)
}

// Flatten folds the part of rel beyond head into a single segment.
// The first head bytes of rel are kept verbatim as a directory prefix.
//
// With collapse set, a remainder of the form "name/name.ext" becomes
// "name.ext" instead of "name_name.ext".
func Flatten(rel RelPath, head int, collapse bool) RelPath {
	s := string(rel)
	if head < 0 {
		head = 0
	}
	if head > len(s) {
		head = len(s)
	}
	prefix, rest := s[:head], s[head:]

	if collapse {
		if dir, file, ok := strings.Cut(rest, "/"); ok && !strings.Contains(file, "/") {
			if Stem(file) == dir {
				return RelPath(prefix + file)
			}
		}
	}
	return RelPath(prefix + string(Encode(RelPath(rest))))
}

// Encode joins every segment of rel with the delimiter.
func Encode(rel RelPath) FlatName {
	return FlatName(strings.ReplaceAll(string(rel), "/", Delimiter))
}

// Unflatten is the best-effort inverse of Encode used when no library is
// available. The last delimiter separates the file name from its directory,
// every other delimiter becomes a separator as well, and the escape sequence
// is turned back into a literal underscore.
//
// It cannot tell a structural delimiter from an underscore that was part of
// an original, unescaped name: "a_b_c.txt" always decodes to "a/b/c.txt".
//
// The second result is false when name holds neither a delimiter nor an
// escape sequence and there is nothing to restore.
func Unflatten(name FlatName) (RelPath, bool) {
	s := string(name)
	if !strings.Contains(s, Delimiter) && !strings.Contains(s, Escape) {
		return "", false
	}
	if i := strings.LastIndex(s, Delimiter); i >= 0 {
		s = s[:i] + "/" + s[i+len(Delimiter):]
	}
	s = strings.ReplaceAll(s, Delimiter, "/")
	s = strings.ReplaceAll(s, Escape, "_")
	return RelPath(s), true
}

// Stem returns name without its extension. Leading dots belong to the stem,
// so ".profile" has no extension.
func Stem(name string) string {
	ext := path.Ext(strings.TrimLeft(name, "."))
	return name[:len(name)-len(ext)]
}
