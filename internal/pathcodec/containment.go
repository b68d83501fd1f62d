package pathcodec

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside its root.
var ErrOutsideRoot = errors.New("path escapes root")

// Within reports whether abs is root itself or lies below it. Both paths
// must be absolute and clean.
func Within(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// Normalize interprets raw as a path anchored at root and returns it
// relative to root. Either separator style is accepted; relative inputs are
// joined to root and absolute ones are taken as is. Anything that ends up
// outside root, including through ".." segments, is rejected with
// ErrOutsideRoot. root must be absolute.
//
// A backslash is a separator only on platforms that use it as one;
// elsewhere it is an ordinary name character.
func Normalize(root, raw string) (RelPath, error) {
	native := filepath.FromSlash(raw)

	var abs string
	if filepath.IsAbs(native) {
		abs = filepath.Clean(native)
	} else {
		abs = filepath.Join(root, native)
	}
	if !Within(root, abs) {
		return "", ErrOutsideRoot
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return NewRelPath(rel), nil
}

// Resolve returns the absolute location of rel under root, re-checking
// containment.
func Resolve(root string, rel RelPath) (string, error) {
	abs := filepath.Join(root, rel.Native())
	if !Within(root, abs) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}
