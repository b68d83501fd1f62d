// Package unfold flattens a directory tree into file names that encode the
// original paths, and restores the tree afterwards.
//
// [Rename] performs the forward transform and records every move in a
// library document; [Repack] reverses it, falling back to decoding the file
// names when no library is available.
package unfold

import (
	"fmt"
	"path/filepath"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/library"
)

// resolvePaths returns the absolute root and library paths, checking that
// root is a directory. An empty libPath selects the default library name
// inside root.
func resolvePaths(fs fsys.FS, root, libPath string) (string, string, error) {
	if root == "" {
		return "", "", ErrEmptyRoot
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	info, err := fs.Stat(rootAbs)
	if err != nil {
		return "", "", fmt.Errorf("failed to stat root %s: %w", rootAbs, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%w: %s", ErrRootNotDir, rootAbs)
	}

	if libPath == "" {
		libPath = filepath.Join(rootAbs, library.DefaultName)
	}
	libAbs, err := filepath.Abs(libPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve library path %s: %w", libPath, err)
	}
	return rootAbs, libAbs, nil
}
