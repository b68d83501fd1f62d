// Package fsys is the filesystem seam used by the rename and repack
// operations.
//
// The main types are:
//   - [FS]: an [afero.Fs] with atomic writes and symlink-aware existence checks
//   - [Real]: production implementation on top of the operating system
//   - [Mem]: in-memory implementation for tests
package fsys

import (
	"bytes"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/afero"
)

// FS defines the filesystem operations needed to flatten and restore a tree.
type FS interface {
	afero.Fs

	// WriteFileAtomic replaces path with data so that readers never observe
	// a partially written file.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// Exists reports whether anything, including a dangling symlink, occupies
	// path. Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)
}

// Real implements [FS] on the operating system.
type Real struct {
	afero.Fs
}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{Fs: afero.NewOsFs()}
}

// WriteFileAtomic writes through a temp file in the same directory followed
// by a rename. A new file gets perm; a replaced one keeps its mode.
func (r *Real) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if info, err := r.Fs.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}
	return r.Fs.Chmod(path, perm)
}

func (r *Real) Exists(path string) (bool, error) {
	return lexists(r.Fs, path)
}

// Mem implements [FS] in memory.
type Mem struct {
	afero.Fs
}

// NewMem returns an empty in-memory filesystem.
func NewMem() *Mem {
	return &Mem{Fs: afero.NewMemMapFs()}
}

func (m *Mem) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(m.Fs, path, data, perm)
}

func (m *Mem) Exists(path string) (bool, error) {
	return lexists(m.Fs, path)
}

func lexists(fs afero.Fs, path string) (bool, error) {
	var err error
	if l, ok := fs.(afero.Lstater); ok {
		_, _, err = l.LstatIfPossible(path)
	} else {
		_, err = fs.Stat(path)
	}
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Compile-time interface checks.
var (
	_ FS = (*Real)(nil)
	_ FS = (*Mem)(nil)
)
