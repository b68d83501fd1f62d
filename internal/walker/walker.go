// Package walker traverses a tree for the rename operation, tracking how
// much of each path is settled and how much must be flattened.
package walker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/agusx1211/unfold/internal/logx"
	"github.com/agusx1211/unfold/internal/pathcodec"
)

// Entry is a file reached by [Walk].
type Entry struct {
	// Rel is the path of the file relative to the walk root.
	Rel pathcodec.RelPath
	// Head is the length of the prefix of Rel kept as literal directories.
	Head int
}

// Filter excludes paths from a walk. Skipped directories are neither
// descended into nor pruned.
type Filter interface {
	SkipDir(rel pathcodec.RelPath) bool
	SkipFile(rel pathcodec.RelPath) bool
}

// Options configures a walk.
type Options struct {
	// Floor is the number of directory levels below the root that keep
	// their names. Deeper levels are folded into the file name and their
	// directories removed once empty.
	Floor  int
	Filter Filter
	Logger *slog.Logger
}

// Stats summarizes a walk.
type Stats struct {
	Files  int
	Dirs   int
	Pruned int
}

type frame struct {
	dir   pathcodec.RelPath
	head  int
	floor int
	prune bool
}

// Walk visits every file below root exactly once, depth first. Sibling order
// is unspecified.
//
// Failing to read root is returned as an error; unreadable nested
// directories are logged and skipped. An error from visit stops the walk.
func Walk(fs afero.Fs, root string, opts Options, visit func(Entry) error) (Stats, error) {
	logger := logx.OrDiscard(opts.Logger)

	var stats Stats
	stack := []frame{{dir: "", head: 0, floor: opts.Floor}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		abs := filepath.Join(root, f.dir.Native())
		if f.prune {
			// Best effort: the directory may still hold skipped files.
			if err := fs.Remove(abs); err == nil {
				stats.Pruned++
			}
			continue
		}

		infos, err := afero.ReadDir(fs, abs)
		if err != nil {
			if f.dir == "" {
				return stats, fmt.Errorf("failed to read directory %s: %w", abs, err)
			}
			logger.Warn(fmt.Sprintf("Unable to read directory %s. Skip.", abs), "dir", abs, "error", err)
			continue
		}

		var dirs []os.FileInfo
		for _, info := range infos {
			rel := f.dir.Join(info.Name())
			if info.IsDir() {
				if opts.Filter != nil && opts.Filter.SkipDir(rel) {
					continue
				}
				dirs = append(dirs, info)
				continue
			}
			if opts.Filter != nil && opts.Filter.SkipFile(rel) {
				continue
			}
			stats.Files++
			if err := visit(Entry{Rel: rel, Head: f.head}); err != nil {
				return stats, err
			}
		}

		// Pushed in reverse so the first directory is processed first. A
		// prune marker sits below each child so it pops once the whole
		// subtree is done.
		for i := len(dirs) - 1; i >= 0; i-- {
			name := dirs[i].Name()
			child := frame{dir: f.dir.Join(name), head: f.head, floor: f.floor - 1}
			if f.floor > 0 {
				child.head += len(name) + 1
			} else {
				stack = append(stack, frame{dir: child.dir, prune: true})
			}
			stack = append(stack, child)
			stats.Dirs++
		}
	}
	return stats, nil
}
