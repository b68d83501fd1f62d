package unfold

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/library"
	"github.com/agusx1211/unfold/internal/logx"
	"github.com/agusx1211/unfold/internal/pathcodec"
	"github.com/agusx1211/unfold/internal/walker"
)

// RenameOptions configures [Rename].
type RenameOptions struct {
	Root string
	// LibraryPath defaults to Root/.rename_lib.
	LibraryPath string
	// Floor is the number of top directory levels kept before flattening.
	Floor int
	// CollapseSelfDir turns "name/name.ext" into "name.ext".
	CollapseSelfDir bool
	Filter          walker.Filter
	Logger          *slog.Logger
}

// RenameResult summarizes a rename pass.
type RenameResult struct {
	Renamed int
	// Skipped counts files left in place because the target existed or the
	// file had already been renamed by an earlier pass.
	Skipped int
	// Failed counts files whose rename returned an error.
	Failed         int
	Pruned         int
	LibraryEntries int
}

// Rename flattens every file below Root into its directory at depth Floor
// and records each move in the library, which is written once at the end.
//
// Existing files are never overwritten. A missing or unreadable library
// starts a new one.
func Rename(fs fsys.FS, opts RenameOptions) (*RenameResult, error) {
	if opts.Floor < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeFloor, opts.Floor)
	}
	logger := logx.OrDiscard(opts.Logger)

	root, libPath, err := resolvePaths(fs, opts.Root, opts.LibraryPath)
	if err != nil {
		return nil, err
	}

	lib, err := library.Load(fs, libPath)
	if err != nil {
		logger.Info("Create a new rename library.", "library", libPath)
		logger.Debug("library not loaded", "error", err)
		lib = library.New()
	} else {
		logger.Info("Found rename library.", "library", libPath, "entries", lib.Len())
	}

	// The library may live inside the tree; it must stay where it is.
	var libRel pathcodec.RelPath
	if pathcodec.Within(root, libPath) {
		libRel, _ = pathcodec.Normalize(root, libPath)
	}

	r := &renamer{
		fs:       fs,
		root:     root,
		lib:      lib,
		collapse: opts.CollapseSelfDir,
		logger:   logger,
	}
	stats, err := walker.Walk(fs, root, walker.Options{
		Floor:  opts.Floor,
		Filter: skipLibrary{next: opts.Filter, lib: libRel},
		Logger: logger,
	}, r.visit)
	if err != nil {
		return nil, err
	}
	r.result.Pruned = stats.Pruned

	if err := lib.Save(fs, libPath); err != nil {
		return nil, err
	}
	r.result.LibraryEntries = lib.Len()

	logger.Info(fmt.Sprintf("Renamed %d files, skipped %d, failed %d.", r.result.Renamed, r.result.Skipped, r.result.Failed),
		"renamed", r.result.Renamed, "skipped", r.result.Skipped, "failed", r.result.Failed, "pruned", r.result.Pruned)
	return &r.result, nil
}

type renamer struct {
	fs       fsys.FS
	root     string
	lib      *library.Library
	collapse bool
	logger   *slog.Logger
	result   RenameResult
}

func (r *renamer) visit(e walker.Entry) error {
	dst := pathcodec.Flatten(e.Rel, e.Head, r.collapse)
	if dst == e.Rel {
		return nil
	}
	srcName, dstName := library.Key(e.Rel), library.Key(dst)

	srcAbs := filepath.Join(r.root, e.Rel.Native())
	dstAbs := filepath.Join(r.root, dst.Native())

	exists, err := r.fs.Exists(dstAbs)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("Unable to check %s: %v. Skipped.", dstName, err), "dst", dstName, "error", err)
		r.result.Failed++
		return nil
	}
	if exists {
		r.logger.Info(fmt.Sprintf("File %s has existed. Skipped.", dstName), "dst", dstName)
		r.result.Skipped++
		return nil
	}
	if r.lib.Has(e.Rel) {
		r.logger.Info(fmt.Sprintf("File %s has been renamed. Skipped.", srcName), "src", srcName)
		r.result.Skipped++
		return nil
	}

	r.logger.Info(fmt.Sprintf("Rename %s to %s.", srcName, dstName), "src", srcName, "dst", dstName)
	if err := r.fs.Rename(srcAbs, dstAbs); err != nil {
		r.logger.Warn(fmt.Sprintf("Failed to rename %s: %v", srcName, err), "src", srcName, "error", err)
		r.result.Failed++
		return nil
	}
	r.lib.Add(dst, e.Rel)
	r.result.Renamed++
	return nil
}

// skipLibrary keeps the library document out of the walk.
type skipLibrary struct {
	next walker.Filter
	lib  pathcodec.RelPath
}

func (s skipLibrary) SkipDir(rel pathcodec.RelPath) bool {
	return s.next != nil && s.next.SkipDir(rel)
}

func (s skipLibrary) SkipFile(rel pathcodec.RelPath) bool {
	if s.lib != "" && rel == s.lib {
		return true
	}
	return s.next != nil && s.next.SkipFile(rel)
}
