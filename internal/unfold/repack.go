package unfold

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/library"
	"github.com/agusx1211/unfold/internal/logx"
	"github.com/agusx1211/unfold/internal/pathcodec"
)

// RepackOptions configures [Repack].
type RepackOptions struct {
	Root string
	// LibraryPath defaults to Root/.rename_lib.
	LibraryPath string
	// KeepLibrary leaves the library document in place afterwards.
	KeepLibrary bool
	Logger      *slog.Logger
}

// RepackResult summarizes a repack pass.
type RepackResult struct {
	Restored int
	// Skipped counts files not in the library, with an empty target or
	// whose target already existed.
	Skipped int
	Failed  int
	// Rejected counts library entries and decoded targets outside Root.
	Rejected int
	// Heuristic is set when no usable library was found and file names were
	// decoded instead.
	Heuristic      bool
	LibraryRemoved bool
}

// Repack moves every file directly inside Root back to the path recorded
// for it in the library, then does the same for library entries that sit
// below Root (left there by a rename with a floor). Without a library, only
// files directly inside Root are considered and their targets are decoded
// from the file names with [pathcodec.Unflatten].
//
// Targets outside Root are refused and existing files are never
// overwritten. The library is deleted afterwards unless KeepLibrary is set.
func Repack(fs fsys.FS, opts RepackOptions) (*RepackResult, error) {
	logger := logx.OrDiscard(opts.Logger)

	root, libPath, err := resolvePaths(fs, opts.Root, opts.LibraryPath)
	if err != nil {
		return nil, err
	}

	var result RepackResult
	var table map[pathcodec.RelPath]pathcodec.RelPath
	lib, err := library.Load(fs, libPath)
	if err != nil {
		logger.Info("Library not found. Fallback to classic methods.", "library", libPath)
		logger.Debug("library not loaded", "error", err)
		result.Heuristic = true
	} else {
		var rejected []library.Rejected
		table, rejected = lib.Resolve(root, logger)
		result.Rejected += len(rejected)
		logger.Info("Found rename library.", "library", libPath, "entries", len(table))
	}

	infos, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
	}

	r := &repacker{fs: fs, root: root, table: table, logger: logger, result: &result, restored: make(map[string]bool)}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		src := filepath.Join(root, info.Name())
		if src == libPath {
			continue
		}
		r.restore(src)
	}
	// Renames with a floor leave flattened files below the kept levels.
	// Only the library knows about those.
	for _, rel := range nestedKeys(table) {
		src := filepath.Join(root, rel.Native())
		if r.restored[src] {
			continue
		}
		if info, err := fs.Stat(src); err != nil || info.IsDir() {
			continue
		}
		r.restore(src)
	}

	if !opts.KeepLibrary {
		existed, _ := fs.Exists(libPath)
		if err := library.Remove(fs, libPath); err != nil {
			logger.Warn(err.Error(), "library", libPath)
		} else {
			result.LibraryRemoved = existed
		}
	}

	logger.Info(fmt.Sprintf("Restored %d files, skipped %d, failed %d, rejected %d.", result.Restored, result.Skipped, result.Failed, result.Rejected),
		"restored", result.Restored, "skipped", result.Skipped, "failed", result.Failed, "rejected", result.Rejected)
	return &result, nil
}

type repacker struct {
	fs     fsys.FS
	root   string
	table  map[pathcodec.RelPath]pathcodec.RelPath
	logger *slog.Logger
	result *RepackResult
	// restored holds destinations written during this pass.
	restored map[string]bool
}

func (r *repacker) restore(src string) {
	rel, err := pathcodec.Normalize(r.root, src)
	if err != nil || rel == "" {
		r.logger.Warn(fmt.Sprintf("Unable to normalize path for %s. Skip.", src), "src", src)
		r.result.Skipped++
		return
	}

	var target pathcodec.RelPath
	if r.table != nil {
		t, ok := r.table[rel]
		if !ok {
			r.logger.Info(fmt.Sprintf("%s not in library file. Skip.", src), "src", src)
			r.result.Skipped++
			return
		}
		target = t
	} else {
		decoded, ok := pathcodec.Unflatten(pathcodec.FlatName(rel))
		if !ok {
			return
		}
		target, err = pathcodec.Normalize(r.root, string(decoded))
		if err != nil {
			r.reject(src, string(decoded))
			return
		}
	}

	if target == "" {
		r.logger.Info(fmt.Sprintf("Target path for %s is empty. Skip.", src), "src", src)
		r.result.Skipped++
		return
	}

	dst, err := pathcodec.Resolve(r.root, target)
	if err != nil {
		r.reject(src, string(target))
		return
	}

	if err := r.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		r.logger.Warn(fmt.Sprintf("Failed to create directory for %s: %v. Skip.", dst, err), "dst", dst, "error", err)
		r.result.Failed++
		return
	}

	exists, err := r.fs.Exists(dst)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("Unable to check %s: %v. Skip.", dst, err), "dst", dst, "error", err)
		r.result.Failed++
		return
	}
	if exists {
		r.logger.Info(fmt.Sprintf("File %s has existed. Skip.", dst), "dst", dst)
		r.result.Skipped++
		return
	}

	r.logger.Info(fmt.Sprintf("Rename %s to %s", src, dst), "src", src, "dst", dst)
	if err := r.fs.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			r.logger.Info(fmt.Sprintf("File %s has existed. Skip.", dst), "dst", dst)
			r.result.Skipped++
			return
		}
		r.logger.Warn(fmt.Sprintf("Failed to rename %s: %v", src, err), "src", src, "error", err)
		r.result.Failed++
		return
	}
	r.restored[dst] = true
	r.result.Restored++
}

func nestedKeys(table map[pathcodec.RelPath]pathcodec.RelPath) []pathcodec.RelPath {
	var keys []pathcodec.RelPath
	for k := range table {
		if k.Dir() != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (r *repacker) reject(src, target string) {
	r.logger.Warn(fmt.Sprintf("Target path %s escapes root %s. Skip.", target, r.root), "src", src, "target", target)
	r.result.Rejected++
}
