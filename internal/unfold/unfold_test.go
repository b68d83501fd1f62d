package unfold

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/library"
	"github.com/agusx1211/unfold/internal/logx"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// snapshot returns every file below root as relative path -> content,
// ignoring the library document.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == library.DefaultName {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func dirs(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != root {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func rename(t *testing.T, root string, floor int, collapse bool) (*RenameResult, string) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logx.New(&buf, logx.FormatPlain, 0)
	require.NoError(t, err)
	res, err := Rename(fsys.NewReal(), RenameOptions{Root: root, Floor: floor, CollapseSelfDir: collapse, Logger: logger})
	require.NoError(t, err)
	return res, buf.String()
}

func repack(t *testing.T, root string, keep bool) (*RepackResult, string) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logx.New(&buf, logx.FormatPlain, 0)
	require.NoError(t, err)
	res, err := Repack(fsys.NewReal(), RepackOptions{Root: root, KeepLibrary: keep, Logger: logger})
	require.NoError(t, err)
	return res, buf.String()
}

var sampleTree = map[string]string{
	"top.jpg":                 "top",
	"album/album.jpg":         "cover",
	"album/01.jpg":            "one",
	"photos/2020/trip/01.jpg": "trip",
	"photos/2020/trip/02.jpg": "trip2",
	"a/b/c/file.jpg":          "deep",
	"my_dir/file_name.txt":    "underscores",
	"写真/旅行.jpg":               "utf8",
}

func TestRoundTrip(t *testing.T) {
	for _, floor := range []int{0, 1, 2} {
		for _, collapse := range []bool{true, false} {
			root := t.TempDir()
			writeTree(t, root, sampleTree)

			res, _ := rename(t, root, floor, collapse)
			require.Zero(t, res.Failed)

			rp, _ := repack(t, root, false)
			require.False(t, rp.Heuristic)
			require.Zero(t, rp.Failed)

			if diff := cmp.Diff(sampleTree, snapshot(t, root)); diff != "" {
				t.Fatalf("floor=%d collapse=%v: tree mismatch (-want +got):\n%s", floor, collapse, diff)
			}
			require.NoFileExists(t, filepath.Join(root, library.DefaultName))
		}
	}
}

func TestRenameFlattensEverything(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)

	res, out := rename(t, root, 0, true)

	want := map[string]string{
		"top.jpg":                 "top",
		"album.jpg":               "cover",
		"album_01.jpg":            "one",
		"photos_2020_trip_01.jpg": "trip",
		"photos_2020_trip_02.jpg": "trip2",
		"a_b_c_file.jpg":          "deep",
		"my_dir_file_name.txt":    "underscores",
		"写真_旅行.jpg":               "utf8",
	}
	if diff := cmp.Diff(want, snapshot(t, root)); diff != "" {
		t.Fatalf("flattened tree mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, dirs(t, root), "emptied directories are pruned")
	require.Equal(t, 7, res.Renamed)
	require.Equal(t, 7, res.LibraryEntries)
	require.Contains(t, out, "Create a new rename library.")
	require.Contains(t, out, "Rename ./album/album.jpg to ./album.jpg.")

	lib, err := library.Load(fsys.NewReal(), filepath.Join(root, library.DefaultName))
	require.NoError(t, err)
	require.Equal(t, "./photos/2020/trip/01.jpg", lib.Entries()["./photos_2020_trip_01.jpg"])
}

func TestRenameCollapseDisabled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"album/album.jpg": "cover"})

	rename(t, root, 0, false)
	require.Equal(t, map[string]string{"album_album.jpg": "cover"}, snapshot(t, root))
}

func TestRenameDepthBudget(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b/c/file.jpg": "deep", "a/keep.jpg": "keep"})

	res, _ := rename(t, root, 1, true)

	require.Equal(t, map[string]string{"a/b_c_file.jpg": "deep", "a/keep.jpg": "keep"}, snapshot(t, root))
	require.Equal(t, []string{"a"}, dirs(t, root))
	require.Equal(t, 1, res.Renamed)
	require.Equal(t, 2, res.Pruned)
}

func TestRenameIdempotent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)

	rename(t, root, 1, true)
	first := snapshot(t, root)
	libBefore, err := os.ReadFile(filepath.Join(root, library.DefaultName))
	require.NoError(t, err)

	res, out := rename(t, root, 1, true)
	require.Zero(t, res.Renamed)
	require.Contains(t, out, "Found rename library.")
	require.Equal(t, first, snapshot(t, root))

	libAfter, err := os.ReadFile(filepath.Join(root, library.DefaultName))
	require.NoError(t, err)
	require.Equal(t, string(libBefore), string(libAfter))
}

func TestRenameNoClobber(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a_b.jpg": "existing",
		"a/b.jpg": "nested",
	})

	res, out := rename(t, root, 0, true)

	require.Equal(t, map[string]string{"a_b.jpg": "existing", "a/b.jpg": "nested"}, snapshot(t, root))
	require.Equal(t, 1, res.Skipped)
	require.Zero(t, res.Renamed)
	require.Contains(t, out, "File ./a_b.jpg has existed. Skipped.")
	require.DirExists(t, filepath.Join(root, "a"), "directories holding skipped files survive")
}

func TestRenameSkipsRecordedSource(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x/y.jpg": "y"})
	require.NoError(t, os.WriteFile(filepath.Join(root, library.DefaultName), []byte(`{"./x/y.jpg": "./x/y/y.jpg"}`), 0o644))

	res, out := rename(t, root, 0, false)

	require.Equal(t, 1, res.Skipped)
	require.Contains(t, out, "File ./x/y.jpg has been renamed. Skipped.")
	require.Equal(t, map[string]string{"x/y.jpg": "y"}, snapshot(t, root))
}

func TestRenameCorruptLibraryStartsOver(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})
	require.NoError(t, os.WriteFile(filepath.Join(root, library.DefaultName), []byte("{broken"), 0o644))

	res, out := rename(t, root, 0, true)
	require.Equal(t, 1, res.Renamed)
	require.Contains(t, out, "Create a new rename library.")
	require.Equal(t, 1, res.LibraryEntries)
}

func TestRenameLibraryInsideTreeStaysPut(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b", "meta/lib.json": "{}"})
	libPath := filepath.Join(root, "meta", "lib.json")

	_, err := Rename(fsys.NewReal(), RenameOptions{Root: root, LibraryPath: libPath, CollapseSelfDir: true})
	require.NoError(t, err)

	require.FileExists(t, libPath)
	require.FileExists(t, filepath.Join(root, "a_b.jpg"))

	_, err = Repack(fsys.NewReal(), RepackOptions{Root: root, LibraryPath: libPath})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, "a", "b.jpg"))
	require.NoFileExists(t, libPath)
}

func TestRenameValidation(t *testing.T) {
	_, err := Rename(fsys.NewReal(), RenameOptions{Root: t.TempDir(), Floor: -1})
	require.ErrorIs(t, err, ErrNegativeFloor)

	_, err = Rename(fsys.NewReal(), RenameOptions{})
	require.ErrorIs(t, err, ErrEmptyRoot)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Rename(fsys.NewReal(), RenameOptions{Root: file})
	require.ErrorIs(t, err, ErrRootNotDir)

	_, err = Repack(fsys.NewReal(), RepackOptions{Root: filepath.Join(t.TempDir(), "missing")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRenameLibraryWriteFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})

	_, err := Rename(fsys.NewReal(), RenameOptions{Root: root, LibraryPath: filepath.Join(root, "missing-dir", "lib")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to write library")
}

func TestRepackKeepLibrary(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})

	rename(t, root, 0, true)
	res, _ := repack(t, root, true)

	require.Equal(t, 1, res.Restored)
	require.False(t, res.LibraryRemoved)
	require.FileExists(t, filepath.Join(root, library.DefaultName))
}

func TestRepackNoClobber(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})
	rename(t, root, 0, true)
	writeTree(t, root, map[string]string{"a/b.jpg": "newer"})

	res, out := repack(t, root, false)

	require.Equal(t, 1, res.Skipped)
	require.Contains(t, out, "has existed. Skip.")
	require.Equal(t, map[string]string{"a/b.jpg": "newer", "a_b.jpg": "b"}, snapshot(t, root))
}

func TestRepackNotInLibrary(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})
	rename(t, root, 0, true)
	writeTree(t, root, map[string]string{"stray_file.jpg": "stray"})

	res, out := repack(t, root, false)

	require.Equal(t, 1, res.Restored)
	require.Equal(t, 1, res.Skipped)
	require.Contains(t, out, "stray_file.jpg not in library file. Skip.")
	require.Equal(t, map[string]string{"a/b.jpg": "b", "stray_file.jpg": "stray"}, snapshot(t, root))
}

func TestRepackContainment(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	writeTree(t, root, map[string]string{
		"evil.jpg":   "evil",
		"abs.jpg":    "abs",
		"good_a.jpg": "good",
	})
	doc := `{
		"./evil.jpg": "../escaped.jpg",
		"./abs.jpg": "` + filepath.ToSlash(filepath.Join(parent, "abs.jpg")) + `",
		"./good_a.jpg": "./good/a.jpg"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(root, library.DefaultName), []byte(doc), 0o644))

	res, out := repack(t, root, false)

	require.Equal(t, 2, res.Rejected)
	require.Equal(t, 1, res.Restored)
	require.Contains(t, out, "is outside root scope. Skip.")
	require.Equal(t, map[string]string{
		"evil.jpg":   "evil",
		"abs.jpg":    "abs",
		"good/a.jpg": "good",
	}, snapshot(t, root))
	require.NoFileExists(t, filepath.Join(parent, "escaped.jpg"))
	require.NoFileExists(t, filepath.Join(parent, "abs.jpg"))
}

func TestRepackEmptyTarget(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x.jpg": "x"})
	require.NoError(t, os.WriteFile(filepath.Join(root, library.DefaultName), []byte(`{"./x.jpg": "."}`), 0o644))

	res, out := repack(t, root, false)
	require.Equal(t, 1, res.Skipped)
	require.Contains(t, out, "is empty. Skip.")
	require.FileExists(t, filepath.Join(root, "x.jpg"))
}

func TestRepackHeuristic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"photos_2020_trip_01.jpg": "trip",
		"my-Udir_file.txt":        "escaped",
		"plain.jpg":               "plain",
	})

	res, out := repack(t, root, false)

	require.True(t, res.Heuristic)
	require.Equal(t, 2, res.Restored)
	require.Contains(t, out, "Library not found. Fallback to classic methods.")
	require.Equal(t, map[string]string{
		"photos/2020/trip/01.jpg": "trip",
		"my_dir/file.txt":         "escaped",
		"plain.jpg":               "plain",
	}, snapshot(t, root))
}

func TestRepackHeuristicIsLossy(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"my_dir/file_name.txt": "x"})

	rename(t, root, 0, true)
	require.NoError(t, os.Remove(filepath.Join(root, library.DefaultName)))
	repack(t, root, false)

	// Underscores that were part of the original names are indistinguishable
	// from delimiters without the library.
	require.Equal(t, map[string]string{"my/dir/file/name.txt": "x"}, snapshot(t, root))
}

func TestRepackCorruptLibraryFallsBack(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a_b.jpg": "b"})
	require.NoError(t, os.WriteFile(filepath.Join(root, library.DefaultName), []byte("not json"), 0o644))

	res, _ := repack(t, root, false)

	require.True(t, res.Heuristic)
	require.True(t, res.LibraryRemoved)
	require.Equal(t, map[string]string{"a/b.jpg": "b"}, snapshot(t, root))
}

func TestRepackDoesNotRecurseWithoutLibrary(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"sub/x_y.jpg": "nested"})

	res, _ := repack(t, root, false)

	require.Zero(t, res.Restored)
	require.Equal(t, map[string]string{"sub/x_y.jpg": "nested"}, snapshot(t, root))
}

func TestRepackWithMemFS(t *testing.T) {
	mem := fsys.NewMem()
	root := "/data"
	require.NoError(t, mem.MkdirAll(root, 0o755))
	require.NoError(t, mem.WriteFileAtomic("/data/a_b.jpg", []byte("b"), 0o644))

	lib := library.New()
	lib.Add("a_b.jpg", "a/b.jpg")
	require.NoError(t, lib.Save(mem, "/data/.rename_lib"))

	res, err := Repack(mem, RepackOptions{Root: root})
	require.NoError(t, err)
	require.Equal(t, 1, res.Restored)
	require.True(t, res.LibraryRemoved)

	ok, err := mem.Exists("/data/a/b.jpg")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDiagnosticsUseDotPrefixedPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})

	_, out := rename(t, root, 0, true)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.HasPrefix(line, "Rename ") {
			require.Equal(t, "Rename ./a/b.jpg to ./a_b.jpg.", line)
		}
	}
}

func TestRoundTripKeepsBackslashNames(t *testing.T) {
	if filepath.Separator == '\\' {
		t.Skip("backslash is a separator on this platform")
	}
	root := t.TempDir()
	tree := map[string]string{
		`x/a\b.jpg`:   "backslash",
		`y\z/c\d.txt`: "nested",
	}
	writeTree(t, root, tree)

	res, _ := rename(t, root, 0, true)
	require.Equal(t, 2, res.Renamed)
	require.Equal(t, map[string]string{
		`x_a\b.jpg`:   "backslash",
		`y\z_c\d.txt`: "nested",
	}, snapshot(t, root))

	rep, _ := repack(t, root, false)
	require.Equal(t, 2, rep.Restored)
	if diff := cmp.Diff(tree, snapshot(t, root)); diff != "" {
		t.Fatalf("tree mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestRepackHeuristicKeepsBackslashNames(t *testing.T) {
	if filepath.Separator == '\\' {
		t.Skip("backslash is a separator on this platform")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{`x_a\b.jpg`: "x"})

	res, _ := repack(t, root, false)
	require.Equal(t, 1, res.Restored)
	require.Equal(t, map[string]string{`x/a\b.jpg`: "x"}, snapshot(t, root))
}

func TestRepackHeuristicEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	writeTree(t, root, map[string]string{".._.._x.jpg": "escape"})

	res, out := repack(t, root, false)

	require.True(t, res.Heuristic)
	require.Equal(t, 1, res.Rejected)
	require.Equal(t, 0, res.Restored)
	require.Contains(t, out, "escapes root")
	require.Equal(t, map[string]string{".._.._x.jpg": "escape"}, snapshot(t, root))
	require.NoFileExists(t, filepath.Join(parent, "x.jpg"))
	require.NoFileExists(t, filepath.Join(filepath.Dir(parent), "x.jpg"))
}

func TestRenameLibraryMode(t *testing.T) {
	if filepath.Separator == '\\' {
		t.Skip("unix permission bits")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b.jpg": "b"})

	rename(t, root, 0, true)

	info, err := os.Stat(filepath.Join(root, library.DefaultName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
