package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/agusx1211/unfold/internal/pathcodec"
)

const ignoreFileName = ".unfoldignore"

// Filter decides which paths a rename leaves alone.
type Filter struct {
	gitIgnore    *ignore.GitIgnore
	unfoldIgnore *ignore.GitIgnore
	skipGit      bool
	filePatterns []string
	dirPatterns  []string
}

// NewFilter creates a filter for the tree at dir. Rules from .unfoldignore
// always apply. With respectGitignore, .gitignore rules apply too and .git
// directories are left alone; otherwise every file is flattened.
// Exclude patterns ending with "/" are treated as directory excludes;
// otherwise, file excludes. Patterns without a slash match the base name.
func NewFilter(dir string, respectGitignore bool, excludePatterns []string) (*Filter, error) {
	f := &Filter{skipGit: respectGitignore}

	for _, pat := range excludePatterns {
		if pat == "" {
			continue
		}
		if !doublestar.ValidatePattern(strings.TrimSuffix(pat, "/")) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pat)
		}
		if strings.HasSuffix(pat, "/") {
			f.dirPatterns = append(f.dirPatterns, strings.TrimSuffix(pat, "/"))
		} else {
			f.filePatterns = append(f.filePatterns, pat)
		}
	}

	var err error
	if f.unfoldIgnore, err = compileIgnoreFile(filepath.Join(dir, ignoreFileName)); err != nil {
		return nil, err
	}
	if respectGitignore {
		if f.gitIgnore, err = compileIgnoreFile(filepath.Join(dir, ".gitignore")); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func compileIgnoreFile(path string) (*ignore.GitIgnore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return gi, nil
}

// SkipDir reports whether the directory rel is excluded.
func (f *Filter) SkipDir(rel pathcodec.RelPath) bool {
	s := string(rel)
	if f.skipGit && rel.Base() == ".git" {
		return true
	}
	if f.ignored(s) || f.ignored(s+"/") {
		return true
	}
	return matchesAnyPattern(s, f.dirPatterns)
}

// SkipFile reports whether the file rel is excluded.
func (f *Filter) SkipFile(rel pathcodec.RelPath) bool {
	s := string(rel)
	switch s {
	case configFileName, ignoreFileName:
		return true
	}
	if f.ignored(s) {
		return true
	}
	return matchesAnyPattern(s, f.filePatterns)
}

func (f *Filter) ignored(rel string) bool {
	if f.unfoldIgnore != nil && f.unfoldIgnore.MatchesPath(rel) {
		return true
	}
	return f.gitIgnore != nil && f.gitIgnore.MatchesPath(rel)
}

func matchesAnyPattern(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		name := rel
		if !strings.Contains(pattern, "/") {
			name = path.Base(rel)
		}
		if matched, err := doublestar.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}
