package reconciler

import (
	"path/filepath"
	"strings"
)

// Filter decides which filesystem paths can affect the tree. Paths are
// judged relative to the root directory.
type Filter struct {
	// Extensions lists accepted file extensions including the dot. An
	// empty list accepts every file.
	Extensions []string
	// IgnoredDirs are directory names, such as caches, whose contents are
	// never collected. Hidden names are always ignored.
	IgnoredDirs []string
}

// Accept reports whether path, below rootDir, should be reconciled.
func (f Filter) Accept(rootDir, path string) bool {
	if !f.Watched(rootDir, path) {
		return false
	}
	if len(f.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range f.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Watched reports whether path lies below rootDir outside hidden and
// ignored directories, whatever its extension. Removals are judged with
// Watched since a removed directory has no extension.
func (f Filter) Watched(rootDir, path string) bool {
	rel, err := filepath.Rel(rootDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}

	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
		for _, ignored := range f.IgnoredDirs {
			if seg == ignored {
				return false
			}
		}
	}
	return true
}
