// Package fs provides file system adapters for walking, resolving and
// verifying files.
package fs

import (
	"errors"
	"io/fs"
	"iter"
	"path/filepath"
)

// errSkipFile marks a single ignored file, as opposed to filepath.SkipDir
// which prunes a whole subtree.
var errSkipFile = errors.New("skip file")

// Walker provides deterministic file walking.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkEntry is a single filesystem entry yielded by the walker.
type WalkEntry struct {
	Path  string
	IsDir bool
}

// Walk yields all entries under root in lexical order, skipping version
// control and workspace metadata directories. filepath.WalkDir already walks
// lexically, which keeps fingerprints stable across runs.
func (w *Walker) Walk(root string, ignores []string) iter.Seq[WalkEntry] {
	return func(yield func(WalkEntry) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if skip := w.shouldSkip(d, ignores); skip != nil {
				if errors.Is(skip, errSkipFile) {
					return nil
				}
				return skip
			}

			if path == root {
				return nil
			}

			if !yield(WalkEntry{Path: path, IsDir: d.IsDir()}) {
				return filepath.SkipAll
			}

			return nil
		})
	}
}

// WalkFiles yields only regular files under root.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for entry := range w.Walk(root, ignores) {
			if entry.IsDir {
				continue
			}
			if !yield(entry.Path) {
				return
			}
		}
	}
}

func (w *Walker) shouldSkip(d fs.DirEntry, ignores []string) error {
	name := d.Name()

	if d.IsDir() && (name == ".git" || name == ".jj" || name == ".mason") {
		return filepath.SkipDir
	}

	for _, ignore := range ignores {
		matched, _ := filepath.Match(ignore, name)
		if matched {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return errSkipFile
		}
	}

	return nil
}
