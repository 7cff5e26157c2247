package fs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.InputResolver = (*Resolver)(nil)

// Resolver implements ports.InputResolver using doublestar, so input
// declarations can use `**` patterns.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveInputs resolves the given patterns to a sorted, de-duplicated list
// of concrete paths. A pattern that matches nothing resolves to nothing: the
// fingerprinter records the absence, it is not an error here.
func (r *Resolver) ResolveInputs(patterns []string, root string) ([]string, error) {
	uniquePaths := make(map[string]bool)

	for _, pattern := range patterns {
		path := filepath.Join(root, pattern)

		// Literal paths bypass glob matching so that names containing
		// metacharacters still resolve.
		if _, err := os.Lstat(path); err == nil {
			uniquePaths[path] = true
			continue
		}

		matches, err := doublestar.FilepathGlob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob pattern"), "pattern", pattern)
		}

		for _, match := range matches {
			uniquePaths[match] = true
		}
	}

	result := make([]string, 0, len(uniquePaths))
	for path := range uniquePaths {
		result = append(result, path)
	}
	sort.Strings(result)

	return result, nil
}
