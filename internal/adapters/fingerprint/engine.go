// Package fingerprint computes content-derived identities for node inputs
// and outputs. All key material goes through BLAKE3; fingerprints never
// include filesystem timestamps.
package fingerprint

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
	"go.trai.ch/mason/internal/adapters/fs"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Fingerprinter = (*Engine)(nil)

// Markers folded into digests for entry kinds. Distinct from any hex digest
// so a missing file can never collide with real content.
const (
	kindFile    = "f"
	kindDir     = "d"
	kindMissing = "missing"

	// ignoredFingerprint is the fixed fingerprint of NONE-normalized inputs.
	ignoredFingerprint = "ignored"
)

// Engine implements ports.Fingerprinter.
type Engine struct {
	walker   *fs.Walker
	resolver ports.InputResolver
}

// NewEngine creates a new fingerprinting Engine.
func NewEngine(walker *fs.Walker, resolver ports.InputResolver) *Engine {
	return &Engine{walker: walker, resolver: resolver}
}

// FingerprintInputs fingerprints every declared input in declaration order.
func (e *Engine) FingerprintInputs(node *domain.Node, root string) ([]ports.PropertyFingerprint, error) {
	result := make([]ports.PropertyFingerprint, 0, len(node.Inputs))

	for _, prop := range node.Inputs {
		value, err := e.fingerprintProperty(prop, root)
		if err != nil {
			return nil, zerr.With(
				zerr.With(zerr.Wrap(err, "failed to fingerprint input"), "node", node.Name.String()),
				"property", prop.Name.String())
		}
		result = append(result, ports.PropertyFingerprint{
			Property: prop.Name.String(),
			Value:    value,
		})
	}

	return result, nil
}

func (e *Engine) fingerprintProperty(prop domain.InputProperty, root string) (string, error) {
	if prop.Normalization == domain.NormalizationNone {
		return ignoredFingerprint, nil
	}

	if !prop.IsFileInput() {
		return scalarFingerprint(prop.Value), nil
	}

	patterns := make([]string, len(prop.Patterns))
	for i, p := range prop.Patterns {
		patterns[i] = p.String()
	}

	paths, err := e.resolver.ResolveInputs(patterns, root)
	if err != nil {
		return "", err
	}

	entries, err := e.collectEntries(paths)
	if err != nil {
		return "", err
	}

	if prop.Normalization == domain.NormalizationContentOnly {
		return contentOnlyFingerprint(entries), nil
	}
	return structuralFingerprint(entries, root, prop.Normalization), nil
}

// entry is one filesystem object contributing to a fingerprint.
type entry struct {
	path        string
	kind        string
	contentHash string
}

// collectEntries expands resolved paths into fingerprint entries, walking
// directories. Paths that vanished between resolution and hashing count as
// missing.
func (e *Engine) collectEntries(paths []string) ([]entry, error) {
	var entries []entry

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				entries = append(entries, entry{path: path, kind: kindMissing})
				continue
			}
			return nil, zerr.With(zerr.Wrap(err, "failed to stat input"), "path", path)
		}

		if !info.IsDir() {
			hash, err := hashFile(path)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{path: path, kind: kindFile, contentHash: hash})
			continue
		}

		entries = append(entries, entry{path: path, kind: kindDir})
		for walked := range e.walker.Walk(path, nil) {
			if walked.IsDir {
				entries = append(entries, entry{path: walked.Path, kind: kindDir})
				continue
			}
			hash, err := hashFile(walked.Path)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{path: walked.Path, kind: kindFile, contentHash: hash})
		}
	}

	return entries, nil
}

// structuralFingerprint folds (normalized path, kind, content hash) per entry
// in path order. Sensitive to additions, removals and renames.
func structuralFingerprint(entries []entry, root string, norm domain.Normalization) string {
	h := blake3.New()
	for _, en := range entries {
		writeField(h, normalizePath(en.path, root, norm))
		writeField(h, en.kind)
		writeField(h, en.contentHash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// contentOnlyFingerprint folds the sorted multiset of content hashes,
// ignoring paths and order. Directories contribute nothing; missing entries
// contribute the missing marker.
func contentOnlyFingerprint(entries []entry) string {
	hashes := make([]string, 0, len(entries))
	for _, en := range entries {
		switch en.kind {
		case kindFile:
			hashes = append(hashes, en.contentHash)
		case kindMissing:
			hashes = append(hashes, kindMissing)
		}
	}
	sort.Strings(hashes)

	h := blake3.New()
	for _, hash := range hashes {
		writeField(h, hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizePath(path, root string, norm domain.Normalization) string {
	switch norm {
	case domain.NormalizationRelativePath:
		if rel, err := filepath.Rel(root, path); err == nil {
			return filepath.ToSlash(rel)
		}
		return filepath.ToSlash(path)
	case domain.NormalizationNameOnly:
		return filepath.Base(path)
	default:
		abs, err := filepath.Abs(path)
		if err != nil {
			return filepath.ToSlash(path)
		}
		return filepath.ToSlash(abs)
	}
}

func scalarFingerprint(value string) string {
	h := blake3.New()
	writeField(h, "scalar")
	writeField(h, value)
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintOutputs fingerprints each declared output tree as it exists on
// disk, keyed by the declared path. Relative-path normalization keeps the
// result portable across workspace locations.
func (e *Engine) FingerprintOutputs(node *domain.Node, root string) (map[string]string, error) {
	result := make(map[string]string, len(node.Outputs))

	for _, output := range node.Outputs {
		path := filepath.Join(root, output.String())
		entries, err := e.collectEntries([]string{path})
		if err != nil {
			return nil, zerr.With(
				zerr.With(zerr.Wrap(err, "failed to fingerprint output"), "node", node.Name.String()),
				"output", output.String())
		}
		result[output.String()] = structuralFingerprint(entries, root, domain.NormalizationRelativePath)
	}

	return result, nil
}

// CacheKey derives the composite key: implementation identity followed by
// each input fingerprint in declaration order.
func (e *Engine) CacheKey(node *domain.Node, inputs []ports.PropertyFingerprint) string {
	h := blake3.New()
	for _, part := range node.ImplementationIdentity() {
		writeField(h, part)
	}
	writeSection(h)
	for _, in := range inputs {
		writeField(h, in.Property)
		writeField(h, in.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from resolved inputs
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // best effort close in defer

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(w io.Writer, s string) {
	_, _ = w.Write([]byte(s))
	_, _ = w.Write([]byte{0})
}

func writeSection(w io.Writer) {
	_, _ = w.Write([]byte{0})
}
