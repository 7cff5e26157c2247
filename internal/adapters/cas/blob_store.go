// Package cas implements the content-addressed blob store and the execution
// history store.
package cas

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	masonfs "go.trai.ch/mason/internal/adapters/fs"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.BlobStore = (*BlobStore)(nil)

// entryMeta is the small metadata record stored next to each blob. Creation
// time is immutable; access time mutates on every hit and feeds LRU cleanup.
type entryMeta struct {
	Created  time.Time `json:"created"`
	Accessed time.Time `json:"accessed"`
}

// BlobStore stores cache entries as tar blobs under a flat content-addressed
// layout: <dir>/<key[:2]>/<key> plus <key>.meta.json. The store is shared
// across concurrent builds; a per-store advisory file lock guards access,
// shared for lookups and exclusive for writes.
type BlobStore struct {
	dir      string
	lock     *flock.Flock
	verifier *masonfs.Verifier
}

// NewBlobStore creates a blob store rooted at dir, creating it if needed.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, "failed to create blob store directory")
	}
	return &BlobStore{
		dir:      dir,
		lock:     flock.New(filepath.Join(dir, ".lock")),
		verifier: masonfs.NewVerifier(),
	}, nil
}

func (s *BlobStore) blobPath(key string) string {
	return filepath.Join(s.dir, key[:2], key)
}

// Put packs the outputs into a new immutable entry. An existing entry under
// the same key is left untouched: content addressing makes rewrites
// meaningless.
func (s *BlobStore) Put(key, root string, outputs []string) error {
	if len(key) < 3 {
		return zerr.With(zerr.New("cache key too short"), "key", key)
	}

	// Only complete entries enter the cache. A node that declared an output
	// it did not produce is not publishable.
	complete, err := s.verifier.VerifyOutputs(root, outputs)
	if err != nil {
		return err
	}
	if !complete {
		return zerr.With(zerr.New("declared output missing, not publishing"), "key", key)
	}

	if err := s.lock.Lock(); err != nil {
		return zerr.Wrap(err, "failed to acquire exclusive store lock")
	}
	defer s.lock.Unlock() //nolint:errcheck // advisory unlock in defer

	blob := s.blobPath(key)
	if _, err := os.Stat(blob); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(blob), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create entry directory")
	}

	// Pack into a temp file first so a concurrent reader never observes a
	// half-written blob.
	tmp, err := os.CreateTemp(s.dir, "pack-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create temp blob")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best effort temp cleanup

	if err := packOutputs(tmp, root, outputs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to close temp blob")
	}

	if err := os.Rename(tmpName, blob); err != nil {
		return zerr.Wrap(err, "failed to commit blob")
	}

	now := time.Now()
	return s.writeMeta(key, entryMeta{Created: now, Accessed: now})
}

// Fetch materializes the entry's outputs into root. A missing or corrupt
// entry is a miss, never a fatal error; the caller re-executes instead.
func (s *BlobStore) Fetch(key, root string) (bool, error) {
	if len(key) < 3 {
		return false, nil
	}

	if err := s.lock.RLock(); err != nil {
		return false, zerr.Wrap(err, "failed to acquire shared store lock")
	}

	blob := s.blobPath(key)
	f, err := os.Open(blob) //nolint:gosec // path derived from hashed key
	if err != nil {
		_ = s.lock.Unlock()
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, zerr.With(zerr.Wrap(domain.ErrCacheIO, err.Error()), "key", key)
	}

	unpackErr := unpackOutputs(f, root)
	_ = f.Close()
	_ = s.lock.Unlock()

	if unpackErr != nil {
		// Corrupt entry: upgrade to an exclusive lock, drop it and report a
		// miss so the build re-executes.
		if err := s.lock.Lock(); err == nil {
			_ = os.Remove(blob)
			_ = os.Remove(blob + ".meta.json")
			_ = s.lock.Unlock()
		}
		return false, nil
	}

	s.touch(key)
	return true, nil
}

// touch updates the entry's access time. Failures are ignored; access
// metadata is advisory input to LRU cleanup.
func (s *BlobStore) touch(key string) {
	if err := s.lock.Lock(); err != nil {
		return
	}
	defer s.lock.Unlock() //nolint:errcheck // advisory unlock in defer

	meta, err := s.readMeta(key)
	if err != nil {
		return
	}
	meta.Accessed = time.Now()
	_ = s.writeMeta(key, meta)
}

// EvictOlderThan removes entries whose last access time is before cutoff.
func (s *BlobStore) EvictOlderThan(cutoff time.Time) (int, error) {
	if err := s.lock.Lock(); err != nil {
		return 0, zerr.Wrap(err, "failed to acquire exclusive store lock")
	}
	defer s.lock.Unlock() //nolint:errcheck // advisory unlock in defer

	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".meta.json") {
			return err
		}

		key := strings.TrimSuffix(filepath.Base(path), ".meta.json")
		meta, readErr := s.readMeta(key)
		if readErr != nil || !meta.Accessed.Before(cutoff) {
			return nil
		}

		if rmErr := os.Remove(s.blobPath(key)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(rmErr, "failed to remove blob"), "key", key)
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return zerr.With(zerr.Wrap(rmErr, "failed to remove metadata"), "key", key)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, zerr.Wrap(err, "eviction walk failed")
	}

	return removed, nil
}

func (s *BlobStore) metaPath(key string) string {
	return s.blobPath(key) + ".meta.json"
}

func (s *BlobStore) readMeta(key string) (entryMeta, error) {
	var meta entryMeta
	data, err := os.ReadFile(s.metaPath(key)) //nolint:gosec // path derived from hashed key
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func (s *BlobStore) writeMeta(key string, meta entryMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return zerr.Wrap(err, "failed to marshal entry metadata")
	}
	if err := os.WriteFile(s.metaPath(key), data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write entry metadata")
	}
	return nil
}

// packOutputs writes the declared outputs (relative to root) as a tar stream.
func packOutputs(w io.Writer, root string, outputs []string) error {
	tw := tar.NewWriter(w)

	for _, output := range outputs {
		path := filepath.Join(root, output)
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			return addTarEntry(tw, p, filepath.ToSlash(rel), d)
		})
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to pack output"), "output", output)
		}
	}

	if err := tw.Close(); err != nil {
		return zerr.Wrap(err, "failed to finalize archive")
	}
	return nil
}

func addTarEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	// Timestamps stay out of cache entries: two builds of the same content
	// must produce interchangeable blobs.
	hdr.ModTime = time.Time{}
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(path) //nolint:gosec // path comes from declared outputs
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // best effort close in defer

	_, err = io.Copy(tw, f)
	return err
}

// unpackOutputs restores a tar stream into root.
func unpackOutputs(r io.Reader, root string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, "failed to read archive")
		}

		// Reject entries escaping the workspace.
		name := filepath.FromSlash(hdr.Name)
		if filepath.IsAbs(name) || strings.Contains(name, "..") {
			return zerr.With(zerr.New("invalid archive entry"), "name", hdr.Name)
		}
		dest := filepath.Join(root, name)

		if hdr.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, domain.DirPerm); err != nil {
				return zerr.Wrap(err, "failed to create directory")
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), domain.DirPerm); err != nil {
			return zerr.Wrap(err, "failed to create parent directory")
		}

		f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm()) //nolint:gosec // dest validated above
		if err != nil {
			return zerr.Wrap(err, "failed to create output file")
		}
		//nolint:gosec // entry sizes are bounded by what Put packed
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return zerr.Wrap(err, "failed to restore output file")
		}
		if err := f.Close(); err != nil {
			return zerr.Wrap(err, "failed to close output file")
		}
	}
}
