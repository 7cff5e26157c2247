// Package confcache persists the configured work graph between invocations
// so unchanged builds skip the configuration phase entirely.
package confcache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

const snapshotFile = "snapshot.json"

// Store reads and writes configuration cache snapshots for a workspace.
type Store struct {
	dir string
}

// NewStore creates a snapshot store rooted at the workspace confcache dir.
func NewStore(dir string) *Store {
	return &Store{dir: filepath.Clean(dir)}
}

// Save snapshots the configured graph. Any node whose action is an
// in-process closure is rejected with a configuration cache problem naming
// the offending build file and line: such references cross the serialization
// boundary and cannot be restored in a later process.
func (s *Store) Save(result *ports.LoadResult) error {
	var nodes []domain.Node
	for _, name := range result.Graph.Names() {
		node, _ := result.Graph.Node(name)
		if node.ActionName != "" {
			err := zerr.Wrap(domain.ErrConfigurationCacheProblem,
				"in-process action references cannot be serialized")
			err = zerr.With(err, "node", node.Name.String())
			err = zerr.With(err, "action", node.ActionName)
			err = zerr.With(err, "file", node.Pos.File.String())
			return zerr.With(err, "line", node.Pos.Line)
		}
		nodes = append(nodes, node)
	}

	files := make([]FileDigest, 0, len(result.ConfigFiles))
	for _, path := range result.ConfigFiles {
		fd, err := digestFile(path)
		if err != nil {
			return err
		}
		files = append(files, fd)
	}

	snapshot := Snapshot{
		FormatVersion: FormatVersion,
		Nodes:         nodes,
		ConfigFiles:   files,
		EnvReads:      result.EnvReads,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal snapshot")
	}

	if err := os.MkdirAll(s.dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create snapshot directory")
	}

	path := filepath.Join(s.dir, snapshotFile)
	if err := os.WriteFile(path, data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write snapshot")
	}

	return nil
}

// Load restores the work graph from the snapshot. On any invalidation the
// snapshot is discarded and (nil, reason, nil) is returned; the caller falls
// back to full configuration.
func (s *Store) Load() (*ports.LoadResult, string, error) {
	path := filepath.Join(s.dir, snapshotFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the workspace metadata dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "no snapshot present", nil
		}
		return nil, "", zerr.Wrap(err, "failed to read snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.discard()
		return nil, "snapshot is corrupt", nil
	}

	if snapshot.FormatVersion != FormatVersion {
		s.discard()
		return nil, "cache format version changed", nil
	}

	for _, fd := range snapshot.ConfigFiles {
		changed, reason := fileChanged(fd)
		if changed {
			s.discard()
			return nil, reason, nil
		}
	}

	for key, recorded := range snapshot.EnvReads {
		if current := os.Getenv(key); current != recorded {
			s.discard()
			return nil, "environment variable '" + key + "' changed", nil
		}
	}

	g := domain.NewGraph()
	configFiles := make([]string, 0, len(snapshot.ConfigFiles))
	for _, fd := range snapshot.ConfigFiles {
		configFiles = append(configFiles, fd.Path)
	}
	for i := range snapshot.Nodes {
		if err := g.AddNode(&snapshot.Nodes[i]); err != nil {
			s.discard()
			return nil, "snapshot is corrupt", nil
		}
	}

	return &ports.LoadResult{
		Graph:       g,
		ConfigFiles: configFiles,
		EnvReads:    snapshot.EnvReads,
	}, "", nil
}

func (s *Store) discard() {
	_ = os.Remove(filepath.Join(s.dir, snapshotFile))
}

// fileChanged checks a recorded build file against the current filesystem.
// The mtime+size probe short-circuits the common unchanged case; a changed
// mtime alone never invalidates, the content hashes decide.
func fileChanged(fd FileDigest) (bool, string) {
	info, err := os.Stat(fd.Path)
	if err != nil {
		return true, "build file '" + fd.Path + "' is gone"
	}

	if info.Size() == fd.Size && info.ModTime().UnixNano() == fd.Mtime {
		return false, ""
	}

	data, err := os.ReadFile(fd.Path) //nolint:gosec // path was recorded by Save
	if err != nil {
		return true, "build file '" + fd.Path + "' is unreadable"
	}

	if xxhash.Sum64(data) != fd.Probe {
		return true, "build file '" + fd.Path + "' changed"
	}

	sum := blake3.Sum256(data)
	if hex.EncodeToString(sum[:]) != fd.Digest {
		return true, "build file '" + fd.Path + "' changed"
	}

	return false, ""
}

func digestFile(path string) (FileDigest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileDigest{}, zerr.With(zerr.Wrap(err, "failed to stat build file"), "path", path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is a build file read during configuration
	if err != nil {
		return FileDigest{}, zerr.With(zerr.Wrap(err, "failed to read build file"), "path", path)
	}

	sum := blake3.Sum256(data)
	return FileDigest{
		Path:   path,
		Size:   info.Size(),
		Mtime:  info.ModTime().UnixNano(),
		Probe:  xxhash.Sum64(data),
		Digest: hex.EncodeToString(sum[:]),
	}, nil
}
