package cas

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.HistoryStore = (*HistoryStore)(nil)

// HistoryStore persists execution records using a file-per-node strategy.
// File names are hashed so arbitrary node names cannot escape the directory.
type HistoryStore struct {
	dir string
}

// NewHistoryStore creates a history store rooted at dir.
func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{dir: filepath.Clean(dir)}
}

// Get retrieves the last execution record for a node.
// Returns nil, nil if not found.
func (s *HistoryStore) Get(nodeName string) (*domain.ExecutionRecord, error) {
	//nolint:gosec // path is constructed from the store dir and a hashed name
	data, err := os.ReadFile(s.filename(nodeName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, "failed to read execution record")
	}

	var record domain.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// A corrupt record is equivalent to no record: the node simply
		// re-executes.
		return nil, nil
	}

	return &record, nil
}

// Put stores the execution record.
func (s *HistoryStore) Put(record domain.ExecutionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal execution record")
	}

	filename := s.filename(record.NodeName)
	if err := os.MkdirAll(filepath.Dir(filename), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create history directory")
	}

	//nolint:gosec // path is constructed from the store dir and a hashed name
	if err := os.WriteFile(filename, data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write execution record")
	}

	return nil
}

func (s *HistoryStore) filename(nodeName string) string {
	sum := blake3.Sum256([]byte(nodeName))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}
