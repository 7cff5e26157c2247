package ports

import (
	"time"

	"go.trai.ch/mason/internal/core/domain"
)

// HistoryStore persists per-node execution records between builds. History is
// workspace-scoped and process-local; no cross-build locking is required.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type HistoryStore interface {
	// Get retrieves the last execution record for a node.
	// Returns nil, nil if not found.
	Get(nodeName string) (*domain.ExecutionRecord, error)

	// Put stores the execution record.
	Put(record domain.ExecutionRecord) error
}

// BlobStore is the shared content-addressed build cache. Entries are
// immutable once written; only access-time metadata mutates. Implementations
// must tolerate concurrent builds on the same machine.
type BlobStore interface {
	// Put packs the given output paths (relative to root) into an entry
	// stored under key. Writing an existing key is a no-op.
	Put(key, root string, outputs []string) error

	// Fetch materializes the entry's outputs into root. It returns false on
	// a miss; a corrupt entry counts as a miss, never a fatal error.
	Fetch(key, root string) (bool, error)

	// EvictOlderThan removes entries whose last access time is before
	// cutoff and returns how many were removed.
	EvictOlderThan(cutoff time.Time) (int, error)
}
