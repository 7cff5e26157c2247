package cas

import (
	"context"
	"path/filepath"

	"github.com/grindlemire/graft"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
)

const (
	// HistoryNodeID is the unique identifier for the history store Graft node.
	HistoryNodeID graft.ID = "adapter.history_store"
	// BlobNodeID is the unique identifier for the blob store Graft node.
	BlobNodeID graft.ID = "adapter.blob_store"
)

func init() {
	graft.Register(graft.Node[ports.HistoryStore]{
		ID:        HistoryNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.HistoryStore, error) {
			return NewHistoryStore(domain.HistoryPath(".")), nil
		},
	})

	graft.Register(graft.Node[ports.BlobStore]{
		ID:        BlobNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.BlobStore, error) {
			home, err := domain.UserCacheHome()
			if err != nil {
				return nil, err
			}
			return NewBlobStore(filepath.Join(home, domain.BlobDirName))
		},
	})
}
