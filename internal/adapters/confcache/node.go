package confcache

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/mason/internal/core/domain"
)

// NodeID is the unique identifier for the configuration cache Graft node.
const NodeID graft.ID = "adapter.confcache"

func init() {
	graft.Register(graft.Node[*Store]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Store, error) {
			return NewStore(domain.ConfCachePath(".")), nil
		},
	})
}
