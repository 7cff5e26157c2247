package cleanup

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/mason/internal/adapters/cas"       //nolint:depguard // Wired in app wiring
	"go.trai.ch/mason/internal/adapters/config"    //nolint:depguard // Wired in app wiring
	"go.trai.ch/mason/internal/adapters/logger"    //nolint:depguard // Wired in app wiring
	"go.trai.ch/mason/internal/adapters/telemetry" //nolint:depguard // Wired in app wiring
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
)

// NodeID is the unique identifier for the cleanup service Graft node.
const NodeID graft.ID = "adapter.cleanup"

func init() {
	graft.Register(graft.Node[*Service]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.CacheConfigNodeID,
			cas.BlobNodeID,
			telemetry.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Service, error) {
			cfg, err := graft.Dep[*domain.CacheConfigurations](ctx)
			if err != nil {
				return nil, err
			}

			blobs, err := graft.Dep[ports.BlobStore](ctx)
			if err != nil {
				return nil, err
			}

			tel, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			home, err := domain.UserCacheHome()
			if err != nil {
				return nil, err
			}

			return NewService(cfg, blobs, tel, log, home), nil
		},
	})
}
