package config

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
)

const (
	// NodeID is the unique identifier for the config loader Graft node.
	NodeID graft.ID = "adapter.config_loader"
	// CacheConfigNodeID is the unique identifier for the cache settings node.
	CacheConfigNodeID graft.ID = "adapter.cache_config"
)

func init() {
	graft.Register(graft.Node[ports.ConfigLoader]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ConfigLoader, error) {
			return NewLoader(), nil
		},
	})

	graft.Register(graft.Node[*domain.CacheConfigurations]{
		ID:        CacheConfigNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*domain.CacheConfigurations, error) {
			home, err := domain.UserCacheHome()
			if err != nil {
				return nil, err
			}
			return LoadCacheConfigurations(home)
		},
	})
}
