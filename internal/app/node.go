package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/mason/internal/adapters/cas"
	"go.trai.ch/mason/internal/adapters/cleanup"
	"go.trai.ch/mason/internal/adapters/confcache"
	"go.trai.ch/mason/internal/adapters/config"
	"go.trai.ch/mason/internal/adapters/fingerprint"
	"go.trai.ch/mason/internal/adapters/logger"
	"go.trai.ch/mason/internal/adapters/shell"
	"go.trai.ch/mason/internal/adapters/telemetry"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/mason/internal/engine/execution"
	"go.trai.ch/mason/internal/engine/graphbuild"
	"go.trai.ch/mason/internal/engine/scheduler"
)

// NodeID is the unique identifier for the application Graft node.
const NodeID graft.ID = "app"

func init() {
	graft.Register(graft.Node[*Components]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			config.CacheConfigNodeID,
			confcache.NodeID,
			fingerprint.NodeID,
			cas.HistoryNodeID,
			cas.BlobNodeID,
			shell.NodeID,
			telemetry.NodeID,
			logger.NodeID,
			cleanup.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			loader, err := graft.Dep[ports.ConfigLoader](ctx)
			if err != nil {
				return nil, err
			}
			cacheCfg, err := graft.Dep[*domain.CacheConfigurations](ctx)
			if err != nil {
				return nil, err
			}
			confCache, err := graft.Dep[*confcache.Store](ctx)
			if err != nil {
				return nil, err
			}
			fingerprinter, err := graft.Dep[ports.Fingerprinter](ctx)
			if err != nil {
				return nil, err
			}
			history, err := graft.Dep[ports.HistoryStore](ctx)
			if err != nil {
				return nil, err
			}
			blobs, err := graft.Dep[ports.BlobStore](ctx)
			if err != nil {
				return nil, err
			}
			executor, err := graft.Dep[ports.Executor](ctx)
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
			cleanupSvc, err := graft.Dep[*cleanup.Service](ctx)
			if err != nil {
				return nil, err
			}

			engine := execution.NewEngine(fingerprinter, history, blobs, executor, tel, log, nil)
			sched := scheduler.NewScheduler(engine, tel, log)

			application := New(
				loader,
				confCache,
				cacheCfg,
				graphbuild.NewBuilder(),
				sched,
				cleanupSvc,
				tel,
				log,
			)

			return &Components{App: application, Logger: log}, nil
		},
	})
}
