// Package app orchestrates a build invocation: configuration, planning,
// scheduling and cache maintenance.
package app

import (
	"context"
	"slices"

	"go.trai.ch/mason/internal/adapters/cleanup"
	"go.trai.ch/mason/internal/adapters/confcache"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/mason/internal/engine/graphbuild"
	"go.trai.ch/mason/internal/engine/scheduler"
)

// TargetAll is the reserved target name expanding to every node in the graph.
const TargetAll = "all"

// RunOptions are the per-invocation knobs of a build.
type RunOptions struct {
	Targets     []string
	Parallelism int
	BuildCache  bool
	ConfigCache bool
	FailFast    bool
	Force       bool
	Verbose     bool
}

// App wires the configuration phase, the planner, the scheduler and the
// cleanup service into build invocations.
type App struct {
	loader    ports.ConfigLoader
	confCache *confcache.Store
	cacheCfg  *domain.CacheConfigurations
	builder   *graphbuild.Builder
	scheduler *scheduler.Scheduler
	cleanup   *cleanup.Service
	telemetry ports.Telemetry
	logger    ports.Logger
}

// New creates the application.
func New(
	loader ports.ConfigLoader,
	confCache *confcache.Store,
	cacheCfg *domain.CacheConfigurations,
	builder *graphbuild.Builder,
	sched *scheduler.Scheduler,
	cleanupSvc *cleanup.Service,
	telemetry ports.Telemetry,
	logger ports.Logger,
) *App {
	return &App{
		loader:    loader,
		confCache: confCache,
		cacheCfg:  cacheCfg,
		builder:   builder,
		scheduler: sched,
		cleanup:   cleanupSvc,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Run executes a build for the requested targets. Cache maintenance runs
// after the build regardless of its outcome; maintenance failures are logged,
// never fatal.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	a.setVerbose(opts.Verbose)

	result, err := a.configure(opts.ConfigCache)
	if err != nil {
		return err
	}

	// Cache policy is immutable from here on; late mutation attempts fail
	// with ErrCacheConfigFinalized.
	a.cacheCfg.FinalizeConfigurations()

	plan, err := a.builder.Build(result.Graph, expandTargets(result.Graph, opts.Targets))
	if err != nil {
		return err
	}

	res, runErr := a.scheduler.Run(ctx, plan, scheduler.Options{
		Parallelism: opts.Parallelism,
		FailFast:    opts.FailFast,
		Root:        ".",
		BuildCache:  opts.BuildCache,
		Force:       opts.Force,
	})
	a.logSummary(res)

	if err := a.cleanup.Run(context.WithoutCancel(ctx), false); err != nil {
		a.logger.Warn("cache cleanup failed", "error", err)
	}

	return runErr
}

// Clean forces cache maintenance, bypassing the frequency gate.
func (a *App) Clean(ctx context.Context) error {
	a.cacheCfg.FinalizeConfigurations()
	return a.cleanup.Run(ctx, true)
}

// Close flushes telemetry.
func (a *App) Close() error {
	return a.telemetry.Close()
}

// configure produces the work graph, from the configuration cache when
// enabled and reusable, from the build files otherwise. A fresh load is
// snapshotted back when caching is on; a graph that cannot be snapshotted is
// a hard configuration cache problem.
func (a *App) configure(useCache bool) (*ports.LoadResult, error) {
	if useCache {
		result, reason, err := a.confCache.Load()
		if err != nil {
			return nil, err
		}
		if result != nil {
			a.logger.Info("reusing configuration cache")
			return result, nil
		}
		a.logger.Info("configuration cache cannot be reused", "reason", reason)
	}

	result, err := a.loader.Load(".")
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := a.confCache.Save(result); err != nil {
			return nil, err
		}
		a.logger.Debug("configuration cache entry stored")
	}

	return result, nil
}

func (a *App) logSummary(res *scheduler.Result) {
	if res == nil {
		return
	}
	tally := res.Tally()
	a.logger.Info("build finished",
		"executed", tally[domain.OutcomeExecuted],
		"up_to_date", tally[domain.OutcomeUpToDate],
		"from_cache", tally[domain.OutcomeFromCache],
		"skipped", tally[domain.OutcomeSkippedOnlyIf],
		"failed", tally[domain.OutcomeFailed]+tally[domain.OutcomeSkippedDependencyFailed],
	)
}

func (a *App) setVerbose(verbose bool) {
	if v, ok := a.logger.(interface{ SetVerbose(bool) }); ok {
		v.SetVerbose(verbose)
	}
}

func expandTargets(g *domain.Graph, targets []string) []string {
	if !slices.Contains(targets, TargetAll) {
		return targets
	}
	names := g.Names()
	expanded := make([]string, 0, len(names))
	for _, name := range names {
		expanded = append(expanded, name.String())
	}
	return expanded
}
