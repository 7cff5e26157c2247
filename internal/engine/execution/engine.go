// Package execution decides for each work node whether to skip it, restore
// it from the build cache or run its action, and records the result.
package execution

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

// ActionFunc is an in-process action invoked instead of a command. Actions
// are registered under a name at engine construction; a node references one
// through its ActionName.
type ActionFunc func(ctx context.Context, node *domain.Node) error

// Options control a single node's processing.
type Options struct {
	// Root is the workspace root all relative paths resolve against.
	Root string
	// BuildCache enables the shared content-addressed cache for both fetch
	// and publish.
	BuildCache bool
	// Force disables the up-to-date check and the cache fetch, always
	// running the action.
	Force bool
}

// Engine processes a single node through its lifecycle: predicate gate,
// up-to-date check, cache fetch, execution, result recording.
type Engine struct {
	fingerprinter ports.Fingerprinter
	history       ports.HistoryStore
	blobs         ports.BlobStore
	executor      ports.Executor
	telemetry     ports.Telemetry
	logger        ports.Logger
	actions       map[string]ActionFunc

	now func() time.Time
}

// NewEngine creates an execution engine. The actions map may be nil when no
// in-process actions are registered.
func NewEngine(
	fingerprinter ports.Fingerprinter,
	history ports.HistoryStore,
	blobs ports.BlobStore,
	executor ports.Executor,
	telemetry ports.Telemetry,
	logger ports.Logger,
	actions map[string]ActionFunc,
) *Engine {
	return &Engine{
		fingerprinter: fingerprinter,
		history:       history,
		blobs:         blobs,
		executor:      executor,
		telemetry:     telemetry,
		logger:        logger,
		actions:       actions,
		now:           time.Now,
	}
}

// Process runs one node through the lifecycle and returns its outcome. The
// returned error is non-nil exactly when the outcome is FAILED.
func (e *Engine) Process(ctx context.Context, node *domain.Node, opts Options) (domain.Outcome, error) {
	ctx, vertex := e.telemetry.Record(ctx, node.Name.String())

	outcome, err := e.process(ctx, node, opts)

	switch outcome {
	case domain.OutcomeUpToDate, domain.OutcomeFromCache:
		vertex.Cached()
		vertex.Complete(nil)
	default:
		vertex.Complete(err)
	}

	return outcome, err
}

func (e *Engine) process(ctx context.Context, node *domain.Node, opts Options) (domain.Outcome, error) {
	if !node.OnlyIf.Evaluate(environMap()) {
		e.logger.Debug("predicate false, skipping", "node", node.Name.String())
		return domain.OutcomeSkippedOnlyIf, nil
	}

	inputs, err := e.fingerprinter.FingerprintInputs(node, opts.Root)
	if err != nil {
		return domain.OutcomeFailed, zerr.With(
			zerr.Wrap(err, "input fingerprinting failed"), "node", node.Name.String())
	}
	key := e.fingerprinter.CacheKey(node, inputs)

	if !opts.Force {
		upToDate, reason, err := e.isUpToDate(node, key, opts.Root)
		if err != nil {
			return domain.OutcomeFailed, err
		}
		if upToDate {
			return domain.OutcomeUpToDate, nil
		}
		e.logger.Debug("not up to date", "node", node.Name.String(), "reason", reason)

		if opts.BuildCache && node.Cacheable && len(node.Outputs) > 0 {
			hit, err := e.fetchFromCache(node, key, inputs, opts.Root)
			if err != nil {
				return domain.OutcomeFailed, err
			}
			if hit {
				return domain.OutcomeFromCache, nil
			}
		}
	}

	if err := e.run(ctx, node); err != nil {
		e.record(node, key, inputs, nil, domain.OutcomeFailed)
		return domain.OutcomeFailed, zerr.With(
			zerr.Wrap(domain.ErrNodeExecutionFailed, err.Error()),
			"node", node.Name.String())
	}

	outputs, err := e.fingerprinter.FingerprintOutputs(node, opts.Root)
	if err != nil {
		return domain.OutcomeFailed, zerr.With(
			zerr.Wrap(err, "output fingerprinting failed"), "node", node.Name.String())
	}
	e.record(node, key, inputs, outputs, domain.OutcomeExecuted)

	if opts.BuildCache && node.Cacheable && len(node.Outputs) > 0 {
		e.publish(node, key, opts.Root)
	}

	return domain.OutcomeExecuted, nil
}

// isUpToDate compares the last recorded execution against the current cache
// key and the current on-disk outputs. A node declaring no outputs has
// nothing to verify and always executes. The reason names what invalidated
// the previous execution.
func (e *Engine) isUpToDate(node *domain.Node, key, root string) (bool, string, error) {
	if len(node.Outputs) == 0 {
		return false, "no outputs declared", nil
	}

	prev, err := e.history.Get(node.Name.String())
	if err != nil {
		e.logger.Warn("history read failed, treating as out of date",
			"node", node.Name.String(), "error", err)
		return false, "history unreadable", nil
	}
	if prev == nil {
		return false, "no previous execution", nil
	}
	if prev.CacheKey != key {
		return false, "inputs changed", nil
	}
	if !prev.Outcome.Successful() {
		return false, "previous execution failed", nil
	}

	current, err := e.fingerprinter.FingerprintOutputs(node, root)
	if err != nil {
		return false, "", zerr.With(
			zerr.Wrap(err, "output fingerprinting failed"), "node", node.Name.String())
	}
	if !maps.Equal(prev.OutputFingerprints, current) {
		return false, "outputs changed on disk", nil
	}

	return true, "", nil
}

// fetchFromCache tries to materialize the node's outputs from the blob store.
// Cache IO failures degrade to a miss.
func (e *Engine) fetchFromCache(node *domain.Node, key string, inputs []ports.PropertyFingerprint, root string) (bool, error) {
	hit, err := e.blobs.Fetch(key, root)
	if err != nil {
		e.logger.Warn("cache fetch failed, treating as miss",
			"node", node.Name.String(), "error", err)
		return false, nil
	}
	if !hit {
		return false, nil
	}

	outputs, err := e.fingerprinter.FingerprintOutputs(node, root)
	if err != nil {
		return false, zerr.With(
			zerr.Wrap(err, "output fingerprinting failed"), "node", node.Name.String())
	}
	e.record(node, key, inputs, outputs, domain.OutcomeFromCache)

	return true, nil
}

func (e *Engine) run(ctx context.Context, node *domain.Node) error {
	if node.ActionName != "" {
		action, ok := e.actions[node.ActionName]
		if !ok {
			return zerr.With(zerr.New("unknown action"), "action", node.ActionName)
		}
		return action(ctx, node)
	}

	run := node
	if tool := effectiveTool(node); tool != "" && len(node.Command) > 0 {
		clone := *node
		clone.Command = slices.Clone(node.Command)
		clone.Command[0] = tool
		run = &clone
	}

	return e.executor.Execute(ctx, run, nil)
}

// record persists the execution record. History write failures are logged
// and swallowed; losing a record costs one redundant re-execution, not the
// build.
func (e *Engine) record(node *domain.Node, key string, inputs []ports.PropertyFingerprint, outputs map[string]string, outcome domain.Outcome) {
	inputFps := make(map[string]string, len(inputs))
	for _, fp := range inputs {
		inputFps[fp.Property] = fp.Value
	}

	err := e.history.Put(domain.ExecutionRecord{
		NodeName:           node.Name.String(),
		CacheKey:           key,
		InputFingerprints:  inputFps,
		OutputFingerprints: outputs,
		Outcome:            outcome,
		Timestamp:          e.now(),
	})
	if err != nil {
		e.logger.Warn("history write failed", "node", node.Name.String(), "error", err)
	}
}

// publish stores the node's outputs in the blob store. Publish failures are
// logged and swallowed; the build result is already on disk.
func (e *Engine) publish(node *domain.Node, key, root string) {
	outputs := make([]string, 0, len(node.Outputs))
	for _, out := range node.Outputs {
		outputs = append(outputs, out.String())
	}
	if err := e.blobs.Put(key, root, outputs); err != nil {
		e.logger.Warn("cache publish failed", "node", node.Name.String(), "error", err)
	}
}

// effectiveTool resolves the executable override for the node's command. The
// first non-empty source wins: the node's own tool, the process-level
// MASON_TOOL override, then a MASON_TOOL_HOME installation. An empty result
// leaves the command untouched for a plain PATH lookup.
func effectiveTool(node *domain.Node) string {
	if node.Tool != "" {
		return node.Tool
	}
	if tool := os.Getenv("MASON_TOOL"); tool != "" {
		return tool
	}
	if home := os.Getenv("MASON_TOOL_HOME"); home != "" && len(node.Command) > 0 {
		candidate := filepath.Join(home, "bin", node.Command[0])
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}
	return env
}
