// Package scheduler drives a plan through the execution engine with bounded
// parallelism, resource locking and failure propagation.
package scheduler

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/semaphore"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/mason/internal/engine/execution"
	"go.trai.ch/mason/internal/engine/graphbuild"
)

// nodeProcessor runs a single node through its lifecycle. Satisfied by
// *execution.Engine.
type nodeProcessor interface {
	Process(ctx context.Context, node *domain.Node, opts execution.Options) (domain.Outcome, error)
}

// Options control one scheduler run.
type Options struct {
	// Parallelism caps concurrently executing nodes. Zero or negative means
	// one worker per CPU.
	Parallelism int
	// FailFast stops dispatching new nodes after the first failure instead
	// of finishing independent branches.
	FailFast bool

	// Root, BuildCache and Force are passed through to the execution engine.
	Root       string
	BuildCache bool
	Force      bool
}

// Result maps every node that reached a terminal state to its outcome. Nodes
// never dispatched (fail-fast, cancellation) are absent.
type Result struct {
	Outcomes map[domain.InternedString]domain.Outcome
}

// Tally counts outcomes by kind.
func (r *Result) Tally() map[domain.Outcome]int {
	tally := make(map[domain.Outcome]int)
	for _, outcome := range r.Outcomes {
		tally[outcome]++
	}
	return tally
}

// Scheduler executes plans.
type Scheduler struct {
	processor nodeProcessor
	telemetry ports.Telemetry
	logger    ports.Logger
}

// NewScheduler creates a scheduler around the given node processor.
func NewScheduler(processor nodeProcessor, telemetry ports.Telemetry, logger ports.Logger) *Scheduler {
	return &Scheduler{processor: processor, telemetry: telemetry, logger: logger}
}

type nodeResult struct {
	name    domain.InternedString
	outcome domain.Outcome
	err     error
}

type runState struct {
	plan *graphbuild.Plan
	opts execution.Options

	// inDegree counts unfinished hard and soft predecessors per node. A node
	// becomes ready when it reaches zero.
	inDegree       map[domain.InternedString]int
	softDependents map[domain.InternedString][]domain.InternedString

	ready    []domain.InternedString
	outcomes map[domain.InternedString]domain.Outcome

	// locks tracks resource names held by running nodes. serialBusy is the
	// implicit mutual exclusion among nodes not marked parallel-safe.
	locks      map[domain.InternedString]bool
	serialBusy bool

	sem     *semaphore.Weighted
	active  int
	halted  bool
	results chan nodeResult
	errs    []error
}

// Run executes the plan and returns per-node outcomes. On any node failure
// the returned error wraps ErrBuildExecutionFailed together with every node
// error; the result still reports what did complete.
func (s *Scheduler) Run(ctx context.Context, plan *graphbuild.Plan, opts Options) (*Result, error) {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	st := s.newRunState(plan, opts, parallelism)

	names := make([]string, 0, plan.Graph.NodeCount())
	for node := range plan.Graph.Walk() {
		names = append(names, node.Name.String())
	}
	s.telemetry.EmitPlan(ctx, names)
	s.logger.Debug("plan ready", "nodes", len(names), "parallelism", parallelism)

	done := ctx.Done()
	for {
		if !st.halted {
			s.dispatch(ctx, st)
		}
		if st.active == 0 {
			break
		}
		select {
		case res := <-st.results:
			s.handleResult(st, res, opts.FailFast)
		case <-done:
			st.halted = true
			done = nil
		}
	}

	if err := ctx.Err(); err != nil {
		st.errs = append(st.errs, err)
	}

	result := &Result{Outcomes: st.outcomes}
	if len(st.errs) > 0 {
		return result, errors.Join(append([]error{domain.ErrBuildExecutionFailed}, st.errs...)...)
	}
	return result, nil
}

func (s *Scheduler) newRunState(plan *graphbuild.Plan, opts Options, parallelism int) *runState {
	st := &runState{
		plan: plan,
		opts: execution.Options{
			Root:       opts.Root,
			BuildCache: opts.BuildCache,
			Force:      opts.Force,
		},
		inDegree:       make(map[domain.InternedString]int, plan.Graph.NodeCount()),
		softDependents: make(map[domain.InternedString][]domain.InternedString),
		outcomes:       make(map[domain.InternedString]domain.Outcome, plan.Graph.NodeCount()),
		locks:          make(map[domain.InternedString]bool),
		sem:            semaphore.NewWeighted(int64(parallelism)),
		results:        make(chan nodeResult),
	}

	for _, name := range plan.Graph.Names() {
		node, _ := plan.Graph.Node(name)
		st.inDegree[name] = len(node.DependsOn) + len(plan.SoftEdges[name])
		for _, after := range plan.SoftEdges[name] {
			st.softDependents[after] = append(st.softDependents[after], name)
		}
	}
	for _, name := range plan.Graph.Names() {
		if st.inDegree[name] == 0 {
			st.ready = append(st.ready, name)
		}
	}

	return st
}

// dispatch launches every ready node the semaphore and the lock table allow.
// Nodes whose should-run-after predecessors are still pending are considered
// last, never excluded.
func (s *Scheduler) dispatch(ctx context.Context, st *runState) {
	for _, name := range s.dispatchOrder(st) {
		node, _ := st.plan.Graph.Node(name)
		if !s.locksFree(st, &node) {
			continue
		}
		if !st.sem.TryAcquire(1) {
			return
		}

		s.acquireLocks(st, &node)
		s.removeReady(st, name)
		st.active++

		go func(node domain.Node) {
			outcome, err := s.processor.Process(ctx, &node, st.opts)
			st.results <- nodeResult{name: node.Name, outcome: outcome, err: err}
		}(node)
	}
}

// dispatchOrder returns the ready queue with hint-satisfied nodes first.
func (s *Scheduler) dispatchOrder(st *runState) []domain.InternedString {
	preferred := make([]domain.InternedString, 0, len(st.ready))
	var deferred []domain.InternedString
	for _, name := range st.ready {
		if s.hintsSettled(st, name) {
			preferred = append(preferred, name)
		} else {
			deferred = append(deferred, name)
		}
	}
	return append(preferred, deferred...)
}

func (s *Scheduler) hintsSettled(st *runState, name domain.InternedString) bool {
	for _, hint := range st.plan.Hints[name] {
		if _, terminal := st.outcomes[hint]; !terminal {
			return false
		}
	}
	return true
}

func (s *Scheduler) locksFree(st *runState, node *domain.Node) bool {
	if !node.ParallelSafe && st.serialBusy {
		return false
	}
	for _, lock := range node.Locks {
		if st.locks[lock] {
			return false
		}
	}
	return true
}

func (s *Scheduler) acquireLocks(st *runState, node *domain.Node) {
	if !node.ParallelSafe {
		st.serialBusy = true
	}
	for _, lock := range node.Locks {
		st.locks[lock] = true
	}
}

func (s *Scheduler) releaseLocks(st *runState, node *domain.Node) {
	if !node.ParallelSafe {
		st.serialBusy = false
	}
	for _, lock := range node.Locks {
		delete(st.locks, lock)
	}
}

func (s *Scheduler) removeReady(st *runState, name domain.InternedString) {
	for i, candidate := range st.ready {
		if candidate == name {
			st.ready = append(st.ready[:i], st.ready[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) handleResult(st *runState, res nodeResult, failFast bool) {
	st.sem.Release(1)
	st.active--

	node, _ := st.plan.Graph.Node(res.name)
	s.releaseLocks(st, &node)

	st.outcomes[res.name] = res.outcome

	if res.err != nil {
		st.errs = append(st.errs, res.err)
		s.logger.Error(res.err)
		if failFast {
			st.halted = true
		}
	}

	if res.outcome.Successful() {
		s.settleSuccess(st, res.name)
	} else {
		s.settleFailure(st, res.name)
	}
}

// settleSuccess unblocks hard and soft dependents of a terminal success.
func (s *Scheduler) settleSuccess(st *runState, name domain.InternedString) {
	for _, dep := range st.plan.Graph.Dependents(name) {
		s.decrement(st, dep)
	}
	for _, dep := range st.softDependents[name] {
		s.decrement(st, dep)
	}
}

// settleFailure marks all transitive hard dependents skipped and unblocks
// soft dependents. A must-run-after edge orders execution without implying
// requirement, so a soft dependent still runs after its failed predecessor.
func (s *Scheduler) settleFailure(st *runState, name domain.InternedString) {
	for _, dep := range st.plan.Graph.Dependents(name) {
		s.markSkipped(st, dep)
	}
	for _, dep := range st.softDependents[name] {
		s.decrement(st, dep)
	}
}

func (s *Scheduler) markSkipped(st *runState, name domain.InternedString) {
	if _, terminal := st.outcomes[name]; terminal {
		return
	}
	st.outcomes[name] = domain.OutcomeSkippedDependencyFailed
	s.logger.Debug("skipping, dependency failed", "node", name.String())

	for _, dep := range st.plan.Graph.Dependents(name) {
		s.markSkipped(st, dep)
	}
	for _, dep := range st.softDependents[name] {
		s.decrement(st, dep)
	}
}

func (s *Scheduler) decrement(st *runState, name domain.InternedString) {
	st.inDegree[name]--
	if st.inDegree[name] != 0 {
		return
	}
	if _, terminal := st.outcomes[name]; terminal {
		return
	}
	st.ready = append(st.ready, name)
}
