package execution_test

import (
	"context"
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/mason/internal/adapters/telemetry"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/mason/internal/engine/execution"
)

type fakeFingerprinter struct {
	inputs  []ports.PropertyFingerprint
	outputs map[string]string
	key     string
}

func (f *fakeFingerprinter) FingerprintInputs(_ *domain.Node, _ string) ([]ports.PropertyFingerprint, error) {
	return f.inputs, nil
}

func (f *fakeFingerprinter) FingerprintOutputs(_ *domain.Node, _ string) (map[string]string, error) {
	return maps.Clone(f.outputs), nil
}

func (f *fakeFingerprinter) CacheKey(_ *domain.Node, _ []ports.PropertyFingerprint) string {
	return f.key
}

type fakeHistory struct {
	records map[string]*domain.ExecutionRecord
	puts    []domain.ExecutionRecord
	getErr  error
}

func (h *fakeHistory) Get(nodeName string) (*domain.ExecutionRecord, error) {
	if h.getErr != nil {
		return nil, h.getErr
	}
	return h.records[nodeName], nil
}

func (h *fakeHistory) Put(record domain.ExecutionRecord) error {
	h.puts = append(h.puts, record)
	return nil
}

type fakeBlobs struct {
	hit      bool
	fetchErr error
	fetches  int
	puts     int
	putErr   error
}

func (b *fakeBlobs) Put(_, _ string, _ []string) error {
	b.puts++
	return b.putErr
}

func (b *fakeBlobs) Fetch(_, _ string) (bool, error) {
	b.fetches++
	if b.fetchErr != nil {
		return false, b.fetchErr
	}
	return b.hit, nil
}

func (b *fakeBlobs) EvictOlderThan(_ time.Time) (int, error) { return 0, nil }

type fakeExecutor struct {
	calls int
	err   error
}

func (e *fakeExecutor) Execute(_ context.Context, _ *domain.Node, _ []string) error {
	e.calls++
	return e.err
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(error)          {}

type harness struct {
	fingerprinter *fakeFingerprinter
	history       *fakeHistory
	blobs         *fakeBlobs
	executor      *fakeExecutor
	engine        *execution.Engine
}

func newHarness(actions map[string]execution.ActionFunc) *harness {
	h := &harness{
		fingerprinter: &fakeFingerprinter{
			inputs:  []ports.PropertyFingerprint{{Property: "sources", Value: "abc"}},
			outputs: map[string]string{"out/bin": "def"},
			key:     "key-1",
		},
		history:  &fakeHistory{records: make(map[string]*domain.ExecutionRecord)},
		blobs:    &fakeBlobs{},
		executor: &fakeExecutor{},
	}
	h.engine = execution.NewEngine(
		h.fingerprinter, h.history, h.blobs, h.executor,
		telemetry.NewNoOp(), discardLogger{}, actions,
	)
	return h
}

func testNode() *domain.Node {
	return &domain.Node{
		Name:    domain.NewInternedString("compile"),
		Command: []string{"true"},
		Outputs: domain.InternStrings([]string{"out/bin"}),
	}
}

func TestEngine_ExecutesWhenNoHistory(t *testing.T) {
	h := newHarness(nil)

	outcome, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExecuted, outcome)
	assert.Equal(t, 1, h.executor.calls)
	require.Len(t, h.history.puts, 1)
	assert.Equal(t, domain.OutcomeExecuted, h.history.puts[0].Outcome)
}

func TestEngine_UpToDateSkips(t *testing.T) {
	h := newHarness(nil)
	h.history.records["compile"] = &domain.ExecutionRecord{
		NodeName:           "compile",
		CacheKey:           "key-1",
		OutputFingerprints: map[string]string{"out/bin": "def"},
		Outcome:            domain.OutcomeExecuted,
	}

	outcome, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpToDate, outcome)
	assert.Zero(t, h.executor.calls, "up-to-date node must not execute")
}

func TestEngine_ChangedOutputsReExecute(t *testing.T) {
	// Same cache key, but the on-disk output fingerprint no longer matches
	// the record: someone deleted or edited an output.
	h := newHarness(nil)
	h.history.records["compile"] = &domain.ExecutionRecord{
		NodeName:           "compile",
		CacheKey:           "key-1",
		OutputFingerprints: map[string]string{"out/bin": "stale"},
		Outcome:            domain.OutcomeExecuted,
	}

	outcome, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExecuted, outcome)
	assert.Equal(t, 1, h.executor.calls, "expected re-execution")
}

func TestEngine_ChangedKeyReExecutes(t *testing.T) {
	h := newHarness(nil)
	h.history.records["compile"] = &domain.ExecutionRecord{
		NodeName:           "compile",
		CacheKey:           "key-0",
		OutputFingerprints: map[string]string{"out/bin": "def"},
		Outcome:            domain.OutcomeExecuted,
	}

	outcome, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExecuted, outcome)
}

func TestEngine_FetchesFromCache(t *testing.T) {
	h := newHarness(nil)
	h.blobs.hit = true

	node := testNode()
	node.Cacheable = true

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: ".", BuildCache: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFromCache, outcome)
	assert.Zero(t, h.executor.calls)
	require.Len(t, h.history.puts, 1)
	assert.Equal(t, domain.OutcomeFromCache, h.history.puts[0].Outcome)
}

func TestEngine_CacheFetchErrorIsMiss(t *testing.T) {
	h := newHarness(nil)
	h.blobs.fetchErr = errors.New("disk on fire")

	node := testNode()
	node.Cacheable = true

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: ".", BuildCache: true})
	require.NoError(t, err, "cache errors must degrade to a miss")
	assert.Equal(t, domain.OutcomeExecuted, outcome)
}

func TestEngine_PublishesAfterExecution(t *testing.T) {
	h := newHarness(nil)

	node := testNode()
	node.Cacheable = true

	_, err := h.engine.Process(context.Background(), node, execution.Options{Root: ".", BuildCache: true})
	require.NoError(t, err)
	assert.Equal(t, 1, h.blobs.puts)
}

func TestEngine_NonCacheableNeverTouchesBlobStore(t *testing.T) {
	h := newHarness(nil)

	_, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: ".", BuildCache: true})
	require.NoError(t, err)
	assert.Zero(t, h.blobs.fetches)
	assert.Zero(t, h.blobs.puts)
}

func TestEngine_NoOutputsAlwaysExecutes(t *testing.T) {
	h := newHarness(nil)
	h.fingerprinter.outputs = map[string]string{}
	h.history.records["compile"] = &domain.ExecutionRecord{
		NodeName: "compile",
		CacheKey: "key-1",
		Outcome:  domain.OutcomeExecuted,
	}

	node := testNode()
	node.Outputs = nil

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExecuted, outcome)
}

func TestEngine_ForceBypassesUpToDate(t *testing.T) {
	h := newHarness(nil)
	h.history.records["compile"] = &domain.ExecutionRecord{
		NodeName:           "compile",
		CacheKey:           "key-1",
		OutputFingerprints: map[string]string{"out/bin": "def"},
		Outcome:            domain.OutcomeExecuted,
	}

	outcome, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: ".", Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExecuted, outcome)
	assert.Equal(t, 1, h.executor.calls, "force must execute")
}

func TestEngine_FailureRecordsAndWraps(t *testing.T) {
	h := newHarness(nil)
	h.executor.err = errors.New("exit status 2")

	outcome, err := h.engine.Process(context.Background(), testNode(), execution.Options{Root: "."})
	assert.Equal(t, domain.OutcomeFailed, outcome)
	require.ErrorIs(t, err, domain.ErrNodeExecutionFailed)
	require.Len(t, h.history.puts, 1)
	assert.Equal(t, domain.OutcomeFailed, h.history.puts[0].Outcome)
}

func TestEngine_PredicateSkips(t *testing.T) {
	h := newHarness(nil)

	no := false
	node := testNode()
	node.OnlyIf = domain.Predicate{Constant: &no}

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedOnlyIf, outcome)
	assert.Zero(t, h.executor.calls)
}

func TestEngine_EnvPredicate(t *testing.T) {
	t.Setenv("MASON_TEST_GATE", "on")

	h := newHarness(nil)
	node := testNode()
	node.OnlyIf = domain.Predicate{EnvVar: domain.NewInternedString("MASON_TEST_GATE"), Equals: "off"}

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedOnlyIf, outcome)
}

func TestEngine_RunsRegisteredAction(t *testing.T) {
	ran := false
	h := newHarness(map[string]execution.ActionFunc{
		"generate": func(_ context.Context, _ *domain.Node) error {
			ran = true
			return nil
		},
	})

	node := testNode()
	node.Command = nil
	node.ActionName = "generate"

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: "."})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExecuted, outcome)
	assert.True(t, ran, "expected action to run")
	assert.Zero(t, h.executor.calls)
}

func TestEngine_UnknownActionFails(t *testing.T) {
	h := newHarness(nil)

	node := testNode()
	node.Command = nil
	node.ActionName = "phantom"

	outcome, err := h.engine.Process(context.Background(), node, execution.Options{Root: "."})
	assert.Equal(t, domain.OutcomeFailed, outcome)
	require.Error(t, err, "unknown action must fail")
}
