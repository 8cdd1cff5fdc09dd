package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/contractlens/internal/consolidate"
	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/reasoning"
	"github.com/dgallion1/contractlens/internal/stage"
)

const mergeStage = "merge"

// fakeReasoner answers by stage, recognised from the mandate. It records
// every call and the peak number of concurrent calls.
type fakeReasoner struct {
	mu       sync.Mutex
	calls    []string
	finished map[string]bool
	active   int
	peak     int

	replies map[string]string
	errs    map[string][]error // consumed one per call
	hooks   map[string]func(ctx context.Context) error
	// observed records, per call, which stages had finished when it started.
	observed map[string]map[string]bool
}

func newFakeReasoner() *fakeReasoner {
	return &fakeReasoner{
		finished: map[string]bool{},
		replies:  map[string]string{},
		errs:     map[string][]error{},
		hooks:    map[string]func(ctx context.Context) error{},
		observed: map[string]map[string]bool{},
	}
}

func stageOf(system string) string {
	if system == stage.ConsolidationMandate {
		return mergeStage
	}
	if name, ok := strings.CutPrefix(system, "mandate:"); ok {
		return name
	}
	switch system {
	case stage.StructureMandate:
		return stage.Structure
	case stage.RiskMandate:
		return stage.Risk
	case stage.NegotiationMandate:
		return stage.Negotiation
	}
	return "unknown"
}

func (f *fakeReasoner) Invoke(ctx context.Context, req reasoning.Request) (string, error) {
	name := stageOf(req.System)

	f.mu.Lock()
	f.calls = append(f.calls, name)
	snap := make(map[string]bool, len(f.finished))
	for k, v := range f.finished {
		snap[k] = v
	}
	f.observed[name] = snap
	f.active++
	f.peak = max(f.peak, f.active)
	hook := f.hooks[name]
	var err error
	if q := f.errs[name]; len(q) > 0 {
		err, f.errs[name] = q[0], q[1:]
	}
	reply, ok := f.replies[name]
	if !ok {
		reply = "findings of " + name
	}
	f.mu.Unlock()

	if hook != nil && err == nil {
		err = hook(ctx)
	}

	f.mu.Lock()
	f.active--
	if err == nil {
		f.finished[name] = true
	}
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (f *fakeReasoner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeReasoner) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, cfg Config, r *fakeReasoner) *Pipeline {
	t.Helper()
	p, err := New(cfg, r, consolidate.New(r, consolidate.WithLogger(quietLogger())), quietLogger())
	require.NoError(t, err)
	p.backoff = func(int) time.Duration { return 0 }
	return p
}

const scenarioText = "Section 1: Term. This Agreement is perpetual. Section 2: Liability. Neither party shall be liable."

func TestRun_Scenario(t *testing.T) {
	r := newFakeReasoner()
	r.replies[stage.Risk] = `- Unlimited duration: "This Agreement is perpetual." (Section 1)`
	r.replies[mergeStage] = "# Report\n\nThe term never ends."
	p := newTestPipeline(t, Config{ChunkSize: 40}, r)

	run, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, "session-9"))
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, run.Status())
	require.Len(t, run.Chunks(), 3)
	assert.Equal(t, []string{stage.Structure, stage.Risk, stage.Negotiation, mergeStage}, r.calls)

	report := run.Report()
	require.NotNil(t, report)
	assert.Equal(t, run.ID, report.RunID)
	assert.Contains(t, report.Text, "This Agreement is perpetual.")
	require.Len(t, report.Excerpts, 1)
	assert.True(t, report.Excerpts[0].InDocument)

	for _, res := range run.Results() {
		assert.Equal(t, stage.StatusSuccess, res.Status)
		assert.Equal(t, 1, res.Attempts)
	}
	snap := run.Snapshot()
	assert.Equal(t, "session-9", snap.SessionID)
	assert.Len(t, snap.Invocations, 3)
}

func TestRun_EmptyDocumentShortCircuits(t *testing.T) {
	for _, text := range []string{"", "   \n\t  "} {
		r := newFakeReasoner()
		p := newTestPipeline(t, Config{}, r)

		run, err := p.Run(context.Background(), document.New("blank.pdf", text, ""))
		require.Error(t, err)
		assert.True(t, errors.Is(err, document.ErrEmptyDocument))
		assert.Equal(t, RunFailed, run.Status())
		assert.Zero(t, r.total())
		assert.Empty(t, run.Results())
	}
}

func TestRun_DependentsSeeOnlyFinishedPredecessors(t *testing.T) {
	r := newFakeReasoner()
	p := newTestPipeline(t, Config{Stages: []stage.Definition{
		def("a"), def("b"), def("c", "a", "b"), def("d", "c"),
	}}, r)

	_, err := p.Run(context.Background(), document.New("x", scenarioText, ""))
	require.NoError(t, err)

	assert.True(t, r.observed["c"]["a"])
	assert.True(t, r.observed["c"]["b"])
	assert.True(t, r.observed["d"]["c"])
	assert.False(t, r.observed["a"]["c"])
}

func TestRun_AtMostOnceInvocation(t *testing.T) {
	r := newFakeReasoner()
	p := newTestPipeline(t, Config{Stages: []stage.Definition{
		def("a"), def("b"), def("c"), def("d", "a"), def("e", "a", "b", "c", "d"),
	}}, r)

	for range 10 {
		r = newFakeReasoner()
		p.runner = stage.NewRunner(r, quietLogger())
		p.consolidator = consolidate.New(r, consolidate.WithLogger(quietLogger()))
		run, err := p.Run(context.Background(), document.New("x", scenarioText, ""))
		require.NoError(t, err)
		for _, name := range run.Order {
			assert.Equal(t, 1, r.count(name), name)
		}
		assert.Equal(t, 1, r.count(mergeStage))
	}
}

func TestRun_IndependentStagesRunConcurrently(t *testing.T) {
	r := newFakeReasoner()
	var started sync.WaitGroup
	started.Add(2)
	barrier := func(ctx context.Context) error {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.hooks["a"] = barrier
	r.hooks["b"] = barrier

	p := newTestPipeline(t, Config{
		Stages:       []stage.Definition{def("a"), def("b"), def("c", "a", "b")},
		StageTimeout: 5 * time.Second,
	}, r)
	run, err := p.Run(context.Background(), document.New("x", scenarioText, ""))
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status())
	assert.Equal(t, 2, r.peak)
}

func TestRun_MaxConcurrentStagesBoundsDispatch(t *testing.T) {
	r := newFakeReasoner()
	slow := func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	for _, n := range []string{"a", "b", "c", "d"} {
		r.hooks[n] = slow
	}
	p := newTestPipeline(t, Config{
		Stages:              []stage.Definition{def("a"), def("b"), def("c"), def("d")},
		MaxConcurrentStages: 1,
	}, r)
	_, err := p.Run(context.Background(), document.New("x", scenarioText, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, r.peak)
}

func TestRun_FailFastSkipsDependents(t *testing.T) {
	r := newFakeReasoner()
	cause := errors.New("model refused")
	r.errs[stage.Risk] = []error{cause}
	p := newTestPipeline(t, Config{}, r)

	run, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""))
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, stage.Risk, se.Stage)
	assert.True(t, errors.Is(err, ErrStageFailed))
	assert.True(t, errors.Is(err, cause))

	assert.Equal(t, RunFailed, run.Status())
	assert.Zero(t, r.count(stage.Negotiation))
	assert.Zero(t, r.count(mergeStage))
	assert.Nil(t, run.Report())

	structure, _ := run.Ledger.Get(stage.Structure)
	risk, _ := run.Ledger.Get(stage.Risk)
	negotiation, _ := run.Ledger.Get(stage.Negotiation)
	assert.Equal(t, stage.StatusSuccess, structure.Status)
	assert.Equal(t, stage.StatusFailed, risk.Status)
	assert.Equal(t, stage.StatusSkipped, negotiation.Status)
}

func TestRun_FailureSkipsUndispatchedIndependentStage(t *testing.T) {
	r := newFakeReasoner()
	r.errs["a"] = []error{errors.New("boom")}
	p := newTestPipeline(t, Config{
		Stages: []stage.Definition{def("gate"), def("a"), def("late", "gate")},
	}, r)
	run := p.NewRun(document.New("x", scenarioText, ""))

	// gate finishes only once a has been published, so late can only be
	// ready for dispatch after the failure.
	r.hooks["gate"] = func(ctx context.Context) error {
		for {
			if _, ok := run.Ledger.Get("a"); ok {
				return nil
			}
			select {
			case <-time.After(time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	err := p.Execute(context.Background(), run)
	require.Error(t, err)
	assert.Zero(t, r.count("late"))
	late, ok := run.Ledger.Get("late")
	require.True(t, ok)
	assert.Equal(t, stage.StatusSkipped, late.Status)
	gate, _ := run.Ledger.Get("gate")
	assert.Equal(t, stage.StatusSuccess, gate.Status, "in-flight sibling finishes")
}

func TestRun_StageTimeoutIsFailure(t *testing.T) {
	r := newFakeReasoner()
	r.hooks[stage.Structure] = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	p := newTestPipeline(t, Config{StageTimeout: 20 * time.Millisecond}, r)

	run, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStageFailed))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, RunFailed, run.Status())
	assert.Equal(t, 1, r.total())
}

type failingConsolidator struct{ err error }

func (f failingConsolidator) Consolidate(ctx context.Context, doc document.Document, results []stage.Result) (*consolidate.Report, error) {
	return nil, f.err
}

func TestRun_ConsolidationFailureRetainsLedger(t *testing.T) {
	r := newFakeReasoner()
	p, err := New(Config{}, r, failingConsolidator{err: errors.New("merge timed out")}, quietLogger())
	require.NoError(t, err)

	run, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConsolidation))
	assert.False(t, errors.Is(err, ErrStageFailed))
	assert.Equal(t, RunFailed, run.Status())

	results := run.Results()
	require.Len(t, results, 3)
	for _, res := range results {
		assert.True(t, res.OK())
	}
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	r := newFakeReasoner()
	transient := errors.Mark(&reasoning.RetryableError{StatusCode: 529}, reasoning.ErrReasoningUnavailable)
	r.errs[stage.Structure] = []error{transient}
	p := newTestPipeline(t, Config{StageRetries: 2}, r)

	run, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""))
	require.NoError(t, err)
	res, _ := run.Ledger.Get(stage.Structure)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, r.count(stage.Structure))

	var structureInvocations int
	for _, inv := range run.Ledger.Invocations() {
		if inv.Stage == stage.Structure {
			structureInvocations++
		}
	}
	assert.Equal(t, 2, structureInvocations)
}

func TestRun_NoRetryByDefaultOrForPermanentErrors(t *testing.T) {
	transient := errors.Mark(errors.New("overloaded"), reasoning.ErrReasoningUnavailable)

	r := newFakeReasoner()
	r.errs[stage.Structure] = []error{transient}
	p := newTestPipeline(t, Config{}, r)
	_, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""))
	require.Error(t, err)
	assert.Equal(t, 1, r.count(stage.Structure))

	r = newFakeReasoner()
	r.errs[stage.Structure] = []error{errors.New("bad request")}
	p = newTestPipeline(t, Config{StageRetries: 3}, r)
	_, err = p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""))
	require.Error(t, err)
	assert.Equal(t, 1, r.count(stage.Structure))
}

func TestRun_CancelledContext(t *testing.T) {
	r := newFakeReasoner()
	p := newTestPipeline(t, Config{}, r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Run(ctx, document.New("msa.pdf", scenarioText, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, RunFailed, run.Status())
	assert.Zero(t, r.count(mergeStage))
}

func TestNew_InvalidConfigBeforeAnyRun(t *testing.T) {
	r := newFakeReasoner()
	_, err := New(Config{Stages: []stage.Definition{def("a", "b"), def("b", "a")}}, r, consolidate.New(r), quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPipelineConfig))
	assert.True(t, errors.Is(err, ErrDependencyCycle))
	assert.Zero(t, r.total())
}

func TestRun_PerRunChunkOverride(t *testing.T) {
	r := newFakeReasoner()
	p := newTestPipeline(t, Config{ChunkSize: 2000}, r)
	run, err := p.Run(context.Background(), document.New("msa.pdf", scenarioText, ""), document.WithSize(40))
	require.NoError(t, err)
	assert.Len(t, run.Chunks(), 3)
}

func TestLedger_PublishOnce(t *testing.T) {
	l := NewLedger([]string{"a"})
	require.NoError(t, l.Publish(stage.Result{Stage: "a", Status: stage.StatusSuccess}))
	err := l.Publish(stage.Result{Stage: "a", Status: stage.StatusFailed})
	assert.True(t, errors.Is(err, ErrAlreadyPublished))

	r, ok := l.Get("a")
	require.True(t, ok)
	assert.Equal(t, stage.StatusSuccess, r.Status)

	assert.Error(t, l.Publish(stage.Result{Stage: "ghost"}))
}

func TestLedger_WaitBlocksUntilPublish(t *testing.T) {
	l := NewLedger([]string{"a"})
	got := make(chan stage.Result, 1)
	go func() {
		r, err := l.Wait(context.Background(), "a")
		if err == nil {
			got <- r
		}
	}()

	select {
	case <-got:
		t.Fatal("wait returned before publish")
	case <-time.After(10 * time.Millisecond):
	}
	require.NoError(t, l.Publish(stage.Result{Stage: "a", Status: stage.StatusSuccess, Content: "x"}))
	select {
	case r := <-got:
		assert.Equal(t, "x", r.Content)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe publish")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLedger([]string{"b"}).Wait(ctx, "b")
	assert.ErrorIs(t, err, context.Canceled)
}
