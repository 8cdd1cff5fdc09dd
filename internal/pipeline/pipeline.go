package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/contractlens/internal/consolidate"
	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/reasoning"
	"github.com/dgallion1/contractlens/internal/stage"
)

// Consolidator merges the successful stage outputs of a run into a report.
type Consolidator interface {
	Consolidate(ctx context.Context, doc document.Document, results []stage.Result) (*consolidate.Report, error)
}

// Config tunes a Pipeline.
type Config struct {
	Stages              []stage.Definition
	StageTimeout        time.Duration
	StageRetries        int
	MaxConcurrentStages int
	ChunkSize           int
	ChunkOverlap        int
}

// Pipeline runs the stage graph for one document at a time per call. Calls
// are independent; the only shared state is the reasoning client.
type Pipeline struct {
	graph        *Graph
	runner       *stage.Runner
	consolidator Consolidator
	log          *slog.Logger

	stageTimeout  time.Duration
	retries       int
	maxConcurrent int
	chunkOpts     []document.Option
	backoff       func(attempt int) time.Duration
}

// New validates the stage table and builds a Pipeline. An invalid table is
// reported here, before any run can dispatch a stage.
func New(cfg Config, r reasoning.Reasoner, c Consolidator, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	defs := cfg.Stages
	if defs == nil {
		defs = stage.Defaults()
	}
	g, err := NewGraph(defs)
	if err != nil {
		return nil, err
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 3 * time.Minute
	}
	cfg.StageRetries = min(max(cfg.StageRetries, 0), MaxStageRetries)
	if cfg.MaxConcurrentStages <= 0 {
		cfg.MaxConcurrentStages = g.Len()
	}

	var chunkOpts []document.Option
	if cfg.ChunkSize > 0 {
		chunkOpts = append(chunkOpts, document.WithSize(cfg.ChunkSize))
	}
	if cfg.ChunkOverlap > 0 {
		chunkOpts = append(chunkOpts, document.WithOverlap(cfg.ChunkOverlap))
	}

	return &Pipeline{
		graph:         g,
		runner:        stage.NewRunner(r, log),
		consolidator:  c,
		log:           log,
		stageTimeout:  cfg.StageTimeout,
		retries:       cfg.StageRetries,
		maxConcurrent: cfg.MaxConcurrentStages,
		chunkOpts:     chunkOpts,
		backoff:       Backoff,
	}, nil
}

// Graph returns the validated stage graph.
func (p *Pipeline) Graph() *Graph { return p.graph }

// NewRun prepares a pending run for doc.
func (p *Pipeline) NewRun(doc document.Document) *Run {
	return &Run{
		ID:       uuid.NewString(),
		Document: doc,
		Order:    p.graph.Order(),
		Ledger:   NewLedger(p.graph.Order()),
		status:   RunPending,
		created:  time.Now(),
	}
}

// Run analyzes doc end to end and returns the finished run. The returned
// error is also recorded on the run.
func (p *Pipeline) Run(ctx context.Context, doc document.Document, opts ...document.Option) (*Run, error) {
	run := p.NewRun(doc)
	return run, p.Execute(ctx, run, opts...)
}

// Execute drives a pending run to a terminal state. opts override the
// pipeline's chunking options for this run only.
func (p *Pipeline) Execute(ctx context.Context, run *Run, opts ...document.Option) error {
	doc := run.Document
	log := p.log.With("run_id", run.ID, "session_id", doc.SessionID, "document", doc.Name)

	chunkOpts := append(append([]document.Option(nil), p.chunkOpts...), opts...)
	chunks, err := document.Split(doc, chunkOpts...)
	if err != nil {
		log.Warn("document rejected before analysis", "error", err)
		run.finish(RunFailed, err)
		return err
	}
	run.setChunks(chunks)
	run.setStatus(RunRunning)
	log.Info("run started", "chunks", len(chunks), "stages", run.Order)

	var (
		failMu  sync.Mutex
		failure *StageError
	)
	failed := func() *StageError {
		failMu.Lock()
		defer failMu.Unlock()
		return failure
	}
	fail := func(name string, cause error) {
		failMu.Lock()
		defer failMu.Unlock()
		if failure == nil {
			failure = &StageError{Stage: name, Cause: cause}
		}
	}

	sem := make(chan struct{}, p.maxConcurrent)
	var g errgroup.Group

	for _, def := range p.graph.Definitions() {
		g.Go(func() error {
			stageLog := log.With("stage", def.Name)

			upstream := make([]stage.Result, 0, len(def.DependsOn))
			for _, dep := range def.DependsOn {
				r, err := run.Ledger.Wait(ctx, dep)
				if err != nil {
					return run.Ledger.Publish(stage.Skipped(def.Name, err))
				}
				if !r.OK() {
					stageLog.Info("stage skipped", "reason", "dependency not successful", "dependency", dep)
					return run.Ledger.Publish(stage.Skipped(def.Name,
						errors.Newf("dependency %q is %s", dep, r.Status)))
				}
				upstream = append(upstream, r)
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return run.Ledger.Publish(stage.Skipped(def.Name, ctx.Err()))
			}
			defer func() { <-sem }()

			if f := failed(); f != nil {
				stageLog.Info("stage skipped", "reason", "run already failed", "failed_stage", f.Stage)
				return run.Ledger.Publish(stage.Skipped(def.Name,
					errors.Newf("not dispatched after stage %q failed", f.Stage)))
			}

			res := p.dispatch(ctx, run, def, chunks, upstream, stageLog)
			if !res.OK() {
				fail(def.Name, res.Err)
			}
			return run.Ledger.Publish(res)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("ledger invariant violated", "error", err)
		run.finish(RunFailed, err)
		return err
	}

	if f := failed(); f != nil {
		log.Warn("run failed", "failed_stage", f.Stage, "error", f.Cause)
		run.finish(RunFailed, f)
		return f
	}
	if ctx.Err() != nil {
		err := errors.Wrap(ctx.Err(), "run cancelled")
		log.Warn("run cancelled", "error", err)
		run.finish(RunFailed, err)
		return err
	}

	run.setStatus(RunConsolidating)
	report, err := p.consolidator.Consolidate(ctx, doc, run.Ledger.Results(run.Order))
	if err != nil {
		cerr := &ConsolidationError{Cause: err}
		log.Warn("consolidation failed", "error", err)
		run.finish(RunFailed, cerr)
		return cerr
	}
	report.RunID = run.ID
	run.setReport(report)
	run.finish(RunCompleted, nil)
	log.Info("run completed", "report_chars", len(report.Text), "excerpts", len(report.Excerpts))
	return nil
}

// dispatch invokes one stage, re-dispatching transient failures up to the
// configured retry budget. Each attempt gets its own timeout.
func (p *Pipeline) dispatch(ctx context.Context, run *Run, def stage.Definition, chunks []document.Chunk, upstream []stage.Result, log *slog.Logger) stage.Result {
	var res stage.Result
	for attempt := 0; ; attempt++ {
		run.Ledger.recordInvocation(def.Name, attempt+1)

		stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		res = p.runner.Run(stageCtx, def, run.Document, chunks, upstream)
		cancel()
		res.Attempts = attempt + 1

		if res.OK() || attempt >= p.retries || ctx.Err() != nil || !reasoning.IsRetryable(res.Err) {
			return res
		}
		wait := p.backoff(attempt)
		log.Warn("retryable stage error", "attempt", attempt+1, "backoff", wait, "error", res.Err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return res
		}
	}
}
