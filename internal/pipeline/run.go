package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/contractlens/internal/consolidate"
	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/stage"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending       RunStatus = "pending"
	RunRunning       RunStatus = "running"
	RunConsolidating RunStatus = "consolidating"
	RunCompleted     RunStatus = "completed"
	RunFailed        RunStatus = "failed"
)

// Run is one analysis of one document. ID, Document, Order and Ledger are
// fixed at creation; the rest moves under the run's lock.
type Run struct {
	ID       string
	Document document.Document
	Order    []string
	Ledger   *Ledger

	mu       sync.Mutex
	chunks   []document.Chunk
	report   *consolidate.Report
	status   RunStatus
	err      error
	created  time.Time
	finished time.Time
}

func (r *Run) setStatus(s RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func (r *Run) setChunks(c []document.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = c
}

func (r *Run) setReport(rep *consolidate.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = rep
}

func (r *Run) finish(s RunStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
	r.err = err
	r.finished = time.Now()
}

func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the terminal error of a failed run.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Report returns the consolidated report of a completed run.
func (r *Run) Report() *consolidate.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

func (r *Run) Chunks() []document.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

// Results returns the published stage results in pipeline order.
func (r *Run) Results() []stage.Result {
	return r.Ledger.Results(r.Order)
}

// Done reports whether the run reached a terminal state.
func (r *Run) Done() bool {
	s := r.Status()
	return s == RunCompleted || s == RunFailed
}

// StageSnapshot is the JSON view of one stage within a run.
type StageSnapshot struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID           string          `json:"run_id"`
	DocumentName string          `json:"document_name"`
	SessionID    string          `json:"session_id"`
	Status       RunStatus       `json:"status"`
	Error        string          `json:"error,omitempty"`
	Chunks       int             `json:"chunks"`
	Stages       []StageSnapshot `json:"stages"`
	Invocations  []Invocation    `json:"invocations"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   time.Time       `json:"finished_at,omitzero"`
}

// Snapshot returns a JSON-safe copy of the run. Stages not yet published
// are reported as pending.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	snap := RunSnapshot{
		ID:           r.ID,
		DocumentName: r.Document.Name,
		SessionID:    r.Document.SessionID,
		Status:       r.status,
		Chunks:       len(r.chunks),
		CreatedAt:    r.created,
		FinishedAt:   r.finished,
	}
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	r.mu.Unlock()

	snap.Stages = make([]StageSnapshot, 0, len(r.Order))
	for _, name := range r.Order {
		res, ok := r.Ledger.Get(name)
		if !ok {
			snap.Stages = append(snap.Stages, StageSnapshot{Stage: name, Status: string(RunPending)})
			continue
		}
		ss := StageSnapshot{
			Stage:      name,
			Status:     string(res.Status),
			Attempts:   res.Attempts,
			DurationMs: res.Duration().Milliseconds(),
		}
		if res.Err != nil {
			ss.Error = res.Err.Error()
		}
		snap.Stages = append(snap.Stages, ss)
	}
	snap.Invocations = r.Ledger.Invocations()
	return snap
}
