package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/contractlens/internal/stage"
)

// Invocation is one dispatch of a stage to the reasoning collaborator.
type Invocation struct {
	Stage   string    `json:"stage"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
}

// Ledger is the per-run record of stage results. Each stage is published
// exactly once; waiters observe a stage only after its publish.
type Ledger struct {
	mu          sync.Mutex
	results     map[string]stage.Result
	done        map[string]chan struct{}
	invocations []Invocation
}

func NewLedger(stages []string) *Ledger {
	l := &Ledger{
		results: make(map[string]stage.Result, len(stages)),
		done:    make(map[string]chan struct{}, len(stages)),
	}
	for _, s := range stages {
		l.done[s] = make(chan struct{})
	}
	return l
}

// Publish records r as the terminal result of its stage.
func (l *Ledger) Publish(r stage.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.done[r.Stage]
	if !ok {
		return errors.Newf("publish for unknown stage %q", r.Stage)
	}
	if _, exists := l.results[r.Stage]; exists {
		return errors.Wrapf(ErrAlreadyPublished, "stage %q", r.Stage)
	}
	l.results[r.Stage] = r
	close(ch)
	return nil
}

// Wait blocks until name is published or ctx is done.
func (l *Ledger) Wait(ctx context.Context, name string) (stage.Result, error) {
	l.mu.Lock()
	ch, ok := l.done[name]
	l.mu.Unlock()
	if !ok {
		return stage.Result{}, errors.Newf("wait for unknown stage %q", name)
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return stage.Result{}, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results[name], nil
}

// Get returns the published result of name, if any.
func (l *Ledger) Get(name string) (stage.Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.results[name]
	return r, ok
}

// Results returns the published results in the given stage order.
func (l *Ledger) Results(order []string) []stage.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]stage.Result, 0, len(l.results))
	for _, name := range order {
		if r, ok := l.results[name]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (l *Ledger) recordInvocation(name string, attempt int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invocations = append(l.invocations, Invocation{Stage: name, Attempt: attempt, At: time.Now()})
}

// Invocations returns the dispatch log in dispatch order.
func (l *Ledger) Invocations() []Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Invocation, len(l.invocations))
	copy(out, l.invocations)
	return out
}
