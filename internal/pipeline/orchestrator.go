package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/contractlens/internal/config"
	"github.com/dgallion1/contractlens/internal/parser"
)

// Orchestrator queues uploaded contracts and analyzes them on a fixed pool
// of workers.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	pipeline *Pipeline
	recorder RunRecorder
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex // guards stopped and the close of queue
	stopped bool
}

// NewOrchestrator creates the job queue. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, p *Pipeline, recorder RunRecorder, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		pipeline: p,
		recorder: recorder,
		log:      log,
		cfg:      cfg,
	}
}

func (o *Orchestrator) newWorker() *Worker {
	return NewWorker(o.pipeline, o.recorder, parser.Options{PDFFallbackPdftotext: o.cfg.PDFFallbackPdftotext}, o.log)
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := o.newWorker()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing. It fails with ErrStopped once Stop
// has been called.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		return errors.WithHint(ErrStopped, "the server is shutting down")
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return errors.WithHint(errors.Newf("job queue is full (%d)", o.cfg.MaxQueueSize), "retry later")
	}
}

// Analyze runs one upload synchronously on the caller's goroutine.
func (o *Orchestrator) Analyze(ctx context.Context, filename string, data []byte, sessionID string, chunkSize int) (*Run, error) {
	return o.newWorker().Analyze(ctx, filename, data, sessionID, chunkSize)
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// FindRun returns the job that owns a run.
func (o *Orchestrator) FindRun(runID string) *Job {
	return o.jobs.FindRun(runID)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Pipeline returns the pipeline shared by all workers.
func (o *Orchestrator) Pipeline() *Pipeline {
	return o.pipeline
}
