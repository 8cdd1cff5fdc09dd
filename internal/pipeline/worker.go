package pipeline

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/parser"
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *Run, contentHash string) error
}

// Worker turns an uploaded file into a finished run.
type Worker struct {
	pipeline   *Pipeline
	recorder   RunRecorder
	parserOpts parser.Options
	log        *slog.Logger
}

func NewWorker(p *Pipeline, recorder RunRecorder, parserOpts parser.Options, log *slog.Logger) *Worker {
	return &Worker{
		pipeline:   p,
		recorder:   recorder,
		parserOpts: parserOpts,
		log:        log,
	}
}

// Process runs extraction and analysis for a queued job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "session_id", job.SessionID, "filename", job.Filename)

	// Phase 1: Extract
	job.SetStatus(StatusExtracting, "extracting")
	text, err := w.extract(job.Filename, job.FileData())
	if err != nil {
		log.Error("extraction failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	// Phase 2: Analyze
	hash := ContentHashHex([]byte(text))
	run := w.pipeline.NewRun(document.New(job.Filename, text, job.SessionID))
	job.AttachRun(run, hash)
	job.SetStatus(StatusAnalyzing, "analyzing")
	log.Info("analysis started", "run_id", run.ID, "content_hash", hash)

	err = w.pipeline.Execute(ctx, run, chunkOptions(job.ChunkSize)...)
	w.record(ctx, run, hash, log)
	if err != nil {
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "analyzing")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}

// Analyze extracts and analyzes a file synchronously. The run is nil only
// when extraction fails.
func (w *Worker) Analyze(ctx context.Context, filename string, data []byte, sessionID string, chunkSize int) (*Run, error) {
	text, err := w.extract(filename, data)
	if err != nil {
		return nil, err
	}
	hash := ContentHashHex([]byte(text))
	run, err := w.pipeline.Run(ctx, document.New(filename, text, sessionID), chunkOptions(chunkSize)...)
	w.record(ctx, run, hash, w.log.With("session_id", sessionID, "filename", filename))
	return run, err
}

func (w *Worker) extract(filename string, data []byte) (string, error) {
	ex, err := parser.ForFile(filename, w.parserOpts)
	if err != nil {
		return "", err
	}
	text, err := ex.Extract(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrapf(err, "extract %s", filename)
	}
	return text, nil
}

func (w *Worker) record(ctx context.Context, run *Run, hash string, log *slog.Logger) {
	if w.recorder == nil {
		return
	}
	// The archive write outlives a cancelled request.
	if err := w.recorder.SaveRun(context.WithoutCancel(ctx), run, hash); err != nil {
		log.Warn("archive write failed", "run_id", run.ID, "error", err)
	}
}

func chunkOptions(size int) []document.Option {
	if size <= 0 {
		return nil
	}
	return []document.Option{document.WithSize(size)}
}
