package api

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/contractlens/internal/archive"
	"github.com/dgallion1/contractlens/internal/delivery"
	"github.com/dgallion1/contractlens/internal/pipeline"
)

// handleGetRun returns run status and its stage ledger, from the live job
// store first and the archive second.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if job := s.orchestrator.FindRun(runID); job != nil {
		writeJSON(w, http.StatusOK, job.Run().Snapshot())
		return
	}
	rec, ok := s.archivedRun(w, r, runID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRunReport returns the report, or the failure message, of a finished
// run. With ?limit=N the text is returned as chat-sized segments.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		status string
		text   string
		body   = map[string]any{"run_id": runID}
	)
	if job := s.orchestrator.FindRun(runID); job != nil {
		run := job.Run()
		if !run.Done() {
			writeJSON(w, http.StatusConflict, map[string]any{
				"run_id": runID,
				"status": run.Status(),
				"error":  "run has not finished",
			})
			return
		}
		status = string(run.Status())
		text = delivery.Message(run)
		if rep := run.Report(); rep != nil {
			body["report"] = rep
		}
	} else {
		rec, ok := s.archivedRun(w, r, runID)
		if !ok {
			return
		}
		status = rec.Status
		if rec.Report != nil && rec.Status == string(pipeline.RunCompleted) {
			text = rec.Report.Text
			body["report"] = rec.Report
		} else {
			text = delivery.FailureMessage(errors.New(rec.Error))
		}
	}

	body["status"] = status
	if limit > 0 {
		body["segments"] = delivery.Segment(text, limit)
	} else {
		body["text"] = text
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		jsonError(w, "run archive disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.archive.ListRuns(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		s.log.Error("list runs failed", "error", err)
		jsonError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) archivedRun(w http.ResponseWriter, r *http.Request, runID string) (*archive.Record, bool) {
	if s.archive == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	rec, err := s.archive.GetRun(r.Context(), runID)
	if errors.Is(err, archive.ErrNotFound) {
		jsonError(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("archive lookup failed", "run_id", runID, "error", err)
		jsonError(w, "failed to load run", http.StatusInternalServerError)
		return nil, false
	}
	return rec, true
}
