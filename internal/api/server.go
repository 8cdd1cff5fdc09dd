package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/contractlens/internal/archive"
	"github.com/dgallion1/contractlens/internal/config"
	"github.com/dgallion1/contractlens/internal/pipeline"
	"github.com/dgallion1/contractlens/internal/reasoning"
)

// LLMInfo exposes the reasoning backend's identity and latency stats.
type LLMInfo interface {
	Provider() reasoning.Provider
	Model() string
	Stats() *reasoning.LLMStats
}

// RunArchive looks up runs that have left the in-memory job store.
type RunArchive interface {
	GetRun(ctx context.Context, id string) (*archive.Record, error)
	ListRuns(ctx context.Context, sessionID string, limit int) ([]archive.Record, error)
}

// Replier forwards reply segments to a messaging channel.
type Replier interface {
	Send(ctx context.Context, replyURL, to string, segments []string) error
}

// Server is the HTTP API server for contractlens.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	llm          LLMInfo
	archive      RunArchive
	replier      Replier
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. llm, runs and replier
// may be nil; the routes that need them then answer 503 or skip forwarding.
func NewServer(orch *pipeline.Orchestrator, llm LLMInfo, runs RunArchive, replier Replier, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		llm:          llm,
		archive:      runs,
		replier:      replier,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/webhook", s.handleWebhookVerify)

	// Messaging channel, authenticated with the webhook verify token.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.WebhookVerifyToken, s.log))
		r.Post("/webhook", s.handleWebhookMessage)
	})

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/runs", s.handleListRuns)
		r.Get("/api/runs/{runID}", s.handleGetRun)
		r.Get("/api/runs/{runID}/report", s.handleRunReport)

		r.Get("/api/stages", s.handleStages)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
