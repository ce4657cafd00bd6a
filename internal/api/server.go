// Package api serves the built site, search and build control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/notiondocs/internal/config"
	"github.com/dgallion1/notiondocs/internal/docs"
	"github.com/dgallion1/notiondocs/internal/metrics"
	"github.com/dgallion1/notiondocs/internal/notion"
	"github.com/dgallion1/notiondocs/internal/pipeline"
	"github.com/dgallion1/notiondocs/internal/search"
	"github.com/dgallion1/notiondocs/internal/sink"
)

// Builds queues site builds and reports on them.
type Builds interface {
	Trigger(t pipeline.Trigger) (*pipeline.Job, error)
	GetJob(id string) *pipeline.Job
}

// DocumentFetcher renders a single document by heading id.
type DocumentFetcher interface {
	Document(ctx context.Context, id string) (docs.Document, error)
}

// Deps are the components the server reads from.
type Deps struct {
	Builds   Builds
	Store    sink.Store
	Search   search.Engine
	Docs     DocumentFetcher   // nil disables /api/docs
	Stats    *notion.CallStats // nil when the source is not the Notion API
	Recorder metrics.Recorder
	Metrics  http.Handler // nil disables /metrics
}

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
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
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/navigation", s.handleNavigation)
	r.Get("/api/pages/{slug}", s.handlePage)
	if s.deps.Docs != nil {
		r.Get("/api/docs/{id}", s.handleDocument)
	}
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/builds", s.handleBuild)
		r.Get("/api/builds/{jobID}/status", s.handleBuildStatus)
		r.Get("/api/stats/source", s.handleSourceStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
