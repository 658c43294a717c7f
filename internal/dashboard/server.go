// Package dashboard serves the status UI and the JSON/metrics API over
// the engine's published snapshot.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/calebmo/candlebot/internal/engine"
	"github.com/calebmo/candlebot/internal/storage"
)

//go:embed web/templates/*
var templateFS embed.FS

// Controls is the engine surface the dashboard drives.
type Controls interface {
	Snapshot() engine.Snapshot
	Pause()
	Resume()
	RefreshUniverse()
	ApplyConfig(doc string)
}

// Config parameterises the HTTP server.
type Config struct {
	ListenAddr string
	RefreshHz  float64
}

// Server is the dashboard HTTP server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	engine   Controls
	storage  storage.Interface
	gatherer prometheus.Gatherer
	logger   *logrus.Logger
	cfg      Config
}

// NewServer wires the router.
func NewServer(cfg Config, eng Controls, store storage.Interface, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		engine:   eng,
		storage:  store,
		gatherer: gatherer,
		logger:   logger,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(15 * time.Second))

	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Get("/api/snapshot", s.handleSnapshot)
	s.router.Get("/api/decisions", s.handleDecisions)
	s.router.Get("/api/trades", s.handleTrades)

	s.router.Post("/api/pause", s.handlePause)
	s.router.Post("/api/resume", s.handleResume)
	s.router.Post("/api/refresh-universe", s.handleRefreshUniverse)
	s.router.Post("/api/config", s.handleApplyConfig)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.WithField("addr", s.cfg.ListenAddr).Info("dashboard listening")
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/index.html")
	if err != nil {
		s.logger.WithError(err).Error("parse index template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	refreshMS := 1000
	if s.cfg.RefreshHz > 0 {
		refreshMS = int(1000 / s.cfg.RefreshHz)
	}
	if err := tmpl.Execute(w, map[string]any{"RefreshMS": refreshMS}); err != nil {
		s.logger.WithError(err).Error("execute index template")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	status := "ok"
	code := http.StatusOK
	if !snap.Connected {
		status = "disconnected"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	s.writeJSON(w, map[string]any{
		"status":     status,
		"updated_at": snap.UpdatedAt,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, s.engine.Snapshot())
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.storage.RecentDecisions(limitParam(r, 50))
	if err != nil {
		s.logger.WithError(err).Error("recent decisions query failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, rows)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	rows, err := s.storage.RecentTrades(limitParam(r, 50))
	if err != nil {
		s.logger.WithError(err).Error("recent trades query failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, rows)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.engine.Pause()
	s.writeAck(w, "paused")
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.engine.Resume()
	s.writeAck(w, "resumed")
}

func (s *Server) handleRefreshUniverse(w http.ResponseWriter, _ *http.Request) {
	s.engine.RefreshUniverse()
	s.writeAck(w, "universe refresh queued")
}

// handleApplyConfig queues a JSON override document. The engine
// validates it on the loop goroutine; this only checks it is JSON.
func (s *Server) handleApplyConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be a JSON object", http.StatusBadRequest)
		return
	}
	s.engine.ApplyConfig(string(body))
	s.writeAck(w, "config apply queued")
}

func (s *Server) writeAck(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, map[string]string{"result": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("response encode failed")
	}
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 500 {
		return def
	}
	return n
}
