// Package server exposes the read-only feed API over the article store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"swvanews/internal/config"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

// pinger is the health-check surface of the database handle.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the JSON feed API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         pinger
	articles   persistence.ArticleRepository
	events     persistence.EventRepository
	history    persistence.HistoryRepository
	cfg        config.Server
}

// New wires the router and handlers.
func New(db pinger, articles persistence.ArticleRepository,
	events persistence.EventRepository, history persistence.HistoryRepository,
	cfg config.Server) *Server {

	s := &Server{
		router:   chi.NewRouter(),
		db:       db,
		articles: articles,
		events:   events,
		history:  history,
		cfg:      cfg,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// The feed frontend is served from a different origin.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/feed", s.handleFeed)
	s.router.Get("/feed/dates", s.handleFeedDates)
	s.router.Get("/events", s.handleEvents)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/articles/pending", s.handlePendingArticles)
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	logger.Info("Starting feed API", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down feed API")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}
