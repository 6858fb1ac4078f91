package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/metrics"
)

// Crawler runs on-demand crawls. *crawler.Manager satisfies it.
type Crawler interface {
	CrawlVideo(ctx context.Context, videoID string) bool
	CrawlUser(ctx context.Context, secUID string) bool
	CrawlUserVideos(ctx context.Context, secUID string, budget crawler.Budget) int
}

// Resolver turns share links into ids. *crawler.Client satisfies it.
type Resolver interface {
	ResolveShareLink(ctx context.Context, shareURL string) crawler.Outcome[crawler.ShareTarget]
}

// Config carries the defaults the handlers apply.
type Config struct {
	// Budget bounds POST /api/crawl/user-videos when the body sets no limit.
	Budget crawler.Budget
	// DefaultInterval is used for tasks created without an interval.
	DefaultInterval int
	// RequestTimeout caps every request. Zero means one minute.
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store and the crawl manager.
type Server struct {
	router   chi.Router
	store    crawler.Store
	crawls   Crawler
	resolver Resolver
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store crawler.Store,
	crawls Crawler,
	resolver Resolver,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = crawler.DefaultTaskInterval
	}
	s := &Server{
		store:    store,
		crawls:   crawls,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/videos", func(r chi.Router) {
			r.Get("/", s.listVideos)
			r.Get("/top", s.topVideos)
			r.Get("/{video_id}", s.getVideo)
			r.Get("/{video_id}/history", s.videoHistory)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.listUsers)
			r.Get("/{sec_uid}", s.getUser)
			r.Get("/{sec_uid}/videos", s.userVideos)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Delete("/{task_id}", s.deleteTask)
		})
		r.Get("/logs", s.recentLogs)
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/video", s.crawlVideo)
			r.Post("/user", s.crawlUser)
			r.Post("/user-videos", s.crawlUserVideos)
		})
		r.Post("/resolve", s.resolve)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "TikTok Monitor API", "docs": "/api"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the store answers a trivial read.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.store.ListVideos(ctx, 1, 0); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
