package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/cache"
	"github.com/jxiee/campus-qa/internal/config"
	"github.com/jxiee/campus-qa/internal/handlers"
	"github.com/jxiee/campus-qa/internal/ratelimit"
	"github.com/jxiee/campus-qa/internal/repository"
	"github.com/jxiee/campus-qa/internal/services"
)

// Server assembles the HTTP surface: route registration plus the
// CORS, timing, rate-limit and session-auth middleware chain.
type Server struct {
	cfg      *config.Config
	repo     repository.Repository
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	sessions *auth.SessionStore
	qa       *services.QAService
	history  *services.HistoryService
	metrics  *services.Metrics
}

func NewServer(cfg *config.Config, repo repository.Repository, c *cache.Cache, limiter *ratelimit.Limiter, sessions *auth.SessionStore, qa *services.QAService, history *services.HistoryService, metrics *services.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		repo:     repo,
		cache:    c,
		limiter:  limiter,
		sessions: sessions,
		qa:       qa,
		history:  history,
		metrics:  metrics,
	}
}

// Handler builds the complete routing table wrapped in the middleware
// chain. Exposed separately from Start so tests can drive it with
// httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	authHandler := handlers.NewAuthHandler(s.repo.User(), s.sessions, s.repo.Event())
	askHandler := handlers.NewAskHandler(s.qa, s.history)
	adminHandler := handlers.NewAdminHandler(s.repo.User(), s.cache, s.limiter, s.metrics, s.cfg.BucketIdleSweep)
	healthHandler := handlers.NewHealthHandler(s.repo.User(), s.cache, s.limiter, s.sessions, s.metrics, s.qa)

	requireAuth := auth.NewMiddleware(s.sessions)

	mux.HandleFunc("/login", authHandler.HandleLogin)
	mux.HandleFunc("/register", authHandler.HandleRegister)
	mux.HandleFunc("/health", healthHandler.HandleHealth)

	mux.Handle("/logout", requireAuth.Require(http.HandlerFunc(authHandler.HandleLogout)))

	mux.Handle("/ask", requireAuth.Require(http.HandlerFunc(askHandler.HandleAsk)))
	mux.Handle("/chat_history", requireAuth.Require(http.HandlerFunc(askHandler.HandleChatHistory)))

	mux.Handle("/stats/cache", requireAuth.Require(http.HandlerFunc(adminHandler.HandleCacheStats)))
	mux.Handle("/stats/rate_limit", requireAuth.Require(http.HandlerFunc(adminHandler.HandleRateLimitStats)))
	mux.Handle("/stats/performance", requireAuth.Require(http.HandlerFunc(adminHandler.HandlePerformanceStats)))

	mux.Handle("/admin/clear_cache", requireAuth.Require(http.HandlerFunc(adminHandler.HandleClearCache)))
	mux.Handle("/admin/optimize", requireAuth.Require(http.HandlerFunc(adminHandler.HandleOptimize)))

	var handler http.Handler = mux
	handler = handlers.RateLimit(s.limiter, s.sessions, handler)
	handler = handlers.ProcessTime(handler)
	handler = handlers.CORS(s.cfg.AllowedOrigins, handler)
	return handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", s.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
