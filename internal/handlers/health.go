package handlers

import (
	"net/http"
	"time"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/cache"
	"github.com/jxiee/campus-qa/internal/ratelimit"
	"github.com/jxiee/campus-qa/internal/repository"
	"github.com/jxiee/campus-qa/internal/services"
)

// HealthHandler answers liveness probes with a component summary.
type HealthHandler struct {
	users    repository.UserRepository
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	sessions *auth.SessionStore
	metrics  *services.Metrics
	qa       *services.QAService
}

func NewHealthHandler(users repository.UserRepository, c *cache.Cache, limiter *ratelimit.Limiter, sessions *auth.SessionStore, metrics *services.Metrics, qa *services.QAService) *HealthHandler {
	return &HealthHandler{
		users:    users,
		cache:    c,
		limiter:  limiter,
		sessions: sessions,
		metrics:  metrics,
		qa:       qa,
	}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cacheStats := h.cache.Stats()
	limiterStats := h.limiter.Stats()

	// Any successful query proves the database is reachable.
	_, dbErr := h.users.CountUsers(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"database_connected": dbErr == nil,
		"llm_api_configured": h.qa.GeneratorConfigured(),
		"services": map[string]interface{}{
			"cache": map[string]interface{}{
				"size":     cacheStats.Size,
				"max_size": cacheStats.MaxSize,
				"hit_rate": cacheStats.HitRate,
			},
			"rate_limit": map[string]interface{}{
				"global_tokens": limiterStats.GlobalTokens,
				"limit_rate":    limiterStats.LimitRate,
			},
			"sessions": map[string]interface{}{
				"active": h.sessions.Count(),
			},
		},
		"metrics": h.metrics.Snapshot(),
	})
}
