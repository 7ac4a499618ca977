package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/cache"
	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/ratelimit"
	"github.com/jxiee/campus-qa/internal/repository"
	"github.com/jxiee/campus-qa/internal/services"
)

// AdminHandler serves stats endpoints and admin-only maintenance actions.
type AdminHandler struct {
	users   repository.UserRepository
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	metrics *services.Metrics

	bucketIdleWindow time.Duration
}

func NewAdminHandler(users repository.UserRepository, c *cache.Cache, limiter *ratelimit.Limiter, metrics *services.Metrics, bucketIdleWindow time.Duration) *AdminHandler {
	return &AdminHandler{
		users:            users,
		cache:            c,
		limiter:          limiter,
		metrics:          metrics,
		bucketIdleWindow: bucketIdleWindow,
	}
}

// requireAdmin resolves the authenticated user and checks the admin role.
// Writes the error response itself when the check fails.
func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeDomainError(w, models.ErrUnauthenticated)
		return false
	}
	user, err := h.users.GetUser(r.Context(), username)
	if err != nil {
		slog.Error("User lookup failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return false
	}
	if user == nil || user.Role != "admin" {
		slog.Warn("Admin action rejected", "username", username, "path", r.URL.Path)
		writeDomainError(w, models.ErrForbidden)
		return false
	}
	return true
}

func (h *AdminHandler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求")
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	before := h.cache.Stats().Size
	h.cache.Clear()
	h.metrics.ResetRetrievalCounters()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "缓存已清空",
		"cleared": before,
	})
}

func (h *AdminHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求")
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	expired := h.cache.CleanupExpired()
	swept := h.limiter.SweepIdle(h.bucketIdleWindow)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "优化完成",
		"expired_entries": expired,
		"swept_buckets":   swept,
	})
}

func (h *AdminHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *AdminHandler) HandleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.limiter.Stats())
}

func (h *AdminHandler) HandlePerformanceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}
