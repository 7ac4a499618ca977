package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const usernameContextKey contextKey = "username"

// Middleware gates handlers behind Bearer session authentication.
type Middleware struct {
	sessions *SessionStore
}

func NewMiddleware(sessions *SessionStore) *Middleware {
	return &Middleware{sessions: sessions}
}

// Require wraps next so it only runs for requests carrying a valid session
// token. Every failure mode answers 401 identically; the distinct causes are
// only visible in the logs.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			slog.Warn("Auth rejected: missing authorization header", "path", r.URL.Path)
			unauthorized(w)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			slog.Warn("Auth rejected: malformed authorization header", "path", r.URL.Path)
			unauthorized(w)
			return
		}

		session, ok := m.sessions.Get(r.Context(), parts[1])
		if !ok {
			slog.Warn("Auth rejected: unknown or expired session", "path", r.URL.Path)
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), usernameContextKey, session.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"无效或已过期的会话令牌"}`))
}

// UsernameFromContext returns the authenticated username placed there by
// Require.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey).(string)
	return username, ok
}
