package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/ratelimit"
)

// CORS answers preflight requests and stamps allow headers on every
// response. Origins outside the allow list get no CORS headers at all.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timingWriter injects the X-Process-Time header at the last possible
// moment, when the status line goes out.
type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (t *timingWriter) WriteHeader(status int) {
	if !t.wroteHeader {
		t.wroteHeader = true
		t.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(t.start).Seconds()))
	}
	t.ResponseWriter.WriteHeader(status)
}

func (t *timingWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

// ProcessTime stamps X-Process-Time on every response. Probe and stats
// paths are exempt so monitoring does not skew the numbers.
func ProcessTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/stats/") {
			next.ServeHTTP(w, r)
			return
		}
		tw := &timingWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(tw, r)
	})
}

// RateLimit applies token-bucket limiting per request. The username tier
// kicks in when the request carries a resolvable session token; the
// lookup here is best effort and real authentication still happens later
// in the chain.
func RateLimit(limiter *ratelimit.Limiter, sessions *auth.SessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/stats/") {
			next.ServeHTTP(w, r)
			return
		}

		username := ""
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				if session, ok := sessions.Get(r.Context(), parts[1]); ok {
					username = session.Username
				}
			}
		}

		decision := limiter.Allow(clientIP(r), username)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retrySecs := int(decision.RetryAfter.Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retrySecs))
			status, detail := errorStatus(models.ErrRateLimited)
			writeJSON(w, status, map[string]interface{}{
				"detail":      detail,
				"retry_after": retrySecs,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
