package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jxiee/campus-qa/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers with the uniform {"detail": ...} error body.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// errorStatus maps domain errors to an HTTP status and client-facing
// message. Anything unrecognized is a 500.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrEmptyQuestion):
		return http.StatusBadRequest, "问题不能为空"
	case errors.Is(err, models.ErrBadCredentials):
		return http.StatusUnauthorized, "用户名或密码错误"
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, "无效或已过期的会话令牌"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "需要管理员权限"
	case errors.Is(err, models.ErrUserExists):
		return http.StatusBadRequest, "用户名已存在"
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "请求过于频繁，请稍后再试"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, detail := errorStatus(err)
	writeError(w, status, detail)
}

// clientIP extracts the caller address, preferring X-Forwarded-For when a
// proxy set it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
