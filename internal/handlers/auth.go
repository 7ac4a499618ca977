package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/repository"
)

// AuthHandler serves login, logout and registration. Account events go to
// the audit log; failures there never fail the request.
type AuthHandler struct {
	users    repository.UserRepository
	sessions *auth.SessionStore
	events   repository.EventRepository
}

func NewAuthHandler(users repository.UserRepository, sessions *auth.SessionStore, events repository.EventRepository) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, events: events}
}

func (h *AuthHandler) audit(r *http.Request, code, msg string, meta map[string]interface{}) {
	if h.events == nil {
		return
	}
	if err := h.events.LogEvent(r.Context(), "info", code, msg, meta); err != nil {
		slog.Warn("Audit event write failed", "code", code, "error", err)
	}
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求")
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}

	user, err := h.users.GetUser(r.Context(), req.Username)
	if err != nil {
		slog.Error("User lookup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	if user == nil || !auth.CheckPassword(user.Password, req.Password) {
		slog.Warn("Login rejected", "username", req.Username, "ip", clientIP(r))
		writeDomainError(w, models.ErrBadCredentials)
		return
	}

	token, err := h.sessions.Create(r.Context(), user.Username)
	if err != nil {
		slog.Error("Session creation failed", "username", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	slog.Info("User logged in", "username", user.Username, "role", user.Role)
	h.audit(r, "auth.login", "User logged in", map[string]interface{}{
		"username": user.Username,
		"role":     user.Role,
		"ip":       clientIP(r),
	})
	writeJSON(w, http.StatusOK, models.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Username:    user.Username,
		Role:        user.Role,
	})
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求")
		return
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		h.sessions.Delete(r.Context(), parts[1])
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "已退出登录"})
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求")
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "用户名不能为空，密码长度至少6位")
		return
	}

	existing, err := h.users.GetUser(r.Context(), req.Username)
	if err != nil {
		slog.Error("User lookup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	if existing != nil {
		writeDomainError(w, models.ErrUserExists)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("Password hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	user := &models.User{
		Username:  req.Username,
		Password:  hash,
		Role:      "student",
		Email:     req.Email,
		CreatedAt: time.Now(),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		slog.Error("User creation failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	slog.Info("User registered", "username", user.Username)
	h.audit(r, "auth.register", "User registered", map[string]interface{}{
		"username": user.Username,
		"ip":       clientIP(r),
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "注册成功", "username": user.Username})
}
