package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/services"
)

// AskHandler serves question answering and per-user chat history.
type AskHandler struct {
	qa      *services.QAService
	history *services.HistoryService
}

func NewAskHandler(qa *services.QAService, history *services.HistoryService) *AskHandler {
	return &AskHandler{qa: qa, history: history}
}

func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求")
		return
	}

	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeDomainError(w, models.ErrUnauthenticated)
		return
	}

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}

	resp, err := h.qa.Ask(r.Context(), username, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmptyQuestion):
			writeDomainError(w, err)
		case r.Context().Err() != nil:
			// Client went away, nothing useful to write.
		default:
			slog.Error("Question pipeline failed", "username", username, "error", err)
			writeError(w, http.StatusInternalServerError, "服务器内部错误")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AskHandler) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持GET请求")
		return
	}

	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeDomainError(w, models.ErrUnauthenticated)
		return
	}

	start := time.Now()
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.history.Recent(r.Context(), username, limit, offset)
	if err != nil {
		slog.Error("History lookup failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	if records == nil {
		records = []*models.ChatHistoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chat_history": records,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
		"from_cache":   false,
		"process_time": time.Since(start).Seconds(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
