package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/handler/dto"
	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/service"
)

// ChatHandler handles HTTP requests for the chat endpoints.
type ChatHandler struct {
	svc    *service.ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Ask handles POST /api/chat. Requires authentication; the user's
// vehicle supplies context when the request carries none.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req dto.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	identity := auth.MustIdentityFromContext(r.Context())
	result, err := h.svc.Ask(r.Context(), service.AskInput{
		UserID:       identity.UserID,
		VehicleID:    req.VehicleID,
		Message:      req.Message,
		Level:        req.Level,
		RequireLevel: true,
		Context:      req.Context,
		Endpoint:     "/api/chat",
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// QuickAsk handles POST /api/chat/quick. No authentication and no
// stored context; useful for trying the service out.
func (h *ChatHandler) QuickAsk(w http.ResponseWriter, r *http.Request) {
	var req dto.QuickChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	result, err := h.svc.Ask(r.Context(), service.AskInput{
		UserID:   auth.UserIDFromContext(r.Context()),
		Message:  req.Message,
		Level:    req.Level,
		Endpoint: "/api/chat/quick",
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// History handles GET /api/chat/history.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	records, err := h.svc.History(r.Context(), identity.UserID, limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

// Stats handles GET /api/chat/stats.
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleServiceError maps chat service errors to HTTP responses.
func (h *ChatHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Message is required")
	case errors.Is(err, service.ErrLLMUnavailable), errors.Is(err, llm.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "CHAT_UNAVAILABLE", "Chat is not available")
	case errors.Is(err, llm.ErrUpstream):
		h.logger.Error("llm upstream error", "error", err)
		writeError(w, http.StatusBadGateway, "LLM_UPSTREAM", "Language model request failed")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
