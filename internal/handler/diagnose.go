package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/handler/dto"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/orchestrate"
	"github.com/driveline/driveline/internal/repository"
)

// DiagnoseHandler handles the guided diagnosis endpoints.
type DiagnoseHandler struct {
	orchestrator *orchestrate.Orchestrator
	repo         *repository.Repository
	logger       *slog.Logger
}

// NewDiagnoseHandler creates a new DiagnoseHandler.
func NewDiagnoseHandler(orchestrator *orchestrate.Orchestrator, repo *repository.Repository, logger *slog.Logger) *DiagnoseHandler {
	return &DiagnoseHandler{orchestrator: orchestrator, repo: repo, logger: logger}
}

// Diagnose handles POST /api/diagnose. Runs the full plan, execute,
// compose cycle synchronously and returns the finished session.
func (h *DiagnoseHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req dto.DiagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	identity := auth.MustIdentityFromContext(r.Context())
	session, err := h.orchestrator.Diagnose(r.Context(), orchestrate.DiagnoseInput{
		UserID:    identity.UserID,
		SessionID: req.SessionID,
		VehicleID: req.VehicleID,
		Complaint: req.Complaint,
		Vehicle:   req.VehicleContext,
		LiveData:  req.LiveData,
	})
	if err != nil {
		if errors.Is(err, orchestrate.ErrEmptyComplaint) {
			writeError(w, http.StatusBadRequest, "EMPTY_COMPLAINT", "Describe what the vehicle is doing")
			return
		}
		h.logger.Error("diagnosis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	h.logger.Info("diagnosis_completed",
		"session_id", session.ID,
		"user_id", identity.UserID,
		"actions", len(session.Results),
	)

	writeJSON(w, http.StatusOK, session)
}

// Get handles GET /api/diagnose/{id}.
func (h *DiagnoseHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	session, err := h.orchestrator.Get(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil || session == nil {
		if err != nil && !errors.Is(err, repository.ErrOrchestrationNotFound) {
			h.logger.Error("diagnosis lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
			return
		}
		writeError(w, http.StatusNotFound, "DIAGNOSIS_NOT_FOUND", "Diagnosis session not found")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// List handles GET /api/diagnose.
func (h *DiagnoseHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	sessions, err := h.repo.ListOrchestrationSessions(r.Context(), identity.UserID, limit)
	if err != nil {
		h.logger.Error("diagnosis list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	if sessions == nil {
		sessions = []*model.OrchestrationSession{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": sessions})
}
