package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/handler/dto"
	"github.com/driveline/driveline/internal/service"
	"github.com/driveline/driveline/internal/vin"
)

// VehicleHandler handles HTTP requests for vehicle operations.
type VehicleHandler struct {
	svc    *service.VehicleService
	logger *slog.Logger
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(svc *service.VehicleService, logger *slog.Logger) *VehicleHandler {
	return &VehicleHandler{svc: svc, logger: logger}
}

// Register handles POST /api/vehicles.
func (h *VehicleHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	identity := auth.MustIdentityFromContext(r.Context())
	vehicle, err := h.svc.Register(r.Context(), service.RegisterInput{
		UserID:    identity.UserID,
		VIN:       req.VIN,
		IsPrimary: req.IsPrimary,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("vehicle_registered",
		"vehicle_id", vehicle.ID,
		"user_id", identity.UserID,
		"is_primary", vehicle.IsPrimary,
	)

	writeJSON(w, http.StatusCreated, dto.ToVehicleResponse(vehicle))
}

// List handles GET /api/vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	vehicles, err := h.svc.List(r.Context(), identity.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToVehicleListResponse(vehicles))
}

// Get handles GET /api/vehicles/{id}.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := auth.MustIdentityFromContext(r.Context())

	vehicle, err := h.svc.Get(r.Context(), identity.UserID, id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToVehicleResponse(vehicle))
}

// Primary handles GET /api/vehicles/primary.
func (h *VehicleHandler) Primary(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	vehicle, err := h.svc.Primary(r.Context(), identity.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if vehicle == nil {
		writeError(w, http.StatusNotFound, "NO_PRIMARY_VEHICLE", "No primary vehicle set")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToVehicleResponse(vehicle))
}

// PrimaryInfo handles GET /api/vehicles/primary/info. Returns the
// compact attribute map used as chat context.
func (h *VehicleHandler) PrimaryInfo(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	vehicle, err := h.svc.Primary(r.Context(), identity.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if vehicle == nil {
		writeError(w, http.StatusNotFound, "NO_PRIMARY_VEHICLE", "No primary vehicle set")
		return
	}

	writeJSON(w, http.StatusOK, vehicle.Info())
}

// SetPrimary handles PUT /api/vehicles/{id}/primary.
func (h *VehicleHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := auth.MustIdentityFromContext(r.Context())

	if err := h.svc.SetPrimary(r.Context(), identity.UserID, id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("primary_vehicle_changed", "vehicle_id", id, "user_id", identity.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "primary vehicle updated"})
}

// Delete handles DELETE /api/vehicles/{id}.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := auth.MustIdentityFromContext(r.Context())

	if err := h.svc.Delete(r.Context(), identity.UserID, id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("vehicle_deleted", "vehicle_id", id, "user_id", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// DecodeVIN handles POST /api/vehicles/decode. No vehicle is saved.
func (h *VehicleHandler) DecodeVIN(w http.ResponseWriter, r *http.Request) {
	var req dto.DecodeVINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	decoded, err := h.svc.DecodeVIN(r.Context(), req.VIN)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decoded)
}

// BasicDecode handles GET /api/manual. Decodes the VIN in the query
// string to the basic attribute map, no account required.
func (h *VehicleHandler) BasicDecode(w http.ResponseWriter, r *http.Request) {
	decoded, err := h.svc.DecodeVIN(r.Context(), r.URL.Query().Get("vin"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decoded.Info())
}

// handleServiceError maps vehicle service errors to HTTP responses.
func (h *VehicleHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidVIN):
		writeError(w, http.StatusBadRequest, "INVALID_VIN", "VIN must be 17 characters (no I, O or Q)")
	case errors.Is(err, service.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, "VEHICLE_NOT_FOUND", "Vehicle not found")
	case errors.Is(err, service.ErrVINExists):
		writeError(w, http.StatusConflict, "VIN_EXISTS", "A vehicle with this VIN is already registered")
	case errors.Is(err, vin.ErrUpstream):
		writeError(w, http.StatusBadGateway, "VIN_DECODE_FAILED", "VIN decode service is unavailable")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
