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
	"github.com/driveline/driveline/internal/obd"
	"github.com/driveline/driveline/internal/service"
	"github.com/driveline/driveline/internal/vin"
)

// DiagnosticsHandler handles the scanner and diagnostic session endpoints.
type DiagnosticsHandler struct {
	svc    *service.DiagnosticsService
	logger *slog.Logger
}

// NewDiagnosticsHandler creates a new DiagnosticsHandler.
func NewDiagnosticsHandler(svc *service.DiagnosticsService, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{svc: svc, logger: logger}
}

// Ports handles GET /api/scanner/ports.
func (h *DiagnosticsHandler) Ports(w http.ResponseWriter, r *http.Request) {
	ports, err := h.svc.ListPorts()
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports})
}

// Connect handles POST /api/scanner/connect.
func (h *DiagnosticsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req dto.ConnectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
			return
		}
	}

	status, err := h.svc.Connect(r.Context(), req.Port)
	if err != nil {
		h.logger.Warn("scanner connect failed", "port", req.Port, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	h.logger.Info("scanner connected", "port", status.Port)
	writeJSON(w, http.StatusOK, status)
}

// Disconnect handles POST /api/scanner/disconnect.
func (h *DiagnosticsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Disconnect()
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Status handles GET /api/scanner/status.
func (h *DiagnosticsHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Sensors handles GET /api/scanner/sensors.
func (h *DiagnosticsHandler) Sensors(w http.ResponseWriter, r *http.Request) {
	readings, err := h.svc.ReadSensors(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": readings})
}

// Sensor handles GET /api/scanner/sensors/{pid}.
func (h *DiagnosticsHandler) Sensor(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")

	reading, err := h.svc.ReadSensor(r.Context(), pid)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// DTCs handles GET /api/scanner/dtc.
func (h *DiagnosticsHandler) DTCs(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.ReadDTCs(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(details),
		"codes": details,
	})
}

// LookupDTC handles GET /api/dtc/{code}.
func (h *DiagnosticsHandler) LookupDTC(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.LookupDTC(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DTC", "Trouble codes look like P0420")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DescribeManual handles POST /api/diagnostics. Looks up user-entered
// trouble codes and decodes an optional VIN, no scanner involved.
func (h *DiagnosticsHandler) DescribeManual(w http.ResponseWriter, r *http.Request) {
	var req dto.ManualDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	result, err := h.svc.DescribeManualData(r.Context(), service.ManualDataInput{
		VIN:        req.VIN,
		DTCCodes:   req.DTCCodes,
		SensorData: req.SensorData,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VehicleInfo handles GET /api/scanner/vehicle-info.
func (h *DiagnosticsHandler) VehicleInfo(w http.ResponseWriter, r *http.Request) {
	ident, err := h.svc.VehicleInfo(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

// StartScan handles POST /api/scanner/scan.
func (h *DiagnosticsHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req dto.StartScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
			return
		}
	}

	session, err := h.svc.StartScan(r.Context(), req.Name, req.Config)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("scan_started", "session_id", session.ID)
	writeJSON(w, http.StatusAccepted, session)
}

// GetScan handles GET /api/scanner/scan/{id}.
func (h *DiagnosticsHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ListScans handles GET /api/scanner/scan.
func (h *DiagnosticsHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ListScans(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ScanListResponse{Sessions: ids})
}

// SaveSession handles POST /api/sessions.
func (h *DiagnosticsHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	identity := auth.MustIdentityFromContext(r.Context())
	session, err := h.svc.SaveSession(r.Context(), service.SaveSessionInput{
		UserID:      identity.UserID,
		VehicleID:   req.VehicleID,
		DTCCodes:    req.DTCCodes,
		SensorData:  req.SensorData,
		SessionName: req.SessionName,
		Notes:       req.Notes,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("session_saved", "session_id", session.ID, "user_id", identity.UserID)
	writeJSON(w, http.StatusCreated, session)
}

// GetSession handles GET /api/sessions/{id}.
func (h *DiagnosticsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	session, err := h.svc.GetSession(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ListSessions handles GET /api/sessions.
func (h *DiagnosticsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	sessions, err := h.svc.ListSessions(r.Context(), identity.UserID, limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sessions})
}

// handleServiceError maps diagnostics service errors to HTTP responses.
func (h *DiagnosticsHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrScannerNotConnected), errors.Is(err, obd.ErrNotConnected):
		writeError(w, http.StatusConflict, "SCANNER_NOT_CONNECTED", "Scanner is not connected")
	case errors.Is(err, obd.ErrUnsupportedPID):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_PID", "PID is not supported")
	case errors.Is(err, obd.ErrNoData):
		writeError(w, http.StatusNotFound, "NO_DATA", "Vehicle returned no data for this request")
	case errors.Is(err, service.ErrScanNotFound):
		writeError(w, http.StatusNotFound, "SCAN_NOT_FOUND", "Scan session not found or expired")
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Diagnostic session not found")
	case errors.Is(err, service.ErrNoDiagnosticData):
		writeError(w, http.StatusBadRequest, "NO_DIAGNOSTIC_DATA", "Session needs trouble codes or sensor data")
	case errors.Is(err, service.ErrInvalidDTC):
		writeError(w, http.StatusBadRequest, "INVALID_DTC", "Trouble codes look like P0420")
	case errors.Is(err, vin.ErrInvalidVIN):
		writeError(w, http.StatusBadRequest, "INVALID_VIN", "VIN must be 17 characters (no I, O or Q)")
	case errors.Is(err, vin.ErrUpstream):
		writeError(w, http.StatusBadGateway, "VIN_DECODE_FAILED", "VIN decode service is unavailable")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
