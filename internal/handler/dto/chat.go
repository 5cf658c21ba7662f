package dto

import "github.com/driveline/driveline/internal/model"

// ChatRequest represents the request body for an authenticated chat question.
type ChatRequest struct {
	Message   string                   `json:"message"`
	Level     string                   `json:"level,omitempty"`
	VehicleID string                   `json:"vehicle_id,omitempty"`
	Context   *model.DiagnosticContext `json:"context,omitempty"`
}

// QuickChatRequest represents the request body for the anonymous quick
// chat endpoint. No vehicle context is attached.
type QuickChatRequest struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

// DiagnoseRequest represents the request body for a guided diagnosis.
// SessionID resumes an earlier session; VehicleContext and LiveData
// seed the session with the caller's own snapshot and readings.
type DiagnoseRequest struct {
	SessionID      string                 `json:"session_id,omitempty"`
	VehicleID      string                 `json:"vehicle_id,omitempty"`
	Complaint      string                 `json:"complaint"`
	VehicleContext *model.VehicleSnapshot `json:"vehicle_context,omitempty"`
	LiveData       map[string]float64     `json:"live_data,omitempty"`
}
