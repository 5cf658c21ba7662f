package dto

import "github.com/driveline/driveline/internal/model"

// ConnectRequest represents the request body for connecting the scanner.
// An empty port uses the configured default.
type ConnectRequest struct {
	Port string `json:"port,omitempty"`
}

// StartScanRequest represents the request body for starting a scan session.
type StartScanRequest struct {
	Name   string           `json:"session_name,omitempty"`
	Config model.ScanConfig `json:"config"`
}

// SaveSessionRequest represents the request body for saving a diagnostic
// session. Codes and sensor data may come from a scan or manual entry.
type SaveSessionRequest struct {
	VehicleID   string         `json:"vehicle_id,omitempty"`
	DTCCodes    []string       `json:"dtc_codes,omitempty"`
	SensorData  map[string]any `json:"sensor_data,omitempty"`
	SessionName string         `json:"session_name,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// ManualDataRequest represents manually entered diagnostic data for
// lookup without a connected scanner.
type ManualDataRequest struct {
	VIN        string         `json:"vin,omitempty"`
	DTCCodes   []string       `json:"dtc_codes,omitempty"`
	SensorData map[string]any `json:"sensor_data,omitempty"`
}

// ScanListResponse lists active and recent scan session IDs.
type ScanListResponse struct {
	Sessions []string `json:"sessions"`
}
