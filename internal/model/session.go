package model

import "time"

// DiagnosticSession is a saved snapshot of diagnostic data for a vehicle:
// the trouble codes and sensor readings present at one point in time,
// plus user-supplied notes.
type DiagnosticSession struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	VehicleID   string         `json:"vehicle_id,omitempty"`
	DTCCodes    []string       `json:"dtc_codes"`
	SensorData  map[string]any `json:"sensor_data,omitempty"`
	SessionName string         `json:"session_name"`
	Notes       string         `json:"notes,omitempty"`
	SessionDate time.Time      `json:"session_date"`
}
