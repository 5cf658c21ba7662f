package model

import "time"

// Chat experience levels.
const (
	LevelBeginner = "beginner"
	LevelExpert   = "expert"
)

// Chat message types.
const (
	MessageTypeUser       = "user"
	MessageTypeAssistant  = "assistant"
	MessageTypeDiagnostic = "diagnostic"
	MessageTypeError      = "error"
)

// DiagnosticContext carries vehicle state attached to a chat request.
// All fields are optional; any non-empty field marks the conversation
// as automotive without further classification.
type DiagnosticContext struct {
	VIN         string            `json:"vin,omitempty"`
	DTCCodes    []string          `json:"dtc_codes,omitempty"`
	SensorData  map[string]any    `json:"sensor_data,omitempty"`
	VehicleInfo map[string]string `json:"vehicle_info,omitempty"`
}

// IsEmpty reports whether the context carries no diagnostic signal.
func (c *DiagnosticContext) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.VIN == "" && len(c.DTCCodes) == 0 && len(c.SensorData) == 0 && len(c.VehicleInfo) == 0
}

// ChatRecord is a persisted question/answer exchange with its
// classification metadata. Records flow through the Redis history
// stream before landing in Postgres.
type ChatRecord struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id,omitempty"`
	VehicleID            string             `json:"vehicle_id,omitempty"`
	Message              string             `json:"message"`
	Response             string             `json:"response"`
	Level                string             `json:"level,omitempty"`
	Context              *DiagnosticContext `json:"context,omitempty"`
	ResponseTimeMs       int64              `json:"response_time_ms"`
	ClassificationMethod string             `json:"classification_method"`
	Endpoint             string             `json:"endpoint"`
	CreatedAt            time.Time          `json:"created_at"`
}
