package model

import "time"

// OrchestrationState is the lifecycle state of a guided diagnosis.
type OrchestrationState string

const (
	StatePlanning  OrchestrationState = "planning"
	StateExecuting OrchestrationState = "executing"
	StateComposing OrchestrationState = "composing"
	StateCompleted OrchestrationState = "completed"
	StateError     OrchestrationState = "error"
)

// Diagnostic action types the planner may schedule.
const (
	ActionOBDRead        = "obd_read"
	ActionSpecLookup     = "spec_lookup"
	ActionRAGSearch      = "rag_search"
	ActionVerifyFix      = "verify_fix"
	ActionRequireConsent = "require_consent"
)

// PlannedAction is one step of a diagnosis plan.
type PlannedAction struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ActionResult is the outcome of executing one planned action.
type ActionResult struct {
	Action     PlannedAction  `json:"action"`
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// VehicleSnapshot pins the vehicle's identity and last known readings
// to the session, so lookups later in the diagnosis use the context
// from when it started.
type VehicleSnapshot struct {
	VIN        string             `json:"vin,omitempty"`
	Make       string             `json:"make,omitempty"`
	Model      string             `json:"model,omitempty"`
	Year       string             `json:"year,omitempty"`
	DTCCodes   []string           `json:"dtc_codes,omitempty"`
	SensorData map[string]float64 `json:"sensor_data,omitempty"`
}

// TelemetryPoint is one sensor sample collected during a diagnosis.
type TelemetryPoint struct {
	PID       string    `json:"pid"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Telemetry retention. When the buffer exceeds the cap the oldest
// samples are dropped down to the floor in one cut, so trimming does
// not happen on every append.
const (
	TelemetryCap   = 100
	TelemetryFloor = 50
)

// DiagnosisReport is the composed outcome of a completed diagnosis.
// ConsentRequests lists operations the plan wants but will not run
// without the driver's approval (clearing codes, actuator tests).
type DiagnosisReport struct {
	Summary         string   `json:"summary"`
	Questions       []string `json:"questions,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	ConsentRequests []string `json:"consent_requests,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// OrchestrationSession is a guided diagnosis: the user's complaint, the
// plan, every action result, collected telemetry and the final report.
// The whole session is persisted as one JSONB snapshot per update.
type OrchestrationSession struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	VehicleID  string             `json:"vehicle_id,omitempty"`
	Vehicle    *VehicleSnapshot   `json:"vehicle,omitempty"`
	Complaint  string             `json:"complaint"`
	State      OrchestrationState `json:"state"`
	Plan       []PlannedAction    `json:"plan,omitempty"`
	Results    []ActionResult     `json:"results,omitempty"`
	Hypotheses []string           `json:"hypotheses,omitempty"`
	Telemetry  []TelemetryPoint   `json:"telemetry,omitempty"`
	History    []string           `json:"history,omitempty"`
	Report     *DiagnosisReport   `json:"report,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Transition moves the session to a new state and records it.
func (s *OrchestrationSession) Transition(state OrchestrationState) {
	s.State = state
	s.History = append(s.History, string(state))
	s.UpdatedAt = time.Now().UTC()
}

// AppendTelemetry adds a sample, trimming old samples past the cap.
func (s *OrchestrationSession) AppendTelemetry(point TelemetryPoint) {
	s.Telemetry = append(s.Telemetry, point)
	if len(s.Telemetry) > TelemetryCap {
		s.Telemetry = append([]TelemetryPoint(nil), s.Telemetry[len(s.Telemetry)-TelemetryFloor:]...)
	}
}

// Confidence is the share of planned actions that executed successfully.
func (s *OrchestrationSession) Confidence() float64 {
	if len(s.Results) == 0 {
		return 0
	}
	successful := 0
	for _, r := range s.Results {
		if r.Success {
			successful++
		}
	}
	return float64(successful) / float64(len(s.Results))
}
