package model

import (
	"testing"
	"time"
)

func TestOrchestrationSession_Transition(t *testing.T) {
	t.Parallel()

	s := &OrchestrationSession{State: StatePlanning}
	s.Transition(StateExecuting)
	s.Transition(StateComposing)
	s.Transition(StateCompleted)

	if s.State != StateCompleted {
		t.Errorf("state = %s", s.State)
	}
	want := []string{"executing", "composing", "completed"}
	if len(s.History) != len(want) {
		t.Fatalf("history = %v", s.History)
	}
	for i, h := range want {
		if s.History[i] != h {
			t.Errorf("history[%d] = %s, want %s", i, s.History[i], h)
		}
	}
}

func TestOrchestrationSession_TelemetryCap(t *testing.T) {
	t.Parallel()

	s := &OrchestrationSession{}
	for i := 0; i < TelemetryCap+1; i++ {
		s.AppendTelemetry(TelemetryPoint{
			PID:       "010C",
			Value:     float64(i),
			Unit:      "rpm",
			Timestamp: time.Now(),
		})
	}

	if len(s.Telemetry) != TelemetryFloor {
		t.Fatalf("telemetry length = %d, want %d after trim", len(s.Telemetry), TelemetryFloor)
	}
	// The newest samples survive the trim.
	last := s.Telemetry[len(s.Telemetry)-1]
	if last.Value != float64(TelemetryCap) {
		t.Errorf("last sample = %v, want %d", last.Value, TelemetryCap)
	}
}

func TestOrchestrationSession_Confidence(t *testing.T) {
	t.Parallel()

	s := &OrchestrationSession{}
	if s.Confidence() != 0 {
		t.Error("empty session should have zero confidence")
	}

	s.Results = []ActionResult{
		{Success: true},
		{Success: true},
		{Success: false},
		{Success: true},
	}
	if got := s.Confidence(); got != 0.75 {
		t.Errorf("confidence = %v, want 0.75", got)
	}
}
