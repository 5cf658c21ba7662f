// Package orchestrate runs guided diagnoses: plan actions for a driver's
// complaint, execute them against the scanner and knowledge base, then
// compose a report with followup questions and recommendations.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/obd"
	"github.com/driveline/driveline/internal/vin"
)

// Orchestrator errors.
var (
	ErrEmptyComplaint = errors.New("complaint is required")
)

// Completer is the LLM used for planning and composing.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Scanner is the live-data source for obd_read and verify_fix actions.
type Scanner interface {
	Connected() bool
	ReadSensor(ctx context.Context, pid string) (*obd.Reading, error)
	ReadDTCs(ctx context.Context) ([]string, error)
}

// Repository persists diagnosis sessions.
type Repository interface {
	SaveOrchestrationSession(ctx context.Context, session *model.OrchestrationSession) error
	GetOrchestrationSession(ctx context.Context, userID, id string) (*model.OrchestrationSession, error)
}

// VehicleSource loads the user's stored vehicles so a diagnosis can
// snapshot one. *repository.Repository satisfies it.
type VehicleSource interface {
	GetVehicle(ctx context.Context, userID, id string) (*model.Vehicle, error)
}

// VINDecoder resolves a VIN to vehicle attributes for spec lookups.
// *vin.Client satisfies it.
type VINDecoder interface {
	Decode(ctx context.Context, rawVIN string) (*vin.DecodedVehicle, error)
}

// Orchestrator drives a diagnosis session through its lifecycle.
type Orchestrator struct {
	llm      Completer
	scanner  Scanner
	repo     Repository
	vehicles VehicleSource
	decoder  VINDecoder
	logger   *slog.Logger
}

// New creates an Orchestrator. completer, scanner, vehicles and decoder
// may be nil; planning falls back to heuristics, scanner actions report
// unavailable, and spec lookups skip vehicle enrichment.
func New(completer Completer, scanner Scanner, repo Repository, vehicles VehicleSource, decoder VINDecoder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		llm:      completer,
		scanner:  scanner,
		repo:     repo,
		vehicles: vehicles,
		decoder:  decoder,
		logger:   logger.With("component", "orchestrate"),
	}
}

// DiagnoseInput is one diagnosis request. SessionID resumes an earlier
// session, carrying its vehicle snapshot and telemetry forward as the
// baseline for verification. Vehicle overrides any snapshot on record;
// LiveData readings are appended to the session telemetry.
type DiagnoseInput struct {
	UserID    string
	SessionID string
	VehicleID string
	Complaint string
	Vehicle   *model.VehicleSnapshot
	LiveData  map[string]float64
}

// Diagnose runs a full diagnosis for a complaint and returns the
// completed session. Each state transition is persisted so a crashed
// diagnosis leaves an inspectable trail.
func (o *Orchestrator) Diagnose(ctx context.Context, input DiagnoseInput) (*model.OrchestrationSession, error) {
	if input.Complaint == "" {
		return nil, ErrEmptyComplaint
	}

	session := o.openSession(ctx, input)
	if err := o.save(ctx, session); err != nil {
		return nil, err
	}

	plan, hypotheses := o.buildPlan(ctx, input.Complaint)
	session.Plan = plan
	session.Hypotheses = hypotheses
	session.Transition(model.StateExecuting)
	if err := o.save(ctx, session); err != nil {
		return nil, err
	}

	for _, action := range plan {
		result := o.execute(ctx, session, action)
		session.Results = append(session.Results, result)
	}
	session.Transition(model.StateComposing)
	if err := o.save(ctx, session); err != nil {
		return nil, err
	}

	session.Report = o.compose(ctx, session)
	session.Transition(model.StateCompleted)
	if err := o.save(ctx, session); err != nil {
		return nil, err
	}

	o.logger.Info("diagnosis completed",
		"session_id", session.ID,
		"actions", len(session.Results),
		"confidence", session.Report.Confidence,
	)

	return session, nil
}

// openSession loads the session to resume or starts a fresh one, then
// applies the request's vehicle snapshot and live readings.
func (o *Orchestrator) openSession(ctx context.Context, input DiagnoseInput) *model.OrchestrationSession {
	now := time.Now().UTC()

	var session *model.OrchestrationSession
	if input.SessionID != "" {
		if prior, err := o.repo.GetOrchestrationSession(ctx, input.UserID, input.SessionID); err == nil && prior != nil {
			session = prior
			session.Complaint = input.Complaint
			session.Plan = nil
			session.Results = nil
			session.Report = nil
			session.Error = ""
			session.State = model.StatePlanning
			session.History = append(session.History, string(model.StatePlanning))
			session.UpdatedAt = now
		}
	}

	if session == nil {
		id := input.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		session = &model.OrchestrationSession{
			ID:        id,
			UserID:    input.UserID,
			VehicleID: input.VehicleID,
			Complaint: input.Complaint,
			State:     model.StatePlanning,
			History:   []string{string(model.StatePlanning)},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	switch {
	case input.Vehicle != nil:
		session.Vehicle = input.Vehicle
	case session.Vehicle == nil && input.VehicleID != "":
		session.Vehicle = o.vehicleSnapshot(ctx, input.UserID, input.VehicleID)
	}

	for pid, value := range input.LiveData {
		session.AppendTelemetry(model.TelemetryPoint{
			PID:       pid,
			Value:     value,
			Timestamp: now,
		})
	}

	return session
}

// vehicleSnapshot builds a snapshot from the user's stored vehicle.
// A missing record is not an error; the diagnosis runs without it.
func (o *Orchestrator) vehicleSnapshot(ctx context.Context, userID, vehicleID string) *model.VehicleSnapshot {
	if o.vehicles == nil {
		return nil
	}

	vehicle, err := o.vehicles.GetVehicle(ctx, userID, vehicleID)
	if err != nil || vehicle == nil {
		o.logger.Warn("vehicle snapshot unavailable", "vehicle_id", vehicleID, "error", err)
		return nil
	}

	snapshot := &model.VehicleSnapshot{
		VIN:   vehicle.VIN,
		Make:  vehicle.Make,
		Model: vehicle.Model,
	}
	if vehicle.Year > 0 {
		snapshot.Year = strconv.Itoa(vehicle.Year)
	}
	return snapshot
}

// Get retrieves a stored diagnosis session.
func (o *Orchestrator) Get(ctx context.Context, userID, id string) (*model.OrchestrationSession, error) {
	return o.repo.GetOrchestrationSession(ctx, userID, id)
}

func (o *Orchestrator) save(ctx context.Context, session *model.OrchestrationSession) error {
	if err := o.repo.SaveOrchestrationSession(ctx, session); err != nil {
		session.State = model.StateError
		session.Error = err.Error()
		return fmt.Errorf("persist diagnosis session: %w", err)
	}
	return nil
}
