package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driveline/driveline/internal/cache"
	"github.com/driveline/driveline/internal/dtc"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/obd"
	"github.com/driveline/driveline/internal/repository"
	"github.com/driveline/driveline/internal/scan"
	"github.com/driveline/driveline/internal/vin"
)

// Diagnostics service errors.
var (
	ErrScannerNotConnected = errors.New("scanner is not connected")
	ErrInvalidDTC          = errors.New("invalid trouble code")
	ErrScanNotFound        = errors.New("scan session not found")
	ErrSessionNotFound     = errors.New("diagnostic session not found")
	ErrNoDiagnosticData    = errors.New("session needs trouble codes or sensor data")
)

// DiagnosticsService exposes the OBD2 scanner and saved diagnostic data.
type DiagnosticsService struct {
	scanner *obd.Scanner
	worker  *scan.Worker
	cache   *cache.Cache
	repo    *repository.Repository
	decoder VINDecoder
	logger  *slog.Logger
}

// NewDiagnosticsService creates a new DiagnosticsService.
func NewDiagnosticsService(
	scanner *obd.Scanner,
	worker *scan.Worker,
	redisCache *cache.Cache,
	repo *repository.Repository,
	decoder VINDecoder,
	logger *slog.Logger,
) *DiagnosticsService {
	return &DiagnosticsService{
		scanner: scanner,
		worker:  worker,
		cache:   redisCache,
		repo:    repo,
		decoder: decoder,
		logger:  logger.With("component", "service.diagnostics"),
	}
}

// ListPorts enumerates serial ports with a connected adapter candidate.
func (s *DiagnosticsService) ListPorts() ([]obd.PortInfo, error) {
	return s.scanner.ListPorts()
}

// Connect opens the adapter on the given port, or the configured default
// when port is empty.
func (s *DiagnosticsService) Connect(ctx context.Context, port string) (obd.Status, error) {
	if err := s.scanner.Connect(ctx, port); err != nil {
		return s.scanner.Status(), err
	}
	return s.scanner.Status(), nil
}

// Disconnect closes the adapter connection.
func (s *DiagnosticsService) Disconnect() (obd.Status, error) {
	err := s.scanner.Disconnect()
	return s.scanner.Status(), err
}

// Status reports the scanner connection state.
func (s *DiagnosticsService) Status() obd.Status {
	return s.scanner.Status()
}

// ReadSensors samples the common sensor set. PIDs the vehicle does not
// support are skipped rather than reported as errors.
func (s *DiagnosticsService) ReadSensors(ctx context.Context) (map[string]*obd.Reading, error) {
	if !s.scanner.Connected() {
		return nil, ErrScannerNotConnected
	}

	readings := make(map[string]*obd.Reading)
	for _, pid := range obd.CommonPIDs {
		reading, err := s.scanner.ReadSensor(ctx, pid)
		if err != nil {
			if errors.Is(err, obd.ErrNoData) || errors.Is(err, obd.ErrUnsupportedPID) {
				continue
			}
			return nil, err
		}
		readings[pid] = reading
	}
	return readings, nil
}

// ReadSensor samples a single PID.
func (s *DiagnosticsService) ReadSensor(ctx context.Context, pid string) (*obd.Reading, error) {
	if !s.scanner.Connected() {
		return nil, ErrScannerNotConnected
	}
	return s.scanner.ReadSensor(ctx, pid)
}

// DTCDetail is a stored trouble code with its lookup metadata.
type DTCDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Known       bool   `json:"known"`
}

// ReadDTCs reads stored trouble codes and annotates each with its
// description, category and severity.
func (s *DiagnosticsService) ReadDTCs(ctx context.Context) ([]DTCDetail, error) {
	if !s.scanner.Connected() {
		return nil, ErrScannerNotConnected
	}

	codes, err := s.scanner.ReadDTCs(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]DTCDetail, 0, len(codes))
	for _, code := range codes {
		details = append(details, describeDTC(code))
	}
	return details, nil
}

// LookupDTC resolves a trouble code without touching the scanner.
func (s *DiagnosticsService) LookupDTC(code string) (DTCDetail, error) {
	normalized := dtc.Normalize(code)
	if !dtc.IsValid(normalized) {
		return DTCDetail{}, fmt.Errorf("%w: %q", ErrInvalidDTC, code)
	}
	return describeDTC(normalized), nil
}

// ManualDataInput defines manually entered diagnostic data.
type ManualDataInput struct {
	VIN        string
	DTCCodes   []string
	SensorData map[string]any
}

// ManualDataResult annotates manual data with code lookups and, when a
// VIN was supplied, decoded vehicle attributes.
type ManualDataResult struct {
	Codes      []DTCDetail       `json:"codes"`
	Vehicle    map[string]string `json:"vehicle,omitempty"`
	SensorData map[string]any    `json:"sensor_data,omitempty"`
}

// DescribeManualData resolves user-entered trouble codes and optional VIN
// without touching the scanner. An unreachable decode service leaves the
// vehicle section empty rather than failing the whole request.
func (s *DiagnosticsService) DescribeManualData(ctx context.Context, input ManualDataInput) (*ManualDataResult, error) {
	rawVIN := strings.TrimSpace(input.VIN)
	if len(input.DTCCodes) == 0 && len(input.SensorData) == 0 && rawVIN == "" {
		return nil, ErrNoDiagnosticData
	}

	result := &ManualDataResult{
		Codes:      make([]DTCDetail, 0, len(input.DTCCodes)),
		SensorData: input.SensorData,
	}

	for _, code := range input.DTCCodes {
		normalized := dtc.Normalize(code)
		if !dtc.IsValid(normalized) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDTC, code)
		}
		result.Codes = append(result.Codes, describeDTC(normalized))
	}

	if rawVIN != "" && s.decoder != nil {
		decoded, err := s.decoder.Decode(ctx, rawVIN)
		switch {
		case err == nil:
			result.Vehicle = decoded.Info()
		case errors.Is(err, vin.ErrInvalidVIN):
			return nil, err
		default:
			s.logger.Warn("manual data vin decode failed", "error", err)
		}
	}

	return result, nil
}

// VehicleInfo reads mode 09 identification from the connected vehicle.
func (s *DiagnosticsService) VehicleInfo(ctx context.Context) (*obd.VehicleIdent, error) {
	if !s.scanner.Connected() {
		return nil, ErrScannerNotConnected
	}
	return s.scanner.VehicleIdent(ctx)
}

// StartScan creates a scan session and queues it for the background
// worker. The session is immediately readable in running state.
func (s *DiagnosticsService) StartScan(ctx context.Context, name string, cfg model.ScanConfig) (*model.ScanSession, error) {
	if !s.scanner.Connected() {
		return nil, ErrScannerNotConnected
	}
	if !cfg.IncludeSensors && !cfg.IncludeDTC && !cfg.IncludeVehicleInfo {
		cfg = model.ScanConfig{IncludeSensors: true, IncludeDTC: true}
	}

	session := &model.ScanSession{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Status:    model.ScanStatusRunning,
		Config:    cfg,
		Data:      map[string]any{},
		StartedAt: time.Now().UTC(),
	}
	if session.Name == "" {
		session.Name = "scan-" + session.StartedAt.Format("20060102-150405")
	}

	if err := s.cache.SetScanSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.worker.Enqueue(session.ID); err != nil {
		session.Status = model.ScanStatusFailed
		session.Error = err.Error()
		if storeErr := s.cache.SetScanSession(ctx, session); storeErr != nil {
			s.logger.Error("failed to mark scan session failed", "error", storeErr)
		}
		return nil, err
	}

	s.logger.Info("scan session queued", "session_id", session.ID)
	return session, nil
}

// GetScan retrieves a scan session's current state.
func (s *DiagnosticsService) GetScan(ctx context.Context, id string) (*model.ScanSession, error) {
	session, err := s.cache.GetScanSession(ctx, id)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListScans returns the IDs of scan sessions still within their TTL.
func (s *DiagnosticsService) ListScans(ctx context.Context) ([]string, error) {
	return s.cache.ListScanSessionIDs(ctx)
}

// SaveSessionInput defines input for saving a diagnostic session.
// DTC codes and sensor data may come from a scan or be entered manually.
type SaveSessionInput struct {
	UserID      string
	VehicleID   string
	DTCCodes    []string
	SensorData  map[string]any
	SessionName string
	Notes       string
}

// SaveSession persists a diagnostic snapshot for later review.
func (s *DiagnosticsService) SaveSession(ctx context.Context, input SaveSessionInput) (*model.DiagnosticSession, error) {
	codes := make([]string, 0, len(input.DTCCodes))
	for _, code := range input.DTCCodes {
		normalized := dtc.Normalize(code)
		if !dtc.IsValid(normalized) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDTC, code)
		}
		codes = append(codes, normalized)
	}
	if len(codes) == 0 && len(input.SensorData) == 0 {
		return nil, ErrNoDiagnosticData
	}

	session := &model.DiagnosticSession{
		ID:          newULID(),
		UserID:      input.UserID,
		VehicleID:   input.VehicleID,
		DTCCodes:    codes,
		SensorData:  input.SensorData,
		SessionName: strings.TrimSpace(input.SessionName),
		Notes:       input.Notes,
		SessionDate: time.Now().UTC(),
	}
	if session.SessionName == "" {
		session.SessionName = "session-" + session.SessionDate.Format("20060102-150405")
	}

	if err := s.repo.CreateDiagnosticSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves one of the user's saved diagnostic sessions.
func (s *DiagnosticsService) GetSession(ctx context.Context, userID, id string) (*model.DiagnosticSession, error) {
	session, err := s.repo.GetDiagnosticSession(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListSessions retrieves the user's saved diagnostic sessions, newest first.
func (s *DiagnosticsService) ListSessions(ctx context.Context, userID string, limit int) ([]*model.DiagnosticSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListDiagnosticSessions(ctx, userID, limit)
}

func describeDTC(code string) DTCDetail {
	return DTCDetail{
		Code:        code,
		Description: dtc.Describe(code),
		Category:    dtc.Categorize(code),
		Severity:    dtc.Severity(code),
		Known:       dtc.Known(code),
	}
}
