// Package scan runs background scan sessions against the connected
// scanner and records their progress in Redis.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driveline/driveline/internal/dtc"
	"github.com/driveline/driveline/internal/metrics"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/obd"
)

// Worker errors.
var (
	ErrQueueFull  = errors.New("scan queue is full")
	ErrNotRunning = errors.New("scan worker is not running")
)

const (
	// queueSize bounds pending scan jobs. The serial link runs one scan
	// at a time so a deep queue only adds latency.
	queueSize = 8

	// jobTimeout bounds one full scan.
	jobTimeout = 60 * time.Second
)

// Scanner is the subset of the ELM327 scanner the worker needs.
type Scanner interface {
	Connected() bool
	ReadSensor(ctx context.Context, pid string) (*obd.Reading, error)
	ReadDTCs(ctx context.Context) ([]string, error)
	VehicleIdent(ctx context.Context) (*obd.VehicleIdent, error)
}

// Store persists scan sessions. Implemented by internal/cache.
type Store interface {
	SetScanSession(ctx context.Context, session *model.ScanSession) error
	GetScanSession(ctx context.Context, id string) (*model.ScanSession, error)
}

// Worker executes scan sessions one at a time off a job queue.
type Worker struct {
	scanner Scanner
	store   Store
	logger  *slog.Logger
	metrics metrics.Recorder

	jobs chan string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a scan worker.
func NewWorker(scanner Scanner, store Store, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		scanner: scanner,
		store:   store,
		logger:  logger.With("component", "scan.worker"),
		metrics: recorder,
		jobs:    make(chan string, queueSize),
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	w.logger.Info("scan worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("scan worker stopping")
			return ctx.Err()
		case sessionID := <-w.jobs:
			w.runScan(ctx, sessionID)
		}
	}
}

// Shutdown stops the worker, letting an in-flight scan finish.
// It implements server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Enqueue schedules a stored session for scanning.
func (w *Worker) Enqueue(sessionID string) error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return ErrNotRunning
	}

	select {
	case w.jobs <- sessionID:
		w.metrics.IncScanStarted()
		return nil
	default:
		return ErrQueueFull
	}
}

// runScan executes one scan session and records the outcome.
func (w *Worker) runScan(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	session, err := w.store.GetScanSession(ctx, sessionID)
	if err != nil {
		w.logger.Error("scan session not found", "session_id", sessionID, "error", err)
		return
	}

	start := time.Now()
	data, err := w.collect(ctx, session.Config)
	session.Data = data

	if err != nil {
		session.Status = model.ScanStatusFailed
		session.Error = err.Error()
		w.metrics.IncScanFinished("failed")
		w.logger.Warn("scan failed",
			"session_id", sessionID,
			"error", err,
		)
	} else {
		session.Status = model.ScanStatusCompleted
		w.metrics.IncScanFinished("completed")
		w.logger.Info("scan completed",
			"session_id", sessionID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	// Persist with a fresh context; the job context may be expired.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer storeCancel()
	if err := w.store.SetScanSession(storeCtx, session); err != nil {
		w.logger.Error("failed to store scan result", "session_id", sessionID, "error", err)
	}
}

// collect gathers the data selected by the scan config.
func (w *Worker) collect(ctx context.Context, cfg model.ScanConfig) (map[string]any, error) {
	if !w.scanner.Connected() {
		return nil, obd.ErrNotConnected
	}

	data := map[string]any{}

	if cfg.IncludeSensors {
		sensors := map[string]any{}
		for _, pid := range obd.CommonPIDs {
			reading, err := w.scanner.ReadSensor(ctx, pid)
			if err != nil {
				// Vehicles do not support every PID; skip and move on.
				if errors.Is(err, obd.ErrNoData) || errors.Is(err, obd.ErrUnsupportedPID) {
					continue
				}
				return data, fmt.Errorf("read sensor %s: %w", pid, err)
			}
			sensors[pid] = map[string]any{
				"value":       reading.Value,
				"unit":        reading.Unit,
				"description": reading.Description,
			}
		}
		data["sensors"] = sensors
	}

	if cfg.IncludeDTC {
		codes, err := w.scanner.ReadDTCs(ctx)
		if err != nil {
			return data, fmt.Errorf("read trouble codes: %w", err)
		}
		details := make([]map[string]string, 0, len(codes))
		for _, code := range codes {
			details = append(details, map[string]string{
				"code":        code,
				"description": dtc.Describe(code),
				"category":    dtc.Categorize(code),
				"severity":    dtc.Severity(code),
			})
		}
		data["dtc_codes"] = codes
		data["dtc_details"] = details
	}

	if cfg.IncludeVehicleInfo {
		ident, err := w.scanner.VehicleIdent(ctx)
		if err != nil {
			return data, fmt.Errorf("read vehicle info: %w", err)
		}
		data["vehicle_info"] = map[string]any{
			"vin":             ident.VIN,
			"calibration_ids": ident.CalibrationIDs,
		}
	}

	return data, nil
}
