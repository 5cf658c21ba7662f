package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/obd"
)

var errSessionMissing = errors.New("session missing")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScanner struct {
	connected bool
	readings  map[string]*obd.Reading
	codes     []string
	ident     *obd.VehicleIdent
	dtcErr    error
}

func (f *fakeScanner) Connected() bool { return f.connected }

func (f *fakeScanner) ReadSensor(_ context.Context, pid string) (*obd.Reading, error) {
	if r, ok := f.readings[pid]; ok {
		return r, nil
	}
	return nil, obd.ErrNoData
}

func (f *fakeScanner) ReadDTCs(_ context.Context) ([]string, error) {
	return f.codes, f.dtcErr
}

func (f *fakeScanner) VehicleIdent(_ context.Context) (*obd.VehicleIdent, error) {
	return f.ident, nil
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*model.ScanSession
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*model.ScanSession{}}
}

func (m *memStore) SetScanSession(_ context.Context, s *model.ScanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memStore) GetScanSession(_ context.Context, id string) (*model.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errSessionMissing
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) waitForStatus(t *testing.T, id string, status model.ScanSessionStatus) *model.ScanSession {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		s, ok := m.sessions[id]
		if ok && s.Status == status {
			copied := *s
			m.mu.Unlock()
			return &copied
		}
		m.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached status %s", id, status)
	return nil
}

func startWorker(t *testing.T, scanner Scanner, store Store) *Worker {
	t.Helper()
	w := NewWorker(scanner, store, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		w.Shutdown(shutdownCtx)
	})

	// Wait for Run to mark itself started.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			return w
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker never started")
	return nil
}

func TestWorker_FullScan(t *testing.T) {
	scanner := &fakeScanner{
		connected: true,
		readings: map[string]*obd.Reading{
			"0105": {PID: "0105", Value: 83, Unit: "°C", Description: "Engine Coolant Temperature"},
			"010C": {PID: "010C", Value: 1726, Unit: "rpm", Description: "Engine RPM"},
		},
		codes: []string{"P0420"},
		ident: &obd.VehicleIdent{VIN: "1G1JC5444R7252367", CalibrationIDs: []string{"CAL12345"}},
	}
	store := newMemStore()
	w := startWorker(t, scanner, store)

	session := &model.ScanSession{
		ID:     "scan-1",
		Name:   "full scan",
		Status: model.ScanStatusRunning,
		Config: model.ScanConfig{
			IncludeSensors:     true,
			IncludeDTC:         true,
			IncludeVehicleInfo: true,
		},
		StartedAt: time.Now().UTC(),
	}
	if err := store.SetScanSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	if err := w.Enqueue("scan-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result := store.waitForStatus(t, "scan-1", model.ScanStatusCompleted)

	sensors, ok := result.Data["sensors"].(map[string]any)
	if !ok {
		t.Fatalf("missing sensors in data: %v", result.Data)
	}
	if _, ok := sensors["0105"]; !ok {
		t.Error("coolant reading missing")
	}
	// Unsupported PIDs are skipped, not fatal.
	if _, ok := sensors["010D"]; ok {
		t.Error("unsupported PID should be skipped")
	}

	codes, ok := result.Data["dtc_codes"].([]string)
	if !ok || len(codes) != 1 || codes[0] != "P0420" {
		t.Errorf("dtc_codes = %v", result.Data["dtc_codes"])
	}

	if _, ok := result.Data["vehicle_info"]; !ok {
		t.Error("vehicle info missing")
	}
}

func TestWorker_NotConnectedFails(t *testing.T) {
	store := newMemStore()
	w := startWorker(t, &fakeScanner{connected: false}, store)

	session := &model.ScanSession{
		ID:        "scan-2",
		Status:    model.ScanStatusRunning,
		Config:    model.ScanConfig{IncludeDTC: true},
		StartedAt: time.Now().UTC(),
	}
	if err := store.SetScanSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	if err := w.Enqueue("scan-2"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result := store.waitForStatus(t, "scan-2", model.ScanStatusFailed)
	if result.Error == "" {
		t.Error("failed session should carry an error message")
	}
}

func TestWorker_EnqueueBeforeStart(t *testing.T) {
	t.Parallel()

	w := NewWorker(&fakeScanner{}, newMemStore(), discardLogger(), nil)
	if err := w.Enqueue("scan-3"); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}
