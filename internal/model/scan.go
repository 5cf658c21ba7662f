package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// ScanSessionStatus represents the lifecycle state of a scan session.
type ScanSessionStatus string

const (
	ScanStatusRunning   ScanSessionStatus = "running"
	ScanStatusCompleted ScanSessionStatus = "completed"
	ScanStatusFailed    ScanSessionStatus = "failed"
)

// ScanConfig selects which data a scan session collects.
type ScanConfig struct {
	IncludeSensors     bool `json:"include_sensors"`
	IncludeDTC         bool `json:"include_dtc"`
	IncludeVehicleInfo bool `json:"include_vehicle_info"`
}

// ScanSession is a background scan of the connected scanner.
// Sessions live in Redis so results survive restarts and are visible
// to every replica.
type ScanSession struct {
	ID        string            `json:"session_id"`
	Name      string            `json:"session_name"`
	Status    ScanSessionStatus `json:"status"`
	Config    ScanConfig        `json:"config"`
	Data      map[string]any    `json:"data"`
	Error     string            `json:"error,omitempty"`
	StartedAt time.Time         `json:"timestamp"`
}

// CachedScanSession is the Redis hash representation of a scan session.
// Uses string types for Redis hash compatibility.
type CachedScanSession struct {
	Name      string `redis:"name"`
	Status    string `redis:"status"`
	Config    string `redis:"config"`  // JSON
	Data      string `redis:"data"`    // JSON
	Error     string `redis:"error"`   // empty unless failed
	StartedAt string `redis:"started"` // Unix timestamp
}

// ToScanSession converts the cached form back to the domain model.
func (c *CachedScanSession) ToScanSession(id string) (*ScanSession, error) {
	s := &ScanSession{
		ID:     id,
		Name:   c.Name,
		Status: ScanSessionStatus(c.Status),
		Error:  c.Error,
		Data:   map[string]any{},
	}

	if c.Config != "" {
		if err := json.Unmarshal([]byte(c.Config), &s.Config); err != nil {
			return nil, err
		}
	}
	if c.Data != "" {
		if err := json.Unmarshal([]byte(c.Data), &s.Data); err != nil {
			return nil, err
		}
	}
	if c.StartedAt != "" {
		ts, err := strconv.ParseInt(c.StartedAt, 10, 64)
		if err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(ts, 0).UTC()
	}

	return s, nil
}

// ToCachedScanSession converts the session to its Redis hash form.
func (s *ScanSession) ToCachedScanSession() (*CachedScanSession, error) {
	cfg, err := json.Marshal(s.Config)
	if err != nil {
		return nil, err
	}

	data := s.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &CachedScanSession{
		Name:      s.Name,
		Status:    string(s.Status),
		Config:    string(cfg),
		Data:      string(payload),
		Error:     s.Error,
		StartedAt: strconv.FormatInt(s.StartedAt.Unix(), 10),
	}, nil
}
