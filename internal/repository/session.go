package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/driveline/driveline/internal/model"
)

// Common errors for diagnostic session repository operations.
var (
	ErrSessionNotFound = errors.New("diagnostic session not found")
)

// CreateDiagnosticSession saves a diagnostic snapshot.
func (r *Repository) CreateDiagnosticSession(ctx context.Context, session *model.DiagnosticSession) error {
	sensorData, err := json.Marshal(session.SensorData)
	if err != nil {
		return fmt.Errorf("marshal sensor data: %w", err)
	}

	query := `
		INSERT INTO diagnostic_sessions (id, user_id, vehicle_id, dtc_codes, sensor_data, session_name, notes, session_date)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.VehicleID,
		pq.Array(session.DTCCodes),
		sensorData,
		session.SessionName,
		session.Notes,
		session.SessionDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create diagnostic session: %w", err)
	}

	return nil
}

// GetDiagnosticSession retrieves one of the user's diagnostic sessions.
func (r *Repository) GetDiagnosticSession(ctx context.Context, userID, id string) (*model.DiagnosticSession, error) {
	query := `
		SELECT id, user_id, COALESCE(vehicle_id, ''), dtc_codes, sensor_data, session_name, notes, session_date
		FROM diagnostic_sessions
		WHERE id = $1 AND user_id = $2
	`

	session, err := scanDiagnosticSession(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get diagnostic session: %w", err)
	}

	return session, nil
}

// ListDiagnosticSessions retrieves the user's saved sessions, newest first.
func (r *Repository) ListDiagnosticSessions(ctx context.Context, userID string, limit int) ([]*model.DiagnosticSession, error) {
	query := `
		SELECT id, user_id, COALESCE(vehicle_id, ''), dtc_codes, sensor_data, session_name, notes, session_date
		FROM diagnostic_sessions
		WHERE user_id = $1
		ORDER BY session_date DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnostic sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.DiagnosticSession
	for rows.Next() {
		session, err := scanDiagnosticSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostic sessions: %w", err)
	}

	return sessions, nil
}

func scanDiagnosticSession(row pgx.Row) (*model.DiagnosticSession, error) {
	var session model.DiagnosticSession
	var sensorData []byte

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.VehicleID,
		pq.Array(&session.DTCCodes),
		&sensorData,
		&session.SessionName,
		&session.Notes,
		&session.SessionDate,
	)
	if err != nil {
		return nil, err
	}

	if len(sensorData) > 0 {
		if err := json.Unmarshal(sensorData, &session.SensorData); err != nil {
			return nil, fmt.Errorf("unmarshal sensor data: %w", err)
		}
	}

	return &session, nil
}
