package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/driveline/driveline/internal/model"
)

// Common errors for orchestration repository operations.
var (
	ErrOrchestrationNotFound = errors.New("orchestration session not found")
)

// SaveOrchestrationSession upserts a diagnosis session snapshot. The
// whole session is stored as one JSONB document keyed by ID.
func (r *Repository) SaveOrchestrationSession(ctx context.Context, session *model.OrchestrationSession) error {
	snapshot, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal orchestration session: %w", err)
	}

	query := `
		INSERT INTO orchestration_sessions (id, user_id, state, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		string(session.State),
		snapshot,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save orchestration session: %w", err)
	}

	return nil
}

// GetOrchestrationSession retrieves one of the user's diagnosis sessions.
func (r *Repository) GetOrchestrationSession(ctx context.Context, userID, id string) (*model.OrchestrationSession, error) {
	query := `
		SELECT snapshot
		FROM orchestration_sessions
		WHERE id = $1 AND user_id = $2
	`

	var snapshot []byte
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrchestrationNotFound
		}
		return nil, fmt.Errorf("failed to get orchestration session: %w", err)
	}

	var session model.OrchestrationSession
	if err := json.Unmarshal(snapshot, &session); err != nil {
		return nil, fmt.Errorf("unmarshal orchestration session: %w", err)
	}

	return &session, nil
}

// ListOrchestrationSessions retrieves the user's sessions, newest first.
func (r *Repository) ListOrchestrationSessions(ctx context.Context, userID string, limit int) ([]*model.OrchestrationSession, error) {
	query := `
		SELECT snapshot
		FROM orchestration_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orchestration sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.OrchestrationSession
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan orchestration session: %w", err)
		}

		var session model.OrchestrationSession
		if err := json.Unmarshal(snapshot, &session); err != nil {
			return nil, fmt.Errorf("unmarshal orchestration session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orchestration sessions: %w", err)
	}

	return sessions, nil
}
