package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/driveline/driveline/internal/model"
)

// InsertChatRecords bulk inserts chat history records. Used by the
// history worker to flush batches from the Redis stream.
func (r *Repository) InsertChatRecords(ctx context.Context, records []*model.ChatRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO chat_history (id, user_id, vehicle_id, message, response, level, context, response_time_ms, classification_method, endpoint, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	for _, rec := range records {
		var contextJSON []byte
		if rec.Context != nil && !rec.Context.IsEmpty() {
			var err error
			contextJSON, err = json.Marshal(rec.Context)
			if err != nil {
				return fmt.Errorf("marshal chat context: %w", err)
			}
		}

		batch.Queue(query,
			rec.ID,
			rec.UserID,
			rec.VehicleID,
			rec.Message,
			rec.Response,
			rec.Level,
			contextJSON,
			rec.ResponseTimeMs,
			rec.ClassificationMethod,
			rec.Endpoint,
			rec.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert chat record: %w", err)
		}
	}

	return nil
}

// ListChatRecords retrieves a user's recent chat history, newest first.
func (r *Repository) ListChatRecords(ctx context.Context, userID string, limit int) ([]*model.ChatRecord, error) {
	query := `
		SELECT id, COALESCE(user_id, ''), COALESCE(vehicle_id, ''), message, response, level, context, response_time_ms, classification_method, endpoint, created_at
		FROM chat_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat records: %w", err)
	}
	defer rows.Close()

	var records []*model.ChatRecord
	for rows.Next() {
		var rec model.ChatRecord
		var contextJSON []byte

		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.VehicleID,
			&rec.Message,
			&rec.Response,
			&rec.Level,
			&contextJSON,
			&rec.ResponseTimeMs,
			&rec.ClassificationMethod,
			&rec.Endpoint,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat record: %w", err)
		}

		if len(contextJSON) > 0 {
			rec.Context = &model.DiagnosticContext{}
			if err := json.Unmarshal(contextJSON, rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal chat context: %w", err)
			}
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat records: %w", err)
	}

	return records, nil
}

// ChatStats aggregates classification methods over stored history.
type ChatStats struct {
	Total     int64            `json:"total"`
	ByMethod  map[string]int64 `json:"by_method"`
	AvgTimeMs float64          `json:"avg_response_time_ms"`
}

// GetChatStats computes classification statistics across all history.
func (r *Repository) GetChatStats(ctx context.Context) (*ChatStats, error) {
	query := `
		SELECT classification_method, COUNT(*), COALESCE(AVG(response_time_ms), 0)
		FROM chat_history
		GROUP BY classification_method
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat stats: %w", err)
	}
	defer rows.Close()

	stats := &ChatStats{ByMethod: map[string]int64{}}
	var weightedTime float64

	for rows.Next() {
		var method string
		var count int64
		var avgTime float64
		if err := rows.Scan(&method, &count, &avgTime); err != nil {
			return nil, fmt.Errorf("failed to scan chat stats: %w", err)
		}
		stats.ByMethod[method] = count
		stats.Total += count
		weightedTime += avgTime * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat stats: %w", err)
	}

	if stats.Total > 0 {
		stats.AvgTimeMs = weightedTime / float64(stats.Total)
	}

	return stats, nil
}
