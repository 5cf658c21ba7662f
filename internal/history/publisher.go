// Package history captures chat exchanges through a Redis stream and
// flushes them to Postgres in batches.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driveline/driveline/internal/metrics"
	"github.com/driveline/driveline/internal/model"
)

const (
	// StreamKey is the Redis stream for chat history events.
	StreamKey = "stream:chat_history"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:chat_history:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// RecordPayload is the compressed record format for the Redis stream.
type RecordPayload struct {
	UserID               string                    `json:"u,omitempty"`
	VehicleID            string                    `json:"v,omitempty"`
	Message              string                    `json:"m"`
	Response             string                    `json:"r"`
	Level                string                    `json:"l,omitempty"`
	Context              *model.DiagnosticContext  `json:"c,omitempty"`
	ResponseTimeMs       int64                     `json:"rt"`
	ClassificationMethod string                    `json:"cm"`
	Endpoint             string                    `json:"e"`
	AskedAt              int64                     `json:"t"` // Unix milliseconds
}

// ValidatePayload rejects records that cannot be persisted.
func ValidatePayload(p RecordPayload) error {
	if p.Message == "" {
		return errors.New("message is required")
	}
	if p.ClassificationMethod == "" {
		return errors.New("classification method is required")
	}
	if p.AskedAt <= 0 {
		return errors.New("timestamp is required")
	}
	return nil
}

// Publisher enqueues chat records to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new history publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "history.publisher"),
		metrics: recorder,
	}
}

// Publish adds a chat record to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, record RecordPayload) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(record RecordPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, record)
		if err != nil {
			p.logger.Warn("failed to publish chat record",
				"endpoint", record.Endpoint,
				"error", err,
			)
			p.metrics.IncHistoryEventPublished("dropped")
			return
		}

		p.logger.Debug("chat record published",
			"endpoint", record.Endpoint,
			"stream_id", streamID,
		)
		p.metrics.IncHistoryEventPublished("success")
	}()
}
