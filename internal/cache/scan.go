package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/driveline/driveline/internal/model"
)

const (
	scanKeyPrefix = "scan:"

	// ScanSessionTTL is how long scan session results stay readable after
	// the scan starts.
	ScanSessionTTL = time.Hour
)

// GetScanSession retrieves a scan session by ID.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetScanSession(ctx context.Context, id string) (*model.ScanSession, error) {
	key := scanKeyPrefix + id

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedScanSession{
		Name:      result["name"],
		Status:    result["status"],
		Config:    result["config"],
		Data:      result["data"],
		Error:     result["error"],
		StartedAt: result["started"],
	}

	session, err := cached.ToScanSession(id)
	if err != nil {
		return nil, fmt.Errorf("decode scan session: %w", err)
	}
	return session, nil
}

// SetScanSession stores a scan session, refreshing its TTL.
func (c *Cache) SetScanSession(ctx context.Context, session *model.ScanSession) error {
	cached, err := session.ToCachedScanSession()
	if err != nil {
		return fmt.Errorf("encode scan session: %w", err)
	}

	key := scanKeyPrefix + session.ID
	fields := map[string]any{
		"name":    cached.Name,
		"status":  cached.Status,
		"config":  cached.Config,
		"data":    cached.Data,
		"started": cached.StartedAt,
	}
	if cached.Error != "" {
		fields["error"] = cached.Error
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ScanSessionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache scan session: %w", err)
	}
	return nil
}

// ListScanSessionIDs returns the IDs of all live scan sessions.
func (c *Cache) ListScanSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64

	for {
		keys, next, err := c.client.Scan(ctx, cursor, scanKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan session keys: %w", err)
		}
		for _, key := range keys {
			if len(key) > len(scanKeyPrefix) {
				ids = append(ids, key[len(scanKeyPrefix):])
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return ids, nil
}
