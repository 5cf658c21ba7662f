package cache

import (
	"context"
	"time"
)

const (
	classifyKeyPrefix = "classify:"

	// ClassificationTTL bounds how long a verdict is reused. Questions are
	// keyed by hash so two users asking the same thing share one verdict.
	ClassificationTTL = time.Hour
)

// GetClassification retrieves a cached classification verdict.
// Implements classify.Cache; errors degrade to a miss.
func (c *Cache) GetClassification(ctx context.Context, key string) (automotive, ok bool) {
	raw, err := c.client.Get(ctx, classifyKeyPrefix+key).Result()
	if err != nil {
		return false, false
	}
	return raw == "1", true
}

// SetClassification stores a classification verdict. Best effort.
func (c *Cache) SetClassification(ctx context.Context, key string, automotive bool) {
	val := "0"
	if automotive {
		val = "1"
	}
	c.client.SetEx(ctx, classifyKeyPrefix+key, val, ClassificationTTL)
}
