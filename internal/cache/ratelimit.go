package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// magicLinkLimitPrefix is the Redis key prefix for magic link request
	// counters, keyed by hashed email address.
	magicLinkLimitPrefix = "ratelimit:magiclink:"
)

// MagicLinkLimitResult is the outcome of a magic link rate limit check.
type MagicLinkLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// fixedWindowScript counts requests in a fixed window. The first request
// in a window sets the expiry; the TTL doubles as the retry hint.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local count = redis.call('INCR', key)
	if count == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if count > limit then
		return {0, 0, ttl}
	end
	return {1, limit - count, ttl}
`)

// CheckMagicLinkLimit enforces the per-email magic link request limit.
// Fails open on Redis errors so sign-in never hard-depends on Redis.
func (c *Cache) CheckMagicLinkLimit(ctx context.Context, email string, limit int, window time.Duration) (*MagicLinkLimitResult, error) {
	key := magicLinkLimitPrefix + hashEmail(email)

	result, err := fixedWindowScript.Run(ctx, c.client,
		[]string{key},
		limit, int(window.Seconds()),
	).Int64Slice()
	if err != nil {
		return &MagicLinkLimitResult{Allowed: true, Remaining: int64(limit)}, nil
	}
	if len(result) != 3 {
		return nil, fmt.Errorf("unexpected rate limit script result: %v", result)
	}

	return &MagicLinkLimitResult{
		Allowed:    result[0] == 1,
		Remaining:  result[1],
		RetryAfter: time.Duration(result[2]) * time.Second,
	}, nil
}

// hashEmail creates a truncated SHA256 hash of an email address so raw
// addresses never appear in Redis keys.
func hashEmail(email string) string {
	hash := sha256.Sum256([]byte(email))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
