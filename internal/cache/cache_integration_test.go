//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/testutil"
	"github.com/driveline/driveline/internal/vin"
)

func newTestCache(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	return ctx, c
}

func TestIntegrationScanSession_RoundTrip(t *testing.T) {
	ctx, c := newTestCache(t)

	session := &model.ScanSession{
		ID:     testutil.UniqueID("scan"),
		Name:   "full scan",
		Status: model.ScanStatusRunning,
		Config: model.ScanConfig{IncludeSensors: true, IncludeDTC: true},
		Data: map[string]any{
			"dtc_codes": []any{"P0420"},
		},
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := c.SetScanSession(ctx, session); err != nil {
		t.Fatalf("SetScanSession: %v", err)
	}

	retrieved, err := c.GetScanSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetScanSession: %v", err)
	}
	if retrieved.Status != model.ScanStatusRunning {
		t.Errorf("status = %s", retrieved.Status)
	}
	if !retrieved.Config.IncludeSensors || !retrieved.Config.IncludeDTC {
		t.Errorf("config = %+v", retrieved.Config)
	}
	if !retrieved.StartedAt.Equal(session.StartedAt) {
		t.Errorf("started_at = %v, want %v", retrieved.StartedAt, session.StartedAt)
	}

	ids, err := c.ListScanSessionIDs(ctx)
	if err != nil {
		t.Fatalf("ListScanSessionIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != session.ID {
		t.Errorf("ids = %v", ids)
	}
}

func TestIntegrationScanSession_Miss(t *testing.T) {
	ctx, c := newTestCache(t)

	if _, err := c.GetScanSession(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestIntegrationVINDecodeCache_RoundTrip(t *testing.T) {
	ctx, c := newTestCache(t)

	decoded := &vin.DecodedVehicle{
		Make:      "TOYOTA",
		Model:     "Camry",
		ModelYear: "2020",
	}
	c.SetVINDecode(ctx, "4T1B11HK5KU000000", decoded)

	got, ok := c.GetVINDecode(ctx, "4T1B11HK5KU000000")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Make != "TOYOTA" || got.ModelYear != "2020" {
		t.Errorf("decoded = %+v", got)
	}

	if _, ok := c.GetVINDecode(ctx, "5YJ3E1EA0KF000000"); ok {
		t.Error("expected cache miss for unseen VIN")
	}
}

func TestIntegrationClassificationCache_RoundTrip(t *testing.T) {
	ctx, c := newTestCache(t)

	c.SetClassification(ctx, "key1", true)
	c.SetClassification(ctx, "key2", false)

	if got, ok := c.GetClassification(ctx, "key1"); !ok || !got {
		t.Errorf("key1 = %v, %v", got, ok)
	}
	if got, ok := c.GetClassification(ctx, "key2"); !ok || got {
		t.Errorf("key2 = %v, %v", got, ok)
	}
	if _, ok := c.GetClassification(ctx, "unseen"); ok {
		t.Error("expected miss for unseen key")
	}
}

func TestIntegrationMagicLinkLimit_Window(t *testing.T) {
	ctx, c := newTestCache(t)

	const limit = 3
	for i := 0; i < limit; i++ {
		result, err := c.CheckMagicLinkLimit(ctx, "limited@example.com", limit, time.Minute)
		if err != nil {
			t.Fatalf("CheckMagicLinkLimit: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	result, err := c.CheckMagicLinkLimit(ctx, "limited@example.com", limit, time.Minute)
	if err != nil {
		t.Fatalf("CheckMagicLinkLimit: %v", err)
	}
	if result.Allowed {
		t.Error("request over the limit should be denied")
	}
	if result.RetryAfter <= 0 {
		t.Errorf("retry_after = %v", result.RetryAfter)
	}

	// A different address has its own window.
	other, err := c.CheckMagicLinkLimit(ctx, "fresh@example.com", limit, time.Minute)
	if err != nil {
		t.Fatalf("CheckMagicLinkLimit: %v", err)
	}
	if !other.Allowed {
		t.Error("other address should not share the window")
	}
}
