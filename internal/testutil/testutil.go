// Package testutil provides helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/driveline/driveline/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 271828

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// migrationOrder lists migrations from base tables to dependents.
// Down migrations run in reverse.
var migrationOrder = []string{
	"000001_create_users",
	"000002_create_vehicles",
	"000003_create_magic_link_tokens",
	"000004_create_diagnostic_sessions",
	"000005_create_chat_history",
	"000006_create_orchestration_sessions",
}

// ResetSchema drops and recreates every table for tests.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	for i := len(migrationOrder) - 1; i >= 0; i-- {
		if err := applyMigration(ctx, pool, root, migrationOrder[i]+".down.sql"); err != nil {
			return err
		}
	}
	for _, name := range migrationOrder {
		if err := applyMigration(ctx, pool, root, name+".up.sql"); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, root, file string) error {
	sql, err := os.ReadFile(filepath.Join(root, "migrations", file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", file, err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test user with sensible defaults.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ID:        UniqueID("usr"),
		Email:     fmt.Sprintf("driver-%d@example.com", now.UnixNano()),
		Name:      "Test Driver",
		CreatedAt: now,
	}
}

// NewTestVehicle creates a test vehicle for the given user.
// The VIN is unique per call and passes validation.
func NewTestVehicle(t testing.TB, userID string) *model.Vehicle {
	t.Helper()
	now := time.Now().UTC()
	return &model.Vehicle{
		ID:          UniqueID("veh"),
		UserID:      userID,
		VIN:         UniqueVIN(),
		Make:        "HONDA",
		Model:       "Civic",
		Year:        2019,
		VehicleType: "PASSENGER CAR",
		CreatedAt:   now,
	}
}

// NewTestChatRecord creates a persisted chat record for tests.
func NewTestChatRecord(t testing.TB, userID string) *model.ChatRecord {
	t.Helper()
	now := time.Now().UTC()
	return &model.ChatRecord{
		ID:                   UniqueID("chat"),
		UserID:               userID,
		Message:              "what does P0420 mean?",
		Response:             "Catalyst system efficiency below threshold.",
		Level:                model.LevelBeginner,
		ResponseTimeMs:       120,
		ClassificationMethod: "instant",
		Endpoint:             "/api/chat",
		CreatedAt:            now,
	}
}

// NewTestDiagnosticSession creates a saved diagnostic snapshot for tests.
func NewTestDiagnosticSession(t testing.TB, userID string) *model.DiagnosticSession {
	t.Helper()
	return &model.DiagnosticSession{
		ID:          UniqueID("diag"),
		UserID:      userID,
		DTCCodes:    []string{"P0420", "P0171"},
		SensorData:  map[string]any{"0105": 92.0},
		SessionName: "test session",
		SessionDate: time.Now().UTC(),
	}
}

// UniqueVIN generates a syntactically valid, unique VIN for tests.
func UniqueVIN() string {
	suffix := fmt.Sprintf("%011d", time.Now().UnixNano()%100000000000)
	return "1HGCM8" + suffix
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
