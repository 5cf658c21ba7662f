//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/testutil"
)

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func mustCreateUser(t *testing.T, ctx context.Context, repo *Repository) *model.User {
	t.Helper()
	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

// ============================================================================
// Users
// ============================================================================

func TestIntegrationUserRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newTestEnv(t)

	user := testutil.NewTestUser(t)
	user.Email = "Mixed.Case@Example.COM"
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	retrieved, err := repo.GetUserByEmail(ctx, "mixed.case@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if retrieved.ID != user.ID {
		t.Errorf("ID = %q, want %q", retrieved.ID, user.ID)
	}

	byID, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != "mixed.case@example.com" {
		t.Errorf("email stored as %q, should be lowercased", byID.Email)
	}
}

func TestIntegrationUserRepository_NotFound(t *testing.T) {
	ctx, repo := newTestEnv(t)

	if _, err := repo.GetUserByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

// ============================================================================
// Vehicles
// ============================================================================

func TestIntegrationVehicleRepository_SinglePrimary(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	first := testutil.NewTestVehicle(t, user.ID)
	first.IsPrimary = true
	if err := repo.CreateVehicle(ctx, first); err != nil {
		t.Fatalf("CreateVehicle (first): %v", err)
	}

	second := testutil.NewTestVehicle(t, user.ID)
	second.IsPrimary = true
	if err := repo.CreateVehicle(ctx, second); err != nil {
		t.Fatalf("CreateVehicle (second): %v", err)
	}

	primary, err := repo.GetPrimaryVehicle(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetPrimaryVehicle: %v", err)
	}
	if primary.ID != second.ID {
		t.Errorf("primary = %q, want the newest primary %q", primary.ID, second.ID)
	}

	vehicles, err := repo.ListVehicles(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	primaries := 0
	for _, v := range vehicles {
		if v.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Errorf("primaries = %d, want exactly one", primaries)
	}
}

func TestIntegrationVehicleRepository_SetPrimary(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	a := testutil.NewTestVehicle(t, user.ID)
	a.IsPrimary = true
	b := testutil.NewTestVehicle(t, user.ID)
	for _, v := range []*model.Vehicle{a, b} {
		if err := repo.CreateVehicle(ctx, v); err != nil {
			t.Fatalf("CreateVehicle: %v", err)
		}
	}

	if err := repo.SetPrimaryVehicle(ctx, user.ID, b.ID); err != nil {
		t.Fatalf("SetPrimaryVehicle: %v", err)
	}

	primary, err := repo.GetPrimaryVehicle(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetPrimaryVehicle: %v", err)
	}
	if primary.ID != b.ID {
		t.Errorf("primary = %q, want %q", primary.ID, b.ID)
	}

	if err := repo.SetPrimaryVehicle(ctx, user.ID, "missing"); !errors.Is(err, ErrVehicleNotFound) {
		t.Errorf("expected ErrVehicleNotFound, got %v", err)
	}
}

func TestIntegrationVehicleRepository_DuplicateVIN(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	first := testutil.NewTestVehicle(t, user.ID)
	if err := repo.CreateVehicle(ctx, first); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	dup := testutil.NewTestVehicle(t, user.ID)
	dup.VIN = first.VIN
	if err := repo.CreateVehicle(ctx, dup); !errors.Is(err, ErrVINExists) {
		t.Errorf("expected ErrVINExists, got %v", err)
	}
}

func TestIntegrationVehicleRepository_Delete(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	vehicle := testutil.NewTestVehicle(t, user.ID)
	if err := repo.CreateVehicle(ctx, vehicle); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	if err := repo.DeleteVehicle(ctx, user.ID, vehicle.ID); err != nil {
		t.Fatalf("DeleteVehicle: %v", err)
	}
	if _, err := repo.GetVehicle(ctx, user.ID, vehicle.ID); !errors.Is(err, ErrVehicleNotFound) {
		t.Errorf("expected ErrVehicleNotFound after delete, got %v", err)
	}
}

// ============================================================================
// Magic link tokens
// ============================================================================

func TestIntegrationTokenRepository_Lifecycle(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	token := &model.MagicLinkToken{
		ID:          testutil.UniqueID("tok"),
		UserID:      user.ID,
		Email:       user.Email,
		TokenPrefix: "abc123",
		TokenHash:   "$argon2id$fake",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreateMagicLinkToken(ctx, token); err != nil {
		t.Fatalf("CreateMagicLinkToken: %v", err)
	}

	found, err := repo.GetMagicLinkTokensByPrefix(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetMagicLinkTokensByPrefix: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d tokens, want 1", len(found))
	}

	if err := repo.MarkTokenUsed(ctx, token.ID); err != nil {
		t.Fatalf("MarkTokenUsed: %v", err)
	}
	// Second redemption must fail.
	if err := repo.MarkTokenUsed(ctx, token.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound on double redeem, got %v", err)
	}

	// Used tokens are not returned by prefix lookup.
	found, err = repo.GetMagicLinkTokensByPrefix(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetMagicLinkTokensByPrefix: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("used token still returned: %+v", found)
	}
}

func TestIntegrationTokenRepository_InvalidateAndExpire(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	live := &model.MagicLinkToken{
		ID: testutil.UniqueID("tok"), UserID: user.ID, Email: user.Email,
		TokenPrefix: "live01", TokenHash: "h1",
		ExpiresAt: time.Now().Add(15 * time.Minute), CreatedAt: time.Now().UTC(),
	}
	expired := &model.MagicLinkToken{
		ID: testutil.UniqueID("tok"), UserID: user.ID, Email: user.Email,
		TokenPrefix: "dead01", TokenHash: "h2",
		ExpiresAt: time.Now().Add(-time.Minute), CreatedAt: time.Now().UTC(),
	}
	for _, tok := range []*model.MagicLinkToken{live, expired} {
		if err := repo.CreateMagicLinkToken(ctx, tok); err != nil {
			t.Fatalf("CreateMagicLinkToken: %v", err)
		}
	}

	if err := repo.InvalidateUserTokens(ctx, user.ID); err != nil {
		t.Fatalf("InvalidateUserTokens: %v", err)
	}
	found, err := repo.GetMagicLinkTokensByPrefix(ctx, "live01")
	if err != nil {
		t.Fatalf("GetMagicLinkTokensByPrefix: %v", err)
	}
	if len(found) != 0 {
		t.Error("invalidated token still returned")
	}

	deleted, err := repo.DeleteExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredTokens: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

// ============================================================================
// Diagnostic sessions
// ============================================================================

func TestIntegrationSessionRepository_CreateAndList(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	session := testutil.NewTestDiagnosticSession(t, user.ID)
	if err := repo.CreateDiagnosticSession(ctx, session); err != nil {
		t.Fatalf("CreateDiagnosticSession: %v", err)
	}

	retrieved, err := repo.GetDiagnosticSession(ctx, user.ID, session.ID)
	if err != nil {
		t.Fatalf("GetDiagnosticSession: %v", err)
	}
	if len(retrieved.DTCCodes) != 2 || retrieved.DTCCodes[0] != "P0420" {
		t.Errorf("dtc_codes = %v", retrieved.DTCCodes)
	}
	if retrieved.SensorData["0105"] == nil {
		t.Errorf("sensor_data = %v", retrieved.SensorData)
	}

	sessions, err := repo.ListDiagnosticSessions(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListDiagnosticSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(sessions))
	}

	// Another user's sessions are not visible.
	other := mustCreateUser(t, ctx, repo)
	if _, err := repo.GetDiagnosticSession(ctx, other.ID, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for other user, got %v", err)
	}
}

// ============================================================================
// Chat history
// ============================================================================

func TestIntegrationChatRepository_BatchInsertAndStats(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	records := []*model.ChatRecord{
		testutil.NewTestChatRecord(t, user.ID),
		testutil.NewTestChatRecord(t, user.ID),
	}
	records[1].ClassificationMethod = "llm"
	records[1].ResponseTimeMs = 900

	if err := repo.InsertChatRecords(ctx, records); err != nil {
		t.Fatalf("InsertChatRecords: %v", err)
	}

	// Re-inserting the same IDs is a no-op.
	if err := repo.InsertChatRecords(ctx, records); err != nil {
		t.Fatalf("InsertChatRecords (duplicate): %v", err)
	}

	listed, err := repo.ListChatRecords(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListChatRecords: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("records = %d, want 2", len(listed))
	}

	stats, err := repo.GetChatStats(ctx)
	if err != nil {
		t.Fatalf("GetChatStats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByMethod["instant"] != 1 || stats.ByMethod["llm"] != 1 {
		t.Errorf("by_method = %v", stats.ByMethod)
	}
}

// ============================================================================
// Orchestration sessions
// ============================================================================

func TestIntegrationOrchestrationRepository_Upsert(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	now := time.Now().UTC()
	session := &model.OrchestrationSession{
		ID:        testutil.UniqueID("orch"),
		UserID:    user.ID,
		Complaint: "rough idle",
		State:     model.StatePlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.SaveOrchestrationSession(ctx, session); err != nil {
		t.Fatalf("SaveOrchestrationSession: %v", err)
	}

	session.Transition(model.StateCompleted)
	if err := repo.SaveOrchestrationSession(ctx, session); err != nil {
		t.Fatalf("SaveOrchestrationSession (update): %v", err)
	}

	retrieved, err := repo.GetOrchestrationSession(ctx, user.ID, session.ID)
	if err != nil {
		t.Fatalf("GetOrchestrationSession: %v", err)
	}
	if retrieved.State != model.StateCompleted {
		t.Errorf("state = %s", retrieved.State)
	}
	if retrieved.Complaint != "rough idle" {
		t.Errorf("complaint = %q", retrieved.Complaint)
	}

	if _, err := repo.GetOrchestrationSession(ctx, user.ID, "missing"); !errors.Is(err, ErrOrchestrationNotFound) {
		t.Errorf("expected ErrOrchestrationNotFound, got %v", err)
	}
}
