//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/repository"
)

const e2eEmail = "e2e@driveline.local"

type vehicleResponse struct {
	ID        string `json:"id"`
	VIN       string `json:"vin"`
	IsPrimary bool   `json:"is_primary"`
}

type vehicleListResponse struct {
	Data []vehicleResponse `json:"data"`
}

type dtcResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Known       bool   `json:"known"`
}

type sessionResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"session_name"`
	DTCCodes []string `json:"dtc_codes"`
}

func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("DRIVELINE_BASE_URL", "http://localhost:8080")
	token := bootstrapSession(t)

	// The session works against the auth surface.
	var status struct {
		Authenticated bool `json:"authenticated"`
	}
	if code := doJSON(t, http.MethodGet, baseURL+"/api/auth/status", token, nil, &status); code != http.StatusOK {
		t.Fatalf("auth status returned %d", code)
	}
	if !status.Authenticated {
		t.Fatal("session token not accepted")
	}

	// Register two vehicles; the second primary demotes the first.
	first := registerVehicle(t, baseURL, token, uniqueVIN(), true)
	second := registerVehicle(t, baseURL, token, uniqueVIN(), true)

	var primary vehicleResponse
	if code := doJSON(t, http.MethodGet, baseURL+"/api/vehicles/primary", token, nil, &primary); code != http.StatusOK {
		t.Fatalf("get primary returned %d", code)
	}
	if primary.ID != second.ID {
		t.Fatalf("primary = %s, want %s", primary.ID, second.ID)
	}

	// Promote the first one back.
	if code := doJSON(t, http.MethodPut, baseURL+"/api/vehicles/"+first.ID+"/primary", token, nil, nil); code != http.StatusOK {
		t.Fatalf("set primary returned %d", code)
	}

	var list vehicleListResponse
	if code := doJSON(t, http.MethodGet, baseURL+"/api/vehicles", token, nil, &list); code != http.StatusOK {
		t.Fatalf("list vehicles returned %d", code)
	}
	if len(list.Data) < 2 {
		t.Fatalf("expected at least 2 vehicles, got %d", len(list.Data))
	}
	if list.Data[0].ID != first.ID || !list.Data[0].IsPrimary {
		t.Fatalf("expected %s primary first in list, got %+v", first.ID, list.Data[0])
	}

	// DTC lookup is public and hits the local table.
	var dtc dtcResponse
	if code := doJSON(t, http.MethodGet, baseURL+"/api/dtc/P0420", "", nil, &dtc); code != http.StatusOK {
		t.Fatalf("dtc lookup returned %d", code)
	}
	if dtc.Code != "P0420" || !dtc.Known || dtc.Description == "" {
		t.Fatalf("unexpected dtc response: %+v", dtc)
	}

	// Save and read back a diagnostic session.
	payload := map[string]any{
		"vehicle_id":   first.ID,
		"session_name": fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
		"dtc_codes":    []string{"P0420", "P0171"},
		"notes":        "captured by e2e smoke test",
	}
	var saved sessionResponse
	if code := doJSON(t, http.MethodPost, baseURL+"/api/sessions", token, payload, &saved); code != http.StatusCreated {
		t.Fatalf("save session returned %d", code)
	}
	if saved.ID == "" || len(saved.DTCCodes) != 2 {
		t.Fatalf("unexpected save response: %+v", saved)
	}

	var fetched sessionResponse
	if code := doJSON(t, http.MethodGet, baseURL+"/api/sessions/"+saved.ID, token, nil, &fetched); code != http.StatusOK {
		t.Fatalf("get session returned %d", code)
	}
	if fetched.ID != saved.ID {
		t.Fatalf("session id = %s, want %s", fetched.ID, saved.ID)
	}

	// Cleanup: delete the vehicles we created.
	for _, id := range []string{second.ID, first.ID} {
		if code := doJSON(t, http.MethodDelete, baseURL+"/api/vehicles/"+id, token, nil, nil); code != http.StatusNoContent {
			t.Errorf("delete vehicle %s returned %d", id, code)
		}
	}
}

// TestE2EChatQuick exercises the anonymous chat path. The assistant needs
// an upstream model key, so 503 is acceptable when none is configured.
func TestE2EChatQuick(t *testing.T) {
	baseURL := envOrDefault("DRIVELINE_BASE_URL", "http://localhost:8080")

	payload := map[string]any{
		"message": "My check engine light is on and the car idles rough. Where do I start?",
		"level":   "beginner",
	}

	var resp struct {
		Response   string `json:"response"`
		Automotive bool   `json:"automotive"`
	}
	code := doJSON(t, http.MethodPost, baseURL+"/api/chat/quick", "", payload, &resp)

	switch code {
	case http.StatusOK:
		if resp.Response == "" {
			t.Error("200 response with empty answer")
		}
		if !resp.Automotive {
			t.Error("automotive question classified as off-topic")
		}
	case http.StatusServiceUnavailable:
		t.Log("chat not configured, skipping answer assertions")
	default:
		t.Fatalf("chat quick returned %d", code)
	}
}

// TestE2ENoSecretsEchoed validates that tokens are never reflected in
// responses and that rejections carry the error envelope.
func TestE2ENoSecretsEchoed(t *testing.T) {
	baseURL := envOrDefault("DRIVELINE_BASE_URL", "http://localhost:8080")

	fakeToken := "eyJhbGciOiJIUzI1NiJ9." + strings.Repeat("x", 40) + ".forged"

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/vehicles", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+fakeToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("401 response missing WWW-Authenticate header")
	}

	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), fakeToken) {
		t.Error("response echoed back the Authorization header value")
	}

	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode 401 body: %v", err)
	}
	if errResp.Code != "UNAUTHORIZED" {
		t.Errorf("code = %s, want UNAUTHORIZED", errResp.Code)
	}
}

// bootstrapSession ensures the e2e user exists and signs a session token
// directly, sidestepping the email round trip.
func bootstrapSession(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL is required for e2e tests")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		t.Fatal("JWT_SECRET is required for e2e tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer repo.Close()

	user, err := repo.GetUserByEmail(ctx, e2eEmail)
	if err != nil {
		user = &model.User{
			ID:        ulid.Make().String(),
			Email:     e2eEmail,
			Name:      "E2E Smoke",
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	token, err := auth.IssueSession([]byte(secret), user.ID, user.Email)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return token
}

func registerVehicle(t *testing.T, baseURL, token, vin string, primary bool) vehicleResponse {
	t.Helper()

	payload := map[string]any{"vin": vin, "is_primary": primary}

	var resp vehicleResponse
	if code := doJSON(t, http.MethodPost, baseURL+"/api/vehicles", token, payload, &resp); code != http.StatusCreated {
		t.Fatalf("register vehicle returned %d", code)
	}
	if resp.ID == "" || resp.VIN != vin {
		t.Fatalf("unexpected register response: %+v", resp)
	}
	return resp
}

// uniqueVIN builds a syntactically valid 17-character VIN from the clock.
func uniqueVIN() string {
	return fmt.Sprintf("1HGCM8%011d", time.Now().UnixNano()%100000000000)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.ContentLength != 0 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s %s: %v", method, url, err)
		}
	}

	return resp.StatusCode
}
