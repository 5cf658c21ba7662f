package vin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const testVIN = "1G1JC5444R7252367"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := Validate(testVIN); err != nil {
		t.Errorf("Validate(%s) = %v", testVIN, err)
	}
	if err := Validate("1g1jc5444r7252367"); err != nil {
		t.Errorf("lowercase VIN should normalize: %v", err)
	}

	invalid := []string{
		"",
		"1G1JC5444R725236",   // 16 chars
		"1G1JC5444R72523670", // 18 chars
		"IG1JC5444R7252367",  // contains I
		"OG1JC5444R7252367",  // contains O
		"QG1JC5444R7252367",  // contains Q
	}
	for _, v := range invalid {
		if err := Validate(v); !errors.Is(err, ErrInvalidVIN) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidVIN", v, err)
		}
	}
}

func TestClient_Decode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/vehicles/DecodeVinValuesExtended/"+testVIN {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Results":[{"Make":"CHEVROLET","Model":"Cavalier","ModelYear":"1994","VehicleType":"PASSENGER CAR","BodyClass":"Coupe","FuelTypePrimary":"Gasoline"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, discardLogger())

	decoded, err := client.Decode(context.Background(), testVIN)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Make != "CHEVROLET" {
		t.Errorf("make = %s", decoded.Make)
	}
	if decoded.ModelYear != "1994" {
		t.Errorf("year = %s", decoded.ModelYear)
	}
	if decoded.FuelType != "Gasoline" {
		t.Errorf("fuel type = %s", decoded.FuelType)
	}

	info := decoded.Info()
	if info["vehicle_type"] != "PASSENGER CAR" {
		t.Errorf("info vehicle_type = %s", info["vehicle_type"])
	}
}

func TestClient_DecodeEmptyFieldsFallBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Results":[{"Make":"","Model":""}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, discardLogger())

	decoded, err := client.Decode(context.Background(), testVIN)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Make != "Unknown" || decoded.Model != "Unknown" {
		t.Errorf("empty fields should fall back to Unknown: %+v", decoded)
	}
}

func TestClient_DecodeUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, discardLogger())

	if _, err := client.Decode(context.Background(), testVIN); !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestClient_DecodeInvalidVINSkipsUpstream(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, discardLogger())

	if _, err := client.Decode(context.Background(), "nope"); !errors.Is(err, ErrInvalidVIN) {
		t.Errorf("expected ErrInvalidVIN, got %v", err)
	}
	if called {
		t.Error("upstream should not be called for invalid VIN")
	}
}

// memCache is an in-memory DecodeCache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string]*DecodedVehicle
}

func (m *memCache) GetVINDecode(_ context.Context, vin string) (*DecodedVehicle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[vin]
	return d, ok
}

func (m *memCache) SetVINDecode(_ context.Context, vin string, d *DecodedVehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]*DecodedVehicle{}
	}
	m.data[vin] = d
}

func TestClient_DecodeUsesCache(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, `{"Results":[{"Make":"HONDA","Model":"Civic","ModelYear":"2004","VehicleType":"PASSENGER CAR"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &memCache{}, discardLogger())

	for i := 0; i < 3; i++ {
		if _, err := client.Decode(context.Background(), testVIN); err != nil {
			t.Fatalf("Decode #%d: %v", i, err)
		}
	}

	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (cache should absorb repeats)", calls)
	}
}
