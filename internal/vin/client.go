package vin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultBaseURL is the NHTSA vPIC endpoint.
const DefaultBaseURL = "https://vpic.nhtsa.dot.gov"

const (
	// requestTimeout bounds one decode round trip.
	requestTimeout = 10 * time.Second
	dialTimeout    = 5 * time.Second
)

// Client errors.
var (
	ErrUpstream = fmt.Errorf("vin decode service failed")
)

// DecodedVehicle holds the vPIC attributes the application uses.
// Everything is a string because vPIC returns text for all fields.
type DecodedVehicle struct {
	Make               string `json:"make"`
	Model              string `json:"model"`
	ModelYear          string `json:"year"`
	VehicleType        string `json:"vehicle_type"`
	BodyClass          string `json:"body_class,omitempty"`
	EngineModel        string `json:"engine_model,omitempty"`
	EngineCylinders    string `json:"engine_cylinders,omitempty"`
	EngineDisplacement string `json:"engine_displacement,omitempty"`
	FuelType           string `json:"fuel_type,omitempty"`
	Transmission       string `json:"transmission,omitempty"`
	DriveType          string `json:"drive_type,omitempty"`
}

// Info returns the basic attribute map used for chat context and the
// manual decode endpoint.
func (d *DecodedVehicle) Info() map[string]string {
	return map[string]string{
		"make":         d.Make,
		"model":        d.Model,
		"year":         d.ModelYear,
		"vehicle_type": d.VehicleType,
	}
}

// DecodeCache caches decode results. Implemented by internal/cache.
type DecodeCache interface {
	GetVINDecode(ctx context.Context, vin string) (*DecodedVehicle, bool)
	SetVINDecode(ctx context.Context, vin string, decoded *DecodedVehicle)
}

// CacheMetrics counts decode cache outcomes. Implemented by
// internal/metrics.
type CacheMetrics interface {
	IncVINDecodeCacheHit()
	IncVINDecodeCacheMiss()
}

// Client decodes VINs against the NHTSA vPIC service with an optional
// cache in front of it.
type Client struct {
	baseURL string
	http    *http.Client
	cache   DecodeCache
	metrics CacheMetrics
	logger  *slog.Logger
}

// NewClient creates a vPIC client. cache may be nil.
func NewClient(baseURL string, cache DecodeCache, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: dialTimeout,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:  cache,
		logger: logger.With("component", "vin.client"),
	}
}

// SetMetrics attaches a cache outcome recorder.
func (c *Client) SetMetrics(m CacheMetrics) {
	c.metrics = m
}

// vpicResponse mirrors the DecodeVinValuesExtended payload.
type vpicResponse struct {
	Results []map[string]string `json:"Results"`
}

// Decode resolves a VIN to vehicle attributes. Results are cached; a
// cache hit never touches the upstream service.
func (c *Client) Decode(ctx context.Context, rawVIN string) (*DecodedVehicle, error) {
	v := Normalize(rawVIN)
	if err := Validate(v); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if decoded, ok := c.cache.GetVINDecode(ctx, v); ok {
			if c.metrics != nil {
				c.metrics.IncVINDecodeCacheHit()
			}
			return decoded, nil
		}
		if c.metrics != nil {
			c.metrics.IncVINDecodeCacheMiss()
		}
	}

	url := fmt.Sprintf("%s/api/vehicles/DecodeVinValuesExtended/%s?format=json", c.baseURL, v)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build vpic request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var payload vpicResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrUpstream, err)
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("%w: empty results", ErrUpstream)
	}

	result := payload.Results[0]
	decoded := &DecodedVehicle{
		Make:               fieldOr(result, "Make", "Unknown"),
		Model:              fieldOr(result, "Model", "Unknown"),
		ModelYear:          fieldOr(result, "ModelYear", "Unknown"),
		VehicleType:        fieldOr(result, "VehicleType", "Unknown"),
		BodyClass:          result["BodyClass"],
		EngineModel:        result["EngineModel"],
		EngineCylinders:    result["EngineCylinders"],
		EngineDisplacement: result["DisplacementL"],
		FuelType:           result["FuelTypePrimary"],
		Transmission:       result["TransmissionStyle"],
		DriveType:          result["DriveType"],
	}

	if c.cache != nil {
		c.cache.SetVINDecode(ctx, v, decoded)
	}

	return decoded, nil
}

func fieldOr(m map[string]string, key, fallback string) string {
	if v := m[key]; v != "" {
		return v
	}
	return fallback
}
