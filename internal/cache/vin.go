package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/driveline/driveline/internal/vin"
)

const (
	vinKeyPrefix = "vin:"

	// VINDecodeTTL is how long decoded VIN attributes stay cached. Decode
	// results are static per VIN so a long TTL is safe.
	VINDecodeTTL = 24 * time.Hour
)

// GetVINDecode retrieves a cached VIN decode. Implements vin.DecodeCache;
// errors degrade to a miss so the caller just goes upstream.
func (c *Cache) GetVINDecode(ctx context.Context, v string) (*vin.DecodedVehicle, bool) {
	raw, err := c.client.Get(ctx, vinKeyPrefix+v).Result()
	if err != nil {
		return nil, false
	}

	var decoded vin.DecodedVehicle
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, false
	}
	return &decoded, true
}

// SetVINDecode stores a VIN decode result. Best effort.
func (c *Cache) SetVINDecode(ctx context.Context, v string, decoded *vin.DecodedVehicle) {
	raw, err := json.Marshal(decoded)
	if err != nil {
		return
	}
	c.client.SetEx(ctx, vinKeyPrefix+v, raw, VINDecodeTTL)
}
