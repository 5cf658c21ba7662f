package model

import (
	"strconv"
	"time"
)

// Vehicle represents a vehicle registered to a user, identified by VIN.
// Decoded attributes come from the NHTSA vPIC service at registration time.
type Vehicle struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	VIN         string     `json:"vin"`
	Make        string     `json:"make,omitempty"`
	Model       string     `json:"model,omitempty"`
	Year        int        `json:"year,omitempty"`
	VehicleType string     `json:"vehicle_type,omitempty"`
	IsPrimary   bool       `json:"is_primary"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// VehicleInfo is the decoded VIN attribute map used as chat context.
// Values are strings because the vPIC service returns everything as text.
type VehicleInfo struct {
	Make        string `json:"make"`
	Model       string `json:"model"`
	Year        string `json:"year"`
	VehicleType string `json:"vehicle_type"`
}

// Info returns the vehicle's attributes in chat-context form.
func (v *Vehicle) Info() VehicleInfo {
	info := VehicleInfo{
		Make:        orUnknown(v.Make),
		Model:       orUnknown(v.Model),
		Year:        "Unknown",
		VehicleType: orUnknown(v.VehicleType),
	}
	if v.Year > 0 {
		info.Year = strconv.Itoa(v.Year)
	}
	return info
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
