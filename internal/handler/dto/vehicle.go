package dto

import (
	"time"

	"github.com/driveline/driveline/internal/model"
)

// RegisterVehicleRequest represents the request body for registering a vehicle.
type RegisterVehicleRequest struct {
	VIN       string `json:"vin"`
	IsPrimary bool   `json:"is_primary,omitempty"`
}

// DecodeVINRequest represents the request body for a standalone VIN decode.
type DecodeVINRequest struct {
	VIN string `json:"vin"`
}

// VehicleResponse represents a vehicle in API responses.
type VehicleResponse struct {
	ID          string    `json:"id"`
	VIN         string    `json:"vin"`
	Make        string    `json:"make,omitempty"`
	Model       string    `json:"model,omitempty"`
	Year        int       `json:"year,omitempty"`
	VehicleType string    `json:"vehicle_type,omitempty"`
	IsPrimary   bool      `json:"is_primary"`
	CreatedAt   time.Time `json:"created_at"`
}

// VehicleListResponse wraps the user's vehicles.
type VehicleListResponse struct {
	Data []VehicleResponse `json:"data"`
}

// ToVehicleResponse converts a vehicle model to its API representation.
func ToVehicleResponse(v *model.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:          v.ID,
		VIN:         v.VIN,
		Make:        v.Make,
		Model:       v.Model,
		Year:        v.Year,
		VehicleType: v.VehicleType,
		IsPrimary:   v.IsPrimary,
		CreatedAt:   v.CreatedAt,
	}
}

// ToVehicleListResponse converts a list of vehicles.
func ToVehicleListResponse(vehicles []*model.Vehicle) VehicleListResponse {
	out := VehicleListResponse{Data: make([]VehicleResponse, 0, len(vehicles))}
	for _, v := range vehicles {
		out.Data = append(out.Data, ToVehicleResponse(v))
	}
	return out
}
