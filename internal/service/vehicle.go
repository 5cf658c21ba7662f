package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/repository"
	"github.com/driveline/driveline/internal/vin"
)

// Vehicle service errors.
var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrVINExists       = errors.New("vehicle with this VIN already registered")
	ErrInvalidVIN      = vin.ErrInvalidVIN
)

// VINDecoder resolves a VIN to vehicle attributes. *vin.Client satisfies it.
type VINDecoder interface {
	Decode(ctx context.Context, rawVIN string) (*vin.DecodedVehicle, error)
}

// VehicleService handles vehicle registration and lookup.
type VehicleService struct {
	repo    *repository.Repository
	decoder VINDecoder
	logger  *slog.Logger
}

// NewVehicleService creates a new VehicleService.
func NewVehicleService(repo *repository.Repository, decoder VINDecoder, logger *slog.Logger) *VehicleService {
	return &VehicleService{
		repo:    repo,
		decoder: decoder,
		logger:  logger.With("component", "service.vehicle"),
	}
}

// RegisterInput defines input for registering a vehicle.
type RegisterInput struct {
	UserID    string
	VIN       string
	IsPrimary bool
}

// Register decodes the VIN and saves the vehicle. A user's first vehicle
// becomes primary regardless of the flag.
func (s *VehicleService) Register(ctx context.Context, input RegisterInput) (*model.Vehicle, error) {
	normalized := vin.Normalize(input.VIN)
	if err := vin.Validate(normalized); err != nil {
		return nil, err
	}

	isPrimary := input.IsPrimary
	if _, err := s.repo.GetPrimaryVehicle(ctx, input.UserID); err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			isPrimary = true
		} else {
			return nil, err
		}
	}

	vehicle := &model.Vehicle{
		ID:        newULID(),
		UserID:    input.UserID,
		VIN:       normalized,
		IsPrimary: isPrimary,
		CreatedAt: time.Now().UTC(),
	}

	// Decode failures are not fatal; the vehicle is saved with just the
	// VIN and can be re-decoded later.
	decoded, err := s.decoder.Decode(ctx, normalized)
	if err != nil {
		s.logger.Warn("vin decode failed at registration",
			"vin", normalized,
			"error", err,
		)
	} else {
		vehicle.Make = decoded.Make
		vehicle.Model = decoded.Model
		vehicle.VehicleType = decoded.VehicleType
		if year, err := strconv.Atoi(decoded.ModelYear); err == nil {
			vehicle.Year = year
		}
	}

	if err := s.repo.CreateVehicle(ctx, vehicle); err != nil {
		if errors.Is(err, repository.ErrVINExists) {
			return nil, ErrVINExists
		}
		return nil, err
	}

	return vehicle, nil
}

// Get retrieves one of the user's vehicles.
func (s *VehicleService) Get(ctx context.Context, userID, id string) (*model.Vehicle, error) {
	vehicle, err := s.repo.GetVehicle(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return vehicle, nil
}

// List retrieves all of the user's vehicles, primary first.
func (s *VehicleService) List(ctx context.Context, userID string) ([]*model.Vehicle, error) {
	return s.repo.ListVehicles(ctx, userID)
}

// Primary retrieves the user's primary vehicle, or nil if none is set.
func (s *VehicleService) Primary(ctx context.Context, userID string) (*model.Vehicle, error) {
	vehicle, err := s.repo.GetPrimaryVehicle(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return vehicle, nil
}

// SetPrimary makes the vehicle the user's only primary.
func (s *VehicleService) SetPrimary(ctx context.Context, userID, id string) error {
	err := s.repo.SetPrimaryVehicle(ctx, userID, id)
	if errors.Is(err, repository.ErrVehicleNotFound) {
		return ErrVehicleNotFound
	}
	return err
}

// Delete removes one of the user's vehicles.
func (s *VehicleService) Delete(ctx context.Context, userID, id string) error {
	err := s.repo.DeleteVehicle(ctx, userID, id)
	if errors.Is(err, repository.ErrVehicleNotFound) {
		return ErrVehicleNotFound
	}
	return err
}

// DecodeVIN decodes a VIN without saving anything. Backs the manual
// decode endpoint.
func (s *VehicleService) DecodeVIN(ctx context.Context, rawVIN string) (*vin.DecodedVehicle, error) {
	return s.decoder.Decode(ctx, rawVIN)
}
