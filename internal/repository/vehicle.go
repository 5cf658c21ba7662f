package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/driveline/driveline/internal/model"
)

// Common errors for vehicle repository operations.
var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrVINExists       = errors.New("vehicle with this VIN already registered")
)

// CreateVehicle inserts a new vehicle. When the vehicle is marked primary
// the user's previous primary is demoted in the same transaction.
func (r *Repository) CreateVehicle(ctx context.Context, vehicle *model.Vehicle) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if vehicle.IsPrimary {
		if err := demotePrimary(ctx, tx, vehicle.UserID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO vehicles (id, user_id, vin, make, model, year, vehicle_type, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.Exec(ctx, query,
		vehicle.ID,
		vehicle.UserID,
		vehicle.VIN,
		vehicle.Make,
		vehicle.Model,
		vehicle.Year,
		vehicle.VehicleType,
		vehicle.IsPrimary,
		vehicle.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrVINExists
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}

	return tx.Commit(ctx)
}

// GetVehicle retrieves one of the user's vehicles by ID.
func (r *Repository) GetVehicle(ctx context.Context, userID, id string) (*model.Vehicle, error) {
	query := `
		SELECT id, user_id, vin, make, model, year, vehicle_type, is_primary, created_at, updated_at
		FROM vehicles
		WHERE id = $1 AND user_id = $2
	`

	vehicle, err := scanVehicle(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	return vehicle, nil
}

// ListVehicles retrieves all of a user's vehicles, primary first.
func (r *Repository) ListVehicles(ctx context.Context, userID string) ([]*model.Vehicle, error) {
	query := `
		SELECT id, user_id, vin, make, model, year, vehicle_type, is_primary, created_at, updated_at
		FROM vehicles
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*model.Vehicle
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, vehicle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicles: %w", err)
	}

	return vehicles, nil
}

// GetPrimaryVehicle retrieves the user's primary vehicle.
func (r *Repository) GetPrimaryVehicle(ctx context.Context, userID string) (*model.Vehicle, error) {
	query := `
		SELECT id, user_id, vin, make, model, year, vehicle_type, is_primary, created_at, updated_at
		FROM vehicles
		WHERE user_id = $1 AND is_primary
	`

	vehicle, err := scanVehicle(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get primary vehicle: %w", err)
	}

	return vehicle, nil
}

// SetPrimaryVehicle makes the given vehicle the user's only primary.
func (r *Repository) SetPrimaryVehicle(ctx context.Context, userID, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := demotePrimary(ctx, tx, userID); err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `
		UPDATE vehicles
		SET is_primary = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to set primary vehicle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVehicleNotFound
	}

	return tx.Commit(ctx)
}

// DeleteVehicle removes one of the user's vehicles.
func (r *Repository) DeleteVehicle(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM vehicles
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVehicleNotFound
	}

	return nil
}

func demotePrimary(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE vehicles
		SET is_primary = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND is_primary
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to demote primary vehicle: %w", err)
	}
	return nil
}

func scanVehicle(row pgx.Row) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	err := row.Scan(
		&vehicle.ID,
		&vehicle.UserID,
		&vehicle.VIN,
		&vehicle.Make,
		&vehicle.Model,
		&vehicle.Year,
		&vehicle.VehicleType,
		&vehicle.IsPrimary,
		&vehicle.CreatedAt,
		&vehicle.UpdatedAt,
	)
	return &vehicle, err
}
