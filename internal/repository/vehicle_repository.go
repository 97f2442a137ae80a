package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// VehicleRepo provides read access to the vehicles inventory and the two
// writes the reservation lifecycle needs: row locking and status updates.
type VehicleRepo struct {
	db *sql.DB
}

// NewVehicleRepo returns a new VehicleRepo bound to the given database.
func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{db: db} }

const vehicleColumns = `id, location_id, category, make, model, year, seats, transmission, fuel_type,
	features, daily_rate, weekly_rate, monthly_rate, security_deposit, rating, status, created_at, updated_at`

func scanVehicle(s rowScanner) (*model.Vehicle, error) {
	var (
		v               model.Vehicle
		features        sql.NullString
		weekly, monthly sql.NullInt64
		status          string
	)
	err := s.Scan(&v.ID, &v.LocationID, &v.Category, &v.Make, &v.Model, &v.Year, &v.Seats,
		&v.Transmission, &v.FuelType, &features, &v.DailyRate, &weekly, &monthly,
		&v.SecurityDeposit, &v.Rating, &status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Features = splitList(features)
	v.WeeklyRate = weekly.Int64
	v.MonthlyRate = monthly.Int64
	v.Status = model.VehicleStatus(status)
	return &v, nil
}

// GetVehicle returns a vehicle by id or ErrNotFound.
func (r *VehicleRepo) GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// LockVehicleTx loads the vehicle with SELECT ... FOR UPDATE.  Every
// booking and lifecycle transaction on a vehicle takes this lock first, so
// writers on the same vehicle serialize while other vehicles proceed.
func (r *VehicleRepo) LockVehicleTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Vehicle, error) {
	v, err := scanVehicle(tx.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// SetStatusTx updates vehicles.status inside the caller's transaction.
func (r *VehicleRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.VehicleStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE vehicles SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
