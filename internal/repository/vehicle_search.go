package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// VehicleSearchQuery holds the attribute filters for SearchVehicles.
// Zero values disable a filter.  Features are matched by the caller
// against the decoded tag list.
type VehicleSearchQuery struct {
	LocationID   uint64
	Category     string
	MinSeats     int
	Transmission string
	FuelType     string
	Features     []string
}

// SearchVehicles returns rentable vehicles (not in maintenance or out of
// service) matching the attribute filters.  Interval availability is not
// checked here.
func (r *VehicleRepo) SearchVehicles(ctx context.Context, q VehicleSearchQuery) ([]model.Vehicle, error) {
	where := []string{"status IN ('available', 'reserved')"}
	args := []any{}

	if q.LocationID != 0 {
		where = append(where, "location_id = ?")
		args = append(args, q.LocationID)
	}
	if q.Category != "" {
		where = append(where, "LOWER(category) = ?")
		args = append(args, strings.ToLower(q.Category))
	}
	if q.MinSeats > 0 {
		where = append(where, "seats >= ?")
		args = append(args, q.MinSeats)
	}
	if q.Transmission != "" {
		where = append(where, "LOWER(transmission) = ?")
		args = append(args, strings.ToLower(q.Transmission))
	}
	if q.FuelType != "" {
		where = append(where, "LOWER(fuel_type) = ?")
		args = append(args, strings.ToLower(q.FuelType))
	}

	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
