package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// LocationRepo reads pickup and return sites.  Locations are maintained
// outside this service.
type LocationRepo struct {
	db *sql.DB
}

// NewLocationRepo returns a new LocationRepo bound to the given database.
func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

const locationColumns = `id, name, address, city, TIME_FORMAT(opens_at, '%H:%i'), TIME_FORMAT(closes_at, '%H:%i'), is_active`

func scanLocation(s rowScanner) (*model.Location, error) {
	var l model.Location
	if err := s.Scan(&l.ID, &l.Name, &l.Address, &l.City, &l.OpensAt, &l.ClosesAt, &l.IsActive); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLocation returns a location by id or ErrNotFound.
func (r *LocationRepo) GetLocation(ctx context.Context, id uint64) (*model.Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// ListActiveLocations returns every active location ordered by name.
func (r *LocationRepo) ListActiveLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
