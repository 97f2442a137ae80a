package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// ExtraRepo reads the add-on catalog.
type ExtraRepo struct {
	db *sql.DB
}

// NewExtraRepo returns a new ExtraRepo bound to the given database.
func NewExtraRepo(db *sql.DB) *ExtraRepo { return &ExtraRepo{db: db} }

const extraColumns = `id, name, description, price, pricing_type, is_active`

func scanExtra(s rowScanner) (*model.Extra, error) {
	var (
		e    model.Extra
		desc sql.NullString
		pt   string
	)
	if err := s.Scan(&e.ID, &e.Name, &desc, &e.Price, &pt, &e.IsActive); err != nil {
		return nil, err
	}
	e.Description = desc.String
	e.PricingType = model.ExtraPricing(pt)
	return &e, nil
}

func collectExtras(rows *sql.Rows) ([]model.Extra, error) {
	defer rows.Close()
	var out []model.Extra
	for rows.Next() {
		e, err := scanExtra(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListActiveExtras returns the active catalog ordered by id.
func (r *ExtraRepo) ListActiveExtras(ctx context.Context) ([]model.Extra, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+extraColumns+` FROM extras WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectExtras(rows)
}

// ExtrasByIDs returns the active extras among ids.  Missing or inactive ids
// are silently absent from the result; callers compare lengths.
func (r *ExtraRepo) ExtrasByIDs(ctx context.Context, ids []uint64) ([]model.Extra, error) {
	return r.extrasByIDs(ctx, r.db, ids)
}

// ExtrasByIDsTx is ExtrasByIDs inside the caller's transaction.
func (r *ExtraRepo) ExtrasByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.Extra, error) {
	return r.extrasByIDs(ctx, tx, ids)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *ExtraRepo) extrasByIDs(ctx context.Context, q queryer, ids []uint64) ([]model.Extra, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+extraColumns+` FROM extras WHERE is_active = 1 AND id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return collectExtras(rows)
}
