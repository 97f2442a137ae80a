package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// PromoRepo reads promotional codes and performs the redemption counter
// increment.
type PromoRepo struct {
	db *sql.DB
}

// NewPromoRepo returns a new PromoRepo bound to the given database.
func NewPromoRepo(db *sql.DB) *PromoRepo { return &PromoRepo{db: db} }

const promoColumns = `id, code, discount_type, value, minimum_amount, maximum_discount, usage_limit, used_count,
	valid_from, valid_to, applicable_categories, is_active`

func scanPromo(s rowScanner) (*model.PromoCode, error) {
	var (
		p          model.PromoCode
		dt         string
		maxDisc    sql.NullInt64
		limit      sql.NullInt64
		categories sql.NullString
	)
	err := s.Scan(&p.ID, &p.Code, &dt, &p.Value, &p.MinimumAmount, &maxDisc, &limit, &p.UsedCount,
		&p.ValidFrom, &p.ValidTo, &categories, &p.IsActive)
	if err != nil {
		return nil, err
	}
	p.DiscountType = model.DiscountType(dt)
	p.MaximumDiscount = maxDisc.Int64
	if limit.Valid {
		n := int(limit.Int64)
		p.UsageLimit = &n
	}
	p.ApplicableCategories = splitList(categories)
	return &p, nil
}

// GetPromoByCode looks a code up case-insensitively without locking.  Used
// for quote previews; redemption goes through LockPromoTx.
func (r *PromoRepo) GetPromoByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	p, err := scanPromo(r.db.QueryRowContext(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = ?`, strings.ToUpper(strings.TrimSpace(code))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// LockPromoTx loads and row-locks a code inside the booking transaction.
func (r *PromoRepo) LockPromoTx(ctx context.Context, tx *sql.Tx, code string) (*model.PromoCode, error) {
	p, err := scanPromo(tx.QueryRowContext(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = ? FOR UPDATE`, strings.ToUpper(strings.TrimSpace(code))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// IncrementUseTx adds one redemption if the code still has uses left.  It
// returns ErrPromoExhausted when the conditional update matches no row.
func (r *PromoRepo) IncrementUseTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE promo_codes SET used_count = used_count + 1
		 WHERE id = ? AND (usage_limit IS NULL OR used_count < usage_limit)`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPromoExhausted
	}
	return nil
}
