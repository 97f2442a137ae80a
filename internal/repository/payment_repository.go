package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// PaymentRepo stores payment attempts against reservations.  One row per
// gateway intent; intent_id is unique.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, reservation_id, intent_id, amount, currency, method, status, reference, created_at, updated_at`

func scanPayment(s rowScanner) (*model.Payment, error) {
	var (
		p      model.Payment
		status string
		ref    sql.NullString
	)
	if err := s.Scan(&p.ID, &p.ReservationID, &p.IntentID, &p.Amount, &p.Currency, &p.Method, &status, &ref, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.Reference = ref.String
	return &p, nil
}

// CreatePayment inserts a payment row and sets its id.
func (r *PaymentRepo) CreatePayment(ctx context.Context, p *model.Payment) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (reservation_id, intent_id, amount, currency, method, status) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ReservationID, p.IntentID, p.Amount, p.Currency, p.Method, string(p.Status))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetPaymentByIntent returns the payment for a gateway intent or ErrNotFound.
func (r *PaymentRepo) GetPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE intent_id = ?`, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// SettlePayment moves a pending payment to its final status.  It returns
// ErrConflict when the payment is no longer pending.
func (r *PaymentRepo) SettlePayment(ctx context.Context, intentID string, status model.PaymentStatus, reference string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, reference = ?, updated_at = UTC_TIMESTAMP()
		 WHERE intent_id = ? AND status = 'pending'`,
		string(status), sql.NullString{String: reference, Valid: reference != ""}, intentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// SumSuccessfulTx totals successful payments for a reservation inside the
// caller's transaction.
func (r *PaymentRepo) SumSuccessfulTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE reservation_id = ? AND status = 'success'`,
		reservationID).Scan(&total)
	return total, err
}
