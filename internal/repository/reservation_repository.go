package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// ReservationRepo provides access to reservations and their extras lines.
// Rows are never deleted; status changes go through UpdateStatusTx under
// a lock taken with LockReservationTx.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, reference, customer_id, vehicle_id, pickup_location_id, return_location_id,
	pickup_at, return_at, per_day_rate, base_amount, extras_amount, tax_amount, discount_amount, total_amount,
	deposit_amount, refund_amount, insurance_tier, promo_code_id, delivery_address, status, cancellation_reason,
	cancelled_at, created_at, updated_at`

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		r                 model.Reservation
		insurance, status string
		promoID           sql.NullInt64
		address, reason   sql.NullString
		cancelledAt       sql.NullTime
	)
	err := s.Scan(&r.ID, &r.Reference, &r.CustomerID, &r.VehicleID, &r.PickupLocationID, &r.ReturnLocationID,
		&r.PickupAt, &r.ReturnAt, &r.PerDayRate, &r.BaseAmount, &r.ExtrasAmount, &r.TaxAmount, &r.DiscountAmount,
		&r.TotalAmount, &r.DepositAmount, &r.RefundAmount, &insurance, &promoID, &address, &status, &reason,
		&cancelledAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Insurance = model.InsuranceTier(insurance)
	r.Status = model.ReservationStatus(status)
	if promoID.Valid {
		id := uint64(promoID.Int64)
		r.PromoCodeID = &id
	}
	r.DeliveryAddress = address.String
	r.CancellationReason = reason.String
	if cancelledAt.Valid {
		t := cancelledAt.Time
		r.CancelledAt = &t
	}
	return &r, nil
}

func statusArgs(statuses []model.ReservationStatus) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const overlapSQL = `SELECT EXISTS (
	SELECT 1 FROM reservations
	WHERE vehicle_id = ? AND pickup_at < ? AND return_at > ? AND status IN (%s))`

func hasOverlap(ctx context.Context, q rowQueryer, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	query := strings.Replace(overlapSQL, "%s", placeholders(len(statuses)), 1)
	args := append([]any{vehicleID, end.UTC(), start.UTC()}, statusArgs(statuses)...)
	var exists bool
	if err := q.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// HasOverlap reports whether a reservation on the vehicle in one of the
// given statuses intersects [start, end).
func (r *ReservationRepo) HasOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error) {
	return hasOverlap(ctx, r.db, vehicleID, start, end, statuses)
}

// HasOverlapTx is HasOverlap inside the caller's transaction.
func (r *ReservationRepo) HasOverlapTx(ctx context.Context, tx *sql.Tx, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error) {
	return hasOverlap(ctx, tx, vehicleID, start, end, statuses)
}

// CountPickupsOn counts confirmed, active and completed reservations whose
// pickup falls on the calendar date of day, in day's own location.
func (r *ReservationRepo) CountPickupsOn(ctx context.Context, day time.Time) (int, error) {
	from, to := DayBounds(day)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations
		 WHERE pickup_at >= ? AND pickup_at < ? AND status IN ('confirmed', 'active', 'completed')`,
		from.UTC(), to.UTC()).Scan(&n)
	return n, err
}

// DayBounds returns the start of day's calendar date and the start of the
// next one, both in day's location.
func DayBounds(day time.Time) (from, to time.Time) {
	y, m, d := day.Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return from, from.AddDate(0, 0, 1)
}

// InsertTx inserts the reservation and its extras lines inside the
// caller's transaction and sets the generated ids.
func (r *ReservationRepo) InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	var promoID sql.NullInt64
	if res.PromoCodeID != nil {
		promoID = sql.NullInt64{Int64: int64(*res.PromoCodeID), Valid: true}
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (reference, customer_id, vehicle_id, pickup_location_id, return_location_id,
			pickup_at, return_at, per_day_rate, base_amount, extras_amount, tax_amount, discount_amount, total_amount,
			deposit_amount, insurance_tier, promo_code_id, delivery_address, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Reference, res.CustomerID, res.VehicleID, res.PickupLocationID, res.ReturnLocationID,
		res.PickupAt.UTC(), res.ReturnAt.UTC(), res.PerDayRate, res.BaseAmount, res.ExtrasAmount, res.TaxAmount,
		res.DiscountAmount, res.TotalAmount, res.DepositAmount, string(res.Insurance), promoID,
		sql.NullString{String: res.DeliveryAddress, Valid: res.DeliveryAddress != ""}, string(res.Status))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)

	if len(res.Extras) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_extras (reservation_id, extra_id, name, quantity, unit_price, line_total) VALUES `
	args := make([]any, 0, len(res.Extras)*6)
	for i := range res.Extras {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?)"
		e := &res.Extras[i]
		e.ReservationID = res.ID
		args = append(args, res.ID, e.ExtraID, e.Name, e.Quantity, e.UnitPrice, e.LineTotal)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// GetReservation returns a reservation with its extras lines, or ErrNotFound.
func (r *ReservationRepo) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if res.Extras, err = r.extras(ctx, res.ID); err != nil {
		return nil, err
	}
	return res, nil
}

// LockReservationTx loads a reservation with SELECT ... FOR UPDATE.
// Extras lines are not loaded.
func (r *ReservationRepo) LockReservationTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// UpdateStatusTx persists the lifecycle fields of res: status, refund
// amount, cancellation reason and cancellation time.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	var cancelledAt sql.NullTime
	if res.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: res.CancelledAt.UTC(), Valid: true}
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET status = ?, refund_amount = ?, cancellation_reason = ?, cancelled_at = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`,
		string(res.Status), res.RefundAmount,
		sql.NullString{String: res.CancellationReason, Valid: res.CancellationReason != ""},
		cancelledAt, res.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCustomer returns a customer's reservations in the given statuses,
// soonest pickup first.  An empty status list returns all of them.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, customerID uint64, statuses []model.ReservationStatus) ([]model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_id = ?`
	args := []any{customerID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}
	query += ` ORDER BY pickup_at`
	return r.list(ctx, query, args...)
}

// ListPendingCreatedBefore returns pending reservations created before t.
func (r *ReservationRepo) ListPendingCreatedBefore(ctx context.Context, t time.Time) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE status = 'pending' AND created_at < ? ORDER BY id`,
		t.UTC())
}

// ListConfirmedPickupsBetween returns confirmed reservations with pickup in
// [from, to).
func (r *ReservationRepo) ListConfirmedPickupsBetween(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = 'confirmed' AND pickup_at >= ? AND pickup_at < ? ORDER BY pickup_at`,
		from.UTC(), to.UTC())
}

func (r *ReservationRepo) list(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) extras(ctx context.Context, reservationID uint64) ([]model.ReservationExtra, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, reservation_id, extra_id, name, quantity, unit_price, line_total
		 FROM reservation_extras WHERE reservation_id = ? ORDER BY id`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReservationExtra
	for rows.Next() {
		var e model.ReservationExtra
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.ExtraID, &e.Name, &e.Quantity, &e.UnitPrice, &e.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
