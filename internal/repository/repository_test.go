package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

var vehicleCols = []string{"id", "location_id", "category", "make", "model", "year", "seats", "transmission",
	"fuel_type", "features", "daily_rate", "weekly_rate", "monthly_rate", "security_deposit", "rating", "status",
	"created_at", "updated_at"}

func vehicleRow(id uint64, category string, features any) []driver.Value {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{id, 1, category, "Nissan", "Versa", 2024, 5, "automatic", "gasoline", features,
		3000, 18000, nil, 5000, 4.5, "available", now, now}
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestSearchVehiclesBuildsFilters(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM vehicles WHERE status IN \('available', 'reserved'\) AND location_id = \? AND LOWER\(category\) = \? AND seats >= \? ORDER BY id`).
		WithArgs(uint64(3), "suv", 5).
		WillReturnRows(sqlmock.NewRows(vehicleCols).
			AddRow(vehicleRow(1, "suv", "gps, bluetooth")...).
			AddRow(vehicleRow(2, "suv", nil)...))

	got, err := s.SearchVehicles(context.Background(), VehicleSearchQuery{LocationID: 3, Category: "SUV", MinSeats: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"gps", "bluetooth"}, got[0].Features)
	assert.Nil(t, got[1].Features)
	assert.Equal(t, int64(18000), got[0].WeeklyRate)
	assert.Equal(t, int64(0), got[0].MonthlyRate)
	assert.Equal(t, model.VehicleAvailable, got[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVehicleNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM vehicles WHERE id = \?`).WithArgs(uint64(9)).WillReturnRows(sqlmock.NewRows(vehicleCols))

	_, err := s.GetVehicle(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasOverlapUsesHalfOpenPredicate(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	mock.ExpectQuery(`WHERE vehicle_id = \? AND pickup_at < \? AND return_at > \? AND status IN \(\?, \?\)`).
		WithArgs(uint64(4), end, start, "confirmed", "active").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	busy, err := s.HasOverlap(context.Background(), 4, start, end,
		[]model.ReservationStatus{model.ReservationConfirmed, model.ReservationActive})
	require.NoError(t, err)
	assert.True(t, busy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPickupsOn(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservations`).
		WithArgs(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))

	n, err := s.CountPickupsOn(context.Background(), time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPickupsOnUsesLocalDate(t *testing.T) {
	s, mock := newMock(t)
	cdmx := time.FixedZone("CST", -6*3600)
	// 22:30 local on May 1st is already May 2nd in UTC
	mock.ExpectQuery(`WHERE pickup_at >= \? AND pickup_at < \?`).
		WithArgs(time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC), time.Date(2026, 5, 2, 6, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))

	n, err := s.CountPickupsOn(context.Background(), time.Date(2026, 5, 1, 22, 30, 0, 0, cdmx))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMock(t)
	pickup := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM vehicles WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(vehicleCols).AddRow(vehicleRow(1, "suv", nil)...))
	mock.ExpectExec(`INSERT INTO reservations`).WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(`INSERT INTO reservation_extras`).
		WithArgs(uint64(42), uint64(3), "GPS", 1, int64(100), int64(300)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res := &model.Reservation{
		Reference: "RB-TEST0001", CustomerID: 1, VehicleID: 1, PickupLocationID: 1, ReturnLocationID: 1,
		PickupAt: pickup, ReturnAt: pickup.Add(72 * time.Hour), Status: model.ReservationPending,
		Insurance: model.InsuranceBasic,
		Extras:    []model.ReservationExtra{{ExtraID: 3, Name: "GPS", Quantity: 1, UnitPrice: 100, LineTotal: 300}},
	}
	err := s.WithinTx(context.Background(), func(tx Tx) error {
		if _, err := tx.LockVehicle(context.Background(), 1); err != nil {
			return err
		}
		return tx.InsertReservation(context.Background(), res)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.ID)
	assert.Equal(t, uint64(42), res.Extras[0].ReservationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE promo_codes SET used_count = used_count \+ 1`).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx Tx) error {
		if err := tx.IncrementPromoUse(context.Background(), 5); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementPromoUseExhausted(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`used_count < usage_limit`).WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx Tx) error {
		return tx.IncrementPromoUse(context.Background(), 5)
	})
	assert.ErrorIs(t, err, ErrPromoExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockPromoNormalizesCode(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "code", "discount_type", "value", "minimum_amount", "maximum_discount", "usage_limit",
		"used_count", "valid_from", "valid_to", "applicable_categories", "is_active"}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM promo_codes WHERE code = \? FOR UPDATE`).WithArgs("SPRING10").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(5, "SPRING10", "percentage", 10.0, 1000, 500, 1, 1, from, from.AddDate(1, 0, 0), "suv,van", true))
	mock.ExpectCommit()

	var got *model.PromoCode
	err := s.WithinTx(context.Background(), func(tx Tx) error {
		var err error
		got, err = tx.LockPromo(context.Background(), " spring10 ")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, got.UsageLimit)
	assert.Equal(t, 1, *got.UsageLimit)
	assert.False(t, got.HasUsesLeft())
	assert.Equal(t, []string{"suv", "van"}, got.ApplicableCategories)
	assert.Equal(t, model.DiscountPercentage, got.DiscountType)
}

func TestSettlePaymentConflictWhenNotPending(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE payments SET status = \?`).
		WithArgs("success", "ch_1", "pi_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SettlePayment(context.Background(), "pi_1", model.PaymentSuccess, "ch_1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEnsureCustomerCreatesOnFirstContact(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "contact_id", "name", "email", "document_ref", "verification", "created_at", "updated_at"}
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM customers WHERE contact_id = \?`).WithArgs("+5215550001").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectExec(`INSERT IGNORE INTO customers`).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(`FROM customers WHERE contact_id = \?`).WithArgs("+5215550001").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(11, "+5215550001", nil, nil, nil, "none", now, now))

	c, err := s.EnsureCustomer(context.Background(), "+5215550001", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), c.ID)
	assert.Equal(t, model.VerificationNone, c.Verification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateRefresh(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cols := []string{"user_id", "expires_at", "revoked_at"}

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\?`).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, now.Add(time.Hour), nil))
	uid, err := s.ValidateRefresh(context.Background(), "h1", now)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), uid)

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\?`).WithArgs("h2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, now, nil))
	_, err = s.ValidateRefresh(context.Background(), "h2", now)
	assert.ErrorIs(t, err, ErrNotFound, "expiry is exclusive")

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\?`).WithArgs("h3").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, now.Add(time.Hour), now.Add(-time.Minute)))
	_, err = s.ValidateRefresh(context.Background(), "h3", now)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\?`).WithArgs("h4").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = s.ValidateRefresh(context.Background(), "h4", now)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO users`).WithArgs("desk@rental.test", "hash", "STAFF").
		WillReturnResult(sqlmock.NewResult(5, 1))
	id, err := s.CreateUser(context.Background(), " Desk@Rental.test ", "hash", "STAFF")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("Error 1062: Duplicate entry 'desk@rental.test'"))
	_, err = s.CreateUser(context.Background(), "desk@rental.test", "hash", "STAFF")
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM users WHERE email=\?`).WithArgs("x@rental.test").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := s.GetUserByEmail(context.Background(), "X@rental.test")
	assert.ErrorIs(t, err, ErrNotFound)
}
