package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// Tx is the set of writes and locking reads that booking and lifecycle
// transactions perform.  Implementations run every call inside one
// database transaction.
type Tx interface {
	LockVehicle(ctx context.Context, id uint64) (*model.Vehicle, error)
	SetVehicleStatus(ctx context.Context, id uint64, status model.VehicleStatus) error
	HasOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error)
	ExtrasByIDs(ctx context.Context, ids []uint64) ([]model.Extra, error)
	LockPromo(ctx context.Context, code string) (*model.PromoCode, error)
	IncrementPromoUse(ctx context.Context, promoID uint64) error
	InsertReservation(ctx context.Context, r *model.Reservation) error
	LockReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, r *model.Reservation) error
	SumSuccessfulPayments(ctx context.Context, reservationID uint64) (int64, error)
}

// Store bundles every repository over one *sql.DB.  Its methods are the
// union of the repositories' methods, and WithinTx exposes their
// transactional variants through Tx.
type Store struct {
	db *sql.DB
	*VehicleRepo
	*LocationRepo
	*CustomerRepo
	*ExtraRepo
	*PromoRepo
	*ReservationRepo
	*PaymentRepo
	*UserRepo
	*TokenRepo
}

// NewStore wires all repositories to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:              db,
		VehicleRepo:     NewVehicleRepo(db),
		LocationRepo:    NewLocationRepo(db),
		CustomerRepo:    NewCustomerRepo(db),
		ExtraRepo:       NewExtraRepo(db),
		PromoRepo:       NewPromoRepo(db),
		ReservationRepo: NewReservationRepo(db),
		PaymentRepo:     NewPaymentRepo(db),
		UserRepo:        NewUserRepo(db),
		TokenRepo:       NewTokenRepo(db),
	}
}

// DB exposes the underlying handle, e.g. for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithinTx runs fn in a READ COMMITTED transaction.  The transaction is
// committed when fn returns nil and rolled back otherwise, so a failing fn
// leaves no partial writes.
func (s *Store) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type sqlTx struct {
	tx *sql.Tx
	s  *Store
}

func (t *sqlTx) LockVehicle(ctx context.Context, id uint64) (*model.Vehicle, error) {
	return t.s.VehicleRepo.LockVehicleTx(ctx, t.tx, id)
}

func (t *sqlTx) SetVehicleStatus(ctx context.Context, id uint64, status model.VehicleStatus) error {
	return t.s.VehicleRepo.SetStatusTx(ctx, t.tx, id, status)
}

func (t *sqlTx) HasOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, statuses []model.ReservationStatus) (bool, error) {
	return t.s.ReservationRepo.HasOverlapTx(ctx, t.tx, vehicleID, start, end, statuses)
}

func (t *sqlTx) ExtrasByIDs(ctx context.Context, ids []uint64) ([]model.Extra, error) {
	return t.s.ExtraRepo.ExtrasByIDsTx(ctx, t.tx, ids)
}

func (t *sqlTx) LockPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	return t.s.PromoRepo.LockPromoTx(ctx, t.tx, code)
}

func (t *sqlTx) IncrementPromoUse(ctx context.Context, promoID uint64) error {
	return t.s.PromoRepo.IncrementUseTx(ctx, t.tx, promoID)
}

func (t *sqlTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	return t.s.ReservationRepo.InsertTx(ctx, t.tx, r)
}

func (t *sqlTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.s.ReservationRepo.LockReservationTx(ctx, t.tx, id)
}

func (t *sqlTx) UpdateReservationStatus(ctx context.Context, r *model.Reservation) error {
	return t.s.ReservationRepo.UpdateStatusTx(ctx, t.tx, r)
}

func (t *sqlTx) SumSuccessfulPayments(ctx context.Context, reservationID uint64) (int64, error) {
	return t.s.PaymentRepo.SumSuccessfulTx(ctx, t.tx, reservationID)
}
