// Package booking creates reservations.  The overlap re-check, pricing,
// promo redemption and inserts run in one transaction; nothing is written
// unless all of them succeed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/pricing"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

// Rental length policy.
const (
	MinDuration = time.Hour
	MaxDuration = 30 * 24 * time.Hour
)

// HoldingStatuses are the reservation states that keep a vehicle's slot
// taken for new bookings.  Pending reservations hold the slot until they
// are paid or expire.
var HoldingStatuses = []model.ReservationStatus{
	model.ReservationPending,
	model.ReservationConfirmed,
	model.ReservationActive,
}

// Store is the persistence the manager needs.
type Store interface {
	WithinTx(ctx context.Context, fn func(repository.Tx) error) error
	GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error)
	ExtrasByIDs(ctx context.Context, ids []uint64) ([]model.Extra, error)
	GetPromoByCode(ctx context.Context, code string) (*model.PromoCode, error)
}

// Pricer prices a rental.  *pricing.Engine implements it.
type Pricer interface {
	Quote(ctx context.Context, v model.Vehicle, start, end time.Time, extras []pricing.ExtraItem, tier model.InsuranceTier) pricing.Breakdown
}

// EventPublisher receives reservation events after commit.
type EventPublisher interface {
	PublishReservation(ctx context.Context, ev queue.ReservationEvent) error
}

// Request describes a reservation to create.
type Request struct {
	CustomerID       uint64
	VehicleID        uint64
	PickupLocationID uint64
	ReturnLocationID uint64
	PickupAt         time.Time
	ReturnAt         time.Time
	Extras           []model.ExtraSelection
	Insurance        model.InsuranceTier
	PromoCode        string
	DeliveryAddress  string
}

// Result is a created reservation.  PromoErr is set, wrapping
// ErrInvalidPromoCode, when a supplied code was not applied.
type Result struct {
	Reservation *model.Reservation
	PromoErr    error
}

// Quote is a priced preview of a request; nothing is reserved.
type Quote struct {
	Vehicle   model.Vehicle
	Breakdown pricing.Breakdown
	Discount  int64
	Total     int64
	Deposit   int64
	PromoErr  error
}

// Manager implements reservation creation.
type Manager struct {
	store  Store
	pricer Pricer
	events EventPublisher
	now    func() time.Time
	log    *zap.Logger
}

// NewManager returns a manager.  events may be nil.
func NewManager(store Store, pricer Pricer, events EventPublisher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, pricer: pricer, events: events, now: time.Now, log: log}
}

// WithClock replaces the manager clock.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// ValidateInterval applies the rental length policy.
func ValidateInterval(pickup, ret, now time.Time) error {
	d := ret.Sub(pickup)
	switch {
	case d <= 0:
		return fmt.Errorf("%w: return must be after pickup", ErrInvalidInterval)
	case d < MinDuration:
		return fmt.Errorf("%w: minimum rental is %s", ErrInvalidInterval, MinDuration)
	case d > MaxDuration:
		return fmt.Errorf("%w: maximum rental is 30 days", ErrInvalidInterval)
	case !pickup.After(now):
		return fmt.Errorf("%w: pickup is in the past", ErrInvalidInterval)
	}
	return nil
}

// CreateReservation books the vehicle.  It returns ErrResourceUnavailable
// when the slot was taken, ErrInvalidInterval or ErrUnknownExtra for bad
// input, and any store error as is.  An invalid promo code does not fail
// the booking; it is reported on Result.PromoErr.
func (m *Manager) CreateReservation(ctx context.Context, req Request) (*Result, error) {
	now := m.now()
	if err := ValidateInterval(req.PickupAt, req.ReturnAt, now); err != nil {
		return nil, err
	}
	if req.Insurance == "" {
		req.Insurance = model.InsuranceBasic
	}

	var res *Result
	err := m.store.WithinTx(ctx, func(tx repository.Tx) error {
		v, err := tx.LockVehicle(ctx, req.VehicleID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResourceUnavailable
		}
		if err != nil {
			return fmt.Errorf("lock vehicle: %w", err)
		}
		if v.Status == model.VehicleMaintenance || v.Status == model.VehicleOutOfService {
			return ErrResourceUnavailable
		}

		busy, err := tx.HasOverlap(ctx, v.ID, req.PickupAt, req.ReturnAt, HoldingStatuses)
		if err != nil {
			return fmt.Errorf("overlap check: %w", err)
		}
		if busy {
			return ErrResourceUnavailable
		}

		items, err := m.resolveExtras(ctx, tx.ExtrasByIDs, req.Extras)
		if err != nil {
			return err
		}
		b := m.pricer.Quote(ctx, *v, req.PickupAt, req.ReturnAt, items, req.Insurance)

		r := &model.Reservation{
			Reference:        newReference(),
			CustomerID:       req.CustomerID,
			VehicleID:        v.ID,
			PickupLocationID: req.PickupLocationID,
			ReturnLocationID: req.ReturnLocationID,
			PickupAt:         req.PickupAt.UTC(),
			ReturnAt:         req.ReturnAt.UTC(),
			PerDayRate:       b.PerDayRate,
			BaseAmount:       b.BaseAmount,
			ExtrasAmount:     b.ExtrasAmount + b.InsuranceAmount,
			TaxAmount:        b.TaxAmount,
			DepositAmount:    v.SecurityDeposit,
			Insurance:        req.Insurance,
			DeliveryAddress:  req.DeliveryAddress,
			Status:           model.ReservationPending,
		}
		if r.ReturnLocationID == 0 {
			r.ReturnLocationID = r.PickupLocationID
		}
		for _, l := range b.Lines {
			r.Extras = append(r.Extras, model.ReservationExtra{
				ExtraID: l.ExtraID, Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice, LineTotal: l.Total,
			})
		}

		var promoErr error
		if code := strings.TrimSpace(req.PromoCode); code != "" {
			err := m.redeemPromo(ctx, tx, code, v.Category, b, r, now)
			if errors.Is(err, ErrInvalidPromoCode) {
				promoErr = err
			} else if err != nil {
				return err
			}
		}
		r.TotalAmount = r.BaseAmount + r.ExtrasAmount + r.TaxAmount - r.DiscountAmount

		if err := tx.InsertReservation(ctx, r); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		res = &Result{Reservation: r, PromoErr: promoErr}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.PromoErr != nil {
		m.log.Info("promo code not applied",
			zap.String("code", req.PromoCode), zap.String("reference", res.Reservation.Reference), zap.Error(res.PromoErr))
	}
	m.publish(ctx, res.Reservation)
	return res, nil
}

// redeemPromo validates the locked code and, when it applies, sets the
// discount on r and increments the code's usage.  A rejected code yields
// an error wrapping ErrInvalidPromoCode; any other error is a store
// failure that aborts the transaction.
func (m *Manager) redeemPromo(ctx context.Context, tx repository.Tx, code, category string, b pricing.Breakdown, r *model.Reservation, now time.Time) error {
	p, err := tx.LockPromo(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: code %s does not exist", ErrInvalidPromoCode, strings.ToUpper(code))
	}
	if err != nil {
		return fmt.Errorf("lock promo: %w", err)
	}
	if err := validatePromo(p, category, b.Subtotal(), now); err != nil {
		return err
	}
	if err := tx.IncrementPromoUse(ctx, p.ID); err != nil {
		if errors.Is(err, repository.ErrPromoExhausted) {
			return fmt.Errorf("%w: code %s has no uses left", ErrInvalidPromoCode, p.Code)
		}
		return fmt.Errorf("redeem promo: %w", err)
	}
	id := p.ID
	r.PromoCodeID = &id
	r.DiscountAmount = discountFor(p, b.Subtotal(), b.Total())
	return nil
}

// Quote prices req without reserving anything.  Availability is not
// checked and promo usage is not incremented.
func (m *Manager) Quote(ctx context.Context, req Request) (*Quote, error) {
	if err := ValidateInterval(req.PickupAt, req.ReturnAt, m.now()); err != nil {
		return nil, err
	}
	if req.Insurance == "" {
		req.Insurance = model.InsuranceBasic
	}
	v, err := m.store.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	items, err := m.resolveExtras(ctx, m.store.ExtrasByIDs, req.Extras)
	if err != nil {
		return nil, err
	}
	b := m.pricer.Quote(ctx, *v, req.PickupAt, req.ReturnAt, items, req.Insurance)
	q := &Quote{Vehicle: *v, Breakdown: b, Deposit: v.SecurityDeposit}

	if code := strings.TrimSpace(req.PromoCode); code != "" {
		p, err := m.store.GetPromoByCode(ctx, code)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			q.PromoErr = fmt.Errorf("%w: code %s does not exist", ErrInvalidPromoCode, strings.ToUpper(code))
		case err != nil:
			return nil, err
		default:
			if q.PromoErr = validatePromo(p, v.Category, b.Subtotal(), m.now()); q.PromoErr == nil {
				q.Discount = discountFor(p, b.Subtotal(), b.Total())
			}
		}
	}
	q.Total = b.Total() - q.Discount
	return q, nil
}

type extrasLookup func(ctx context.Context, ids []uint64) ([]model.Extra, error)

func (m *Manager) resolveExtras(ctx context.Context, lookup extrasLookup, sel []model.ExtraSelection) ([]pricing.ExtraItem, error) {
	if len(sel) == 0 {
		return nil, nil
	}
	qty := map[uint64]int{}
	ids := make([]uint64, 0, len(sel))
	for _, s := range sel {
		if s.Quantity <= 0 {
			continue
		}
		if _, seen := qty[s.ExtraID]; !seen {
			ids = append(ids, s.ExtraID)
		}
		qty[s.ExtraID] += s.Quantity
	}
	if len(ids) == 0 {
		return nil, nil
	}
	extras, err := lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load extras: %w", err)
	}
	if len(extras) != len(ids) {
		return nil, ErrUnknownExtra
	}
	items := make([]pricing.ExtraItem, 0, len(extras))
	for _, e := range extras {
		items = append(items, pricing.ExtraItem{Extra: e, Quantity: qty[e.ID]})
	}
	return items, nil
}

func (m *Manager) publish(ctx context.Context, r *model.Reservation) {
	if m.events == nil {
		return
	}
	ev := queue.NewReservationEvent(queue.EventReservationCreated, r, m.now())
	if err := m.events.PublishReservation(ctx, ev); err != nil {
		m.log.Warn("publish reservation event failed", zap.String("reference", r.Reference), zap.Error(err))
	}
}

// newReference returns a short human friendly code, RB- plus eight
// uppercase hex characters.
func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RB-" + strings.ToUpper(id[:8])
}
