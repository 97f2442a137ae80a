// Package lifecycle owns reservation status transitions and the vehicle
// status that mirrors them.
//
//	pending -> confirmed -> active -> completed
//	pending | confirmed | active -> cancelled
//
// A vehicle is marked reserved while its reservation is active and goes
// back to available when that reservation completes or is cancelled.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/queue"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

// ErrInvalidTransition is returned when the reservation's current status
// does not allow the requested change.
var ErrInvalidTransition = errors.New("invalid reservation status transition")

var transitions = map[model.ReservationStatus][]model.ReservationStatus{
	model.ReservationPending:   {model.ReservationConfirmed, model.ReservationCancelled},
	model.ReservationConfirmed: {model.ReservationActive, model.ReservationCancelled},
	model.ReservationActive:    {model.ReservationCompleted, model.ReservationCancelled},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to model.ReservationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RefundPercent is the share of the total refunded when a paid
// reservation is cancelled with untilPickup left before pickup.
func RefundPercent(untilPickup time.Duration) int {
	switch {
	case untilPickup >= 24*time.Hour:
		return 90
	case untilPickup >= 12*time.Hour:
		return 50
	case untilPickup >= 2*time.Hour:
		return 25
	}
	return 0
}

// Store is the persistence the service needs.
type Store interface {
	WithinTx(ctx context.Context, fn func(repository.Tx) error) error
}

// EventPublisher receives reservation events after commit.
type EventPublisher interface {
	PublishReservation(ctx context.Context, ev queue.ReservationEvent) error
}

// Service applies lifecycle transitions.
type Service struct {
	store  Store
	events EventPublisher
	now    func() time.Time
	log    *zap.Logger
}

// NewService returns a service.  events may be nil.
func NewService(store Store, events EventPublisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, events: events, now: time.Now, log: log}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordPayment confirms a pending reservation once its successful
// payments cover the total.  It is idempotent: calling it for an already
// confirmed reservation, or before the total is covered, changes nothing.
func (s *Service) RecordPayment(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	var out *model.Reservation
	changed := false
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		out = r
		if r.Status != model.ReservationPending {
			return nil
		}
		paid, err := tx.SumSuccessfulPayments(ctx, r.ID)
		if err != nil {
			return err
		}
		if paid < r.TotalAmount {
			return nil
		}
		r.Status = model.ReservationConfirmed
		changed = true
		return tx.UpdateReservationStatus(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, queue.EventReservationConfirmed, out)
	}
	return out, nil
}

// Pickup moves a confirmed reservation to active and marks the vehicle
// reserved.
func (s *Service) Pickup(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	r, err := s.transition(ctx, reservationID, model.ReservationActive, func(tx repository.Tx, r *model.Reservation) error {
		if _, err := tx.LockVehicle(ctx, r.VehicleID); err != nil {
			return err
		}
		return tx.SetVehicleStatus(ctx, r.VehicleID, model.VehicleReserved)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.EventReservationActive, r)
	return r, nil
}

// Return completes an active reservation and releases the vehicle.
func (s *Service) Return(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	r, err := s.transition(ctx, reservationID, model.ReservationCompleted, func(tx repository.Tx, r *model.Reservation) error {
		return releaseVehicle(ctx, tx, r.VehicleID)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.EventReservationCompleted, r)
	return r, nil
}

// Cancel terminates a pending, confirmed or active reservation.  Paid
// reservations record a refund per RefundPercent; issuing it is left to the
// payment gateway.
func (s *Service) Cancel(ctx context.Context, reservationID uint64, reason string) (*model.Reservation, error) {
	now := s.now()
	r, err := s.transition(ctx, reservationID, model.ReservationCancelled, func(tx repository.Tx, r *model.Reservation) error {
		wasActive := r.Status == model.ReservationActive
		if r.Status != model.ReservationPending {
			r.RefundAmount = RefundAmount(r.TotalAmount, r.PickupAt.Sub(now))
		}
		r.CancellationReason = reason
		at := now.UTC()
		r.CancelledAt = &at
		if wasActive {
			return releaseVehicle(ctx, tx, r.VehicleID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.EventReservationCancelled, r)
	return r, nil
}

// RefundAmount applies RefundPercent to total.
func RefundAmount(total int64, untilPickup time.Duration) int64 {
	return int64(math.Round(float64(total) * float64(RefundPercent(untilPickup)) / 100))
}

// transition locks the reservation, checks the move to `to`, runs apply
// for the side effects and persists the new status, all in one
// transaction.  apply sees the reservation in its previous status.
func (s *Service) transition(ctx context.Context, id uint64, to model.ReservationStatus, apply func(repository.Tx, *model.Reservation) error) (*model.Reservation, error) {
	var out *model.Reservation
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(r.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
		}
		if apply != nil {
			if err := apply(tx, r); err != nil {
				return err
			}
		}
		r.Status = to
		if err := tx.UpdateReservationStatus(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// releaseVehicle sets a reserved vehicle back to available.  Vehicles
// that staff moved to maintenance or out of service keep that status.
func releaseVehicle(ctx context.Context, tx repository.Tx, vehicleID uint64) error {
	v, err := tx.LockVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v.Status != model.VehicleReserved {
		return nil
	}
	return tx.SetVehicleStatus(ctx, vehicleID, model.VehicleAvailable)
}

func (s *Service) publish(ctx context.Context, typ string, r *model.Reservation) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReservation(ctx, queue.NewReservationEvent(typ, r, s.now())); err != nil {
		s.log.Warn("publish reservation event failed", zap.String("type", typ), zap.String("reference", r.Reference), zap.Error(err))
	}
}
