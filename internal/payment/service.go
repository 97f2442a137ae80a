// Package payment starts payments for reservations and applies gateway
// results to the reservation lifecycle.
package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
)

// ErrUnknownIntent is returned for results that match no payment row.
var ErrUnknownIntent = errors.New("unknown payment intent")

// Store is the persistence the service needs.
type Store interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPaymentByIntent(ctx context.Context, intentID string) (*model.Payment, error)
	SettlePayment(ctx context.Context, intentID string, status model.PaymentStatus, reference string) error
}

// Confirmer confirms a reservation once its payments cover the total.
type Confirmer interface {
	RecordPayment(ctx context.Context, reservationID uint64) (*model.Reservation, error)
}

// Service records payments.
type Service struct {
	gw        Gateway
	store     Store
	confirmer Confirmer
	currency  string
	log       *zap.Logger
}

func NewService(gw Gateway, store Store, confirmer Confirmer, currency string, log *zap.Logger) *Service {
	if currency == "" {
		currency = "mxn"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gw: gw, store: store, confirmer: confirmer, currency: currency, log: log}
}

// StartPayment creates a gateway intent for the reservation total and
// stores a pending payment row for it.
func (s *Service) StartPayment(ctx context.Context, r *model.Reservation, payerContact, method string) (*model.Payment, error) {
	if r.TotalAmount <= 0 {
		return nil, fmt.Errorf("payment: nothing to charge for %s", r.Reference)
	}
	intent, err := s.gw.CreatePaymentIntent(ctx, IntentRequest{
		ReservationID: r.ID,
		Reference:     r.Reference,
		Amount:        r.TotalAmount,
		Currency:      s.currency,
		PayerContact:  payerContact,
		Method:        method,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if method == "" {
		method = "card"
	}
	p := &model.Payment{
		ReservationID: r.ID,
		IntentID:      intent.ID,
		Amount:        r.TotalAmount,
		Currency:      s.currency,
		Method:        method,
		Status:        model.PaymentPending,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}
	return p, nil
}

// HandleResult applies a gateway callback.  Repeated deliveries of the
// same result are harmless: the payment row is settled once and the
// reservation confirmation is itself idempotent.
func (s *Service) HandleResult(ctx context.Context, intentID string, status model.PaymentStatus, reference string) error {
	if status != model.PaymentSuccess && status != model.PaymentFailed {
		return fmt.Errorf("payment: unsupported result status %q", status)
	}
	p, err := s.store.GetPaymentByIntent(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUnknownIntent
	}
	if err != nil {
		return err
	}

	err = s.store.SettlePayment(ctx, intentID, status, reference)
	switch {
	case errors.Is(err, repository.ErrConflict):
		if p.Status != status {
			s.log.Warn("conflicting payment result ignored",
				zap.String("intent", intentID), zap.String("stored", string(p.Status)), zap.String("received", string(status)))
			return nil
		}
	case err != nil:
		return err
	}

	if status != model.PaymentSuccess {
		s.log.Info("payment failed", zap.String("intent", intentID), zap.Uint64("reservation_id", p.ReservationID))
		return nil
	}
	r, err := s.confirmer.RecordPayment(ctx, p.ReservationID)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	s.log.Info("payment recorded",
		zap.String("intent", intentID), zap.String("reference", r.Reference), zap.String("status", string(r.Status)))
	return nil
}
