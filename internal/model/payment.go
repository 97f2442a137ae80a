package model

import "time"

// PaymentStatus is the outcome reported by the gateway.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment records a payment intent created for a reservation.
type Payment struct {
	ID            uint64        // payments.id
	ReservationID uint64        // payments.reservation_id
	IntentID      string        // payments.intent_id
	Amount        int64         // payments.amount
	Currency      string        // payments.currency
	Method        string        // payments.method
	Status        PaymentStatus // payments.status
	Reference     string        // payments.reference (gateway charge id)
	CreatedAt     time.Time     // payments.created_at
	UpdatedAt     time.Time     // payments.updated_at
}
