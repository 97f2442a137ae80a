// Package queue defines the payloads exchanged over RabbitMQ and the
// publisher and consumer that move them.
package queue

import (
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// Queue names.
const (
	ReservationEventsQueue = "reservation.events"
	NotificationsQueue     = "notification.outbound"
)

// Reservation event types.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationActive    = "reservation.active"
	EventReservationCompleted = "reservation.completed"
	EventReservationCancelled = "reservation.cancelled"
)

// ReservationEvent is published after a reservation transaction commits.
// It carries enough for downstream consumers to audit, notify or feed
// analytics without querying the primary database.
type ReservationEvent struct {
	Type          string `json:"type"`
	ReservationID uint64 `json:"reservation_id"`
	Reference     string `json:"reference"`
	CustomerID    uint64 `json:"customer_id"`
	VehicleID     uint64 `json:"vehicle_id"`
	Status        string `json:"status"`
	PickupAt      string `json:"pickup_at"`
	ReturnAt      string `json:"return_at"`
	TotalAmount   int64  `json:"total_amount"`
	RefundAmount  int64  `json:"refund_amount,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// NewReservationEvent snapshots r as an event of the given type.
func NewReservationEvent(typ string, r *model.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          typ,
		ReservationID: r.ID,
		Reference:     r.Reference,
		CustomerID:    r.CustomerID,
		VehicleID:     r.VehicleID,
		Status:        string(r.Status),
		PickupAt:      r.PickupAt.UTC().Format(time.RFC3339),
		ReturnAt:      r.ReturnAt.UTC().Format(time.RFC3339),
		TotalAmount:   r.TotalAmount,
		RefundAmount:  r.RefundAmount,
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}

// Notification kinds.
const (
	NotifyPickupReminder = "pickup_reminder"
	NotifyEscalation     = "support_escalation"
	NotifyHoldExpired    = "hold_expired"
)

// Notification asks the channel adapter to deliver text to a contact, or
// to the staff desk when ContactID is empty.
type Notification struct {
	Kind          string `json:"kind"`
	ContactID     string `json:"contact_id,omitempty"`
	CustomerID    uint64 `json:"customer_id,omitempty"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
}
