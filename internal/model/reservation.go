package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// InsuranceTier selects the insurance coverage bought with a rental.
type InsuranceTier string

const (
	InsuranceBasic   InsuranceTier = "basic"
	InsurancePremium InsuranceTier = "premium"
	InsuranceFull    InsuranceTier = "full"
)

// Reservation is the booking aggregate.  TotalAmount always equals
// BaseAmount + ExtrasAmount + TaxAmount - DiscountAmount and is never
// negative.  Rows are never deleted; they end in completed or cancelled.
//
// Fields:
//  Reference        – human friendly code shown in chat (RB-XXXXXXXX).
//  PickupAt         – start of the rental interval (inclusive).
//  ReturnAt         – end of the rental interval (exclusive).
//  BaseAmount       – rental charge after dynamic pricing.
//  ExtrasAmount     – add-ons plus insurance.
//  TaxAmount        – tax on base + extras.
//  DiscountAmount   – promo discount.
//  DepositAmount    – security deposit, not part of TotalAmount.
//  RefundAmount     – computed on cancellation; issuance is external.
//  DeliveryAddress  – free-text address given instead of a site.
type Reservation struct {
	ID                 uint64             // reservations.id
	Reference          string             // reservations.reference
	CustomerID         uint64             // reservations.customer_id
	VehicleID          uint64             // reservations.vehicle_id
	PickupLocationID   uint64             // reservations.pickup_location_id
	ReturnLocationID   uint64             // reservations.return_location_id
	PickupAt           time.Time          // reservations.pickup_at
	ReturnAt           time.Time          // reservations.return_at
	PerDayRate         int64              // reservations.per_day_rate
	BaseAmount         int64              // reservations.base_amount
	ExtrasAmount       int64              // reservations.extras_amount
	TaxAmount          int64              // reservations.tax_amount
	DiscountAmount     int64              // reservations.discount_amount
	TotalAmount        int64              // reservations.total_amount
	DepositAmount      int64              // reservations.deposit_amount
	RefundAmount       int64              // reservations.refund_amount
	Insurance          InsuranceTier      // reservations.insurance_tier
	PromoCodeID        *uint64            // reservations.promo_code_id (nullable)
	DeliveryAddress    string             // reservations.delivery_address
	Status             ReservationStatus  // reservations.status
	CancellationReason string             // reservations.cancellation_reason
	CancelledAt        *time.Time         // reservations.cancelled_at (nullable)
	Extras             []ReservationExtra // reservation_extras rows
	CreatedAt          time.Time          // reservations.created_at
	UpdatedAt          time.Time          // reservations.updated_at
}

// AmountsBalanced reports whether the stored amounts satisfy the total
// invariant.
func (r Reservation) AmountsBalanced() bool {
	return r.TotalAmount >= 0 &&
		r.TotalAmount == r.BaseAmount+r.ExtrasAmount+r.TaxAmount-r.DiscountAmount
}

// ReservationExtra is a selected add-on line with its computed total.
type ReservationExtra struct {
	ID            uint64 // reservation_extras.id
	ReservationID uint64 // reservation_extras.reservation_id
	ExtraID       uint64 // reservation_extras.extra_id
	Name          string // reservation_extras.name
	Quantity      int    // reservation_extras.quantity
	UnitPrice     int64  // reservation_extras.unit_price
	LineTotal     int64  // reservation_extras.line_total
}
