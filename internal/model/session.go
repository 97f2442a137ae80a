package model

import "time"

// Flow names a multi-step conversation procedure.
type Flow string

const (
	FlowNone         Flow = ""
	FlowBooking      Flow = "booking"
	FlowCancellation Flow = "cancellation"
	FlowSupport      Flow = "support"
)

// Step is the position within a flow.
type Step string

const (
	StepNone Step = ""

	StepLocationSelection   Step = "location_selection"
	StepDateSelection       Step = "date_selection"
	StepReturnDateSelection Step = "return_date_selection"
	StepVehicleSearch       Step = "vehicle_search"
	StepCategorySelection   Step = "category_selection"
	StepVehicleSelection    Step = "vehicle_selection"
	StepVehicleConfirmation Step = "vehicle_confirmation"

	StepSelectReservation   Step = "select_reservation"
	StepConfirmCancellation Step = "confirm_cancellation"

	StepDescribeIssue Step = "describe_issue"
)

// Session is the per-contact conversational state.  A session read
// after ExpiresAt is treated as absent.
type Session struct {
	ContactID    string             `json:"contact_id"`
	Flow         Flow               `json:"flow"`
	Step         Step               `json:"step"`
	Booking      *BookingDraft      `json:"booking,omitempty"`
	Cancellation *CancellationDraft `json:"cancellation,omitempty"`
	Support      *SupportDraft      `json:"support,omitempty"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// BookingDraft accumulates booking input step by step.
type BookingDraft struct {
	PickupLocationID uint64           `json:"pickup_location_id,omitempty"`
	DeliveryAddress  string           `json:"delivery_address,omitempty"`
	LocationOptions  []uint64         `json:"location_options,omitempty"`
	PickupAt         time.Time        `json:"pickup_at,omitempty"`
	ReturnAt         time.Time        `json:"return_at,omitempty"`
	Results          []VehicleOption  `json:"results,omitempty"`
	Category         string           `json:"category,omitempty"`
	VehicleID        uint64           `json:"vehicle_id,omitempty"`
	Extras           []ExtraSelection `json:"extras,omitempty"`
	Insurance        InsuranceTier    `json:"insurance,omitempty"`
	PromoCode        string           `json:"promo_code,omitempty"`
}

// VehicleOption is a search result snapshot stored in the session so
// later steps validate selections without re-querying.
type VehicleOption struct {
	VehicleID  uint64  `json:"vehicle_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Seats      uint8   `json:"seats"`
	PerDayRate int64   `json:"per_day_rate"`
	Rating     float64 `json:"rating"`
}

// Categories returns the distinct categories in result order.
func (d *BookingDraft) Categories() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range d.Results {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

// InCategory returns the stored results for one category.
func (d *BookingDraft) InCategory(category string) []VehicleOption {
	out := []VehicleOption{}
	for _, r := range d.Results {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Option looks up a stored result by vehicle id.
func (d *BookingDraft) Option(vehicleID uint64) (VehicleOption, bool) {
	for _, r := range d.Results {
		if r.VehicleID == vehicleID {
			return r, true
		}
	}
	return VehicleOption{}, false
}

// CancellationDraft holds the cancellable reservations offered and the
// one chosen.
type CancellationDraft struct {
	Options       []uint64 `json:"options,omitempty"`
	ReservationID uint64   `json:"reservation_id,omitempty"`
}

// SupportDraft holds the open support request.
type SupportDraft struct {
	Topic string `json:"topic,omitempty"`
}
