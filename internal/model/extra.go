package model

// ExtraPricing describes how an add-on price scales.
type ExtraPricing string

const (
	PricePerDay     ExtraPricing = "per_day"
	PricePerBooking ExtraPricing = "per_booking"
)

// Extra is an optional add-on from the read-only catalog.
type Extra struct {
	ID          uint64       `json:"id"`           // extras.id
	Name        string       `json:"name"`         // extras.name
	Description string       `json:"description"`  // extras.description
	Price       int64        `json:"price"`        // extras.price
	PricingType ExtraPricing `json:"pricing_type"` // extras.pricing_type
	IsActive    bool         `json:"is_active"`    // extras.is_active
}

// ExtraSelection is a requested add-on with quantity.
type ExtraSelection struct {
	ExtraID  uint64 `json:"extra_id"`
	Quantity int    `json:"quantity"`
}
