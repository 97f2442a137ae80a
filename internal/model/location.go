package model

// Location is a pickup/return site.  Read-only to the reservation core.
//
// Fields:
//  ID       – primary key identifier.
//  Name     – display name.
//  Address  – street address.
//  City     – city name.
//  OpensAt  – opening time, "HH:MM" local.
//  ClosesAt – closing time, "HH:MM" local.
//  IsActive – whether the site accepts pickups.
type Location struct {
	ID       uint64 `json:"id"`        // locations.id
	Name     string `json:"name"`      // locations.name
	Address  string `json:"address"`   // locations.address
	City     string `json:"city"`      // locations.city
	OpensAt  string `json:"opens_at"`  // locations.opens_at
	ClosesAt string `json:"closes_at"` // locations.closes_at
	IsActive bool   `json:"is_active"` // locations.is_active
}
