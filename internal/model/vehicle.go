package model

import (
	"strconv"
	"time"
)

// VehicleStatus is the inventory state of a rentable vehicle.
type VehicleStatus string

const (
	VehicleAvailable    VehicleStatus = "available"
	VehicleReserved     VehicleStatus = "reserved"
	VehicleMaintenance  VehicleStatus = "maintenance"
	VehicleOutOfService VehicleStatus = "out_of_service"
)

// Vehicle is the rentable resource.  Rows are created by inventory
// management; Status is only changed by reservation lifecycle
// transitions.
//
// Fields:
//  ID              – primary key identifier.
//  LocationID      – owning pickup site.
//  Category        – economy, compact, suv, van, luxury ...
//  Make, Model     – display name parts.
//  Year            – model year.
//  Seats           – passenger seats.
//  Transmission    – automatic or manual.
//  FuelType        – gasoline, diesel, hybrid, electric.
//  Features        – free-form feature tags (gps, bluetooth, child_seat_anchor ...).
//  DailyRate       – base price per day in whole currency units.
//  WeeklyRate      – optional price per full week (0 = not offered).
//  MonthlyRate     – advertised price per 30 days; not used in quotes.
//  SecurityDeposit – refundable hold taken at pickup.
//  Rating          – average customer rating (0–5).
//  Status          – inventory status.
type Vehicle struct {
	ID              uint64        // vehicles.id
	LocationID      uint64        // vehicles.location_id
	Category        string        // vehicles.category
	Make            string        // vehicles.make
	Model           string        // vehicles.model
	Year            uint16        // vehicles.year
	Seats           uint8         // vehicles.seats
	Transmission    string        // vehicles.transmission
	FuelType        string        // vehicles.fuel_type
	Features        []string      // vehicles.features (comma separated)
	DailyRate       int64         // vehicles.daily_rate
	WeeklyRate      int64         // vehicles.weekly_rate
	MonthlyRate     int64         // vehicles.monthly_rate
	SecurityDeposit int64         // vehicles.security_deposit
	Rating          float64       // vehicles.rating
	Status          VehicleStatus // vehicles.status
	CreatedAt       time.Time     // vehicles.created_at
	UpdatedAt       time.Time     // vehicles.updated_at
}

// DisplayName returns "Make Model (Year)".
func (v Vehicle) DisplayName() string {
	if v.Year == 0 {
		return v.Make + " " + v.Model
	}
	return v.Make + " " + v.Model + " (" + strconv.Itoa(int(v.Year)) + ")"
}

// HasFeature reports whether the vehicle advertises the given tag.
func (v Vehicle) HasFeature(tag string) bool {
	for _, f := range v.Features {
		if f == tag {
			return true
		}
	}
	return false
}
