package models

import "time"

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// ActivationState tracks whether a driver account may participate.
type ActivationState string

const (
	ActivationInactive ActivationState = "inactive"
	ActivationActive   ActivationState = "active"
	ActivationExpired  ActivationState = "expired"
)

type RideStatus string

const (
	RidePending    RideStatus = "pending"
	RideAccepted   RideStatus = "accepted"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type User struct {
	ID                  string          `json:"id"`
	Phone               string          `json:"phone"`
	Name                string          `json:"name"`
	Role                Role            `json:"role"`
	PasswordHash        string          `json:"-"` // opaque to this service
	Activation          ActivationState `json:"activation"`
	ActivationExpiresAt *time.Time      `json:"activation_expires_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// DriverLocation is the single live location record a driver owns.
// Updates overwrite the previous record; there is never more than one
// row per driver.
type DriverLocation struct {
	DriverID  string    `json:"driver_id"`
	Loc       Coord     `json:"loc"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RideRequest struct {
	ID            string     `json:"id"`
	RiderID       string     `json:"rider_id"`
	Pickup        Coord      `json:"pickup"`
	PickupAddress string     `json:"pickup_address"`
	Dest          *Coord     `json:"dest,omitempty"`
	DestAddress   string     `json:"dest_address,omitempty"`
	Passengers    int        `json:"passengers"`
	Luggage       bool       `json:"luggage"`
	Status        RideStatus `json:"status"`
	DriverID      string     `json:"driver_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ActivationCode is a single-use, time-bound credential that unlocks
// driver participation. The used flag flips false→true exactly once
// and never flips back.
type ActivationCode struct {
	Code      string    `json:"code"`
	Used      bool      `json:"used"`
	DriverID  *string   `json:"driver_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NearbyDriver is the shape returned by the nearby query: an available
// location joined with the owning driver's name, annotated with the
// straight-line distance from the query point. All available drivers
// are returned; no proximity ranking is applied.
type NearbyDriver struct {
	DriverID   string    `json:"driver_id"`
	DriverName string    `json:"driver_name"`
	Loc        Coord     `json:"loc"`
	DistanceM  float64   `json:"distance_m"`
	ETASeconds float64   `json:"eta_seconds"`
	UpdatedAt  time.Time `json:"updated_at"`
}
