package storage

import (
	"context"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

// The store contract is four primitive shapes: get by key, upsert,
// insert-if-absent, and conditional update returning an affected
// count. Everything racy in the dispatch core (ride acceptance, code
// redemption) is expressed as a single conditional write so the
// backend arbitrates concurrent callers.

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	// CreateUser fails with models.ErrPhoneTaken on a duplicate phone.
	CreateUser(ctx context.Context, u *models.User) error
	SetActivation(ctx context.Context, userID string, state models.ActivationState, expiresAt *time.Time) error
}

type LocationStore interface {
	UpsertLocation(ctx context.Context, loc *models.DriverLocation) error
	GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error)
	SetAvailability(ctx context.Context, driverID string, available bool) error
	// ListAvailable returns every location currently flagged
	// available, up to limit. No distance ordering.
	ListAvailable(ctx context.Context, limit int) ([]models.DriverLocation, error)
}

type RideStore interface {
	CreateRide(ctx context.Context, r *models.RideRequest) error
	GetRide(ctx context.Context, id string) (*models.RideRequest, error)
	// AcceptRide flips pending→accepted and binds driverID in one
	// conditional write. Exactly one concurrent caller observes true.
	AcceptRide(ctx context.Context, rideID, driverID string) (bool, error)
	// TransitionRide moves rideID from→to, reporting whether the
	// precondition held.
	TransitionRide(ctx context.Context, rideID string, from, to models.RideStatus) (bool, error)
	ListByRider(ctx context.Context, riderID string, limit int) ([]models.RideRequest, error)
	ListByDriver(ctx context.Context, driverID string, limit int) ([]models.RideRequest, error)
}

type CodeStore interface {
	GetCode(ctx context.Context, code string) (*models.ActivationCode, error)
	// InsertCode fails if the code string already exists.
	InsertCode(ctx context.Context, c *models.ActivationCode) error
	// RedeemCode flips used false→true and binds driverID, provided
	// the code is unused and expires after now. Exactly one concurrent
	// caller observes true.
	RedeemCode(ctx context.Context, code, driverID string, now time.Time) (bool, error)
	CodeStats(ctx context.Context, now time.Time) (CodeStats, error)
}

type CodeStats struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Available int `json:"available"`
	// Expired is time-based and independent of the used flag: a code
	// can count as both available and expired.
	Expired int `json:"expired"`
}

// Store bundles the per-collection interfaces a backend implements.
type Store interface {
	UserStore
	LocationStore
	RideStore
	CodeStore
}
