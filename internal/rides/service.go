package rides

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/taxi-dispatch/internal/clock"
	"github.com/example/taxi-dispatch/internal/dispatch"
	"github.com/example/taxi-dispatch/internal/eligibility"
	"github.com/example/taxi-dispatch/internal/eta"
	"github.com/example/taxi-dispatch/internal/geo"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/observability"
	"github.com/example/taxi-dispatch/internal/storage"
)

// LocationPublisher pushes location updates onto the ingest pipeline.
type LocationPublisher interface {
	PublishLocation(loc *models.DriverLocation) error
}

// Service owns the ride lifecycle and driver location flow. The only
// contended transitions, pending→accepted and nothing else, are
// resolved by a single conditional write in the store; everything else
// is independent per identity.
type Service struct {
	Store        storage.Store
	Gate         *eligibility.Gate
	Fanout       *dispatch.Fanout
	ETA          *eta.Estimator
	Publisher    LocationPublisher // optional
	Clock        clock.Clock
	Logger       *slog.Logger
	HistoryLimit int
	NearbyLimit  int
}

type SubmitInput struct {
	Pickup        models.Coord  `json:"pickup"`
	PickupAddress string        `json:"pickup_address"`
	Dest          *models.Coord `json:"dest,omitempty"`
	DestAddress   string        `json:"dest_address,omitempty"`
	Passengers    int           `json:"passengers"`
	Luggage       bool          `json:"luggage"`
}

// Submit persists a pending ride and solicits every connected driver.
// Fanout runs after the ride is durably created; delivery failures
// never undo the submission.
func (s *Service) Submit(ctx context.Context, rider *models.User, in SubmitInput) (*models.RideRequest, error) {
	if rider.Role != models.RoleRider {
		return nil, models.ErrForbidden
	}
	if in.Passengers <= 0 {
		in.Passengers = 1
	}
	r := &models.RideRequest{
		ID:            newID(),
		RiderID:       rider.ID,
		Pickup:        in.Pickup,
		PickupAddress: in.PickupAddress,
		Dest:          in.Dest,
		DestAddress:   in.DestAddress,
		Passengers:    in.Passengers,
		Luggage:       in.Luggage,
		Status:        models.RidePending,
		CreatedAt:     s.Clock.Now(),
	}
	if err := s.Store.CreateRide(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	observability.RidesSubmitted.Inc()
	s.Logger.Info("ride submitted", "ride_id", r.ID, "rider_id", rider.ID)
	s.Fanout.BroadcastRole(models.RoleDriver,
		dispatch.NewRideBroadcast(r.ID, rider.Name, r.Pickup.Lat, r.Pickup.Lon, r.PickupAddress))
	return r, nil
}

// Accept arbitrates concurrent accept attempts through the store's
// conditional pending→accepted write. Exactly one caller wins; losers
// get ErrAlreadyTaken. The winner's location flips unavailable and the
// rider is notified if connected.
func (s *Service) Accept(ctx context.Context, driver *models.User, rideID string) error {
	if err := s.Gate.Check(ctx, driver); err != nil {
		return err
	}
	ok, err := s.Store.AcceptRide(ctx, rideID, driver.ID)
	if err != nil {
		return fmt.Errorf("accept ride: %w", err)
	}
	if !ok {
		if _, gerr := s.Store.GetRide(ctx, rideID); errors.Is(gerr, models.ErrNotFound) {
			return models.ErrNotFound
		}
		observability.AcceptConflicts.Inc()
		return models.ErrAlreadyTaken
	}
	observability.RidesAccepted.Inc()
	s.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driver.ID)

	if err := s.Store.SetAvailability(ctx, driver.ID, false); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.Logger.Error("availability update failed", "driver_id", driver.ID, "error", err)
	}

	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return fmt.Errorf("load accepted ride: %w", err)
	}
	var etaSec float64
	if loc, err := s.Store.GetLocation(ctx, driver.ID); err == nil && s.ETA != nil {
		etaSec = s.ETA.Estimate(loc.Loc, ride.Pickup)
	}
	s.Fanout.Notify(ride.RiderID, models.RoleRider,
		dispatch.NewRideAccepted(rideID, driver.Name, driver.Phone, etaSec))
	return nil
}

// Start moves an accepted ride into progress. Only the assigned driver
// may start it.
func (s *Service) Start(ctx context.Context, driver *models.User, rideID string) error {
	return s.driverTransition(ctx, driver, rideID, models.RideAccepted, models.RideInProgress, false)
}

// Complete finishes an in-progress ride and returns the driver to the
// available pool.
func (s *Service) Complete(ctx context.Context, driver *models.User, rideID string) error {
	return s.driverTransition(ctx, driver, rideID, models.RideInProgress, models.RideCompleted, true)
}

func (s *Service) driverTransition(ctx context.Context, driver *models.User, rideID string, from, to models.RideStatus, restore bool) error {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.DriverID != driver.ID {
		return models.ErrForbidden
	}
	ok, err := s.Store.TransitionRide(ctx, rideID, from, to)
	if err != nil {
		return fmt.Errorf("transition ride: %w", err)
	}
	if !ok {
		return models.ErrConflict
	}
	s.Logger.Info("ride transitioned", "ride_id", rideID, "from", from, "to", to)
	if restore {
		if err := s.Store.SetAvailability(ctx, driver.ID, true); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.Logger.Error("availability restore failed", "driver_id", driver.ID, "error", err)
		}
	}
	return nil
}

// Cancel withdraws a still-pending ride. Only its requester may cancel.
func (s *Service) Cancel(ctx context.Context, rider *models.User, rideID string) error {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.RiderID != rider.ID {
		return models.ErrForbidden
	}
	ok, err := s.Store.TransitionRide(ctx, rideID, models.RidePending, models.RideCancelled)
	if err != nil {
		return fmt.Errorf("cancel ride: %w", err)
	}
	if !ok {
		return models.ErrConflict
	}
	s.Logger.Info("ride cancelled", "ride_id", rideID, "rider_id", rider.ID)
	return nil
}

// UpdateLocation overwrites the driver's single live location record,
// marking it available, then publishes to the ingest pipeline and fans
// the position out to connected clients. Only eligible drivers may
// publish.
func (s *Service) UpdateLocation(ctx context.Context, driver *models.User, at models.Coord) error {
	if err := s.Gate.Check(ctx, driver); err != nil {
		return err
	}
	loc := &models.DriverLocation{
		DriverID:  driver.ID,
		Loc:       at,
		Available: true,
		UpdatedAt: s.Clock.Now(),
	}
	if err := s.Store.UpsertLocation(ctx, loc); err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishLocation(loc); err != nil {
			s.Logger.Warn("location publish failed", "driver_id", driver.ID, "error", err)
		}
	}
	s.Fanout.Broadcast(dispatch.NewLocationUpdate(driver.ID, driver.Name, at.Lat, at.Lon))
	return nil
}

// Nearby returns every available driver with name, straight-line
// distance from the query point and a pickup ETA. All entries are
// returned; no proximity ranking is applied.
func (s *Service) Nearby(ctx context.Context, at models.Coord) ([]models.NearbyDriver, error) {
	limit := s.NearbyLimit
	if limit <= 0 {
		limit = 100
	}
	locs, err := s.Store.ListAvailable(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	out := make([]models.NearbyDriver, 0, len(locs))
	for _, l := range locs {
		u, err := s.Store.GetUser(ctx, l.DriverID)
		if err != nil {
			// Orphaned location; skip rather than fail the query.
			continue
		}
		nd := models.NearbyDriver{
			DriverID:   l.DriverID,
			DriverName: u.Name,
			Loc:        l.Loc,
			DistanceM:  geo.Haversine(at.Lat, at.Lon, l.Loc.Lat, l.Loc.Lon),
			UpdatedAt:  l.UpdatedAt,
		}
		if s.ETA != nil {
			nd.ETASeconds = s.ETA.Estimate(l.Loc, at)
		}
		out = append(out, nd)
	}
	return out, nil
}

// MyRides returns the caller's ride history: riders see rides they
// requested, drivers see rides assigned to them.
func (s *Service) MyRides(ctx context.Context, u *models.User) ([]models.RideRequest, error) {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = 100
	}
	if u.Role == models.RoleDriver {
		return s.Store.ListByDriver(ctx, u.ID, limit)
	}
	return s.Store.ListByRider(ctx, u.ID, limit)
}

func newID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
