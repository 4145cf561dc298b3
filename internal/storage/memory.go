package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

// MemoryStore keeps everything in mutex-guarded maps. It preserves the
// conditional-write semantics of the Postgres backend so the race
// arbitration behaves identically; used when PG_DSN is unset and by
// tests.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*models.User
	byPhone   map[string]string
	locations map[string]*models.DriverLocation
	rides     map[string]*models.RideRequest
	codes     map[string]*models.ActivationCode
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*models.User),
		byPhone:   make(map[string]string),
		locations: make(map[string]*models.DriverLocation),
		rides:     make(map[string]*models.RideRequest),
		codes:     make(map[string]*models.ActivationCode),
	}
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPhone[u.Phone]; ok {
		return models.ErrPhoneTaken
	}
	cp := *u
	m.users[u.ID] = &cp
	m.byPhone[u.Phone] = u.ID
	return nil
}

func (m *MemoryStore) SetActivation(ctx context.Context, userID string, state models.ActivationState, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	u.Activation = state
	u.ActivationExpiresAt = expiresAt
	return nil
}

func (m *MemoryStore) UpsertLocation(ctx context.Context, loc *models.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *loc
	m.locations[loc.DriverID] = &cp
	return nil
}

func (m *MemoryStore) GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locations[driverID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) SetAvailability(ctx context.Context, driverID string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locations[driverID]
	if !ok {
		return models.ErrNotFound
	}
	l.Available = available
	return nil
}

func (m *MemoryStore) ListAvailable(ctx context.Context, limit int) ([]models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DriverLocation, 0, len(m.locations))
	for _, l := range m.locations {
		if !l.Available {
			continue
		}
		out = append(out, *l)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) AcceptRide(ctx context.Context, rideID, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != models.RidePending {
		return false, nil
	}
	r.Status = models.RideAccepted
	r.DriverID = driverID
	return true, nil
}

func (m *MemoryStore) TransitionRide(ctx context.Context, rideID string, from, to models.RideStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *MemoryStore) ListByRider(ctx context.Context, riderID string, limit int) ([]models.RideRequest, error) {
	return m.listRides(func(r *models.RideRequest) bool { return r.RiderID == riderID }, limit)
}

func (m *MemoryStore) ListByDriver(ctx context.Context, driverID string, limit int) ([]models.RideRequest, error) {
	return m.listRides(func(r *models.RideRequest) bool { return r.DriverID == driverID }, limit)
}

func (m *MemoryStore) listRides(match func(*models.RideRequest) bool, limit int) ([]models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.RideRequest{}
	for _, r := range m.rides {
		if !match(r) {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GetCode(ctx context.Context, code string) (*models.ActivationCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) InsertCode(ctx context.Context, c *models.ActivationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[c.Code]; ok {
		return models.ErrCodeExists
	}
	cp := *c
	m.codes[c.Code] = &cp
	return nil
}

func (m *MemoryStore) RedeemCode(ctx context.Context, code, driverID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.Used || !now.Before(c.ExpiresAt) {
		return false, nil
	}
	c.Used = true
	id := driverID
	c.DriverID = &id
	return true, nil
}

func (m *MemoryStore) CodeStats(ctx context.Context, now time.Time) (CodeStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s CodeStats
	for _, c := range m.codes {
		s.Total++
		if c.Used {
			s.Used++
		} else {
			s.Available++
		}
		if c.ExpiresAt.Before(now) {
			s.Expired++
		}
	}
	return s, nil
}
