package dispatch

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/observability"
)

// Conn is the outbound half of a client connection. *websocket.Conn
// satisfies it; tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one live client connection. Writes are serialized per
// session because gorilla/websocket permits one concurrent writer.
type Session struct {
	UserID string
	Role   models.Role

	mu   sync.Mutex
	conn Conn
}

func NewSession(userID string, role models.Role, conn Conn) *Session {
	return &Session{UserID: userID, Role: role, conn: conn}
}

func NewWSSession(userID string, role models.Role, conn *websocket.Conn) *Session {
	return NewSession(userID, role, conn)
}

func (s *Session) Send(event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

func (s *Session) Close() error { return s.conn.Close() }

// Registry tracks live sessions three ways: the flat set of all
// connections plus one keyed map per role, each holding at most one
// session per identity. A reconnect replaces the mapping without
// closing the superseded session.
type Registry struct {
	mu      sync.RWMutex
	all     map[*Session]struct{}
	riders  map[string]*Session
	drivers map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		all:     make(map[*Session]struct{}),
		riders:  make(map[string]*Session),
		drivers: make(map[string]*Session),
	}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[s] = struct{}{}
	switch s.Role {
	case models.RoleDriver:
		r.drivers[s.UserID] = s
	default:
		r.riders[s.UserID] = s
	}
	observability.ConnectionsActive.Set(float64(len(r.all)))
}

// Unregister removes s from the flat set, and removes the identity
// mapping only if it still points at s. A stale unregister from a
// superseded connection must not clobber its replacement.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.all, s)
	switch s.Role {
	case models.RoleDriver:
		if r.drivers[s.UserID] == s {
			delete(r.drivers, s.UserID)
		}
	default:
		if r.riders[s.UserID] == s {
			delete(r.riders, s.UserID)
		}
	}
	observability.ConnectionsActive.Set(float64(len(r.all)))
}

// Lookup returns the live session for an identity under a role.
func (r *Registry) Lookup(userID string, role models.Role) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s *Session
	var ok bool
	if role == models.RoleDriver {
		s, ok = r.drivers[userID]
	} else {
		s, ok = r.riders[userID]
	}
	return s, ok
}

// Snapshot copies the flat set so fanout iteration never holds the
// registry lock while writing to sockets.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.all))
	for s := range r.all {
		out = append(out, s)
	}
	return out
}

// SnapshotRole copies the sessions mapped under one role.
func (r *Registry) SnapshotRole(role models.Role) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.riders
	if role == models.RoleDriver {
		m = r.drivers
	}
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}
