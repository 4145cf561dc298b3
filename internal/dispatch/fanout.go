package dispatch

import (
	"log/slog"

	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/observability"
)

// Fanout delivers events to registered connections with at-most-once,
// best-effort semantics. Send failures on one connection never block
// delivery to the rest and never surface to the operation that
// triggered the event.
type Fanout struct {
	reg    *Registry
	logger *slog.Logger
}

func NewFanout(reg *Registry, logger *slog.Logger) *Fanout {
	return &Fanout{reg: reg, logger: logger}
}

// Broadcast sends event to every session in a snapshot of the flat
// set. A failing session is unregistered so the maps stop routing to
// it; the owning read loop closes the socket when it notices.
func (f *Fanout) Broadcast(event any) {
	for _, s := range f.reg.Snapshot() {
		if err := s.Send(event); err != nil {
			observability.BroadcastFailures.Inc()
			f.logger.Warn("broadcast send failed", "user_id", s.UserID, "role", s.Role, "error", err)
			f.reg.Unregister(s)
		}
	}
}

// BroadcastRole sends event to every session registered under role.
func (f *Fanout) BroadcastRole(role models.Role, event any) {
	for _, s := range f.reg.SnapshotRole(role) {
		if err := s.Send(event); err != nil {
			observability.BroadcastFailures.Inc()
			f.logger.Warn("broadcast send failed", "user_id", s.UserID, "role", s.Role, "error", err)
			f.reg.Unregister(s)
		}
	}
}

// Notify sends event to the single session mapped for the identity, a
// silent no-op when the counterparty is offline.
func (f *Fanout) Notify(userID string, role models.Role, event any) {
	s, ok := f.reg.Lookup(userID, role)
	if !ok {
		return
	}
	if err := s.Send(event); err != nil {
		observability.BroadcastFailures.Inc()
		f.logger.Warn("notify send failed", "user_id", userID, "role", role, "error", err)
		f.reg.Unregister(s)
	}
}
