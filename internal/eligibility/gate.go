package eligibility

import (
	"context"
	"log/slog"

	"github.com/example/taxi-dispatch/internal/clock"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/storage"
)

// Gate decides whether a driver may participate. Expiry is enforced
// lazily: the first gated operation that observes an elapsed window
// downgrades the stored state to expired before rejecting, so later
// checks short-circuit without consulting the clock. There is no
// background sweep; ineligibility is always re-checked at the point of
// use.
type Gate struct {
	users  storage.UserStore
	clock  clock.Clock
	logger *slog.Logger
}

func NewGate(users storage.UserStore, clk clock.Clock, logger *slog.Logger) *Gate {
	return &Gate{users: users, clock: clk, logger: logger}
}

// Check returns models.ErrForbidden unless u is an active driver
// within its activation window.
func (g *Gate) Check(ctx context.Context, u *models.User) error {
	if u.Role != models.RoleDriver {
		return models.ErrForbidden
	}
	switch u.Activation {
	case models.ActivationActive:
	default:
		return models.ErrForbidden
	}
	if u.ActivationExpiresAt == nil {
		return nil
	}
	if g.clock.Now().Before(*u.ActivationExpiresAt) {
		return nil
	}
	// Downgrade in place so subsequent checks fail on state alone.
	if err := g.users.SetActivation(ctx, u.ID, models.ActivationExpired, u.ActivationExpiresAt); err != nil {
		g.logger.Error("activation downgrade failed", "driver_id", u.ID, "error", err)
	} else {
		g.logger.Info("driver activation expired", "driver_id", u.ID)
	}
	u.Activation = models.ActivationExpired
	return models.ErrForbidden
}
