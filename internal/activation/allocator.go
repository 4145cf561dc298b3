package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/taxi-dispatch/internal/clock"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/observability"
	"github.com/example/taxi-dispatch/internal/storage"
)

const (
	// CodePrefix and the zero-padded width below make up the external
	// code format, e.g. 0500001. Operators key off this exact shape.
	CodePrefix = "05"
	codeWidth  = 5

	// DefaultRangeMax is the highest number drawable for a code.
	DefaultRangeMax = 99999

	// DefaultValidity is the window a code stays redeemable after
	// issuance, and the activation window granted on redemption.
	DefaultValidity = 30 * 24 * time.Hour
)

// Allocator issues, redeems and reports on activation codes.
type Allocator struct {
	store    storage.CodeStore
	users    storage.UserStore
	clock    clock.Clock
	logger   *slog.Logger
	rangeMax int
	validity time.Duration
}

func NewAllocator(store storage.CodeStore, users storage.UserStore, clk clock.Clock, logger *slog.Logger) *Allocator {
	return &Allocator{
		store:    store,
		users:    users,
		clock:    clk,
		logger:   logger,
		rangeMax: DefaultRangeMax,
		validity: DefaultValidity,
	}
}

// WithRange overrides the numeric range upper bound.
func (a *Allocator) WithRange(max int) *Allocator {
	if max > 0 {
		a.rangeMax = max
	}
	return a
}

// WithValidity overrides the code/activation validity window.
func (a *Allocator) WithValidity(d time.Duration) *Allocator {
	if d > 0 {
		a.validity = d
	}
	return a
}

// FormatCode renders n as an external code string.
func FormatCode(n int) string {
	return fmt.Sprintf("%s%0*d", CodePrefix, codeWidth, n)
}

// Allocate issues up to count unused codes, scanning forward from the
// lowest number and skipping any code already present. Exhausting the
// range is a capacity condition, not an error: the partial batch is
// returned.
func (a *Allocator) Allocate(ctx context.Context, count int) ([]string, error) {
	now := a.clock.Now()
	expires := now.Add(a.validity)
	issued := make([]string, 0, count)
	for n := 1; n <= a.rangeMax && len(issued) < count; n++ {
		code := FormatCode(n)
		c := &models.ActivationCode{
			Code:      code,
			ExpiresAt: expires,
			CreatedAt: now,
		}
		err := a.store.InsertCode(ctx, c)
		if errors.Is(err, models.ErrCodeExists) {
			continue
		}
		if err != nil {
			return issued, fmt.Errorf("insert code %s: %w", code, err)
		}
		issued = append(issued, code)
	}
	if len(issued) < count {
		a.logger.Warn("code range exhausted", "requested", count, "issued", len(issued))
	}
	observability.CodesIssued.Add(float64(len(issued)))
	return issued, nil
}

// Redeem flips the code's used flag exactly once and activates the
// redeeming driver for the validity window. Losers of a concurrent
// redemption observe ErrCodeNotFound, the same as a missing or
// already-used code. An expired code is left untouched.
func (a *Allocator) Redeem(ctx context.Context, code, driverID string) error {
	now := a.clock.Now()
	c, err := a.store.GetCode(ctx, code)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup code: %w", err)
	}
	if c.Used {
		return models.ErrCodeNotFound
	}
	if !now.Before(c.ExpiresAt) {
		return models.ErrCodeExpired
	}
	ok, err := a.store.RedeemCode(ctx, code, driverID, now)
	if err != nil {
		return fmt.Errorf("redeem code: %w", err)
	}
	if !ok {
		// Lost the compare-and-swap to a concurrent redeemer.
		return models.ErrCodeNotFound
	}
	expires := now.Add(a.validity)
	if err := a.users.SetActivation(ctx, driverID, models.ActivationActive, &expires); err != nil {
		return fmt.Errorf("activate driver: %w", err)
	}
	observability.CodesRedeemed.Inc()
	a.logger.Info("activation code redeemed", "code", code, "driver_id", driverID, "expires_at", expires)
	return nil
}

// Stats reports code counts. Expired is time-based regardless of the
// used flag, so a code can be both available and expired; callers must
// check both.
func (a *Allocator) Stats(ctx context.Context) (storage.CodeStats, error) {
	return a.store.CodeStats(ctx, a.clock.Now())
}
