package eligibility

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/taxi-dispatch/internal/clock"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, store *storage.MemoryStore, u models.User) *models.User {
	t.Helper()
	if err := store.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &u
}

func TestCheckRejectsRiders(t *testing.T) {
	store := storage.NewMemoryStore()
	g := NewGate(store, clock.NewSystem(), testLogger())
	u := seedUser(t, store, models.User{ID: "r1", Phone: "1", Role: models.RoleRider, Activation: models.ActivationActive})
	if err := g.Check(context.Background(), u); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCheckRejectsInactiveDriver(t *testing.T) {
	store := storage.NewMemoryStore()
	g := NewGate(store, clock.NewSystem(), testLogger())
	u := seedUser(t, store, models.User{ID: "d1", Phone: "1", Role: models.RoleDriver, Activation: models.ActivationInactive})
	if err := g.Check(context.Background(), u); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCheckAllowsActiveDriverWithinWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	clk := clock.NewFixed(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	g := NewGate(store, clk, testLogger())
	expires := clk.Now().Add(24 * time.Hour)
	u := seedUser(t, store, models.User{ID: "d1", Phone: "1", Role: models.RoleDriver, Activation: models.ActivationActive, ActivationExpiresAt: &expires})
	if err := g.Check(context.Background(), u); err != nil {
		t.Fatalf("expected eligible, got %v", err)
	}
}

func TestCheckAllowsActiveDriverWithoutExpiry(t *testing.T) {
	store := storage.NewMemoryStore()
	g := NewGate(store, clock.NewSystem(), testLogger())
	u := seedUser(t, store, models.User{ID: "d1", Phone: "1", Role: models.RoleDriver, Activation: models.ActivationActive})
	if err := g.Check(context.Background(), u); err != nil {
		t.Fatalf("expected eligible, got %v", err)
	}
}

func TestCheckDowngradesElapsedActivation(t *testing.T) {
	store := storage.NewMemoryStore()
	clk := clock.NewFixed(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	g := NewGate(store, clk, testLogger())
	expires := clk.Now().Add(30 * 24 * time.Hour)
	u := seedUser(t, store, models.User{ID: "d1", Phone: "1", Role: models.RoleDriver, Activation: models.ActivationActive, ActivationExpiresAt: &expires})

	clk.Advance(31 * 24 * time.Hour)
	if err := g.Check(context.Background(), u); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden after expiry, got %v", err)
	}

	// The downgrade is persisted; no separate administrative action
	// is needed for later checks to see it.
	stored, err := store.GetUser(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.Activation != models.ActivationExpired {
		t.Fatalf("expected stored state expired, got %s", stored.Activation)
	}

	// A fresh check on the stored record short-circuits on state.
	if err := g.Check(context.Background(), stored); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on downgraded record, got %v", err)
	}
}
