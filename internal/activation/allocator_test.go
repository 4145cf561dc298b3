package activation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/taxi-dispatch/internal/clock"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAllocator(t *testing.T) (*Allocator, *storage.MemoryStore, *clock.Fixed) {
	t.Helper()
	store := storage.NewMemoryStore()
	clk := clock.NewFixed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewAllocator(store, store, clk, testLogger()), store, clk
}

func seedDriver(t *testing.T, store *storage.MemoryStore, id string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &models.User{
		ID:         id,
		Phone:      "96650" + id,
		Name:       "Driver " + id,
		Role:       models.RoleDriver,
		Activation: models.ActivationInactive,
	})
	if err != nil {
		t.Fatalf("seed driver: %v", err)
	}
}

func TestFormatCode(t *testing.T) {
	if got := FormatCode(1); got != "0500001" {
		t.Fatalf("expected 0500001, got %s", got)
	}
	if got := FormatCode(99999); got != "0599999" {
		t.Fatalf("expected 0599999, got %s", got)
	}
}

func TestAllocateIssuesDistinctCodes(t *testing.T) {
	a, _, _ := newTestAllocator(t)
	codes, err := a.Allocate(context.Background(), 5)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(codes) != 5 {
		t.Fatalf("expected 5 codes, got %d", len(codes))
	}
	seen := map[string]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate code %s", c)
		}
		seen[c] = true
	}
	if codes[0] != "0500001" || codes[4] != "0500005" {
		t.Fatalf("unexpected sequence: %v", codes)
	}
}

func TestAllocateSkipsExistingCodes(t *testing.T) {
	a, _, _ := newTestAllocator(t)
	if _, err := a.Allocate(context.Background(), 3); err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	codes, err := a.Allocate(context.Background(), 2)
	if err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	if len(codes) != 2 || codes[0] != "0500004" || codes[1] != "0500005" {
		t.Fatalf("expected continuation past existing codes, got %v", codes)
	}
}

func TestAllocateRangeExhaustionReturnsPartial(t *testing.T) {
	a, _, _ := newTestAllocator(t)
	a.WithRange(3)
	codes, err := a.Allocate(context.Background(), 10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("expected the 3 remaining codes, got %d", len(codes))
	}
}

func TestRedeemActivatesDriver(t *testing.T) {
	a, store, clk := newTestAllocator(t)
	seedDriver(t, store, "d1")
	codes, _ := a.Allocate(context.Background(), 1)

	if err := a.Redeem(context.Background(), codes[0], "d1"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	u, err := store.GetUser(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Activation != models.ActivationActive {
		t.Fatalf("expected active, got %s", u.Activation)
	}
	want := clk.Now().Add(DefaultValidity)
	if u.ActivationExpiresAt == nil || !u.ActivationExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, u.ActivationExpiresAt)
	}
	c, _ := store.GetCode(context.Background(), codes[0])
	if !c.Used || c.DriverID == nil || *c.DriverID != "d1" {
		t.Fatalf("code not bound to redeemer: %+v", c)
	}
}

func TestRedeemMissingCode(t *testing.T) {
	a, store, _ := newTestAllocator(t)
	seedDriver(t, store, "d1")
	if err := a.Redeem(context.Background(), "0512345", "d1"); !errors.Is(err, models.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedeemUsedCode(t *testing.T) {
	a, store, _ := newTestAllocator(t)
	seedDriver(t, store, "d1")
	seedDriver(t, store, "d2")
	codes, _ := a.Allocate(context.Background(), 1)
	if err := a.Redeem(context.Background(), codes[0], "d1"); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if err := a.Redeem(context.Background(), codes[0], "d2"); !errors.Is(err, models.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for used code, got %v", err)
	}
}

func TestRedeemExpiredCodeLeftUntouched(t *testing.T) {
	a, store, clk := newTestAllocator(t)
	seedDriver(t, store, "d1")
	codes, _ := a.Allocate(context.Background(), 1)

	clk.Advance(31 * 24 * time.Hour)
	if err := a.Redeem(context.Background(), codes[0], "d1"); !errors.Is(err, models.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	c, _ := store.GetCode(context.Background(), codes[0])
	if c.Used {
		t.Fatal("expired code must remain unused")
	}
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	a, store, _ := newTestAllocator(t)
	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		seedDriver(t, store, ids[i])
	}
	codes, _ := a.Allocate(context.Background(), 1)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = a.Redeem(context.Background(), codes[0], ids[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	var winner string
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = ids[i]
		case errors.Is(err, models.ErrCodeNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	c, _ := store.GetCode(context.Background(), codes[0])
	if c.DriverID == nil || *c.DriverID != winner {
		t.Fatalf("code bound to %v, winner was %s", c.DriverID, winner)
	}
}

func TestStatsCountsExpiredIndependently(t *testing.T) {
	a, store, clk := newTestAllocator(t)
	seedDriver(t, store, "d1")
	codes, _ := a.Allocate(context.Background(), 3)
	if err := a.Redeem(context.Background(), codes[0], "d1"); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	clk.Advance(31 * 24 * time.Hour)
	stats, err := a.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Used != 1 || stats.Available != 2 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	// All three are past expiry regardless of used flag; the two
	// unused ones are simultaneously available and expired.
	if stats.Expired != 3 {
		t.Fatalf("expected 3 expired, got %d", stats.Expired)
	}
}
