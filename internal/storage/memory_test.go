package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

func TestCreateUserDuplicatePhone(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateUser(ctx, &models.User{ID: "u1", Phone: "966500000001"}); err != nil {
		t.Fatal(err)
	}
	err := m.CreateUser(ctx, &models.User{ID: "u2", Phone: "966500000001"})
	if !errors.Is(err, models.ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}

func TestUpsertLocationOverwrites(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	first := &models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 1}, Available: true}
	if err := m.UpsertLocation(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := m.SetAvailability(ctx, "d1", false); err != nil {
		t.Fatal(err)
	}
	// A fresh update overwrites the whole record, availability included.
	second := &models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 2, Lon: 2}, Available: true}
	if err := m.UpsertLocation(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetLocation(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Loc.Lat != 2 || !got.Available {
		t.Fatalf("expected overwritten record, got %+v", got)
	}
}

func TestAcceptRideConditionalWrite(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateRide(ctx, &models.RideRequest{ID: "R1", RiderID: "r1", Status: models.RidePending}); err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wg sync.WaitGroup
	wins := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := m.AcceptRide(ctx, "R1", "driver")
			if err != nil {
				t.Errorf("accept: %v", err)
			}
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning conditional write, got %d", winners)
	}
}

func TestTransitionRideRequiresExpectedState(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateRide(ctx, &models.RideRequest{ID: "R1", Status: models.RideAccepted}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.TransitionRide(ctx, "R1", models.RidePending, models.RideCancelled); ok {
		t.Fatal("transition from wrong state must not apply")
	}
	if ok, _ := m.TransitionRide(ctx, "R1", models.RideAccepted, models.RideInProgress); !ok {
		t.Fatal("transition from expected state must apply")
	}
}

func TestRedeemCodeConditionalWrite(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	code := &models.ActivationCode{Code: "0500001", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := m.InsertCode(ctx, code); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertCode(ctx, code); !errors.Is(err, models.ErrCodeExists) {
		t.Fatalf("expected ErrCodeExists, got %v", err)
	}

	if ok, _ := m.RedeemCode(ctx, "0500001", "d1", now.Add(2*time.Hour)); ok {
		t.Fatal("redeem past expiry must not apply")
	}
	if ok, _ := m.RedeemCode(ctx, "0500001", "d1", now); !ok {
		t.Fatal("valid redeem must apply")
	}
	if ok, _ := m.RedeemCode(ctx, "0500001", "d2", now); ok {
		t.Fatal("second redeem must not apply")
	}
}
