package dispatch

import (
	"io"
	"log/slog"
	"testing"

	"github.com/example/taxi-dispatch/internal/models"
)

func testFanout() (*Fanout, *Registry) {
	reg := NewRegistry()
	return NewFanout(reg, slog.New(slog.NewTextHandler(io.Discard, nil))), reg
}

func TestBroadcastDeliversToAll(t *testing.T) {
	f, reg := testFanout()
	c1, c2 := &fakeConn{}, &fakeConn{}
	reg.Register(NewSession("r1", models.RoleRider, c1))
	reg.Register(NewSession("d1", models.RoleDriver, c2))

	f.Broadcast(NewLocationUpdate("d1", "Ali", 24.7, 46.6))

	if len(c1.events) != 1 || len(c2.events) != 1 {
		t.Fatalf("expected delivery to both, got %d/%d", len(c1.events), len(c2.events))
	}
}

func TestBroadcastSurvivesFailingConnection(t *testing.T) {
	f, reg := testFanout()
	bad := &fakeConn{fail: true}
	good := &fakeConn{}
	reg.Register(NewSession("r1", models.RoleRider, bad))
	reg.Register(NewSession("r2", models.RoleRider, good))

	f.Broadcast(NewLocationUpdate("d1", "Ali", 24.7, 46.6))

	if len(good.events) != 1 {
		t.Fatal("failure on one connection blocked delivery to another")
	}
	// The failing session is cleaned out of the registry.
	if _, ok := reg.Lookup("r1", models.RoleRider); ok {
		t.Fatal("expected failing session to be unregistered")
	}
}

func TestBroadcastRoleFilters(t *testing.T) {
	f, reg := testFanout()
	rider := &fakeConn{}
	driver := &fakeConn{}
	reg.Register(NewSession("r1", models.RoleRider, rider))
	reg.Register(NewSession("d1", models.RoleDriver, driver))

	f.BroadcastRole(models.RoleDriver, NewRideBroadcast("R1", "Sara", 24.7, 46.6, "downtown"))

	if len(driver.events) != 1 {
		t.Fatal("driver did not receive ride broadcast")
	}
	if len(rider.events) != 0 {
		t.Fatal("rider must not receive driver-targeted broadcast")
	}
}

func TestNotifyDeliversToSingleSession(t *testing.T) {
	f, reg := testFanout()
	c1, c2 := &fakeConn{}, &fakeConn{}
	reg.Register(NewSession("r1", models.RoleRider, c1))
	reg.Register(NewSession("r2", models.RoleRider, c2))

	f.Notify("r1", models.RoleRider, NewRideAccepted("R1", "Ali", "96650", 120))

	if len(c1.events) != 1 || len(c2.events) != 0 {
		t.Fatalf("expected targeted delivery, got %d/%d", len(c1.events), len(c2.events))
	}
}

func TestNotifyOfflineIsNoOp(t *testing.T) {
	f, _ := testFanout()
	// Must not panic or error when the counterparty is offline.
	f.Notify("ghost", models.RoleRider, NewRideAccepted("R1", "Ali", "96650", 0))
}

func TestBroadcastAfterReplacementHitsNewConnectionOnly(t *testing.T) {
	f, reg := testFanout()
	old := &fakeConn{}
	oldSess := NewSession("d1", models.RoleDriver, old)
	reg.Register(oldSess)

	fresh := &fakeConn{}
	reg.Register(NewSession("d1", models.RoleDriver, fresh))
	reg.Unregister(oldSess)

	f.BroadcastRole(models.RoleDriver, NewRideBroadcast("R1", "Sara", 1, 2, "addr"))

	if len(fresh.events) != 1 {
		t.Fatal("new connection missed the broadcast")
	}
	if len(old.events) != 0 {
		t.Fatal("superseded connection still received events")
	}
}
