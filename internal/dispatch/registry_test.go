package dispatch

import (
	"errors"
	"testing"

	"github.com/example/taxi-dispatch/internal/models"
)

// fakeConn records everything written to it.
type fakeConn struct {
	events []any
	fail   bool
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.events = append(f.events, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestRegisterReplacesPriorSession(t *testing.T) {
	reg := NewRegistry()
	old := NewSession("d1", models.RoleDriver, &fakeConn{})
	reg.Register(old)

	replacement := NewSession("d1", models.RoleDriver, &fakeConn{})
	reg.Register(replacement)

	s, ok := reg.Lookup("d1", models.RoleDriver)
	if !ok || s != replacement {
		t.Fatal("expected replacement session to be mapped")
	}
	// The superseded session is not forcibly closed.
	if old.conn.(*fakeConn).closed {
		t.Fatal("replaced session must not be closed by the registry")
	}
}

func TestRegisterDoesNotAffectOtherIdentities(t *testing.T) {
	reg := NewRegistry()
	a := NewSession("d1", models.RoleDriver, &fakeConn{})
	b := NewSession("d2", models.RoleDriver, &fakeConn{})
	reg.Register(a)
	reg.Register(b)

	reg.Register(NewSession("d1", models.RoleDriver, &fakeConn{}))

	if s, ok := reg.Lookup("d2", models.RoleDriver); !ok || s != b {
		t.Fatal("replacing d1 must not disturb d2")
	}
}

func TestStaleUnregisterDoesNotClobberReplacement(t *testing.T) {
	reg := NewRegistry()
	old := NewSession("d1", models.RoleDriver, &fakeConn{})
	reg.Register(old)
	replacement := NewSession("d1", models.RoleDriver, &fakeConn{})
	reg.Register(replacement)

	// The old connection's read loop winds down late.
	reg.Unregister(old)

	s, ok := reg.Lookup("d1", models.RoleDriver)
	if !ok || s != replacement {
		t.Fatal("stale unregister clobbered the replacement mapping")
	}
}

func TestUnregisterRemovesMapping(t *testing.T) {
	reg := NewRegistry()
	s := NewSession("r1", models.RoleRider, &fakeConn{})
	reg.Register(s)
	reg.Unregister(s)
	if _, ok := reg.Lookup("r1", models.RoleRider); ok {
		t.Fatal("expected mapping removed")
	}
	if len(reg.Snapshot()) != 0 {
		t.Fatal("expected empty flat set")
	}
}

func TestRolesAreIndependent(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewSession("x", models.RoleRider, &fakeConn{}))
	reg.Register(NewSession("x", models.RoleDriver, &fakeConn{}))

	if _, ok := reg.Lookup("x", models.RoleRider); !ok {
		t.Fatal("rider mapping missing")
	}
	if _, ok := reg.Lookup("x", models.RoleDriver); !ok {
		t.Fatal("driver mapping missing")
	}
	if got := len(reg.SnapshotRole(models.RoleDriver)); got != 1 {
		t.Fatalf("expected 1 driver session, got %d", got)
	}
}
