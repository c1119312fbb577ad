package rooms

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakeConn struct {
	id string
}

func (f *fakeConn) ID() string { return f.id }

func TestJoinRequiresTenant(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}

	err := r.Join(c, "")
	if !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
	if r.CountAll() != 0 {
		t.Fatalf("expected no membership after failed join")
	}
}

func TestJoinIdempotent(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}

	if err := r.Join(c, "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Join(c, "t1"); err != nil {
		t.Fatalf("unexpected error on repeat join: %v", err)
	}

	if got := r.Count("t1"); got != 1 {
		t.Fatalf("expected exactly one membership, got %d", got)
	}
}

func TestJoinReplacesRoom(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}

	_ = r.Join(c, "t1")
	_ = r.Join(c, "t2")

	if r.Count("t1") != 0 {
		t.Fatalf("expected connection removed from t1")
	}
	if r.Count("t2") != 1 {
		t.Fatalf("expected connection in t2")
	}
	if tenant, ok := r.TenantOf(c); !ok || tenant != "t2" {
		t.Fatalf("expected TenantOf to report t2, got %q %v", tenant, ok)
	}
}

func TestLeaveIsNoOpWhenAbsent(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}

	r.Leave(c, "t1") // never joined

	_ = r.Join(c, "t1")
	r.Leave(c, "t2") // member of a different room
	if r.Count("t1") != 1 {
		t.Fatalf("expected membership in t1 untouched")
	}

	r.Leave(c, "t1")
	if r.Count("t1") != 0 {
		t.Fatalf("expected membership removed")
	}
}

func TestRemoveConnCleansAllRooms(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}
	other := &fakeConn{id: "c2"}

	_ = r.Join(c, "t1")
	_ = r.Join(other, "t1")

	before := r.Count("t1")
	r.RemoveConn(c)

	if got := r.Count("t1"); got != before-1 {
		t.Fatalf("expected count to decrease by exactly 1, got %d -> %d", before, got)
	}
	if _, ok := r.TenantOf(c); ok {
		t.Fatalf("expected connection absent from every room")
	}

	// Safe for never-joined connections
	r.RemoveConn(&fakeConn{id: "ghost"})
}

func TestDrainedRoomEqualsAbsentRoom(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}

	_ = r.Join(c, "t1")
	r.RemoveConn(c)

	if got := len(r.MembersOf("t1")); got != 0 {
		t.Fatalf("expected empty snapshot, got %d members", got)
	}
	if counts := r.RoomCounts(); len(counts) != 0 {
		t.Fatalf("expected drained room deleted, got %v", counts)
	}
}

func TestMembersOfSnapshot(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}

	_ = r.Join(c1, "t1")
	snapshot := r.MembersOf("t1")

	_ = r.Join(c2, "t1")
	if len(snapshot) != 1 {
		t.Fatalf("expected snapshot unaffected by later joins, got %d", len(snapshot))
	}
}

func TestConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := &fakeConn{id: fmt.Sprintf("c%d", n)}
			tenant := fmt.Sprintf("t%d", n%3)
			_ = r.Join(c, tenant)
			_ = r.MembersOf(tenant)
			if n%2 == 0 {
				r.RemoveConn(c)
			}
		}(i)
	}
	wg.Wait()

	if got := r.CountAll(); got != 25 {
		t.Fatalf("expected 25 surviving connections, got %d", got)
	}
}
