package typing

import (
	"sync"
	"testing"
	"time"
)

// recorder collects every broadcast so tests can assert on the sequence of
// full-set snapshots.
type recorder struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	roomID  string
	typists []Typist
}

func (r *recorder) notify(roomID string, typists []Typist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{roomID: roomID, typists: typists})
}

func (r *recorder) last() (broadcastCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return broadcastCall{}, false
	}
	return r.calls[len(r.calls)-1], true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartBroadcastsFullSet(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(time.Minute, rec.notify)

	c.Start("room-1", "alice", "Alice")
	c.Start("room-1", "bob", "Bob")

	last, ok := rec.last()
	if !ok {
		t.Fatal("no broadcast recorded")
	}
	if last.roomID != "room-1" || len(last.typists) != 2 {
		t.Fatalf("got room %q with %d typists, want room-1 with 2", last.roomID, len(last.typists))
	}
}

func TestStopRemovesAndRebroadcasts(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(time.Minute, rec.notify)

	c.Start("room-1", "alice", "Alice")
	c.Stop("room-1", "alice")

	last, _ := rec.last()
	if len(last.typists) != 0 {
		t.Fatalf("set after stop = %v, want empty", last.typists)
	}
	if got := c.Typists("room-1"); len(got) != 0 {
		t.Fatalf("Typists after stop = %v, want empty", got)
	}
}

func TestStopUnknownIsSilent(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(time.Minute, rec.notify)

	c.Stop("room-1", "nobody")
	if rec.count() != 0 {
		t.Fatal("stop of an absent entry must not broadcast")
	}
}

func TestEntryExpires(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(20*time.Millisecond, rec.notify)

	c.Start("room-1", "alice", "Alice")

	waitFor(t, time.Second, func() bool {
		return len(c.Typists("room-1")) == 0
	})

	last, _ := rec.last()
	if len(last.typists) != 0 {
		t.Fatalf("expiry broadcast = %v, want empty set", last.typists)
	}
}

func TestRenewalResetsWindow(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(60*time.Millisecond, rec.notify)

	c.Start("room-1", "alice", "Alice")
	time.Sleep(40 * time.Millisecond)
	c.Start("room-1", "alice", "Alice")
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first start but only 40ms after renewal: still typing.
	if got := c.Typists("room-1"); len(got) != 1 {
		t.Fatalf("entry expired despite renewal, set = %v", got)
	}

	waitFor(t, time.Second, func() bool {
		return len(c.Typists("room-1")) == 0
	})
}

func TestClearIdentityAffectsEveryRoom(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(time.Minute, rec.notify)

	c.Start("room-1", "alice", "Alice")
	c.Start("room-2", "alice", "Alice")
	c.Start("room-2", "bob", "Bob")

	before := rec.count()
	c.ClearIdentity("alice")

	if got := rec.count() - before; got != 2 {
		t.Fatalf("ClearIdentity broadcast %d rooms, want 2", got)
	}
	if got := c.Typists("room-1"); len(got) != 0 {
		t.Fatalf("room-1 still has typists: %v", got)
	}
	got := c.Typists("room-2")
	if len(got) != 1 || got[0].IdentityID != "bob" {
		t.Fatalf("room-2 = %v, want only bob", got)
	}
}
