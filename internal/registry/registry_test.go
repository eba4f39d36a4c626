package registry

import (
	"fmt"
	"sync"
	"testing"
)

type fakeConn struct {
	id         string
	identityID string

	mu     sync.Mutex
	joined map[string]struct{}
	sent   []interface{}
}

func newFakeConn(id, identityID string) *fakeConn {
	return &fakeConn{id: id, identityID: identityID, joined: make(map[string]struct{})}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) IdentityID() string { return c.identityID }

func (c *fakeConn) Joined(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[roomID]
	return ok
}

func (c *fakeConn) Join(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[roomID] = struct{}{}
}

func (c *fakeConn) Leave(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, roomID)
}

func (c *fakeConn) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]string, 0, len(c.joined))
	for roomID := range c.joined {
		list = append(list, roomID)
	}
	return list
}

func (c *fakeConn) ActiveRoom() string { return "" }

func (c *fakeConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return nil
}

func TestRegisterFirstAndLast(t *testing.T) {
	r := New()
	a := newFakeConn("c1", "alice")
	b := newFakeConn("c2", "alice")

	if !r.Register("alice", a) {
		t.Fatal("first connection should report wasFirst")
	}
	if r.Register("alice", b) {
		t.Fatal("second connection should not report wasFirst")
	}

	if r.Unregister("alice", a) {
		t.Fatal("unregistering one of two connections should not report wasLast")
	}
	if !r.Unregister("alice", b) {
		t.Fatal("unregistering the final connection should report wasLast")
	}
	if r.IsOnlineLocal("alice") {
		t.Fatal("identity should be offline after last unregister")
	}
}

func TestUnregisterUnknownConnection(t *testing.T) {
	r := New()
	a := newFakeConn("c1", "alice")
	stray := newFakeConn("c9", "alice")

	r.Register("alice", a)
	if r.Unregister("alice", stray) {
		t.Fatal("unknown connection must never report wasLast")
	}
	if !r.IsOnlineLocal("alice") {
		t.Fatal("registered connection should keep identity online")
	}
	if r.Unregister("bob", stray) {
		t.Fatal("unknown identity must never report wasLast")
	}
}

func TestConnectionsOfAndInRoom(t *testing.T) {
	r := New()
	a := newFakeConn("c1", "alice")
	b := newFakeConn("c2", "alice")
	c := newFakeConn("c3", "bob")

	r.Register("alice", a)
	r.Register("alice", b)
	r.Register("bob", c)

	a.Join("room-1")
	c.Join("room-1")

	if got := len(r.ConnectionsOf("alice")); got != 2 {
		t.Fatalf("ConnectionsOf(alice) = %d connections, want 2", got)
	}
	if got := r.ConnectionsOf("nobody"); got != nil {
		t.Fatalf("ConnectionsOf(nobody) = %v, want nil", got)
	}

	inRoom := r.InRoom("room-1")
	if len(inRoom) != 2 {
		t.Fatalf("InRoom(room-1) = %d connections, want 2", len(inRoom))
	}
	for _, conn := range inRoom {
		if conn.ID() == b.ID() {
			t.Fatal("connection that never joined the room was returned")
		}
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := New()
	const workers = 32

	var wg sync.WaitGroup
	firsts := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i), "alice")
			firsts <- r.Register("alice", c)
			r.ConnectionsOf("alice")
			if r.Unregister("alice", c) {
				r.IsOnlineLocal("alice")
			}
		}(i)
	}
	wg.Wait()
	close(firsts)

	if r.IsOnlineLocal("alice") {
		t.Fatal("all connections unregistered, identity still online")
	}

	count := 0
	for first := range firsts {
		if first {
			count++
		}
	}
	if count == 0 {
		t.Fatal("at least one registration must have been the first")
	}
}
