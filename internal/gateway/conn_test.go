package gateway

import (
	"testing"

	"relay/internal/identity"
)

func newTestConn() *conn {
	ident := &identity.Identity{ID: "alice", DisplayName: "Alice", Active: true}
	return newConn(nil, ident, "token", 40)
}

func TestSendRejectsForeignPayload(t *testing.T) {
	c := newTestConn()
	if err := c.Send("not an envelope"); err == nil {
		t.Fatal("non-Response payload was accepted")
	}
}

func TestSendDropsWhenSaturated(t *testing.T) {
	c := newTestConn()

	for i := 0; i < sendQueueSize; i++ {
		if err := c.Send(okResponse(EventTyping, nil)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := c.Send(okResponse(EventTyping, nil)); err == nil {
		t.Fatal("saturated queue must drop, not block")
	}
}

func TestRoomMembershipTracking(t *testing.T) {
	c := newTestConn()

	c.Join("room-1")
	c.Join("room-2")
	if !c.Joined("room-1") || !c.Joined("room-2") {
		t.Fatal("joined rooms not tracked")
	}
	if got := len(c.JoinedRooms()); got != 2 {
		t.Fatalf("JoinedRooms = %d entries, want 2", got)
	}

	c.SetActiveRoom("room-1")
	if c.ActiveRoom() != "room-1" {
		t.Fatalf("active room = %q", c.ActiveRoom())
	}

	// Leaving the active room clears the active marker too.
	c.Leave("room-1")
	if c.Joined("room-1") || c.ActiveRoom() != "" {
		t.Fatal("leave did not clear membership and active marker")
	}
}
