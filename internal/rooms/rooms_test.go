package rooms

import (
	"strings"
	"testing"
)

func TestPrivateRoomIDOrderIndependent(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"alice", "bob", "chat_alice_bob"},
		{"bob", "alice", "chat_alice_bob"},
		{"u-2", "u-10", "chat_u-10_u-2"},
		{"same", "same", "chat_same_same"},
	}
	for _, tc := range tests {
		if got := PrivateRoomID(tc.a, tc.b); got != tc.want {
			t.Errorf("PrivateRoomID(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestGroupRoomIDUnique(t *testing.T) {
	a := GroupRoomID()
	b := GroupRoomID()
	if !strings.HasPrefix(a, "group_") {
		t.Fatalf("id %q lacks group prefix", a)
	}
	if a == b {
		t.Fatal("two group ids collided")
	}
}
