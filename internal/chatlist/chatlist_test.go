package chatlist

import (
	"context"
	"testing"
	"time"

	"relay/internal/messages"
	"relay/internal/rooms"
)

type fakeRooms struct {
	list    []rooms.Room
	members map[string][]rooms.Member
}

func (f *fakeRooms) ListRoomsFor(_ context.Context, _ string) ([]rooms.Room, error) {
	return f.list, nil
}

func (f *fakeRooms) ListMembers(_ context.Context, roomID string, _ bool) ([]rooms.Member, error) {
	return f.members[roomID], nil
}

type fakeLast struct {
	last map[string]*messages.Message
}

func (f *fakeLast) LastInRoom(_ context.Context, roomID string) (*messages.Message, error) {
	return f.last[roomID], nil
}

type fakeUnread struct {
	counts map[string]int64
}

func (f *fakeUnread) UnreadCount(_ context.Context, _, roomID string) (int64, error) {
	return f.counts[roomID], nil
}

type fakePresence struct {
	online map[string]bool
}

func (f *fakePresence) IsOnline(_ context.Context, identityID string) bool {
	return f.online[identityID]
}

func at(offset time.Duration) time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(offset)
}

func TestProjectForPrivateRoom(t *testing.T) {
	roomSource := &fakeRooms{
		list: []rooms.Room{{ID: "chat_alice_bob", Kind: rooms.KindPrivate, CreatedAt: at(0)}},
		members: map[string][]rooms.Member{
			"chat_alice_bob": {
				{IdentityID: "alice", DisplayName: "Alice"},
				{IdentityID: "bob", DisplayName: "Bob"},
			},
		},
	}
	last := &fakeLast{last: map[string]*messages.Message{
		"chat_alice_bob": {ID: 7, RoomID: "chat_alice_bob", AuthorID: "bob", Body: "hey", Kind: messages.KindText, CreatedAt: at(time.Hour)},
	}}
	unread := &fakeUnread{counts: map[string]int64{"chat_alice_bob": 3}}
	presence := &fakePresence{online: map[string]bool{"bob": true}}

	p := NewProjector(roomSource, last, unread, presence)
	list, err := p.ProjectFor(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ProjectFor: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d rows, want 1", len(list))
	}

	row := list[0]
	if row.CounterpartID != "bob" || row.CounterpartName != "Bob" {
		t.Fatalf("counterpart = %q/%q, want bob/Bob", row.CounterpartID, row.CounterpartName)
	}
	if !row.IsOnline {
		t.Fatal("counterpart presence not reflected")
	}
	if row.LastMessage != "hey" || row.UnreadCount != 3 {
		t.Fatalf("row = %+v", row)
	}
	if row.LastMessageTime == nil || !row.LastMessageTime.Equal(at(time.Hour)) {
		t.Fatalf("last message time = %v", row.LastMessageTime)
	}
}

func TestProjectForMediaPlaceholder(t *testing.T) {
	roomSource := &fakeRooms{
		list: []rooms.Room{{ID: "group_1", Kind: rooms.KindGroup, Name: "team", CreatorID: "alice", CreatedAt: at(0)}},
	}
	last := &fakeLast{last: map[string]*messages.Message{
		"group_1": {ID: 2, Body: "https://cdn/pic.bin", Kind: messages.KindImage, CreatedAt: at(time.Minute)},
	}}

	p := NewProjector(roomSource, last, &fakeUnread{}, &fakePresence{})
	list, err := p.ProjectFor(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ProjectFor: %v", err)
	}

	row := list[0]
	if row.LastMessage != MediaPlaceholder {
		t.Fatalf("last message = %q, want placeholder", row.LastMessage)
	}
	if row.Name != "team" || !row.IsOwner {
		t.Fatalf("row = %+v, want named group owned by alice", row)
	}
}

func TestProjectForOrdering(t *testing.T) {
	roomSource := &fakeRooms{
		list: []rooms.Room{
			{ID: "old", Kind: rooms.KindGroup, CreatedAt: at(0)},
			{ID: "busy", Kind: rooms.KindGroup, CreatedAt: at(0)},
			{ID: "fresh-empty", Kind: rooms.KindGroup, CreatedAt: at(2 * time.Hour)},
		},
	}
	last := &fakeLast{last: map[string]*messages.Message{
		"old":  {ID: 1, Body: "a", Kind: messages.KindText, CreatedAt: at(time.Minute)},
		"busy": {ID: 2, Body: "b", Kind: messages.KindText, CreatedAt: at(3 * time.Hour)},
	}}

	p := NewProjector(roomSource, last, &fakeUnread{}, &fakePresence{})
	list, err := p.ProjectFor(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ProjectFor: %v", err)
	}

	got := []string{list[0].RoomID, list[1].RoomID, list[2].RoomID}
	want := []string{"busy", "fresh-empty", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestProjectForEmptyRoomFallsBackToCreation(t *testing.T) {
	roomSource := &fakeRooms{
		list: []rooms.Room{{ID: "quiet", Kind: rooms.KindGroup, CreatedAt: at(0)}},
	}

	p := NewProjector(roomSource, &fakeLast{}, &fakeUnread{}, &fakePresence{})
	list, err := p.ProjectFor(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ProjectFor: %v", err)
	}

	row := list[0]
	if row.LastMessage != "" || row.LastMessageTime != nil {
		t.Fatalf("empty room row = %+v", row)
	}
}
