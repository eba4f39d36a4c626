package readstatus

import (
	"context"
	"errors"
	"testing"

	"relay/infrastructure"
)

type fakeStore struct {
	pointers map[string]uint
	upserts  int
}

func key(identityID, roomID string) string { return identityID + "/" + roomID }

func (s *fakeStore) Get(_ context.Context, identityID, roomID string) (uint, bool, error) {
	v, ok := s.pointers[key(identityID, roomID)]
	return v, ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, identityID, roomID string, messageID uint) error {
	s.upserts++
	k := key(identityID, roomID)
	if messageID > s.pointers[k] {
		s.pointers[k] = messageID
	}
	return nil
}

type fakeCounter struct {
	gotAfter uint
	count    int64
}

func (c *fakeCounter) CountAfter(_ context.Context, _, _ string, afterID uint) (int64, error) {
	c.gotAfter = afterID
	return c.count, nil
}

func TestMarkReadValidation(t *testing.T) {
	store := &fakeStore{pointers: make(map[string]uint)}
	tracker := NewTracker(store, &fakeCounter{})

	tests := []struct {
		name      string
		roomID    string
		messageID uint
	}{
		{"empty room", "", 5},
		{"zero message id", "room-1", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tracker.MarkRead(context.Background(), "alice", tc.roomID, tc.messageID)
			if !errors.Is(err, infrastructure.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
	if store.upserts != 0 {
		t.Fatal("invalid marks must not reach the store")
	}
}

func TestMarkReadAdvancesPointer(t *testing.T) {
	store := &fakeStore{pointers: make(map[string]uint)}
	tracker := NewTracker(store, &fakeCounter{})

	if err := tracker.MarkRead(context.Background(), "alice", "room-1", 10); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// Replaying an older position is a silent no-op.
	if err := tracker.MarkRead(context.Background(), "alice", "room-1", 4); err != nil {
		t.Fatalf("MarkRead stale: %v", err)
	}
	if got := store.pointers[key("alice", "room-1")]; got != 10 {
		t.Fatalf("pointer = %d, want 10", got)
	}
}

func TestUnreadCountUsesPointer(t *testing.T) {
	store := &fakeStore{pointers: map[string]uint{key("alice", "room-1"): 7}}
	counter := &fakeCounter{count: 3}
	tracker := NewTracker(store, counter)

	count, err := tracker.UnreadCount(context.Background(), "alice", "room-1")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 3 || counter.gotAfter != 7 {
		t.Fatalf("count = %d after %d, want 3 after 7", count, counter.gotAfter)
	}
}

func TestUnreadCountWithoutPointerCountsEverything(t *testing.T) {
	store := &fakeStore{pointers: make(map[string]uint)}
	counter := &fakeCounter{count: 12}
	tracker := NewTracker(store, counter)

	count, err := tracker.UnreadCount(context.Background(), "alice", "room-1")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 12 || counter.gotAfter != 0 {
		t.Fatalf("count = %d after %d, want 12 after 0", count, counter.gotAfter)
	}
}
