// Package bus propagates events between processes that do not share memory.
// A message fanned out by the process holding the sender's connection reaches
// connections owned by other processes only through here.
package bus

import (
	"context"
	"encoding/json"
)

const (
	KindMessage  = "message"
	KindPresence = "presence"
	KindTyping   = "typing"
	KindChatList = "chat_list"
)

// Event is the wire envelope shared by every process on the bus.
//
// Recipients carries identity ids: a receiving process delivers the payload to
// its local connections for those identities only. Typing events address a
// room instead, because the typing set is visible to whoever has the room
// open. Origin lets a process skip events it published itself.
type Event struct {
	Kind       string          `json:"kind"`
	Origin     string          `json:"origin"`
	RoomID     string          `json:"room_id,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Bus interface {
	Publisher
	// Subscribe delivers every event published by other processes to handler,
	// one at a time, until ctx is cancelled.
	Subscribe(ctx context.Context, handler func(Event)) error
}
