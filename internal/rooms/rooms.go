package rooms

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	KindPrivate = "private"
	KindGroup   = "group"
)

// Room is the membership view of a persistent room.
type Room struct {
	ID        string    `json:"room_id"`
	Kind      string    `json:"chat_type"`
	Name      string    `json:"name,omitempty"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is an active membership with display data resolved.
type Member struct {
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"display_name"`
	IsOwner     bool      `json:"is_owner"`
	JoinedAt    time.Time `json:"joined_at"`
}

// PrivateRoomID derives the id for the private room of an unordered identity
// pair. Both orderings map to the same id, so two concurrent "start chat"
// calls for the same pair converge on one room.
func PrivateRoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%s_%s", a, b)
}

// GroupRoomID mints a fresh id for a group room.
func GroupRoomID() string {
	return "group_" + uuid.NewString()
}
