package database

import (
	"time"

	"gorm.io/gorm"
)

const (
	IdentityActive   = 1
	IdentityInactive = 0
)

// Identity is owned by the external auth service. The core reads it to verify
// credentials and resolve display data; it never writes this table.
type Identity struct {
	ID           string `gorm:"primaryKey;size:64"`
	Handle       string `gorm:"uniqueIndex;size:32;not null"`
	DisplayName  string `gorm:"size:128"`
	Status       int    `gorm:"not null;default:1"`
	TokenVersion int    `gorm:"not null;default:0"`
}

type Room struct {
	ID        string `gorm:"primaryKey;size:160"`
	Kind      string `gorm:"size:16;not null"`
	Name      string `gorm:"size:128"`
	CreatorID string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

// RoomMember carries its own soft-delete timestamp so one member leaving does
// not affect the room for the others.
type RoomMember struct {
	ID         uint           `gorm:"primaryKey"`
	RoomID     string         `gorm:"size:160;not null;uniqueIndex:idx_room_member"`
	IdentityID string         `gorm:"size:64;not null;uniqueIndex:idx_room_member"`
	CreatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// Message rows are append-only. The auto-increment primary key doubles as the
// room-scoped ordering: a higher id was persisted later.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"size:160;not null;index"`
	AuthorID  string `gorm:"size:64;not null"`
	Body      string `gorm:"type:text;not null"`
	Kind      string `gorm:"size:16;not null;default:text"`
	CreatedAt time.Time
}

type ReadStatus struct {
	IdentityID        string `gorm:"primaryKey;size:64"`
	RoomID            string `gorm:"primaryKey;size:160"`
	LastReadMessageID uint   `gorm:"not null;default:0"`
	UpdatedAt         time.Time
}
