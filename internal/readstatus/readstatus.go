package readstatus

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"relay/infrastructure"
	"relay/internal/database"
)

// Store is the durable last-read pointer per (identity, room). The upsert is
// the monotonicity boundary: a lower value never overwrites a higher one.
type Store interface {
	Get(ctx context.Context, identityID, roomID string) (uint, bool, error)
	Upsert(ctx context.Context, identityID, roomID string, messageID uint) error
}

// MessageCounter counts messages newer than a given id, excluding the
// reader's own.
type MessageCounter interface {
	CountAfter(ctx context.Context, roomID, identityID string, afterID uint) (int64, error)
}

// Tracker implements mark-read and unread counting over the two stores.
type Tracker struct {
	store    Store
	messages MessageCounter
}

func NewTracker(store Store, messages MessageCounter) *Tracker {
	return &Tracker{store: store, messages: messages}
}

// MarkRead advances the pointer. A message id at or below the stored value is
// a no-op, not an error: stale clients replaying an old position must not
// move anyone backwards.
func (t *Tracker) MarkRead(ctx context.Context, identityID, roomID string, messageID uint) error {
	if roomID == "" || messageID == 0 {
		return infrastructure.ErrValidation
	}
	return t.store.Upsert(ctx, identityID, roomID, messageID)
}

// UnreadCount counts other people's messages past the pointer. With no
// pointer yet, every message from someone else counts.
func (t *Tracker) UnreadCount(ctx context.Context, identityID, roomID string) (int64, error) {
	lastRead, _, err := t.store.Get(ctx, identityID, roomID)
	if err != nil {
		return 0, err
	}
	return t.messages.CountAfter(ctx, roomID, identityID, lastRead)
}

type gormStore struct {
	db *database.Database
}

func NewStore(db *database.Database) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, identityID, roomID string) (uint, bool, error) {
	var record database.ReadStatus
	err := s.db.WithContext(ctx).
		First(&record, "identity_id = ? AND room_id = ?", identityID, roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return record.LastReadMessageID, true, nil
}

// Upsert enforces monotonicity in the store itself, not read-then-write in Go:
// concurrent marks from two devices cannot interleave into a regression.
func (s *gormStore) Upsert(ctx context.Context, identityID, roomID string, messageID uint) error {
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO read_statuses (identity_id, room_id, last_read_message_id, updated_at)
		VALUES (?, ?, ?, NOW())
		ON CONFLICT (identity_id, room_id) DO UPDATE
		SET last_read_message_id = EXCLUDED.last_read_message_id, updated_at = NOW()
		WHERE read_statuses.last_read_message_id < EXCLUDED.last_read_message_id`,
		identityID, roomID, messageID,
	).Error
	if err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return nil
}
