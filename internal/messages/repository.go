package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"relay/infrastructure"
	"relay/internal/database"
)

const (
	KindText  = "text"
	KindImage = "image"
)

// Message is the persisted, immutable record. The id is monotonically
// increasing with persistence order, which is the only ordering the room
// guarantees.
type Message struct {
	ID        uint      `json:"message_id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"message"`
	Kind      string    `json:"message_type"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, m *Message) (*Message, error)
	PageByRoom(ctx context.Context, roomID string, page, limit int) ([]Message, error)
	LastInRoom(ctx context.Context, roomID string) (*Message, error)
	// CountAfter counts messages in roomID authored by someone other than
	// identityID with an id greater than afterID.
	CountAfter(ctx context.Context, roomID, identityID string, afterID uint) (int64, error)
}

type repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, m *Message) (*Message, error) {
	record := database.Message{
		RoomID:   m.RoomID,
		AuthorID: m.AuthorID,
		Body:     m.Body,
		Kind:     m.Kind,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return fromRecord(&record), nil
}

func (r *repository) PageByRoom(ctx context.Context, roomID string, page, limit int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var records []database.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	list := make([]Message, 0, len(records))
	for i := range records {
		list = append(list, *fromRecord(&records[i]))
	}
	return list, nil
}

func (r *repository) LastInRoom(ctx context.Context, roomID string) (*Message, error) {
	var record database.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return fromRecord(&record), nil
}

func (r *repository) CountAfter(ctx context.Context, roomID, identityID string, afterID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&database.Message{}).
		Where("room_id = ? AND author_id <> ? AND id > ?", roomID, identityID, afterID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return count, nil
}

func fromRecord(record *database.Message) *Message {
	return &Message{
		ID:        record.ID,
		RoomID:    record.RoomID,
		AuthorID:  record.AuthorID,
		Body:      record.Body,
		Kind:      record.Kind,
		CreatedAt: record.CreatedAt,
	}
}
