package rooms

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"relay/infrastructure"
	"relay/internal/database"
)

// Repository is the durable-store client for rooms and memberships. It never
// caches; every call goes to the store so concurrent processes observe the
// same membership.
type Repository interface {
	CreateOrGetPrivateRoom(ctx context.Context, idA, idB string) (*Room, error)
	CreateGroupRoom(ctx context.Context, creatorID string, memberIDs []string, name string) (*Room, error)
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	AddMember(ctx context.Context, roomID, identityID string) error
	SoftRemoveMember(ctx context.Context, roomID, identityID string) error
	ListMembers(ctx context.Context, roomID string, includeDeleted bool) ([]Member, error)
	ListRoomsFor(ctx context.Context, identityID string) ([]Room, error)
	IsActiveMember(ctx context.Context, roomID, identityID string) (bool, error)
	CounterpartsOf(ctx context.Context, identityID string) ([]string, error)
}

type repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrGetPrivateRoom(ctx context.Context, idA, idB string) (*Room, error) {
	if idA == "" || idB == "" || idA == idB {
		return nil, infrastructure.ErrValidation
	}

	roomID := PrivateRoomID(idA, idB)
	record := database.Room{
		ID:        roomID,
		Kind:      KindPrivate,
		CreatorID: idA,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The deterministic id makes creation idempotent: a concurrent call
		// for the same pair hits the primary key and falls through to read.
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			return err
		}
		if err := tx.First(&record, "id = ?", roomID).Error; err != nil {
			return err
		}
		if err := upsertMember(tx, roomID, idA); err != nil {
			return err
		}
		return upsertMember(tx, roomID, idB)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	return fromRoomRecord(&record), nil
}

func (r *repository) CreateGroupRoom(ctx context.Context, creatorID string, memberIDs []string, name string) (*Room, error) {
	if creatorID == "" {
		return nil, infrastructure.ErrValidation
	}
	if name == "" {
		name = "New Group"
	}

	record := database.Room{
		ID:        GroupRoomID(),
		Kind:      KindGroup,
		Name:      name,
		CreatorID: creatorID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if err := upsertMember(tx, record.ID, creatorID); err != nil {
			return err
		}
		for _, id := range memberIDs {
			if id == creatorID {
				continue
			}
			if err := upsertMember(tx, record.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	return fromRoomRecord(&record), nil
}

func (r *repository) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var record database.Room
	err := r.db.WithContext(ctx).First(&record, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, infrastructure.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return fromRoomRecord(&record), nil
}

func (r *repository) AddMember(ctx context.Context, roomID, identityID string) error {
	var room database.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return infrastructure.ErrNotFound
		}
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertMember(tx, roomID, identityID)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return nil
}

func (r *repository) SoftRemoveMember(ctx context.Context, roomID, identityID string) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND identity_id = ?", roomID, identityID).
		Delete(&database.RoomMember{})
	if result.Error != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, result.Error)
	}
	if result.RowsAffected == 0 {
		return infrastructure.ErrNotFound
	}
	return nil
}

func (r *repository) ListMembers(ctx context.Context, roomID string, includeDeleted bool) ([]Member, error) {
	query := r.db.WithContext(ctx).
		Table("room_members").
		Select("room_members.identity_id, identities.display_name, rooms.creator_id = room_members.identity_id AS is_owner, room_members.created_at AS joined_at").
		Joins("JOIN rooms ON rooms.id = room_members.room_id").
		Joins("LEFT JOIN identities ON identities.id = room_members.identity_id").
		Where("room_members.room_id = ?", roomID)
	if !includeDeleted {
		query = query.Where("room_members.deleted_at IS NULL")
	}

	var members []Member
	if err := query.Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return members, nil
}

func (r *repository) ListRoomsFor(ctx context.Context, identityID string) ([]Room, error) {
	var records []database.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.identity_id = ? AND room_members.deleted_at IS NULL", identityID).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	list := make([]Room, 0, len(records))
	for i := range records {
		list = append(list, *fromRoomRecord(&records[i]))
	}
	return list, nil
}

func (r *repository) IsActiveMember(ctx context.Context, roomID, identityID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&database.RoomMember{}).
		Where("room_id = ? AND identity_id = ?", roomID, identityID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return count > 0, nil
}

func (r *repository) CounterpartsOf(ctx context.Context, identityID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT other.identity_id
		FROM room_members own
		JOIN room_members other ON other.room_id = own.room_id
		WHERE own.identity_id = ?
		  AND own.deleted_at IS NULL
		  AND other.deleted_at IS NULL
		  AND other.identity_id <> ?`,
		identityID, identityID,
	).Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return ids, nil
}

// upsertMember makes membership writes idempotent: an active membership is
// left alone, a soft-deleted one is restored, and only a missing one is
// created.
func upsertMember(tx *gorm.DB, roomID, identityID string) error {
	var existing database.RoomMember
	err := tx.Unscoped().
		Where("room_id = ? AND identity_id = ?", roomID, identityID).
		First(&existing).Error
	if err == nil {
		if !existing.DeletedAt.Valid {
			return nil
		}
		return tx.Unscoped().
			Model(&database.RoomMember{}).
			Where("id = ?", existing.ID).
			Update("deleted_at", nil).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return tx.Create(&database.RoomMember{RoomID: roomID, IdentityID: identityID}).Error
}

func fromRoomRecord(record *database.Room) *Room {
	return &Room{
		ID:        record.ID,
		Kind:      record.Kind,
		Name:      record.Name,
		CreatorID: record.CreatorID,
		CreatedAt: record.CreatedAt,
	}
}
