// Package chatlist builds the per-identity room list on demand. It is a read
// model, recomputed on every call; the cost buys always-consistent results.
package chatlist

import (
	"context"
	"sort"
	"time"

	"relay/internal/messages"
	"relay/internal/rooms"
)

// MediaPlaceholder is what a non-text last message renders as in the list.
const MediaPlaceholder = "Photo"

// Summary is one row of the projected chat list.
type Summary struct {
	RoomID          string     `json:"room_id"`
	Kind            string     `json:"chat_type"`
	Name            string     `json:"name,omitempty"`
	CounterpartID   string     `json:"identity_id,omitempty"`
	CounterpartName string     `json:"display_name,omitempty"`
	IsOwner         bool       `json:"is_owner"`
	IsOnline        bool       `json:"is_online"`
	LastMessage     string     `json:"last_message"`
	LastMessageKind string     `json:"last_message_type,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UnreadCount     int64      `json:"unread_count"`

	sortTime time.Time
}

type RoomSource interface {
	ListRoomsFor(ctx context.Context, identityID string) ([]rooms.Room, error)
	ListMembers(ctx context.Context, roomID string, includeDeleted bool) ([]rooms.Member, error)
}

type LastMessageSource interface {
	LastInRoom(ctx context.Context, roomID string) (*messages.Message, error)
}

type UnreadSource interface {
	UnreadCount(ctx context.Context, identityID, roomID string) (int64, error)
}

type PresenceSource interface {
	IsOnline(ctx context.Context, identityID string) bool
}

type Projector struct {
	rooms    RoomSource
	last     LastMessageSource
	unread   UnreadSource
	presence PresenceSource
}

func NewProjector(roomSource RoomSource, last LastMessageSource, unread UnreadSource, presence PresenceSource) *Projector {
	return &Projector{rooms: roomSource, last: last, unread: unread, presence: presence}
}

// ProjectFor resolves one Summary per active membership of the identity,
// sorted most-recent-first by last message time, falling back to room
// creation time for rooms with no messages yet.
func (p *Projector) ProjectFor(ctx context.Context, identityID string) ([]Summary, error) {
	memberships, err := p.rooms.ListRoomsFor(ctx, identityID)
	if err != nil {
		return nil, err
	}

	list := make([]Summary, 0, len(memberships))
	for _, room := range memberships {
		summary := Summary{
			RoomID:   room.ID,
			Kind:     room.Kind,
			IsOwner:  room.Kind == rooms.KindPrivate || room.CreatorID == identityID,
			sortTime: room.CreatedAt,
		}
		if room.Kind == rooms.KindGroup {
			summary.Name = room.Name
		}

		if room.Kind == rooms.KindPrivate {
			members, err := p.rooms.ListMembers(ctx, room.ID, false)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				if m.IdentityID == identityID {
					continue
				}
				summary.CounterpartID = m.IdentityID
				summary.CounterpartName = m.DisplayName
				summary.IsOnline = p.presence.IsOnline(ctx, m.IdentityID)
				break
			}
		}

		last, err := p.last.LastInRoom(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			if last.Kind == messages.KindText {
				summary.LastMessage = last.Body
			} else {
				summary.LastMessage = MediaPlaceholder
			}
			summary.LastMessageKind = last.Kind
			at := last.CreatedAt
			summary.LastMessageTime = &at
			summary.sortTime = at
		}

		count, err := p.unread.UnreadCount(ctx, identityID, room.ID)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = count

		list = append(list, summary)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].sortTime.After(list[j].sortTime)
	})

	return list, nil
}
