package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"relay/infrastructure"
	"relay/internal/bus"
	"relay/internal/identity"
	"relay/internal/media"
	"relay/internal/rooms"
)

// View is the delivered shape of a message. IsSelf is computed per recipient
// connection at delivery time; it is always false on the bus.
type View struct {
	Message
	AuthorName string `json:"display_name"`
	IsSelf     bool   `json:"is_self"`
}

// MembershipSource is the slice of the room repository fanout needs.
type MembershipSource interface {
	IsActiveMember(ctx context.Context, roomID, identityID string) (bool, error)
	ListMembers(ctx context.Context, roomID string, includeDeleted bool) ([]rooms.Member, error)
}

// FanoutEngine persists a message and broadcasts it to the room's live
// members. Persistence is the durability boundary: nothing is broadcast
// unless the write succeeded, and the live push stays best-effort because the
// stored row is what guarantees eventual visibility.
type FanoutEngine struct {
	repo       Repository
	members    MembershipSource
	media      media.Resolver
	authors    identity.Directory
	dispatcher bus.Dispatcher
	logger     *slog.Logger

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func NewFanoutEngine(repo Repository, members MembershipSource, resolver media.Resolver, authors identity.Directory, dispatcher bus.Dispatcher, logger *slog.Logger) *FanoutEngine {
	return &FanoutEngine{
		repo:       repo,
		members:    members,
		media:      resolver,
		authors:    authors,
		dispatcher: dispatcher,
		logger:     logger,
		roomLocks:  make(map[string]*sync.Mutex),
	}
}

// Submit runs the full path: authorize, resolve media, persist, snapshot
// membership, broadcast. A bus failure after persistence returns both the
// stored message and a transient error, so the caller can report degraded
// delivery without pretending the message was lost.
func (e *FanoutEngine) Submit(ctx context.Context, authorID, roomID, body, kind string) (*Message, error) {
	if roomID == "" || body == "" {
		return nil, infrastructure.ErrValidation
	}
	switch kind {
	case "":
		kind = KindText
	case KindText, KindImage:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", infrastructure.ErrValidation, kind)
	}

	active, err := e.members.IsActiveMember(ctx, roomID, authorID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, infrastructure.ErrAuthorization
	}

	if kind == KindImage {
		ref, err := e.media.Resolve(ctx, body)
		if err != nil {
			return nil, err
		}
		body = ref
	}

	// One in-flight submit per room from persist through broadcast, so the
	// delivery order seen by any connection matches persistence order.
	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	message, err := e.repo.Create(ctx, &Message{
		RoomID:   roomID,
		AuthorID: authorID,
		Body:     body,
		Kind:     kind,
	})
	if err != nil {
		return nil, err
	}

	view := View{Message: *message}
	if author, err := e.authors.ByID(ctx, authorID); err == nil {
		view.AuthorName = author.DisplayName
	}

	// Snapshot of the active membership: whoever joins after this point gets
	// the message from history, not from the live path.
	members, err := e.members.ListMembers(ctx, roomID, false)
	if err != nil {
		return message, fmt.Errorf("%w: membership snapshot failed: %v", infrastructure.ErrTransientStorage, err)
	}

	recipients := make([]string, 0, len(members))
	for _, m := range members {
		recipients = append(recipients, m.IdentityID)
	}

	payload, err := json.Marshal(view)
	if err != nil {
		return message, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}

	err = e.dispatcher.Dispatch(ctx, bus.Event{
		Kind:       bus.KindMessage,
		RoomID:     roomID,
		Recipients: recipients,
		Payload:    payload,
	})
	if err != nil {
		e.logger.Warn("message broadcast degraded", "room", roomID, "message", message.ID, "error", err)
		return message, fmt.Errorf("%w: broadcast failed", infrastructure.ErrTransientStorage)
	}

	return message, nil
}

func (e *FanoutEngine) roomLock(roomID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		e.roomLocks[roomID] = lock
	}
	return lock
}
