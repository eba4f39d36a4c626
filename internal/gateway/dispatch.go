package gateway

import (
	"context"
	"encoding/json"

	"relay/internal/bus"
	"relay/internal/messages"
	"relay/internal/presence"
	"relay/internal/registry"
)

// Dispatch implements bus.Dispatcher: recipients with connections in this
// process get the payload directly, the rest of the event goes over the bus
// for whichever processes host them. Typing events are room-addressed and
// always forwarded, since room membership is not resolvable locally.
func (s *Server) Dispatch(ctx context.Context, event bus.Event) error {
	remote := s.deliverLocal(event)

	if event.Kind == bus.KindTyping {
		s.metrics.BusPublished.Inc()
		return s.bus.Publish(ctx, event)
	}

	if len(remote) == 0 {
		return nil
	}
	event.Recipients = remote
	s.metrics.BusPublished.Inc()
	return s.bus.Publish(ctx, event)
}

// deliverLocal pushes the event to local connections and returns the
// recipients this process could not serve.
func (s *Server) deliverLocal(event bus.Event) (remote []string) {
	switch event.Kind {
	case bus.KindMessage:
		var view messages.View
		if err := json.Unmarshal(event.Payload, &view); err != nil {
			s.logger.Warn("malformed message payload", "error", err)
			return nil
		}
		for _, identityID := range event.Recipients {
			conns := s.registry.ConnectionsOf(identityID)
			if len(conns) == 0 {
				remote = append(remote, identityID)
				continue
			}
			for _, c := range conns {
				// is_self is a per-recipient fact, never part of the shared
				// payload.
				copied := view
				copied.IsSelf = c.IdentityID() == view.AuthorID
				if c.Send(okResponse(EventSendMessage, copied)) == nil {
					s.metrics.FanoutDeliveries.Inc()
				} else {
					s.metrics.DroppedSends.Inc()
				}
			}
		}

	case bus.KindPresence:
		var update presence.Update
		if err := json.Unmarshal(event.Payload, &update); err != nil {
			s.logger.Warn("malformed presence payload", "error", err)
			return nil
		}
		for _, identityID := range event.Recipients {
			conns := s.registry.ConnectionsOf(identityID)
			if len(conns) == 0 {
				remote = append(remote, identityID)
				continue
			}
			for _, c := range conns {
				if c.Send(okResponse(EventUpdateStatus, update)) != nil {
					s.metrics.DroppedSends.Inc()
				}
			}
		}

	case bus.KindTyping:
		var payload typingPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logger.Warn("malformed typing payload", "error", err)
			return nil
		}
		for _, c := range s.registry.InRoom(event.RoomID) {
			if c.Send(okResponse(EventTyping, payload)) != nil {
				s.metrics.DroppedSends.Inc()
			}
		}

	case bus.KindChatList:
		for _, identityID := range event.Recipients {
			conns := s.registry.ConnectionsOf(identityID)
			if len(conns) == 0 {
				remote = append(remote, identityID)
				continue
			}
			s.pushChatList(identityID, conns)
		}
	}
	return remote
}

// pushChatList recomputes the projection for one identity and pushes it to
// the given connections. Recomputing on the receiving process keeps the view
// consistent with its own presence data.
func (s *Server) pushChatList(identityID string, conns []registry.Connection) {
	list, err := s.chatlist.ProjectFor(context.Background(), identityID)
	if err != nil {
		s.logger.Warn("chat list refresh failed", "identity", identityID, "error", err)
		return
	}
	for _, c := range conns {
		if c.Send(okResponse(EventGetChatLists, list)) != nil {
			s.metrics.DroppedSends.Inc()
		}
	}
}

// RunBus consumes the broadcast bus until ctx ends, delivering events from
// other processes to the connections this process owns. Events are never
// re-published from here.
func (s *Server) RunBus(ctx context.Context) error {
	return s.bus.Subscribe(ctx, func(event bus.Event) {
		s.metrics.BusReceived.Inc()
		s.deliverLocal(event)
	})
}
