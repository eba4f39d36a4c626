package gateway

import (
	"context"
	"encoding/json"

	"relay/infrastructure"
	"relay/internal/bus"
	"relay/internal/devices"
	"relay/internal/messages"
	"relay/internal/rooms"
)

func (s *Server) handleEvent(ctx context.Context, c *conn, req Request) {
	switch req.Event {
	case EventRegisterPresence:
		s.handleRegisterPresence(ctx, c)
	case EventSendChatRequest:
		s.handleSendChatRequest(ctx, c, req.Data)
	case EventGetChatLists:
		s.handleGetChatLists(ctx, c)
	case EventSendMessage:
		s.handleSendMessage(ctx, c, req.Data)
	case EventGetMessages:
		s.handleGetMessages(ctx, c, req.Data)
	case EventMarkRead:
		s.handleMarkRead(ctx, c, req.Data)
	case EventStartTyping:
		s.handleTyping(ctx, c, req.Data, true)
	case EventStopTyping:
		s.handleTyping(ctx, c, req.Data, false)
	case EventCreateGroup:
		s.handleCreateGroup(ctx, c, req.Data)
	case EventAddMember:
		s.handleMembershipChange(ctx, c, req.Data, true)
	case EventRemoveMember:
		s.handleMembershipChange(ctx, c, req.Data, false)
	case EventMemberList:
		s.handleMemberList(ctx, c, req.Data)
	case EventSaveDeviceToken:
		s.handleSaveDeviceToken(ctx, c, req.Data)
	case EventChatOpen:
		s.handleChatOpen(ctx, c, req.Data, true)
	case EventChatClose:
		s.handleChatOpen(ctx, c, req.Data, false)
	case EventLogout:
		s.handleLogout(ctx, c, req.Data)
	default:
		_ = c.Send(Response{Success: false, Event: req.Event, Message: "Unknown event"})
	}
}

// reverify re-runs the credential gate for sensitive events, so a token
// invalidated mid-connection (version bump, account deactivation) stops
// working before the next write.
func (s *Server) reverify(ctx context.Context, c *conn, event string) bool {
	if _, err := s.verifier.Verify(ctx, c.credential); err != nil {
		_ = c.Send(errResponse(event, err))
		return false
	}
	return true
}

func (s *Server) handleRegisterPresence(ctx context.Context, c *conn) {
	if !s.reverify(ctx, c, EventRegisterPresence) {
		return
	}

	memberships, err := s.rooms.ListRoomsFor(ctx, c.identity.ID)
	if err != nil {
		_ = c.Send(errResponse(EventRegisterPresence, err))
		return
	}
	for _, room := range memberships {
		c.Join(room.ID)
	}

	_ = c.Send(okResponse(EventRegisterPresence, map[string]interface{}{
		"identity_id":  c.identity.ID,
		"joined_rooms": len(memberships),
	}))
}

func (s *Server) handleSendChatRequest(ctx context.Context, c *conn, data json.RawMessage) {
	var in struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.Handle == "" {
		_ = c.Send(errResponse(EventSendChatRequest, infrastructure.ErrValidation))
		return
	}

	target, err := s.dir.ByHandle(ctx, in.Handle)
	if err != nil {
		_ = c.Send(errResponse(EventSendChatRequest, err))
		return
	}
	if !target.Active || target.ID == c.identity.ID {
		_ = c.Send(errResponse(EventSendChatRequest, infrastructure.ErrNotFound))
		return
	}

	room, err := s.rooms.CreateOrGetPrivateRoom(ctx, c.identity.ID, target.ID)
	if err != nil {
		_ = c.Send(errResponse(EventSendChatRequest, err))
		return
	}

	s.joinLocalConnections(room.ID, c.identity.ID, target.ID)

	_ = c.Send(okResponse(EventSendChatRequest, map[string]interface{}{
		"room_id":      room.ID,
		"chat_type":    room.Kind,
		"identity_id":  target.ID,
		"display_name": target.DisplayName,
		"is_online":    s.presence.IsOnline(ctx, target.ID),
	}))

	s.refreshChatLists(ctx, c.identity.ID, target.ID)
}

func (s *Server) handleGetChatLists(ctx context.Context, c *conn) {
	list, err := s.chatlist.ProjectFor(ctx, c.identity.ID)
	if err != nil {
		_ = c.Send(errResponse(EventGetChatLists, err))
		return
	}
	_ = c.Send(okResponse(EventGetChatLists, list))
}

func (s *Server) handleSendMessage(ctx context.Context, c *conn, data json.RawMessage) {
	if !s.reverify(ctx, c, EventSendMessage) {
		return
	}

	var in struct {
		RoomID string `json:"room_id"`
		Body   string `json:"message"`
		Kind   string `json:"message_type"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		_ = c.Send(errResponse(EventSendMessage, infrastructure.ErrValidation))
		return
	}

	message, err := s.fanout.Submit(ctx, c.identity.ID, in.RoomID, in.Body, in.Kind)
	if err != nil && message == nil {
		_ = c.Send(errResponse(EventSendMessage, err))
		return
	}
	s.metrics.MessagesPersisted.Inc()
	if err != nil {
		// Persisted but not broadcast everywhere: a soft failure the sender
		// should know about, while history remains the source of truth.
		_ = c.Send(Response{
			Success: false,
			Event:   EventSendMessage,
			Data:    messages.View{Message: *message, AuthorName: c.identity.DisplayName, IsSelf: true},
			Message: "Message stored, delivery degraded",
		})
		return
	}

	_ = c.Send(okResponse(EventSendMessage, messages.View{
		Message:    *message,
		AuthorName: c.identity.DisplayName,
		IsSelf:     true,
	}))
}

func (s *Server) handleGetMessages(ctx context.Context, c *conn, data json.RawMessage) {
	var in struct {
		RoomID string `json:"room_id"`
		Page   int    `json:"page"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		_ = c.Send(errResponse(EventGetMessages, infrastructure.ErrValidation))
		return
	}

	page, err := s.messages.PageByRoom(ctx, in.RoomID, in.Page, in.Limit)
	if err != nil {
		_ = c.Send(errResponse(EventGetMessages, err))
		return
	}

	names := make(map[string]string)
	views := make([]messages.View, 0, len(page))
	for _, m := range page {
		name, ok := names[m.AuthorID]
		if !ok {
			if author, err := s.dir.ByID(ctx, m.AuthorID); err == nil {
				name = author.DisplayName
			}
			names[m.AuthorID] = name
		}
		views = append(views, messages.View{
			Message:    m,
			AuthorName: name,
			IsSelf:     m.AuthorID == c.identity.ID,
		})
	}

	// Reading the most recent page of an open room advances the read pointer,
	// the same way opening a chat does.
	if c.ActiveRoom() == in.RoomID && in.Page <= 1 && len(page) > 0 {
		if err := s.readstatus.MarkRead(ctx, c.identity.ID, in.RoomID, page[0].ID); err != nil {
			s.logger.Warn("history read mark failed", "room", in.RoomID, "error", err)
		}
	}

	_ = c.Send(okResponse(EventGetMessages, views))
}

func (s *Server) handleMarkRead(ctx context.Context, c *conn, data json.RawMessage) {
	var in struct {
		RoomID            string `json:"room_id"`
		LastReadMessageID uint   `json:"last_read_message_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" || in.LastReadMessageID == 0 {
		_ = c.Send(errResponse(EventMarkRead, infrastructure.ErrValidation))
		return
	}

	if _, err := s.rooms.GetRoom(ctx, in.RoomID); err != nil {
		_ = c.Send(errResponse(EventMarkRead, err))
		return
	}

	if err := s.readstatus.MarkRead(ctx, c.identity.ID, in.RoomID, in.LastReadMessageID); err != nil {
		_ = c.Send(errResponse(EventMarkRead, err))
		return
	}
	_ = c.Send(okResponse(EventMarkRead, nil))
}

func (s *Server) handleTyping(ctx context.Context, c *conn, data json.RawMessage, start bool) {
	event := EventStopTyping
	if start {
		event = EventStartTyping
	}

	var in struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		_ = c.Send(errResponse(event, infrastructure.ErrValidation))
		return
	}

	if _, err := s.rooms.GetRoom(ctx, in.RoomID); err != nil {
		_ = c.Send(errResponse(event, err))
		return
	}

	if start {
		s.typing.Start(in.RoomID, c.identity.ID, c.identity.DisplayName)
	} else {
		s.typing.Stop(in.RoomID, c.identity.ID)
	}

	_ = c.Send(okResponse(event, typingPayload{
		RoomID:  in.RoomID,
		Typists: s.typing.Typists(in.RoomID),
	}))
}

func (s *Server) handleCreateGroup(ctx context.Context, c *conn, data json.RawMessage) {
	if !s.reverify(ctx, c, EventCreateGroup) {
		return
	}

	var in struct {
		Name    string   `json:"name"`
		Handles []string `json:"handles"`
	}
	if err := json.Unmarshal(data, &in); err != nil || len(in.Handles) == 0 {
		_ = c.Send(errResponse(EventCreateGroup, infrastructure.ErrValidation))
		return
	}

	// Unknown or inactive handles are skipped, not fatal: the group forms
	// around whoever resolves.
	memberIDs := make([]string, 0, len(in.Handles))
	for _, handle := range in.Handles {
		ident, err := s.dir.ByHandle(ctx, handle)
		if err != nil || !ident.Active {
			continue
		}
		memberIDs = append(memberIDs, ident.ID)
	}
	if len(memberIDs) == 0 {
		_ = c.Send(errResponse(EventCreateGroup, infrastructure.ErrValidation))
		return
	}

	room, err := s.rooms.CreateGroupRoom(ctx, c.identity.ID, memberIDs, in.Name)
	if err != nil {
		_ = c.Send(errResponse(EventCreateGroup, err))
		return
	}

	everyone := append([]string{c.identity.ID}, memberIDs...)
	s.joinLocalConnections(room.ID, everyone...)

	_ = c.Send(okResponse(EventCreateGroup, room))
	s.refreshChatLists(ctx, everyone...)
}

func (s *Server) handleMembershipChange(ctx context.Context, c *conn, data json.RawMessage, add bool) {
	event := EventRemoveMember
	if add {
		event = EventAddMember
	}
	if !s.reverify(ctx, c, event) {
		return
	}

	var in struct {
		RoomID string `json:"room_id"`
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" || in.Handle == "" {
		_ = c.Send(errResponse(event, infrastructure.ErrValidation))
		return
	}

	room, err := s.rooms.GetRoom(ctx, in.RoomID)
	if err != nil {
		_ = c.Send(errResponse(event, err))
		return
	}
	if room.Kind != rooms.KindGroup {
		_ = c.Send(errResponse(event, infrastructure.ErrValidation))
		return
	}

	target, err := s.dir.ByHandle(ctx, in.Handle)
	if err != nil {
		_ = c.Send(errResponse(event, err))
		return
	}

	// The creator manages the roster; anyone may remove themselves.
	selfRemoval := !add && target.ID == c.identity.ID
	if room.CreatorID != c.identity.ID && !selfRemoval {
		_ = c.Send(errResponse(event, infrastructure.ErrAuthorization))
		return
	}

	if add {
		err = s.rooms.AddMember(ctx, in.RoomID, target.ID)
	} else {
		err = s.rooms.SoftRemoveMember(ctx, in.RoomID, target.ID)
	}
	if err != nil {
		_ = c.Send(errResponse(event, err))
		return
	}

	if add {
		s.joinLocalConnections(in.RoomID, target.ID)
	} else {
		for _, tc := range s.registry.ConnectionsOf(target.ID) {
			tc.Leave(in.RoomID)
		}
		s.typing.Stop(in.RoomID, target.ID)
	}

	members, err := s.rooms.ListMembers(ctx, in.RoomID, false)
	if err != nil {
		_ = c.Send(errResponse(event, err))
		return
	}
	_ = c.Send(okResponse(event, members))

	s.refreshChatLists(ctx, c.identity.ID, target.ID)
}

func (s *Server) handleMemberList(ctx context.Context, c *conn, data json.RawMessage) {
	var in struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		_ = c.Send(errResponse(EventMemberList, infrastructure.ErrValidation))
		return
	}

	members, err := s.rooms.ListMembers(ctx, in.RoomID, false)
	if err != nil {
		_ = c.Send(errResponse(EventMemberList, err))
		return
	}
	_ = c.Send(okResponse(EventMemberList, members))
}

func (s *Server) handleSaveDeviceToken(ctx context.Context, c *conn, data json.RawMessage) {
	if !s.reverify(ctx, c, EventSaveDeviceToken) {
		return
	}

	var in struct {
		DeviceID string `json:"device_id"`
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		_ = c.Send(errResponse(EventSaveDeviceToken, infrastructure.ErrValidation))
		return
	}

	err := s.devices.Save(ctx, &devices.Token{
		IdentityID: c.identity.ID,
		DeviceID:   in.DeviceID,
		Token:      in.Token,
		Platform:   in.Platform,
	})
	if err != nil {
		_ = c.Send(errResponse(EventSaveDeviceToken, err))
		return
	}
	_ = c.Send(okResponse(EventSaveDeviceToken, nil))
}

func (s *Server) handleChatOpen(ctx context.Context, c *conn, data json.RawMessage, open bool) {
	event := EventChatClose
	if open {
		event = EventChatOpen
	}

	if !open {
		s.typing.Stop(c.ActiveRoom(), c.identity.ID)
		c.SetActiveRoom("")
		_ = c.Send(okResponse(event, nil))
		return
	}

	var in struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.RoomID == "" {
		_ = c.Send(errResponse(event, infrastructure.ErrValidation))
		return
	}
	if _, err := s.rooms.GetRoom(ctx, in.RoomID); err != nil {
		_ = c.Send(errResponse(event, err))
		return
	}

	c.SetActiveRoom(in.RoomID)
	_ = c.Send(okResponse(event, nil))
}

func (s *Server) handleLogout(ctx context.Context, c *conn, data json.RawMessage) {
	if !s.reverify(ctx, c, EventLogout) {
		return
	}

	var in struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(data, &in); err == nil && in.DeviceID != "" {
		if err := s.devices.Delete(ctx, c.identity.ID, in.DeviceID); err != nil {
			s.logger.Warn("device token removal failed", "identity", c.identity.ID, "error", err)
		}
	}

	_ = c.Send(okResponse(EventLogout, nil))
	c.close()
}

// joinLocalConnections joins every local connection of the given identities
// to the room, so fanout and typing reach them without a reconnect.
func (s *Server) joinLocalConnections(roomID string, identityIDs ...string) {
	for _, identityID := range identityIDs {
		for _, c := range s.registry.ConnectionsOf(identityID) {
			c.Join(roomID)
		}
	}
}

// refreshChatLists pushes a rebuilt chat list to each identity, wherever its
// connections live.
func (s *Server) refreshChatLists(ctx context.Context, identityIDs ...string) {
	err := s.Dispatch(ctx, bus.Event{
		Kind:       bus.KindChatList,
		Recipients: identityIDs,
		Payload:    json.RawMessage(`{}`),
	})
	if err != nil {
		s.logger.Warn("chat list refresh dispatch failed", "error", err)
	}
}
