package gateway

import (
	"encoding/json"
	"errors"

	"relay/infrastructure"
)

// Boundary event names. Inbound frames name one of these; responses and
// pushed broadcasts echo the event they answer.
const (
	EventRegisterPresence = "register_presence"
	EventSendChatRequest  = "send_chat_request"
	EventGetChatLists     = "get_chat_lists"
	EventSendMessage      = "send_message"
	EventGetMessages      = "get_messages"
	EventMarkRead         = "mark_read"
	EventStartTyping      = "start_typing"
	EventStopTyping       = "stop_typing"
	EventCreateGroup      = "create_group"
	EventAddMember        = "add_member"
	EventRemoveMember     = "remove_member"
	EventMemberList       = "member_list"
	EventSaveDeviceToken  = "save_device_token"
	EventChatOpen         = "chat_open"
	EventChatClose        = "chat_close"
	EventLogout           = "logout"
	EventUpdateStatus     = "update_status"
	EventTyping           = "typing"
)

// Request is one inbound frame.
type Request struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Response is the envelope every outbound frame uses, for direct replies and
// pushed broadcasts alike.
type Response struct {
	Success bool        `json:"success"`
	Event   string      `json:"event"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

func okResponse(event string, data interface{}) Response {
	return Response{Success: true, Event: event, Data: data, Message: "ok"}
}

func errResponse(event string, err error) Response {
	return Response{Success: false, Event: event, Message: errorMessage(err)}
}

// errorMessage maps the error taxonomy onto client-facing text without
// leaking storage internals.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, infrastructure.ErrAuthentication):
		return "Invalid or expired token"
	case errors.Is(err, infrastructure.ErrValidation):
		return "Missing or invalid fields"
	case errors.Is(err, infrastructure.ErrAuthorization):
		return "You are not a member of this room"
	case errors.Is(err, infrastructure.ErrNotFound):
		return "Not found"
	case errors.Is(err, infrastructure.ErrTransientStorage):
		return "Temporarily unavailable, please try again"
	default:
		return "Something went wrong, please try again later"
	}
}
