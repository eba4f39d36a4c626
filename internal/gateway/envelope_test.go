package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"relay/infrastructure"
)

func TestErrorMessageMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"authentication", infrastructure.ErrAuthentication, "Invalid or expired token"},
		{"validation", infrastructure.ErrValidation, "Missing or invalid fields"},
		{"authorization", infrastructure.ErrAuthorization, "You are not a member of this room"},
		{"not found", infrastructure.ErrNotFound, "Not found"},
		{"transient", infrastructure.ErrTransientStorage, "Temporarily unavailable, please try again"},
		{"wrapped transient", fmt.Errorf("%w: pq: connection refused", infrastructure.ErrTransientStorage), "Temporarily unavailable, please try again"},
		{"unknown", errors.New("boom"), "Something went wrong, please try again later"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorMessage(tc.err); got != tc.want {
				t.Fatalf("errorMessage = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestErrResponseHidesInternals(t *testing.T) {
	wrapped := fmt.Errorf("%w: dial tcp 10.0.0.5: timeout", infrastructure.ErrTransientStorage)
	response := errResponse(EventSendMessage, wrapped)

	if response.Success {
		t.Fatal("error response marked successful")
	}
	if response.Event != EventSendMessage {
		t.Fatalf("event = %q", response.Event)
	}
	raw, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !json.Valid(raw) {
		t.Fatal("unmarshalable response")
	}
	for _, leak := range []string{"10.0.0.5", "dial tcp"} {
		if strings.Contains(string(raw), leak) {
			t.Fatalf("response leaks %q: %s", leak, raw)
		}
	}
}

func TestRequestDecoding(t *testing.T) {
	var req Request
	frame := `{"event":"send_message","data":{"room_id":"chat_a_b","message":"hi"}}`
	if err := json.Unmarshal([]byte(frame), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Event != EventSendMessage {
		t.Fatalf("event = %q", req.Event)
	}

	var data struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(req.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.RoomID != "chat_a_b" {
		t.Fatalf("room = %q", data.RoomID)
	}
}
