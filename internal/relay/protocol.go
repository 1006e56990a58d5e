package relay

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventJoinChat          = "join-chat"
	EventMessage           = "message"
	EventAutoDeleteRequest = "auto-delete-request"
)

// Outbound event names. EventMessage is shared by both directions.
const (
	EventJoinedChat        = "joined-chat"
	EventUserJoined        = "user-joined"
	EventAutoDeleteTrigger = "auto-delete-trigger"
	EventError             = "error"
)

// Envelope is the JSON object carried by every WebSocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of join-chat.
type JoinRequest struct {
	InviteID string `json:"inviteId" validate:"required"`
	Alias    string `json:"alias" validate:"required"`
}

// MessageRequest is the payload of an inbound message.
type MessageRequest struct {
	InviteID string `json:"inviteId" validate:"required"`
	Message  string `json:"message" validate:"required"`
	Sender   string `json:"sender" validate:"required"`
}

// DeleteRequest is the payload of auto-delete-request.
type DeleteRequest struct {
	InviteID string `json:"inviteId"`
}

// JoinedChat acknowledges a join to the requester.
type JoinedChat struct {
	Success  bool   `json:"success"`
	InviteID string `json:"inviteId"`
	Message  string `json:"message"`
}

// UserJoined tells the rest of the room that someone arrived.
type UserJoined struct {
	Alias   string `json:"alias"`
	Message string `json:"message"`
}

// RelayedMessage is what the other room members receive for a message.
type RelayedMessage struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// AutoDeleteTrigger instructs every member to wipe local chat state.
type AutoDeleteTrigger struct {
	InviteID string `json:"inviteId"`
	Message  string `json:"message"`
}

// ErrorNotice reports a rejected request to its originator.
type ErrorNotice struct {
	Message string `json:"message"`
}

// Encode wraps payload into an envelope frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return frame, nil
}

// Decode parses a frame into its envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return env, nil
}

// decodeData unmarshals the envelope data into v. A missing data field
// leaves v at its zero value.
func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, env.Event, err)
	}
	return nil
}
