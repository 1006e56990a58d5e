// Package relay routes inbound room events against the chat registry and
// fans the results out through a Transport.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/vanishchat/internal/chat"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
)

// DefaultDeleteGrace is the wait between broadcasting a delete trigger and
// dropping the chat's server-side state.
const DefaultDeleteGrace = time.Second

const (
	joinedChatText   = "Successfully joined chat"
	deleteTriggerMsg = "Chat will be deleted"
	invalidJoinText  = "Invalid join request"
	invalidMsgText   = "Invalid message"
)

// Conn is an opaque connection handle owned by the Transport.
type Conn interface {
	RemoteAddr() string
}

// Transport is the room-addressable connection layer the engine talks to.
type Transport interface {
	// Subscribe adds conn to room. Subscribing twice is a no-op.
	Subscribe(conn Conn, room string)
	// Send delivers frame to conn only.
	Send(conn Conn, frame []byte)
	// BroadcastExcept delivers frame to every member of room but except.
	BroadcastExcept(room string, except Conn, frame []byte)
	// Broadcast delivers frame to every member of room.
	Broadcast(room string, frame []byte)
}

// Engine validates join, message and delete requests, mutates the registry
// and instructs the transport to fan out the results. It is safe for
// concurrent use by many connections.
type Engine struct {
	registry    *chat.Registry
	transport   Transport
	clock       clockwork.Clock
	log         *slog.Logger
	validate    *validator.Validate
	deleteGrace time.Duration
}

// NewEngine wires an engine. A nil clock uses the wall clock, a nil logger
// discards, and a non-positive grace uses DefaultDeleteGrace.
func NewEngine(registry *chat.Registry, transport Transport, clock clockwork.Clock, log *slog.Logger, deleteGrace time.Duration) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if deleteGrace <= 0 {
		deleteGrace = DefaultDeleteGrace
	}
	return &Engine{
		registry:    registry,
		transport:   transport,
		clock:       clock,
		log:         log,
		validate:    validator.New(),
		deleteGrace: deleteGrace,
	}
}

// HandleFrame decodes one inbound frame and routes it. Unknown events are
// ignored. The returned error is for logging only; any client-facing
// rejection has already been sent.
func (e *Engine) HandleFrame(conn Conn, frame []byte) error {
	env, err := Decode(frame)
	if err != nil {
		return err
	}

	switch env.Event {
	case EventJoinChat:
		var req JoinRequest
		if err := decodeData(env, &req); err != nil {
			e.reject(conn, ErrInvalidJoinRequest)
			return fmt.Errorf("%w: %w", ErrInvalidJoinRequest, err)
		}
		return e.Join(conn, req)

	case EventMessage:
		var req MessageRequest
		if err := decodeData(env, &req); err != nil {
			e.reject(conn, ErrInvalidMessage)
			return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return e.Message(conn, req)

	case EventAutoDeleteRequest:
		var req DeleteRequest
		if err := decodeData(env, &req); err != nil {
			e.log.Debug("Tolerating malformed delete request", "remote_addr", conn.RemoteAddr(), "error", err)
		}
		e.RequestDelete(conn, req)
		return nil

	default:
		e.log.Debug("Ignoring unknown event", "event", env.Event, "remote_addr", conn.RemoteAddr())
		return nil
	}
}

// Join subscribes conn to the room, records the alias and announces it.
func (e *Engine) Join(conn Conn, req JoinRequest) error {
	if err := e.validate.Struct(req); err != nil {
		e.reject(conn, ErrInvalidJoinRequest)
		return fmt.Errorf("%w: %v", ErrInvalidJoinRequest, err)
	}

	e.transport.Subscribe(conn, req.InviteID)
	created := e.registry.Join(req.InviteID, req.Alias)

	e.broadcastExcept(req.InviteID, conn, EventUserJoined, UserJoined{
		Alias:   req.Alias,
		Message: fmt.Sprintf("%s joined the chat", req.Alias),
	})
	e.send(conn, EventJoinedChat, JoinedChat{
		Success:  true,
		InviteID: req.InviteID,
		Message:  joinedChatText,
	})

	e.log.Info("Alias joined chat",
		"invite_id", req.InviteID, "alias", req.Alias, "created", created, "remote_addr", conn.RemoteAddr())
	return nil
}

// Message stores the message when the chat exists and relays it to the rest
// of the room. Delivery does not depend on storage.
func (e *Engine) Message(conn Conn, req MessageRequest) error {
	if err := e.validate.Struct(req); err != nil {
		e.reject(conn, ErrInvalidMessage)
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	_, stored := e.registry.AddMessage(req.InviteID, req.Sender, req.Message)

	e.broadcastExcept(req.InviteID, conn, EventMessage, RelayedMessage{
		Message: req.Message,
		Sender:  req.Sender,
	})

	e.log.Debug("Relayed message", "invite_id", req.InviteID, "sender", req.Sender, "stored", stored)
	return nil
}

// RequestDelete tells the whole room to wipe the chat and schedules removal
// of the server-side state after the grace delay. The returned timer is never
// stopped by the engine; a scheduled removal always fires.
func (e *Engine) RequestDelete(conn Conn, req DeleteRequest) clockwork.Timer {
	inviteID := req.InviteID

	e.broadcast(inviteID, EventAutoDeleteTrigger, AutoDeleteTrigger{
		InviteID: inviteID,
		Message:  deleteTriggerMsg,
	})
	e.log.Info("Chat deletion requested", "invite_id", inviteID, "remote_addr", conn.RemoteAddr())

	return e.clock.AfterFunc(e.deleteGrace, func() {
		if e.registry.Delete(inviteID) {
			e.log.Info("Chat deleted", "invite_id", inviteID)
		}
	})
}

// Disconnect is called once per closed connection. Chats and aliases are
// left untouched; only explicit deletion or the sweeper remove them.
func (e *Engine) Disconnect(conn Conn) {
	e.log.Debug("Connection left", "remote_addr", conn.RemoteAddr())
}

func (e *Engine) reject(conn Conn, err error) {
	text := invalidMsgText
	if errors.Is(err, ErrInvalidJoinRequest) {
		text = invalidJoinText
	}
	e.send(conn, EventError, ErrorNotice{Message: text})
	e.log.Warn("Rejected request", "remote_addr", conn.RemoteAddr(), "error", err)
}

func (e *Engine) send(conn Conn, event string, payload any) {
	if frame, ok := e.encode(event, payload); ok {
		e.transport.Send(conn, frame)
	}
}

func (e *Engine) broadcastExcept(room string, except Conn, event string, payload any) {
	if frame, ok := e.encode(event, payload); ok {
		e.transport.BroadcastExcept(room, except, frame)
	}
}

func (e *Engine) broadcast(room string, event string, payload any) {
	if frame, ok := e.encode(event, payload); ok {
		e.transport.Broadcast(room, frame)
	}
}

func (e *Engine) encode(event string, payload any) ([]byte, bool) {
	frame, err := Encode(event, payload)
	if err != nil {
		e.log.Error("Dropping outbound frame", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}
