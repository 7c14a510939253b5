package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Event is one server-to-client event. Every event is a tagged variant with an
// explicit schema; payloads are validated at the boundary before entering the
// core, never passed around as free-form maps.
type Event interface {
	EventName() string
}

// SessionJoined acknowledges a successful join. recent_messages carries the
// replay window for late joiners.
type SessionJoined struct {
	Session        Session       `json:"session"`
	Role           Role          `json:"role"`
	ViewerCount    int           `json:"viewer_count"`
	RecentMessages []ChatMessage `json:"recent_messages"`
}

func (SessionJoined) EventName() string { return "session_joined" }

// ViewerCountUpdated is broadcast after every join/leave. The count excludes
// the host.
type ViewerCountUpdated struct {
	SessionID uuid.UUID `json:"session_id"`
	Count     int       `json:"count"`
}

func (ViewerCountUpdated) EventName() string { return "viewer_count_updated" }

// NewMessage carries one accepted chat message. ClientRef is only set on the
// copy delivered to the sender, so it can promote its optimistic entry.
type NewMessage struct {
	Message   ChatMessage `json:"message"`
	ClientRef string      `json:"client_ref,omitempty"`
}

func (NewMessage) EventName() string { return "new_message" }

// MessagePending tells the sender its message is held for manual review.
type MessagePending struct {
	Ref       string `json:"ref"`
	ClientRef string `json:"client_ref,omitempty"`
}

func (MessagePending) EventName() string { return "message_pending" }

// MessageReview surfaces a held message to the host for a decision.
type MessageReview struct {
	Ref        string    `json:"ref"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
}

func (MessageReview) EventName() string { return "message_review" }

// UserTyping relays a typing indicator to everyone but the typist.
type UserTyping struct {
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}

func (UserTyping) EventName() string { return "user_typing" }

// ReactionReceived is a fire-and-forget ephemeral reaction.
type ReactionReceived struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
}

func (ReactionReceived) EventName() string { return "reaction_received" }

// SessionStarted is broadcast on the scheduled -> live transition.
type SessionStarted struct {
	SessionID uuid.UUID `json:"session_id"`
}

func (SessionStarted) EventName() string { return "session_started" }

// SessionEnded is broadcast on the transition to ended or cancelled.
type SessionEnded struct {
	SessionID uuid.UUID `json:"session_id"`
}

func (SessionEnded) EventName() string { return "session_ended" }

// PeerLeft tells remaining peers a participant is gone so they can abort any
// in-flight signaling negotiation with it.
type PeerLeft struct {
	UserID uuid.UUID `json:"user_id"`
}

func (PeerLeft) EventName() string { return "peer_left" }

// Signal delivers an opaque signaling envelope from a peer.
type Signal struct {
	FromID  uuid.UUID       `json:"from_id"`
	Kind    SignalKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (Signal) EventName() string { return "signal" }

// ErrorEvent reports a rejected operation to the originating connection only.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) EventName() string { return "error" }

// Errorf builds an ErrorEvent from a core error.
func Errorf(err error) ErrorEvent {
	return ErrorEvent{Code: ErrorCode(err), Message: err.Error()}
}

// DecodeEvent rebuilds a typed event from its wire name and payload. Only the
// events replicated across instances are decodable; anything else is rejected.
func DecodeEvent(name string, data []byte) (Event, error) {
	var ev Event
	switch name {
	case NewMessage{}.EventName():
		var v NewMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		v.ClientRef = "" // correlation refs never cross instances
		ev = v
	case ReactionReceived{}.EventName():
		var v ReactionReceived
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		ev = v
	case UserTyping{}.EventName():
		var v UserTyping
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		ev = v
	case SessionStarted{}.EventName():
		var v SessionStarted
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		ev = v
	case SessionEnded{}.EventName():
		var v SessionEnded
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		ev = v
	default:
		return nil, fmt.Errorf("undecodable event %q", name)
	}
	return ev, nil
}

// Inbound payloads (client -> server). Each has a Validate that rejects
// malformed input before it reaches session state.

// SubmitRequest is the payload of send_message.
type SubmitRequest struct {
	Body      string   `json:"body"`
	Kind      ChatKind `json:"kind"`
	ReplyTo   *int64   `json:"reply_to,omitempty"`
	ClientRef string   `json:"client_ref,omitempty"`
}

// Validate trims the body and checks kind and length bounds.
func (r *SubmitRequest) Validate(maxLen int) error {
	r.Body = strings.TrimSpace(r.Body)
	if r.Body == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	if len([]rune(r.Body)) > maxLen {
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidMessage, maxLen)
	}
	if r.Kind == "" {
		r.Kind = KindText
	}
	switch r.Kind {
	case KindText, KindEmoji:
	case KindSystem:
		return fmt.Errorf("%w: system messages are server-assigned", ErrInvalidMessage)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, r.Kind)
	}
	return nil
}

// ReactionRequest is the payload of send_reaction.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// SignalRequest is the payload of a client signal event.
type SignalRequest struct {
	ToID    uuid.UUID       `json:"to_id"`
	Kind    SignalKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ModerateRequest is a host decision on a held message.
type ModerateRequest struct {
	Ref      string   `json:"ref"`
	Decision Decision `json:"decision"`
}

// UnbanRequest resets a user's moderation state.
type UnbanRequest struct {
	UserID uuid.UUID `json:"user_id"`
}
