package live

import (
	"time"

	"github.com/google/uuid"
)

// ChatKind is the kind of a chat message.
type ChatKind string

const (
	KindText   ChatKind = "text"
	KindEmoji  ChatKind = "emoji"
	KindSystem ChatKind = "system"
)

// ChatMessage is one unit of room chat. ID is server-assigned, unique and
// monotonically increasing per session, so receivers can sort and discard
// duplicate deliveries.
type ChatMessage struct {
	ID         int64     `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	Kind       ChatKind  `json:"kind"`
	ReplyTo    *int64    `json:"reply_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reaction is ephemeral: never stored, deduplicated or replayed.
type Reaction struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	EmittedAt time.Time `json:"emitted_at"`
}

// messageRing is a fixed-capacity ring of the most recent chat messages,
// used for late-joiner replay. Not safe for concurrent use; callers hold
// the room lock.
type messageRing struct {
	buf  []ChatMessage
	head int // index of the oldest entry
	size int
}

func newMessageRing(capacity int) *messageRing {
	if capacity < 1 {
		capacity = 1
	}
	return &messageRing{buf: make([]ChatMessage, capacity)}
}

// push appends a message, evicting the oldest when full.
func (r *messageRing) push(m ChatMessage) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = m
		r.size++
		return
	}
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
}

// snapshot returns the buffered messages oldest-first.
func (r *messageRing) snapshot() []ChatMessage {
	out := make([]ChatMessage, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
