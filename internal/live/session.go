package live

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a live session.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// CanTransition reports whether `to` is reachable from s. Transitions are
// monotonic: scheduled -> live -> ended, or scheduled/live -> cancelled.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusScheduled:
		return to == StatusLive || to == StatusCancelled
	case StatusLive:
		return to == StatusEnded || to == StatusCancelled
	default:
		return false
	}
}

// Role is a participant's role within a session.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Session identifies one live broadcast instance.
type Session struct {
	ID          uuid.UUID  `json:"id"`
	HostID      uuid.UUID  `json:"host_id"`
	Title       string     `json:"title,omitempty"`
	Status      Status     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ActualStart *time.Time `json:"actual_start,omitempty"`
	ActualEnd   *time.Time `json:"actual_end,omitempty"`
}

// Participant is one connection's membership in a session. Owned exclusively
// by the registry; removed on disconnect or explicit leave.
type Participant struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Snapshot is a point-in-time view of a session and its participants.
type Snapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	ViewerCount  int           `json:"viewer_count"`
}
