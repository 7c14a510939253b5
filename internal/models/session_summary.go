package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionSummary is the aggregated end-of-session stats row written by the
// background worker.
type SessionSummary struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	HostID         uuid.UUID `json:"host_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	PeakViewers    int       `json:"peak_viewers"`
	MessageCount   int       `json:"message_count"`
	ReactionCount  int       `json:"reaction_count"`
	ViolationCount int       `json:"violation_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserSessionLog tracks join/leave and watch duration per attendee.
type UserSessionLog struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Role         string     `json:"role"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	WatchSeconds int64      `json:"watch_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
}
