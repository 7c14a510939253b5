package models

import (
	"time"

	"github.com/google/uuid"
)

// LiveSession is the persisted record of a scheduled broadcast. Scheduling
// happens outside this service; the coordination core hydrates its in-memory
// state from these rows and writes status transitions back.
type LiveSession struct {
	ID          uuid.UUID  `json:"id"`
	CourseID    *uuid.UUID `json:"course_id,omitempty"`
	HostID      uuid.UUID  `json:"host_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ActualStart *time.Time `json:"actual_start,omitempty"`
	ActualEnd   *time.Time `json:"actual_end,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
