package sessionlog

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulseclass/backend/pkg/response"
)

// Handler exposes attendance queries.
type Handler struct {
	repo *Repository
}

// NewHandler creates a sessionlog handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Attendees returns the attendance log for a session.
func (h *Handler) Attendees(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	logs, err := h.repo.ListBySession(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "list attendees")
		return
	}
	count, err := h.repo.AttendeeCount(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "count attendees")
		return
	}
	watched, err := h.repo.TotalWatchTime(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "total watch time")
		return
	}
	response.OK(c, gin.H{
		"count":               count,
		"total_watch_seconds": int64(watched.Seconds()),
		"attendees":           logs,
	})
}
