package sessions

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulseclass/backend/internal/live"
	"github.com/pulseclass/backend/internal/middleware"
	"github.com/pulseclass/backend/pkg/response"
)

// Handler exposes the REST surface for session metadata.
type Handler struct {
	repo     *Repository
	registry *live.Registry
}

// NewHandler creates a sessions handler.
func NewHandler(repo *Repository, registry *live.Registry) *Handler {
	return &Handler{repo: repo, registry: registry}
}

type createRequest struct {
	CourseID    *uuid.UUID `json:"course_id"`
	Title       string     `json:"title"`
	ScheduledAt time.Time  `json:"scheduled_at"`
}

// Create schedules a session with the caller as host.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = time.Now()
	}
	s, err := h.repo.Create(c.Request.Context(), req.CourseID, hostID, req.Title, req.ScheduledAt)
	if err != nil {
		response.Internal(c, "create session")
		return
	}
	response.Created(c, s)
}

// List returns sessions, optionally filtered by ?status=.
func (h *Handler) List(c *gin.Context) {
	sessions, err := h.repo.List(c.Request.Context(), c.Query("status"), 50)
	if err != nil {
		response.Internal(c, "list sessions")
		return
	}
	response.OK(c, sessions)
}

// GetByID returns one session row.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "get session")
		return
	}
	if s == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, s)
}

// ViewerCount returns the live viewer count (host excluded).
func (h *Handler) ViewerCount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, gin.H{"session_id": id, "count": h.registry.Count(id)})
}

// Participants returns the live participant list.
func (h *Handler) Participants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, h.registry.List(id))
}

// Summary returns the persisted end-of-session summary.
func (h *Handler) Summary(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.repo.GetSummary(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "get summary")
		return
	}
	if s == nil {
		response.NotFound(c, "summary not found")
		return
	}
	response.OK(c, s)
}

// PendingReviews lists held messages awaiting the caller's decision.
func (h *Handler) PendingReviews(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	actorID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	reviews, err := h.registry.PendingReviews(id, actorID)
	if err != nil {
		switch err {
		case live.ErrSessionNotFound:
			response.NotFound(c, "session not live")
		case live.ErrNotHost:
			response.Forbidden(c, "host only")
		default:
			response.Internal(c, "pending reviews")
		}
		return
	}
	response.OK(c, reviews)
}
