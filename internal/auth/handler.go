package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseclass/backend/pkg/response"
)

// Handler issues development tokens. Production deployments run with
// DEV_TOKENS disabled and receive tokens from the main identity service.
type Handler struct {
	jwtService *JWTService
	logger     *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(jwtService *JWTService, logger *zap.Logger) *Handler {
	return &Handler{jwtService: jwtService, logger: logger}
}

type tokenRequest struct {
	UserID      *uuid.UUID `json:"user_id"`
	DisplayName string     `json:"display_name" binding:"required"`
	Role        string     `json:"role"`
}

// Token mints a signed token for the requested identity.
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "display_name is required")
		return
	}
	if req.Role == "" {
		req.Role = "viewer"
	}
	if req.Role != "host" && req.Role != "viewer" {
		response.BadRequest(c, "role must be host or viewer")
		return
	}
	userID := uuid.New()
	if req.UserID != nil {
		userID = *req.UserID
	}
	token, err := h.jwtService.Generate(userID, req.DisplayName, req.Role)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "generate token")
		return
	}
	response.OK(c, gin.H{"token": token, "user_id": userID, "role": req.Role})
}
