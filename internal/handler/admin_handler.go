package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

const maxDeadLetterLimit = 500

// AdminHandler exposes operator views.
type AdminHandler struct {
	deadLetters    repository.DeadLetterRepository
	authMiddleware *middleware.AuthMiddleware
}

func NewAdminHandler(deadLetters repository.DeadLetterRepository, authMiddleware *middleware.AuthMiddleware) *AdminHandler {
	return &AdminHandler{deadLetters: deadLetters, authMiddleware: authMiddleware}
}

func (h *AdminHandler) RegisterRoutes(r *gin.Engine) {
	admin := r.Group("/api/admin", h.authMiddleware.RequireAuth(), middleware.RequireAdmin())
	admin.GET("/assistant/dead-letters", h.ListDeadLetters)
}

// ListDeadLetters returns the most recent assistant tasks that gave up.
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxDeadLetterLimit {
		limit = 50
	}

	letters, err := h.deadLetters.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err, "failed to list dead letters")
		return
	}

	response.Success(c, letters)
}
