package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

// ChatHandler serves the REST side of messaging.
type ChatHandler struct {
	chat           service.ChatService
	authMiddleware *middleware.AuthMiddleware
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat service.ChatService, authMiddleware *middleware.AuthMiddleware) *ChatHandler {
	return &ChatHandler{chat: chat, authMiddleware: authMiddleware}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(r *gin.Engine) {
	chat := r.Group("/api/chat", h.authMiddleware.RequireAuth())
	{
		room := chat.Group("/room/:roomId")
		{
			room.POST("/send", h.SendMessage)
			room.GET("/messages", h.GetRecentMessages)
			room.GET("/messages/all", h.GetAllMessages)
			room.GET("/messages/count", h.CountMessages)
			room.POST("/read", h.MarkAsRead)
		}
		chat.DELETE("/message/:messageId", h.DeleteMessage)
	}
}

// SendMessage posts a message through the same pipeline as the websocket.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind send message request")
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.chat.SendMessage(ctx, domain.SendMessageCommand{
		RoomID: roomID,
		Author: domain.Human(middleware.GetUserID(c)),
		Body:   req.Message,
		Type:   domain.ParseMessageType(req.Type),
	})
	if err != nil {
		writeError(c, err, "failed to send message")
		return
	}

	response.Created(c, msg)
}

// GetRecentMessages returns one page of history, newest first.
func (h *ChatHandler) GetRecentMessages(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 0)
	if !ok {
		return
	}
	size, ok := queryInt(c, "size", service.DefaultPageSize)
	if !ok {
		return
	}

	result, err := h.chat.GetRecentMessages(c.Request.Context(), middleware.GetUserID(c), roomID, page, size)
	if err != nil {
		writeError(c, err, "failed to get messages")
		return
	}

	response.Success(c, result)
}

// GetAllMessages returns the room's whole history, oldest first.
func (h *ChatHandler) GetAllMessages(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	messages, err := h.chat.GetAllMessages(c.Request.Context(), middleware.GetUserID(c), roomID)
	if err != nil {
		writeError(c, err, "failed to get messages")
		return
	}

	response.Success(c, messages)
}

func (h *ChatHandler) CountMessages(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	count, err := h.chat.CountMessages(c.Request.Context(), middleware.GetUserID(c), roomID)
	if err != nil {
		writeError(c, err, "failed to count messages")
		return
	}

	response.Success(c, gin.H{"count": count})
}

func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	updated, err := h.chat.MarkAsRead(c.Request.Context(), middleware.GetUserID(c), roomID)
	if err != nil {
		writeError(c, err, "failed to mark messages as read")
		return
	}

	response.Success(c, gin.H{"updated": updated})
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}

	actor := domain.Actor{UserID: middleware.GetUserID(c), IsAdmin: middleware.IsAdmin(c)}
	if err := h.chat.DeleteMessage(c.Request.Context(), actor, messageID); err != nil {
		writeError(c, err, "failed to delete message")
		return
	}

	response.OK(c, "message deleted")
}
