package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

// RoomHandler handles HTTP requests for the room lifecycle.
type RoomHandler struct {
	roomService    service.RoomService
	authMiddleware *middleware.AuthMiddleware
}

// NewRoomHandler creates a new room handler.
func NewRoomHandler(roomService service.RoomService, authMiddleware *middleware.AuthMiddleware) *RoomHandler {
	return &RoomHandler{
		roomService:    roomService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all room routes. Static segments are
// registered before /:id so they win.
func (h *RoomHandler) RegisterRoutes(r *gin.Engine) {
	rooms := r.Group("/api/chatroom", h.authMiddleware.RequireAuth())
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("/my", h.GetMyRooms)
		rooms.GET("/led", h.GetLedRooms)
		rooms.GET("/search", h.SearchRooms)
		rooms.GET("/unreadCount", h.GetUnreadCount)
		rooms.POST("/assistant", h.ProvisionAssistantRoom)

		rooms.GET("/:id", h.GetRoom)
		rooms.PUT("/:id", h.UpdateRoom)
		rooms.DELETE("/:id", h.DeleteRoom)
		rooms.POST("/:id/join", h.JoinRoom)
		rooms.POST("/:id/leave", h.LeaveRoom)
	}
}

func actorOf(c *gin.Context) domain.Actor {
	return domain.Actor{UserID: middleware.GetUserID(c), IsAdmin: middleware.IsAdmin(c)}
}

// CreateRoom creates a new room led by the caller.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.roomService.CreateRoom(ctx, actorOf(c), &req)
	if err != nil {
		writeError(c, err, "failed to create room")
		return
	}

	response.Created(c, room)
}

// GetRoom retrieves a room by ID.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err, "failed to get room")
		return
	}

	response.Success(c, room)
}

func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req domain.UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind update room request")
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.roomService.UpdateRoom(ctx, actorOf(c), roomID, &req)
	if err != nil {
		writeError(c, err, "failed to update room")
		return
	}

	response.Success(c, room)
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.roomService.DeleteRoom(c.Request.Context(), actorOf(c), roomID); err != nil {
		writeError(c, err, "failed to delete room")
		return
	}

	response.OK(c, "room deleted")
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.roomService.JoinRoom(c.Request.Context(), middleware.GetUserID(c), roomID); err != nil {
		writeError(c, err, "failed to join room")
		return
	}

	response.OK(c, "joined room")
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.roomService.LeaveRoom(c.Request.Context(), middleware.GetUserID(c), roomID); err != nil {
		writeError(c, err, "failed to leave room")
		return
	}

	response.OK(c, "left room")
}

// GetMyRooms lists the rooms the caller belongs to.
func (h *RoomHandler) GetMyRooms(c *gin.Context) {
	rooms, err := h.roomService.GetMyRooms(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to get rooms")
		return
	}

	response.Success(c, rooms)
}

// GetLedRooms lists the rooms the caller leads.
func (h *RoomHandler) GetLedRooms(c *gin.Context) {
	rooms, err := h.roomService.GetLedRooms(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to get rooms")
		return
	}

	response.Success(c, rooms)
}

// SearchRooms searches rooms.
func (h *RoomHandler) SearchRooms(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SearchRoomsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind search rooms request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.roomService.SearchRooms(ctx, &req)
	if err != nil {
		writeError(c, err, "failed to search rooms")
		return
	}

	response.Success(c, result)
}

func (h *RoomHandler) GetUnreadCount(c *gin.Context) {
	count, err := h.roomService.GetUnreadCount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to count unread messages")
		return
	}

	response.Success(c, gin.H{"count": count})
}

// ProvisionAssistantRoom returns the caller's assistant room, creating
// it on first use.
func (h *RoomHandler) ProvisionAssistantRoom(c *gin.Context) {
	room, err := h.roomService.ProvisionAssistantRoom(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to provision assistant room")
		return
	}

	response.Success(c, room)
}
