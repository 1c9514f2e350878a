package service

import (
	"context"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// ChatService is the message side of the chat: the SendMessage command
// shared by every transport, history reads and read-state.
type ChatService interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (*domain.Message, error)
	GetRecentMessages(ctx context.Context, userID, roomID int64, page, size int) (*domain.MessagePage, error)
	GetAllMessages(ctx context.Context, userID, roomID int64) ([]domain.Message, error)
	CountMessages(ctx context.Context, userID, roomID int64) (int64, error)
	MarkAsRead(ctx context.Context, userID, roomID int64) (int64, error)
	DeleteMessage(ctx context.Context, actor domain.Actor, messageID int64) error
	// AuthorizeSubscribe checks that the room exists and userID may read it.
	AuthorizeSubscribe(ctx context.Context, userID, roomID int64) error
	// SetAssistantTrigger attaches the assistant after construction.
	SetAssistantTrigger(trigger AssistantTrigger)
}

// RoomService defines the interface for room business logic.
type RoomService interface {
	CreateRoom(ctx context.Context, actor domain.Actor, req *domain.CreateRoomRequest) (*domain.RoomResponse, error)
	GetRoom(ctx context.Context, roomID int64) (*domain.RoomResponse, error)
	UpdateRoom(ctx context.Context, actor domain.Actor, roomID int64, req *domain.UpdateRoomRequest) (*domain.RoomResponse, error)
	DeleteRoom(ctx context.Context, actor domain.Actor, roomID int64) error
	JoinRoom(ctx context.Context, userID, roomID int64) error
	LeaveRoom(ctx context.Context, userID, roomID int64) error
	GetMyRooms(ctx context.Context, userID int64) ([]domain.RoomResponse, error)
	GetLedRooms(ctx context.Context, userID int64) ([]domain.RoomResponse, error)
	SearchRooms(ctx context.Context, req *domain.SearchRoomsRequest) (*domain.RoomPage, error)
	GetUnreadCount(ctx context.Context, userID int64) (int64, error)
	ProvisionAssistantRoom(ctx context.Context, userID int64) (*domain.RoomResponse, error)
}

// Broadcaster delivers persisted messages and per-user errors to live
// connections.
type Broadcaster interface {
	BroadcastMessage(ctx context.Context, roomID int64, msg *domain.Message) error
	NotifyUser(ctx context.Context, userID int64, code, text string) error
}

// AssistantTrigger is handed every human message persisted in an
// assistant-enabled room.
type AssistantTrigger interface {
	Trigger(ctx context.Context, room *domain.Room, msg *domain.Message) error
}

// MembershipChecker is the membership guard.
type MembershipChecker interface {
	Require(ctx context.Context, userID, roomID int64) error
	CanPost(ctx context.Context, author domain.Author, roomID int64) error
}
