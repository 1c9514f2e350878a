package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrMembershipExists   = errors.New("membership already exists")
	ErrMembershipNotFound = errors.New("membership not found")
)

// RoomRepository persists rooms and their memberships. Every mutating
// method runs in a single transaction.
type RoomRepository interface {
	// Create inserts the room, the leader's membership and one membership
	// per memberID. Unknown member ids fail the whole call with ErrUserNotFound.
	Create(ctx context.Context, room *domain.Room, memberIDs []int64) error
	GetByID(ctx context.Context, id int64) (*domain.Room, error)
	// Update saves title, description and flags. A non-nil memberIDs
	// replaces every non-leader membership with the given set.
	Update(ctx context.Context, room *domain.Room, memberIDs *[]int64) error
	// Delete removes the room's messages, memberships and the room itself.
	Delete(ctx context.Context, id int64) error

	AddMember(ctx context.Context, roomID, userID int64) error
	RemoveMember(ctx context.Context, roomID, userID int64) error
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	ListMembers(ctx context.Context, roomID int64) ([]domain.User, error)

	ListByMember(ctx context.Context, userID int64) ([]domain.Room, error)
	ListByLeader(ctx context.Context, leaderID int64) ([]domain.Room, error)
	Search(ctx context.Context, q domain.RoomQuery) ([]domain.Room, int64, error)
}

// RoomSearchRepository is a secondary full-text index of rooms. The
// RoomRepository stays authoritative and the index may lag behind it.
type RoomSearchRepository interface {
	IndexRoom(ctx context.Context, doc *domain.RoomDocument) error
	DeleteRoom(ctx context.Context, roomID int64) error
	SearchRooms(ctx context.Context, q domain.RoomQuery) ([]domain.Room, int64, error)
}

// MessageRepository persists chat messages. Reads return messages
// hydrated with the sender's name and nickname where a users row exists.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// ListRecent returns one zero-based page, newest first, and the room's total.
	ListRecent(ctx context.Context, roomID int64, page, size int) ([]domain.Message, int64, error)
	// ListAll returns the room's full history, oldest first.
	ListAll(ctx context.Context, roomID int64) ([]domain.Message, error)
	CountByRoom(ctx context.Context, roomID int64) (int64, error)
	// MarkRoomRead flags every unread message in the room as read and
	// returns how many changed.
	MarkRoomRead(ctx context.Context, roomID int64) (int64, error)
	// CountUnreadForUser counts unread messages not sent by userID across
	// every room userID belongs to.
	CountUnreadForUser(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// UserRepository reads the platform's users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.User, error)
}

// DeadLetterRepository stores assistant tasks that will not be retried.
type DeadLetterRepository interface {
	Create(ctx context.Context, dl *domain.DeadLetter) error
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}
