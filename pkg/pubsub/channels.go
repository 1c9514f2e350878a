package pubsub

import (
	"fmt"
	"strconv"
)

// Channel naming conventions: {prefix}:{scope}:{id}:to_{target}.
const (
	// ChannelRoomSubscribers carries persisted messages to every
	// subscriber of a room.
	ChannelRoomSubscribers = "chat:room:%d:to_subscribers"

	// ChannelUserErrors carries failures addressed to a single user.
	ChannelUserErrors = "chat:user:%d:to_errors"

	PatternRoomSubscribers = "chat:room:*:to_subscribers"
	PatternUserErrors      = "chat:user:*:to_errors"

	TopicRoomSubscribers = "chat-room-to-subscribers"
	TopicUserErrors      = "chat-user-to-errors"
)

// Event types.
const (
	EventChatMessage = "chat_message"
	EventChatError   = "chat_error"
)

// RoomChannel returns the broadcast channel for a room.
func RoomChannel(roomID int64) string {
	return fmt.Sprintf(ChannelRoomSubscribers, roomID)
}

// UserErrorChannel returns the error channel for a user.
func UserErrorChannel(userID int64) string {
	return fmt.Sprintf(ChannelUserErrors, userID)
}

// FormatKey renders an id as an event key.
func FormatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseKey is the inverse of FormatKey.
func ParseKey(key string) (int64, error) {
	return strconv.ParseInt(key, 10, 64)
}

// ErrorPayload is the body of an EventChatError event.
type ErrorPayload struct {
	UserID  int64  `json:"user_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
