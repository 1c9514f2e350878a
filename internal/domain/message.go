package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength bounds the body of a human-authored message, in
// characters. Assistant replies are stored as generated.
const MaxMessageLength = 4000

// MessageType classifies a message.
type MessageType string

const (
	MessageTypeChat  MessageType = "CHAT"
	MessageTypeJoin  MessageType = "JOIN"
	MessageTypeLeave MessageType = "LEAVE"
)

// ParseMessageType returns the type named by s, defaulting to CHAT.
func ParseMessageType(s string) MessageType {
	switch MessageType(strings.ToUpper(strings.TrimSpace(s))) {
	case MessageTypeJoin:
		return MessageTypeJoin
	case MessageTypeLeave:
		return MessageTypeLeave
	default:
		return MessageTypeChat
	}
}

// Message is a persisted chat message hydrated with its sender's display
// identity.
type Message struct {
	ID             int64       `json:"id"`
	RoomID         int64       `json:"chatroomId"`
	SenderID       int64       `json:"senderId"`
	SenderName     string      `json:"senderName"`
	SenderNickname string      `json:"senderNickname"`
	Body           string      `json:"message"`
	Type           MessageType `json:"type"`
	IsRead         bool        `json:"isRead"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Author returns the sum-typed author of m.
func (m *Message) Author() Author {
	return AuthorFromSenderID(m.SenderID)
}

// SendMessageCommand is the single entry point for creating a message,
// shared by every transport.
type SendMessageCommand struct {
	RoomID int64
	Author Author
	Body   string
	Type   MessageType
}

// Validate checks the command's shape before anything touches the store.
func (c *SendMessageCommand) Validate() error {
	if c.RoomID <= 0 {
		return ErrMissingRoomID
	}
	if !c.Author.Valid() {
		return ErrInvalidAuthor
	}
	body := strings.TrimSpace(c.Body)
	if body == "" {
		return ErrEmptyMessage
	}
	if c.Author.IsHuman() && utf8.RuneCountInString(body) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// SendMessageRequest is the REST body of a send.
type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
	Type    string `json:"type"`
}

// MessagePage is one page of recent history, newest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	Total      int64     `json:"total"`
	TotalPages int       `json:"totalPages"`
}
