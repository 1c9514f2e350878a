package domain

import "fmt"

// AssistantSenderID is the sender_id persisted for assistant-authored
// messages. It never refers to a users row.
const AssistantSenderID int64 = 0

type authorKind uint8

const (
	authorHuman authorKind = iota + 1
	authorAssistant
)

// Author is who a message is written by: a human user or the assistant.
// The zero value is invalid.
type Author struct {
	kind   authorKind
	userID int64
}

// Human returns an author for the given user.
func Human(userID int64) Author {
	return Author{kind: authorHuman, userID: userID}
}

// Assistant returns the assistant author.
func Assistant() Author {
	return Author{kind: authorAssistant}
}

// AuthorFromSenderID maps a persisted sender_id back to an author.
func AuthorFromSenderID(id int64) Author {
	if id == AssistantSenderID {
		return Assistant()
	}
	return Human(id)
}

// IsAssistant reports whether the author is the assistant.
func (a Author) IsAssistant() bool { return a.kind == authorAssistant }

// IsHuman reports whether the author is a human user.
func (a Author) IsHuman() bool { return a.kind == authorHuman }

// UserID returns the human's user id. ok is false for the assistant.
func (a Author) UserID() (id int64, ok bool) {
	if a.kind != authorHuman {
		return 0, false
	}
	return a.userID, true
}

// SenderID is the value stored in chat_messages.sender_id.
func (a Author) SenderID() int64 {
	if a.kind == authorHuman {
		return a.userID
	}
	return AssistantSenderID
}

// Valid reports whether the author can post at all.
func (a Author) Valid() bool {
	switch a.kind {
	case authorAssistant:
		return true
	case authorHuman:
		return a.userID > 0
	default:
		return false
	}
}

func (a Author) String() string {
	switch a.kind {
	case authorHuman:
		return fmt.Sprintf("human(%d)", a.userID)
	case authorAssistant:
		return "assistant"
	default:
		return "invalid"
	}
}
