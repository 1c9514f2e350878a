package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthor(t *testing.T) {
	h := Human(42)
	id, ok := h.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.True(t, h.IsHuman())
	assert.Equal(t, int64(42), h.SenderID())

	a := Assistant()
	_, ok = a.UserID()
	assert.False(t, ok)
	assert.True(t, a.IsAssistant())
	assert.Equal(t, AssistantSenderID, a.SenderID())

	assert.Equal(t, a, AuthorFromSenderID(0))
	assert.Equal(t, h, AuthorFromSenderID(42))

	assert.False(t, Author{}.Valid())
	assert.False(t, Human(0).Valid())
	assert.True(t, a.Valid())
}

func TestSendMessageCommandValidate(t *testing.T) {
	cases := []struct {
		name string
		cmd  SendMessageCommand
		want error
	}{
		{"ok", SendMessageCommand{RoomID: 1, Author: Human(1), Body: "hi"}, nil},
		{"assistant", SendMessageCommand{RoomID: 1, Author: Assistant(), Body: "hi"}, nil},
		{"missing room", SendMessageCommand{Author: Human(1), Body: "hi"}, ErrMissingRoomID},
		{"blank body", SendMessageCommand{RoomID: 1, Author: Human(1), Body: "  \n"}, ErrEmptyMessage},
		{"too long", SendMessageCommand{RoomID: 1, Author: Human(1), Body: strings.Repeat("가", MaxMessageLength+1)}, ErrMessageTooLong},
		{"long assistant reply", SendMessageCommand{RoomID: 1, Author: Assistant(), Body: strings.Repeat("a", MaxMessageLength+1)}, nil},
		{"no author", SendMessageCommand{RoomID: 1, Body: "hi"}, ErrInvalidAuthor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeNotFound, ErrorCode(ErrRoomNotFound))
	assert.Equal(t, CodeForbidden, ErrorCode(fmt.Errorf("send: %w", ErrNotAMember)))
	assert.Equal(t, CodeValidation, ErrorCode(ErrAlreadyMember))
	assert.Equal(t, CodeUpstream, ErrorCode(ErrUpstream))
	assert.Equal(t, CodeInternal, ErrorCode(fmt.Errorf("boom")))
	assert.True(t, IsClientError(ErrLeaderCannotLeave))
	assert.False(t, IsClientError(ErrUpstream))
}

func TestParseMessageType(t *testing.T) {
	assert.Equal(t, MessageTypeJoin, ParseMessageType("join"))
	assert.Equal(t, MessageTypeChat, ParseMessageType(""))
	assert.Equal(t, MessageTypeChat, ParseMessageType("whatever"))
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 20))
	assert.Equal(t, 1, TotalPages(20, 20))
	assert.Equal(t, 2, TotalPages(21, 20))
	assert.Equal(t, 0, TotalPages(5, 0))
}
