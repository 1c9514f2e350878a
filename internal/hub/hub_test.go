package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
)

func startHub(t *testing.T, cfg config.WebSocketConfig) *Hub {
	t.Helper()
	h := NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func user(id int64) *auth.Principal {
	return &auth.Principal{UserID: id}
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestBroadcastToRoomReachesSubscribersOnly(t *testing.T) {
	h := startHub(t, config.WebSocketConfig{SendBuffer: 8})

	a := NewClient("a", h, nil, user(1), h.config)
	b := NewClient("b", h, nil, user(1), h.config)
	c := NewClient("c", h, nil, user(2), h.config)
	for _, cl := range []*Client{a, b, c} {
		h.Register(cl)
	}
	h.Subscribe(a, 10)
	h.Subscribe(b, 10)
	assert.Equal(t, 2, h.RoomClientCount(10))

	msg := &domain.Message{ID: 5, RoomID: 10, Body: "hi"}
	require.NoError(t, h.BroadcastToRoom(10, domain.NewChatMessageFrame(msg)))

	assert.Equal(t, domain.FrameChatMessage, receive(t, a)["type"])
	assert.Equal(t, domain.FrameChatMessage, receive(t, b)["type"])
	select {
	case <-c.send:
		t.Fatal("unsubscribed client received a room frame")
	case <-time.After(50 * time.Millisecond):
	}

	h.Unsubscribe(b, 10)
	assert.Equal(t, 1, h.RoomClientCount(10))
}

func TestSendToUserReachesEverySession(t *testing.T) {
	h := startHub(t, config.WebSocketConfig{SendBuffer: 8})

	a := NewClient("a", h, nil, user(1), h.config)
	b := NewClient("b", h, nil, user(1), h.config)
	anon := NewClient("anon", h, nil, nil, h.config)
	for _, cl := range []*Client{a, b, anon} {
		h.Register(cl)
	}

	require.NoError(t, h.SendToUser(1, domain.NewErrorFrame(domain.CodeForbidden, "nope")))

	assert.Equal(t, domain.CodeForbidden, receive(t, a)["code"])
	assert.Equal(t, domain.CodeForbidden, receive(t, b)["code"])
	assert.Equal(t, 3, h.ClientCount())
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t, config.WebSocketConfig{SendBuffer: 1})

	slow := NewClient("slow", h, nil, user(1), h.config)
	h.Register(slow)
	h.Subscribe(slow, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.BroadcastToRoom(3, map[string]int{"n": i}))
	}

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, h.RoomClientCount(3))

	require.NoError(t, slow.SendFrame(map[string]string{"type": "pong"}), "sending to a dropped client is a no-op")
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := startHub(t, config.WebSocketConfig{SendBuffer: 4})

	c := NewClient("c", h, nil, user(9), h.config)
	h.Register(c)
	h.Subscribe(c, 1)
	h.Unregister(c)

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-c.send:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, h.RoomClientCount(1))
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now()
	cfg := config.WebSocketConfig{EnforceTokenExpiry: true}
	c := NewClient("c", nil, nil, &auth.Principal{UserID: 1, ExpiresAt: now.Add(time.Minute)}, cfg)
	c.now = func() time.Time { return now }
	assert.False(t, c.tokenExpired())

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.True(t, c.tokenExpired())

	c.config.EnforceTokenExpiry = false
	assert.False(t, c.tokenExpired())
}
