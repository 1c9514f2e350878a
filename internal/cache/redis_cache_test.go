package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/testutil"
)

func TestRedisRoomCache(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	c := NewRedisRoomCache(client, "chat:room")
	ctx := context.Background()

	_, err := c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	room := &domain.RoomResponse{Room: domain.Room{ID: 1, Title: "general"}, UserCount: 2}
	require.NoError(t, c.Set(ctx, 1, room, 30*time.Second))
	assert.True(t, mr.Exists("chat:room:id:1"))

	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "general", got.Title)
	assert.Equal(t, 2, got.UserCount)

	mr.FastForward(31 * time.Second)
	_, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, 1, room, time.Minute))
	require.NoError(t, c.Delete(ctx, 1, 2))
	_, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
