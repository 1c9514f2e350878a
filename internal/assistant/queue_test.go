package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/testutil"
)

func newQueue(t *testing.T) *RedisQueue {
	t.Helper()
	_, client := testutil.NewRedis(t)
	return NewRedisQueue(client, "test:assistant")
}

func TestQueueClaimAck(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)

	task, err := q.Claim(ctx, time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, task, "empty queue")

	require.NoError(t, q.Enqueue(ctx, NewTask(1, 10, "hello")))

	task, err = q.Claim(ctx, time.Now().Add(time.Millisecond), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(1), task.RoomID)
	assert.Equal(t, int64(10), task.TriggerMessageID)
	assert.Equal(t, "hello", task.Prompt)
	assert.Zero(t, task.Attempt)

	again, err := q.Claim(ctx, time.Now().Add(time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "claimed task is invisible")

	require.NoError(t, q.Ack(ctx, task))
	n, err := q.ReapExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "acked task is gone")
}

func TestQueueRetrySchedulesLater(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	require.NoError(t, q.Enqueue(ctx, NewTask(1, 10, "hello")))

	now := time.Now().Add(time.Millisecond)
	task, err := q.Claim(ctx, now, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, q.Retry(ctx, task, now.Add(10*time.Second)))

	early, err := q.Claim(ctx, now, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, early)

	later, err := q.Claim(ctx, now.Add(11*time.Second), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, later)
	assert.Equal(t, task.ID, later.ID)
	assert.Equal(t, 1, later.Attempt)
}

func TestQueueReapExpired(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	require.NoError(t, q.Enqueue(ctx, NewTask(1, 10, "hello")))

	now := time.Now().Add(time.Millisecond)
	task, err := q.Claim(ctx, now, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	n, err := q.ReapExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n, "deadline not reached")

	n, err = q.ReapExpired(ctx, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Claim(ctx, now.Add(2*time.Second), time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, task.ID, again.ID)
}

func TestQueueDeadLetter(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t)
	require.NoError(t, q.Enqueue(ctx, NewTask(3, 30, "bye")))

	task, err := q.Claim(ctx, time.Now().Add(time.Millisecond), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)
	task.LastError = "upstream failure"

	require.NoError(t, q.DeadLetter(ctx, task))

	dead, err := q.PopDeadLetter(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, dead)
	assert.Equal(t, task.ID, dead.ID)
	assert.Equal(t, "upstream failure", dead.LastError)

	n, err := q.ReapExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "dead letter left processing")
}
