package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is an at-least-once task queue. A claimed task stays invisible
// until it is acked, retried or dead-lettered, or until its visibility
// deadline passes and ReapExpired hands it out again.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	Claim(ctx context.Context, now time.Time, visibility time.Duration) (*Task, error)
	Ack(ctx context.Context, task *Task) error
	Retry(ctx context.Context, task *Task, at time.Time) error
	DeadLetter(ctx context.Context, task *Task) error
	ReapExpired(ctx context.Context, now time.Time) (int, error)
	PopDeadLetter(ctx context.Context, timeout time.Duration) (*Task, error)
}

// claimScript moves the first due task from pending to processing,
// scored by its visibility deadline.
var claimScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', KEYS[1], items[1])
redis.call('ZADD', KEYS[2], ARGV[2], items[1])
return items[1]
`)

// reapScript returns every processing task past its deadline to pending.
var reapScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('ZADD', KEYS[2], ARGV[1], item)
end
return #items
`)

// RedisQueue keeps pending and processing tasks in sorted sets and dead
// letters in a list, all under one key prefix.
type RedisQueue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	dlq        string
}

func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	return &RedisQueue{
		client:     client,
		pending:    prefix + ":pending",
		processing: prefix + ":processing",
		dlq:        prefix + ":dlq",
	}
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Enqueue makes task due immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	raw, err := task.encode()
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.pending, redis.Z{Score: float64(time.Now().UnixMilli()), Member: raw}).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Claim returns the next due task, or nil when none is due.
func (q *RedisQueue) Claim(ctx context.Context, now time.Time, visibility time.Duration) (*Task, error) {
	raw, err := claimScript.Run(ctx, q.client,
		[]string{q.pending, q.processing},
		score(now), score(now.Add(visibility)),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}

	task, err := decodeTask(raw)
	if err != nil {
		// Undecodable members would be reaped forever.
		q.client.ZRem(ctx, q.processing, raw)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}

// Ack removes a finished task.
func (q *RedisQueue) Ack(ctx context.Context, task *Task) error {
	return q.client.ZRem(ctx, q.processing, task.raw).Err()
}

// Retry schedules the next attempt of task at the given time.
func (q *RedisQueue) Retry(ctx context.Context, task *Task, at time.Time) error {
	next := *task
	next.Attempt++
	raw, err := next.encode()
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.processing, task.raw)
		pipe.ZAdd(ctx, q.pending, redis.Z{Score: float64(at.UnixMilli()), Member: raw})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry task: %w", err)
	}
	return nil
}

// DeadLetter moves task to the dead-letter list.
func (q *RedisQueue) DeadLetter(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.processing, task.raw)
		pipe.RPush(ctx, q.dlq, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter task: %w", err)
	}
	return nil
}

// ReapExpired re-queues claimed tasks whose visibility deadline has passed.
func (q *RedisQueue) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := reapScript.Run(ctx, q.client, []string{q.processing, q.pending}, score(now)).Int()
	if err != nil {
		return 0, fmt.Errorf("reap tasks: %w", err)
	}
	return n, nil
}

// PopDeadLetter blocks up to timeout for the next dead letter. It
// returns nil when none arrived.
func (q *RedisQueue) PopDeadLetter(ctx context.Context, timeout time.Duration) (*Task, error) {
	result, err := q.client.BLPop(ctx, timeout, q.dlq).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeTask(result[1])
}
