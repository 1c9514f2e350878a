package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Roles stored in conversation memory.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one remembered utterance.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Memory keeps a bounded rolling window of turns per conversation key.
type Memory interface {
	Load(ctx context.Context, key string) ([]Turn, error)
	Append(ctx context.Context, key string, turns ...Turn) error
}

// RedisMemory stores each conversation as a capped Redis list.
type RedisMemory struct {
	client redis.UniversalClient
	prefix string
	window int
	ttl    time.Duration
}

func NewRedisMemory(client redis.UniversalClient, prefix string, window int, ttl time.Duration) *RedisMemory {
	if window <= 0 {
		window = 20
	}
	return &RedisMemory{
		client: client,
		prefix: prefix,
		window: window,
		ttl:    ttl,
	}
}

func (m *RedisMemory) key(conversation string) string {
	return fmt.Sprintf("%s:%s", m.prefix, conversation)
}

// Load returns the remembered turns, oldest first.
func (m *RedisMemory) Load(ctx context.Context, conversation string) ([]Turn, error) {
	raw, err := m.client.LRange(ctx, m.key(conversation), int64(-m.window), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append records turns and trims the conversation to the window.
func (m *RedisMemory) Append(ctx context.Context, conversation string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]interface{}, len(turns))
	for i, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		values[i] = data
	}

	key := m.key(conversation)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-m.window), -1)
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append memory: %w", err)
	}
	return nil
}
