// Package llm is the language-generation collaborator: an OpenAI
// chat-completions client with per-conversation memory.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/metrics"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

var ErrEmptyCompletion = errors.New("completion has no content")

// Generator produces reply text for a prompt within a conversation.
type Generator interface {
	Generate(ctx context.Context, prompt, conversationKey string) (string, error)
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// OpenAIGenerator calls chat completions with the remembered turns of
// the conversation prepended.
type OpenAIGenerator struct {
	client       openai.Client
	model        string
	systemPrompt string
	memory       Memory
}

func NewOpenAIGenerator(cfg OpenAIConfig, memory Memory) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		memory:       memory,
	}
}

// Generate returns the model's reply. Every failure wraps domain.ErrUpstream.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt, conversationKey string) (string, error) {
	l := log.Ctx(ctx)

	var history []Turn
	if g.memory != nil {
		turns, err := g.memory.Load(ctx, conversationKey)
		if err != nil {
			l.Warn().Err(err).Str("conversation", conversationKey).Msg("conversation memory unavailable, continuing without it")
		} else {
			history = turns
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if g.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(g.systemPrompt))
	}
	for _, t := range history {
		switch t.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	})
	metrics.AssistantGeneration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", domain.ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, ErrEmptyCompletion)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, ErrEmptyCompletion)
	}

	if g.memory != nil {
		if err := g.memory.Append(ctx, conversationKey,
			Turn{Role: RoleUser, Content: prompt},
			Turn{Role: RoleAssistant, Content: reply},
		); err != nil {
			l.Warn().Err(err).Str("conversation", conversationKey).Msg("failed to store conversation memory")
		}
	}

	return reply, nil
}

// ConversationKey is the memory key of a room's conversation.
func ConversationKey(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}
