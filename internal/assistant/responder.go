package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/llm"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// DefaultPlaceholder is posted while a reply is being generated.
const DefaultPlaceholder = "Generating a response..."

// Sender is the one write path for messages.
type Sender interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (*domain.Message, error)
}

// Responder posts a placeholder as soon as a human writes in an
// assistant room, then queues the actual reply.
type Responder struct {
	sender      Sender
	generator   llm.Generator
	queue       Queue
	placeholder string
	timeout     time.Duration
}

func NewResponder(sender Sender, generator llm.Generator, queue Queue, placeholder string, timeout time.Duration) *Responder {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Responder{
		sender:      sender,
		generator:   generator,
		queue:       queue,
		placeholder: placeholder,
		timeout:     timeout,
	}
}

// Trigger posts the placeholder and enqueues a task for msg. The
// placeholder is persisted and broadcast before Trigger returns.
func (r *Responder) Trigger(ctx context.Context, room *domain.Room, msg *domain.Message) error {
	if _, err := r.sender.SendMessage(ctx, domain.SendMessageCommand{
		RoomID: room.ID,
		Author: domain.Assistant(),
		Body:   r.placeholder,
		Type:   domain.MessageTypeChat,
	}); err != nil {
		return fmt.Errorf("post placeholder: %w", err)
	}

	task := NewTask(room.ID, msg.ID, msg.Body)
	if err := r.queue.Enqueue(ctx, task); err != nil {
		return err
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldTaskID, task.ID).Int64(log.FieldMessageID, msg.ID).Msg("assistant task queued")
	return nil
}

// Process generates the reply for task and posts it as the assistant.
func (r *Responder) Process(ctx context.Context, task *Task) error {
	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.generator.Generate(genCtx, task.Prompt, llm.ConversationKey(task.RoomID))
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	msg, err := r.sender.SendMessage(ctx, domain.SendMessageCommand{
		RoomID: task.RoomID,
		Author: domain.Assistant(),
		Body:   reply,
		Type:   domain.MessageTypeChat,
	})
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().Int64(log.FieldMessageID, msg.ID).Msg("assistant reply posted")
	return nil
}
