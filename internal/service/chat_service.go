package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/metrics"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// chatServiceImpl implements ChatService.
type chatServiceImpl struct {
	rooms         repository.RoomRepository
	messages      repository.MessageRepository
	guard         MembershipChecker
	broadcaster   Broadcaster
	assistantName string
	trigger       atomic.Pointer[triggerHolder]
}

type triggerHolder struct {
	AssistantTrigger
}

// NewChatService creates a new chat service. assistantName is shown as
// the sender name of assistant messages.
func NewChatService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	guard MembershipChecker,
	broadcaster Broadcaster,
	assistantName string,
) ChatService {
	return &chatServiceImpl{
		rooms:         rooms,
		messages:      messages,
		guard:         guard,
		broadcaster:   broadcaster,
		assistantName: assistantName,
	}
}

func (s *chatServiceImpl) SetAssistantTrigger(trigger AssistantTrigger) {
	if trigger == nil {
		s.trigger.Store(nil)
		return
	}
	s.trigger.Store(&triggerHolder{trigger})
}

// SendMessage validates, persists, re-reads and broadcasts one message.
func (s *chatServiceImpl) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (*domain.Message, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// No-op when the caller already bound the room, as the assistant worker does.
	ctx = log.WithInt64(ctx, log.FieldRoomID, cmd.RoomID)
	l := log.Ctx(ctx)

	room, err := s.getRoom(ctx, cmd.RoomID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CanPost(ctx, cmd.Author, room.ID); err != nil {
		return nil, err
	}

	if cmd.Type == "" {
		cmd.Type = domain.MessageTypeChat
	}
	msg := &domain.Message{
		RoomID:   room.ID,
		SenderID: cmd.Author.SenderID(),
		Body:     strings.TrimSpace(cmd.Body),
		Type:     cmd.Type,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	hydrated, err := s.messages.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("reload message %d: %w", msg.ID, err)
	}
	s.hydrateAuthor(hydrated)

	metrics.MessagesSent.WithLabelValues(metrics.AuthorLabel(cmd.Author.IsAssistant())).Inc()
	l.Debug().Int64(log.FieldMessageID, hydrated.ID).Str("author", cmd.Author.String()).Msg("message persisted")

	if err := s.broadcaster.BroadcastMessage(ctx, room.ID, hydrated); err != nil {
		l.Error().Err(err).Int64(log.FieldMessageID, hydrated.ID).Msg("failed to broadcast message")
	}

	if cmd.Author.IsHuman() && room.AssistantEnabled {
		if holder := s.trigger.Load(); holder != nil {
			if err := holder.Trigger(context.WithoutCancel(ctx), room, hydrated); err != nil {
				l.Error().Err(err).Int64(log.FieldMessageID, hydrated.ID).Msg("failed to trigger assistant")
			}
		}
	}

	return hydrated, nil
}

// GetRecentMessages returns one page of history, newest first.
func (s *chatServiceImpl) GetRecentMessages(ctx context.Context, userID, roomID int64, page, size int) (*domain.MessagePage, error) {
	if err := s.authorizeRead(ctx, userID, roomID); err != nil {
		return nil, err
	}

	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	msgs, total, err := s.messages.ListRecent(ctx, roomID, page, size)
	if err != nil {
		return nil, err
	}
	s.hydrateAll(msgs)

	return &domain.MessagePage{
		Messages:   msgs,
		Page:       page,
		Size:       size,
		Total:      total,
		TotalPages: domain.TotalPages(total, size),
	}, nil
}

// GetAllMessages returns the room's full history, oldest first.
func (s *chatServiceImpl) GetAllMessages(ctx context.Context, userID, roomID int64) ([]domain.Message, error) {
	if err := s.authorizeRead(ctx, userID, roomID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListAll(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.hydrateAll(msgs)
	return msgs, nil
}

func (s *chatServiceImpl) CountMessages(ctx context.Context, userID, roomID int64) (int64, error) {
	if err := s.authorizeRead(ctx, userID, roomID); err != nil {
		return 0, err
	}
	return s.messages.CountByRoom(ctx, roomID)
}

// MarkAsRead flags every unread message in the room as read. Calling it
// again is a no-op that still succeeds.
func (s *chatServiceImpl) MarkAsRead(ctx context.Context, userID, roomID int64) (int64, error) {
	if err := s.authorizeRead(ctx, userID, roomID); err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRoomRead(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		audit.LogWithDetail(ctx, audit.ActionMarkRead, userID, roomID, fmt.Sprintf("count=%d", n), "messages marked read")
	}
	return n, nil
}

// DeleteMessage removes a message. Only its sender or an administrator may.
func (s *chatServiceImpl) DeleteMessage(ctx context.Context, actor domain.Actor, messageID int64) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return domain.ErrMessageNotFound
		}
		return err
	}

	if !actor.IsAdmin && (msg.Author().IsAssistant() || msg.SenderID != actor.UserID) {
		return domain.ErrNotMessageSender
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return domain.ErrMessageNotFound
		}
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionDeleteMessage, actor.UserID, msg.RoomID, fmt.Sprintf("message_id=%d", messageID), "message deleted")
	return nil
}

func (s *chatServiceImpl) AuthorizeSubscribe(ctx context.Context, userID, roomID int64) error {
	return s.authorizeRead(ctx, userID, roomID)
}

func (s *chatServiceImpl) authorizeRead(ctx context.Context, userID, roomID int64) error {
	if roomID <= 0 {
		return domain.ErrMissingRoomID
	}
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return err
	}
	return s.guard.Require(ctx, userID, roomID)
}

func (s *chatServiceImpl) getRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (s *chatServiceImpl) hydrateAuthor(msg *domain.Message) {
	if msg.Author().IsAssistant() {
		msg.SenderName = s.assistantName
		msg.SenderNickname = s.assistantName
	}
}

func (s *chatServiceImpl) hydrateAll(msgs []domain.Message) {
	for i := range msgs {
		s.hydrateAuthor(&msgs[i])
	}
}
