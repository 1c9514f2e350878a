package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const hydratedMessageColumns = "m.id, m.room_id, m.sender_id, m.body, m.type, m.is_read, m.created_at, " +
	"u.name AS sender_name, u.nickname AS sender_nickname"

// messageRow is a message joined with its sender.
type messageRow struct {
	ID             int64
	RoomID         int64
	SenderID       int64
	Body           string
	Type           string
	IsRead         bool
	CreatedAt      time.Time
	SenderName     *string
	SenderNickname *string
}

func (r *messageRow) toDomain() domain.Message {
	msg := domain.Message{
		ID:        r.ID,
		RoomID:    r.RoomID,
		SenderID:  r.SenderID,
		Body:      r.Body,
		Type:      domain.ParseMessageType(r.Type),
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
	if r.SenderName != nil {
		msg.SenderName = *r.SenderName
	}
	if r.SenderNickname != nil {
		msg.SenderNickname = *r.SenderNickname
	}
	return msg
}

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) hydrated(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("chat_messages AS m").
		Select(hydratedMessageColumns).
		Joins("LEFT JOIN users u ON u.id = m.sender_id")
}

// Create inserts msg and fills in its id and timestamp.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	model := &domain.MessageModel{
		RoomID:   msg.RoomID,
		SenderID: msg.SenderID,
		Body:     msg.Body,
		Type:     string(msg.Type),
	}
	if model.Type == "" {
		model.Type = string(domain.MessageTypeChat)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Int64(log.FieldRoomID, msg.RoomID).Msg("failed to create message in db")
		return err
	}

	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	return nil
}

// GetByID returns a hydrated message.
func (r *GormMessageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	l := log.Ctx(ctx)

	var rows []messageRow
	if err := r.hydrated(ctx).Where("m.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		l.Error().Err(err).Int64(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrMessageNotFound
	}
	msg := rows[0].toDomain()
	return &msg, nil
}

// ListRecent returns a page of the room's messages, newest first.
func (r *GormMessageRepository) ListRecent(ctx context.Context, roomID int64, page, size int) ([]domain.Message, int64, error) {
	l := log.Ctx(ctx)

	total, err := r.CountByRoom(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}

	var rows []messageRow
	err = r.hydrated(ctx).
		Where("m.room_id = ?", roomID).
		Order("m.created_at DESC").
		Order("m.id DESC").
		Offset(page * size).
		Limit(size).
		Scan(&rows).Error
	if err != nil {
		l.Error().Err(err).Int64(log.FieldRoomID, roomID).Msg("failed to list recent messages")
		return nil, 0, err
	}
	return toMessages(rows), total, nil
}

// ListAll returns the room's full history, oldest first.
func (r *GormMessageRepository) ListAll(ctx context.Context, roomID int64) ([]domain.Message, error) {
	l := log.Ctx(ctx)

	var rows []messageRow
	err := r.hydrated(ctx).
		Where("m.room_id = ?", roomID).
		Order("m.created_at ASC").
		Order("m.id ASC").
		Scan(&rows).Error
	if err != nil {
		l.Error().Err(err).Int64(log.FieldRoomID, roomID).Msg("failed to list messages")
		return nil, err
	}
	return toMessages(rows), nil
}

// CountByRoom counts the room's messages.
func (r *GormMessageRepository) CountByRoom(ctx context.Context, roomID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldRoomID, roomID).Msg("failed to count messages")
		return 0, err
	}
	return count, nil
}

// MarkRoomRead flags the room's unread messages as read.
func (r *GormMessageRepository) MarkRoomRead(ctx context.Context, roomID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("room_id = ? AND is_read = ?", roomID, false).
		Update("is_read", true)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldRoomID, roomID).Msg("failed to mark messages read")
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountUnreadForUser counts unread messages sent by others in the user's rooms.
func (r *GormMessageRepository) CountUnreadForUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Joins("JOIN room_memberships rm ON rm.room_id = chat_messages.room_id").
		Where("rm.user_id = ? AND chat_messages.is_read = ? AND chat_messages.sender_id <> ?", userID, false, userID).
		Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldUserID, userID).Msg("failed to count unread messages")
		return 0, err
	}
	return count, nil
}

// Delete removes a message.
func (r *GormMessageRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&domain.MessageModel{}, "id = ?", id)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldMessageID, id).Msg("failed to delete message")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func toMessages(rows []messageRow) []domain.Message {
	msgs := make([]domain.Message, len(rows))
	for i := range rows {
		msgs[i] = rows[i].toDomain()
	}
	return msgs
}

