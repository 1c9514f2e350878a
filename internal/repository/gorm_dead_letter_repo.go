package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormDeadLetterRepository stores dead-lettered assistant tasks.
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewGormDeadLetterRepository creates a new GORM-based dead letter repository.
func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// Create stores dl. A task already recorded is left untouched, so a
// redelivered dead letter is a no-op.
func (r *GormDeadLetterRepository) Create(ctx context.Context, dl *domain.DeadLetter) error {
	model := &domain.DeadLetterModel{
		TaskID:           dl.TaskID,
		RoomID:           dl.RoomID,
		TriggerMessageID: dl.TriggerMessageID,
		Prompt:           dl.Prompt,
		Attempts:         dl.Attempts,
		LastError:        dl.LastError,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "task_id"}}, DoNothing: true}).
		Create(model).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldTaskID, dl.TaskID).Msg("failed to store dead letter")
		return err
	}

	dl.ID = model.ID
	dl.CreatedAt = model.CreatedAt
	return nil
}

// List returns the newest dead letters first.
func (r *GormDeadLetterRepository) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	var models []domain.DeadLetterModel
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list dead letters")
		return nil, err
	}

	out := make([]domain.DeadLetter, len(models))
	for i := range models {
		out[i] = *models[i].ToDomain()
	}
	return out, nil
}
