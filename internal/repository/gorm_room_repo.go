package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create creates a new room together with its initial memberships.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room, memberIDs []int64) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	model.ID = 0

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}

		ids := memberSet(room.LeaderUserID, memberIDs)
		if err := ensureUsersExist(tx, ids); err != nil {
			return err
		}

		return insertMemberships(tx, model.ID, append([]int64{room.LeaderUserID}, ids...))
	})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			l.Error().Err(err).Msg("failed to create room in db")
		}
		return err
	}

	room.ID = model.ID
	room.CreatedAt = model.CreatedAt
	l.Debug().Int64(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id int64) (*domain.Room, error) {
	l := log.Ctx(ctx)

	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l.Error().Err(result.Error).Int64(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Update updates a room and optionally replaces its non-leader members.
func (r *GormRoomRepository) Update(ctx context.Context, room *domain.Room, memberIDs *[]int64) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.RoomModel{}).Where("id = ?", room.ID).Updates(map[string]interface{}{
			"title":        room.Title,
			"description":  room.Description,
			"force_remain": room.ForceRemain,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRoomNotFound
		}

		if memberIDs == nil {
			return nil
		}

		ids := memberSet(room.LeaderUserID, *memberIDs)
		if err := ensureUsersExist(tx, ids); err != nil {
			return err
		}
		if err := tx.Where("room_id = ? AND user_id <> ?", room.ID, room.LeaderUserID).
			Delete(&domain.MembershipModel{}).Error; err != nil {
			return err
		}
		return insertMemberships(tx, room.ID, ids)
	})
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) && !errors.Is(err, ErrUserNotFound) {
			l.Error().Err(err).Int64(log.FieldRoomID, room.ID).Msg("failed to update room in db")
		}
		return err
	}
	return nil
}

// Delete deletes a room with its messages and memberships.
func (r *GormRoomRepository) Delete(ctx context.Context, id int64) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&domain.MessageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&domain.MembershipModel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.RoomModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			l.Error().Err(err).Int64(log.FieldRoomID, id).Msg("failed to delete room from db")
		}
		return err
	}
	return nil
}

// AddMember inserts a membership.
func (r *GormRoomRepository) AddMember(ctx context.Context, roomID, userID int64) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.MembershipModel{}).
			Where("room_id = ? AND user_id = ?", roomID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrMembershipExists
		}
		return tx.Create(&domain.MembershipModel{UserID: userID, RoomID: roomID}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrMembershipExists
		}
		if !errors.Is(err, ErrMembershipExists) {
			l.Error().Err(err).Int64(log.FieldRoomID, roomID).Int64(log.FieldUserID, userID).Msg("failed to add member")
		}
		return err
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *GormRoomRepository) RemoveMember(ctx context.Context, roomID, userID int64) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.MembershipModel{})
	if result.Error != nil {
		l.Error().Err(result.Error).Int64(log.FieldRoomID, roomID).Int64(log.FieldUserID, userID).Msg("failed to remove member")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// IsMember reports whether userID currently belongs to roomID.
func (r *GormRoomRepository) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MembershipModel{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldRoomID, roomID).Int64(log.FieldUserID, userID).Msg("failed to check membership")
		return false, err
	}
	return count > 0, nil
}

// ListMembers returns the users of a room ordered by id.
func (r *GormRoomRepository) ListMembers(ctx context.Context, roomID int64) ([]domain.User, error) {
	var models []domain.UserModel
	err := r.db.WithContext(ctx).
		Joins("JOIN room_memberships rm ON rm.user_id = users.id").
		Where("rm.room_id = ?", roomID).
		Order("users.id ASC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldRoomID, roomID).Msg("failed to list room members")
		return nil, err
	}

	users := make([]domain.User, len(models))
	for i := range models {
		users[i] = *models[i].ToDomain()
	}
	return users, nil
}

// ListByMember returns every room userID belongs to.
func (r *GormRoomRepository) ListByMember(ctx context.Context, userID int64) ([]domain.Room, error) {
	var models []domain.RoomModel
	err := r.db.WithContext(ctx).
		Joins("JOIN room_memberships rm ON rm.room_id = chat_rooms.id").
		Where("rm.user_id = ?", userID).
		Order("chat_rooms.id ASC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldUserID, userID).Msg("failed to list rooms by member")
		return nil, err
	}
	return toRooms(models), nil
}

// ListByLeader returns every room led by leaderID.
func (r *GormRoomRepository) ListByLeader(ctx context.Context, leaderID int64) ([]domain.Room, error) {
	var models []domain.RoomModel
	err := r.db.WithContext(ctx).
		Where("leader_user_id = ?", leaderID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldUserID, leaderID).Msg("failed to list rooms by leader")
		return nil, err
	}
	return toRooms(models), nil
}

var roomSortColumns = map[string]string{
	"id":         "chat_rooms.id",
	"title":      "chat_rooms.title",
	"created_at": "chat_rooms.created_at",
	"createdAt":  "chat_rooms.created_at",
}

// Search searches rooms by title, description, leader name or the
// force-remain flag.
func (r *GormRoomRepository) Search(ctx context.Context, q domain.RoomQuery) ([]domain.Room, int64, error) {
	l := log.Ctx(ctx)

	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size < 1 {
		q.Size = 20
	}

	pattern := "%" + strings.ToLower(q.Search) + "%"
	query := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Joins("LEFT JOIN users lu ON lu.id = chat_rooms.leader_user_id")

	switch strings.ToLower(q.SearchBy) {
	case domain.SearchByTitle:
		query = query.Where("LOWER(chat_rooms.title) LIKE ?", pattern)
	case domain.SearchByDescription:
		query = query.Where("LOWER(chat_rooms.description) LIKE ?", pattern)
	case domain.SearchByLeader:
		query = query.Where("lu.name IS NOT NULL AND LOWER(lu.name) LIKE ?", pattern)
	case domain.SearchByForceRemain:
		query = query.Where("chat_rooms.force_remain = ?", strings.EqualFold(strings.TrimSpace(q.Search), "true"))
	default:
		if q.Search != "" {
			query = query.Where(
				"LOWER(chat_rooms.title) LIKE ? OR LOWER(chat_rooms.description) LIKE ? OR (lu.name IS NOT NULL AND LOWER(lu.name) LIKE ?)",
				pattern, pattern, pattern,
			)
		}
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count rooms")
		return nil, 0, err
	}

	column, ok := roomSortColumns[q.SortBy]
	if !ok {
		column = "chat_rooms.id"
	}
	direction := " ASC"
	if q.Desc {
		direction = " DESC"
	}

	var models []domain.RoomModel
	if err := query.Select("chat_rooms.*").
		Order(column + direction).
		Offset(q.Page * q.Size).
		Limit(q.Size).
		Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to search rooms")
		return nil, 0, err
	}

	return toRooms(models), total, nil
}

// memberSet deduplicates ids and drops the leader and non-positive ids.
func memberSet(leaderID int64, ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || id == leaderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func ensureUsersExist(tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&domain.UserModel{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if count != int64(len(ids)) {
		return ErrUserNotFound
	}
	return nil
}

func insertMemberships(tx *gorm.DB, roomID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]domain.MembershipModel, len(userIDs))
	for i, id := range userIDs {
		rows[i] = domain.MembershipModel{UserID: id, RoomID: roomID}
	}
	return tx.Create(&rows).Error
}

func toRooms(models []domain.RoomModel) []domain.Room {
	rooms := make([]domain.Room, len(models))
	for i := range models {
		rooms[i] = *models[i].ToDomain()
	}
	return rooms
}
