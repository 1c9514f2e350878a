package domain

import "time"

// RoomModel is the GORM model for chat rooms.
type RoomModel struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	Title            string    `gorm:"type:varchar(200);not null"`
	Description      string    `gorm:"type:text"`
	LeaderUserID     int64     `gorm:"not null;index"`
	ForceRemain      bool      `gorm:"not null;default:false"`
	AssistantEnabled bool      `gorm:"not null;default:false"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		LeaderUserID:     m.LeaderUserID,
		ForceRemain:      m.ForceRemain,
		AssistantEnabled: m.AssistantEnabled,
		CreatedAt:        m.CreatedAt,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		LeaderUserID:     r.LeaderUserID,
		ForceRemain:      r.ForceRemain,
		AssistantEnabled: r.AssistantEnabled,
		CreatedAt:        r.CreatedAt,
	}
}

// MembershipModel associates a user with a room. The composite primary
// key keeps a user to one row per room.
type MembershipModel struct {
	UserID   int64     `gorm:"primaryKey;autoIncrement:false"`
	RoomID   int64     `gorm:"primaryKey;autoIncrement:false;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for MembershipModel.
func (MembershipModel) TableName() string {
	return "room_memberships"
}

// MessageModel is the GORM model for chat messages.
type MessageModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RoomID    int64     `gorm:"not null;index:idx_messages_room_created,priority:1"`
	SenderID  int64     `gorm:"not null;index"`
	Body      string    `gorm:"type:text;not null"`
	Type      string    `gorm:"type:varchar(16);not null;default:CHAT"`
	IsRead    bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_messages_room_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_messages"
}

// UserModel is the read-only view of the platform's users table.
type UserModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(100);not null"`
	Nickname  string `gorm:"type:varchar(50);not null"`
	Email     string `gorm:"type:varchar(255)"`
	IsAdmin   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:       m.ID,
		Name:     m.Name,
		Nickname: m.Nickname,
		Email:    m.Email,
		IsAdmin:  m.IsAdmin,
	}
}

// DeadLetterModel records an assistant task that exhausted its attempts.
type DeadLetterModel struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	TaskID           string    `gorm:"type:varchar(36);not null;uniqueIndex"`
	RoomID           int64     `gorm:"not null;index"`
	TriggerMessageID int64     `gorm:"not null"`
	Prompt           string    `gorm:"type:text"`
	Attempts         int       `gorm:"not null"`
	LastError        string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for DeadLetterModel.
func (DeadLetterModel) TableName() string {
	return "assistant_dead_letters"
}

// DeadLetter is an assistant task that will not be retried.
type DeadLetter struct {
	ID               int64     `json:"id"`
	TaskID           string    `json:"taskId"`
	RoomID           int64     `json:"roomId"`
	TriggerMessageID int64     `json:"triggerMessageId"`
	Prompt           string    `json:"prompt"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"lastError"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ToDomain converts DeadLetterModel to DeadLetter.
func (m *DeadLetterModel) ToDomain() *DeadLetter {
	return &DeadLetter{
		ID:               m.ID,
		TaskID:           m.TaskID,
		RoomID:           m.RoomID,
		TriggerMessageID: m.TriggerMessageID,
		Prompt:           m.Prompt,
		Attempts:         m.Attempts,
		LastError:        m.LastError,
		CreatedAt:        m.CreatedAt,
	}
}

// AllModels lists every model the service migrates.
func AllModels() []interface{} {
	return []interface{}{
		&UserModel{},
		&RoomModel{},
		&MembershipModel{},
		&MessageModel{},
		&DeadLetterModel{},
	}
}
