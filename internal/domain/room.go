package domain

import "time"

// Room is a chat room with one leader and a membership roster.
type Room struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	LeaderUserID     int64     `json:"leaderUserId"`
	ForceRemain      bool      `json:"forceRemain"`
	AssistantEnabled bool      `json:"assistantEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CanManage reports whether actor may update or delete the room.
func (r *Room) CanManage(actor Actor) bool {
	return actor.IsAdmin || actor.UserID == r.LeaderUserID
}

// Search fields accepted by room search.
const (
	SearchByTitle       = "title"
	SearchByDescription = "description"
	SearchByLeader      = "leader"
	SearchByForceRemain = "forceremain"
	SearchByAll         = "all"
)

// CreateRoomRequest represents a request to create a room.
type CreateRoomRequest struct {
	Title            string  `json:"title" binding:"required,min=1,max=200"`
	Description      string  `json:"description" binding:"max=2000"`
	ForceRemain      bool    `json:"forceRemain"`
	AssistantEnabled bool    `json:"assistantEnabled"`
	UserIDs          []int64 `json:"userIds"`
}

// UpdateRoomRequest represents a request to update a room. A nil UserIDs
// leaves membership untouched; an empty slice removes every non-leader.
type UpdateRoomRequest struct {
	Title       string   `json:"title" binding:"required,min=1,max=200"`
	Description string   `json:"description" binding:"max=2000"`
	ForceRemain *bool    `json:"forceRemain"`
	UserIDs     *[]int64 `json:"userIds"`
}

// SearchRoomsRequest represents the query of a paged room search.
type SearchRoomsRequest struct {
	SearchBy      string `form:"searchBy"`
	Search        string `form:"search"`
	Page          int    `form:"page"`
	Size          int    `form:"size"`
	SortBy        string `form:"sortBy"`
	SortDirection string `form:"sortDirection"`
}

// RoomQuery is the normalised form of a search handed to the store.
type RoomQuery struct {
	SearchBy string
	Search   string
	Page     int // zero-based
	Size     int
	SortBy   string
	Desc     bool
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	Room
	LeaderUser   *UserSummary  `json:"leaderUser,omitempty"`
	Users        []UserSummary `json:"users"`
	UserCount    int           `json:"userCount"`
	MessageCount int64         `json:"messageCount"`
}

// RoomPage represents a paged list of rooms.
type RoomPage struct {
	Rooms      []RoomResponse `json:"rooms"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalPages int            `json:"totalPages"`
}

// TotalPages returns the number of pages of size needed for total items.
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// RoomDocument is a room as stored in the search index. The leader's
// name is denormalised so a leader search needs no join.
type RoomDocument struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	LeaderUserID     int64     `json:"leader_user_id"`
	LeaderName       string    `json:"leader_name"`
	ForceRemain      bool      `json:"force_remain"`
	AssistantEnabled bool      `json:"assistant_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewRoomDocument builds the index document of a room response.
func NewRoomDocument(resp *RoomResponse) *RoomDocument {
	doc := &RoomDocument{
		ID:               resp.ID,
		Title:            resp.Title,
		Description:      resp.Description,
		LeaderUserID:     resp.LeaderUserID,
		ForceRemain:      resp.ForceRemain,
		AssistantEnabled: resp.AssistantEnabled,
		CreatedAt:        resp.CreatedAt,
	}
	if resp.LeaderUser != nil {
		doc.LeaderName = resp.LeaderUser.Name
	}
	return doc
}

// Room returns the room the document was built from.
func (d *RoomDocument) Room() Room {
	return Room{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		LeaderUserID:     d.LeaderUserID,
		ForceRemain:      d.ForceRemain,
		AssistantEnabled: d.AssistantEnabled,
		CreatedAt:        d.CreatedAt,
	}
}
