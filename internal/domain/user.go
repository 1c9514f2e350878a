package domain

// User is the read-only view of a platform user.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"isAdmin"`
}

// UserSummary is the public part of a user embedded in other responses.
type UserSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

// Summary returns the public view of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Nickname: u.Nickname}
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID  int64
	IsAdmin bool
}
