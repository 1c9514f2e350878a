// Package guard answers whether a user may read or write a room.
package guard

import (
	"context"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// MembershipStore is the slice of the room store the guard reads.
type MembershipStore interface {
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
}

// MembershipGuard checks membership against the committed store on every
// call. It holds no state of its own and is safe for concurrent use.
type MembershipGuard struct {
	store MembershipStore
}

func NewMembershipGuard(store MembershipStore) *MembershipGuard {
	return &MembershipGuard{store: store}
}

// IsMember reports whether userID currently belongs to roomID.
func (g *MembershipGuard) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	if userID <= 0 || roomID <= 0 {
		return false, nil
	}
	return g.store.IsMember(ctx, roomID, userID)
}

// Require returns domain.ErrNotAMember unless userID belongs to roomID.
func (g *MembershipGuard) Require(ctx context.Context, userID, roomID int64) error {
	ok, err := g.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotAMember
	}
	return nil
}

// CanPost reports whether author may write into roomID. The assistant
// is always permitted.
func (g *MembershipGuard) CanPost(ctx context.Context, author domain.Author, roomID int64) error {
	if author.IsAssistant() {
		return nil
	}
	id, _ := author.UserID()
	return g.Require(ctx, id, roomID)
}
