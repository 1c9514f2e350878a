package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// RoomCache caches rendered room details keyed by room id.
type RoomCache interface {
	Get(ctx context.Context, roomID int64) (*domain.RoomResponse, error)
	Set(ctx context.Context, roomID int64, room *domain.RoomResponse, ttl time.Duration) error
	Delete(ctx context.Context, roomIDs ...int64) error
}
