package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/cache"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Personal assistant room defaults.
const (
	AssistantRoomTitle       = "AI Chatbot"
	AssistantRoomDescription = "Welcome to your personal AI assistant chatroom!"
)

// roomServiceImpl implements RoomService interface.
type roomServiceImpl struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	cache    cache.RoomCache
	cacheTTL time.Duration
	sf       singleflight.Group
	index    repository.RoomSearchRepository
}

// NewRoomService creates a new room service. roomCache and index may be
// nil; without an index, search runs against the room store.
func NewRoomService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	roomCache cache.RoomCache,
	cacheTTL time.Duration,
	index repository.RoomSearchRepository,
) RoomService {
	return &roomServiceImpl{
		rooms:    rooms,
		messages: messages,
		cache:    roomCache,
		cacheTTL: cacheTTL,
		index:    index,
	}
}

// CreateRoom creates a room led by the actor.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, actor domain.Actor, req *domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errInvalid("title is required")
	}

	room := &domain.Room{
		Title:            title,
		Description:      req.Description,
		LeaderUserID:     actor.UserID,
		ForceRemain:      req.ForceRemain,
		AssistantEnabled: req.AssistantEnabled,
	}
	if err := s.rooms.Create(ctx, room, req.UserIDs); err != nil {
		return nil, mapRepoErr(err)
	}

	audit.LogWithDetail(ctx, audit.ActionCreateRoom, actor.UserID, room.ID, room.Title, "room created")

	resp, err := s.buildResponse(ctx, room)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, resp)
	return resp, nil
}

// GetRoom returns a room with its members and counts. Members come from
// the cache; the message count changes with every send, so it is always
// read from the store.
func (s *roomServiceImpl) GetRoom(ctx context.Context, roomID int64) (*domain.RoomResponse, error) {
	resp, err := s.roomWithMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	count, err := s.messages.CountByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	resp.MessageCount = count
	return resp, nil
}

// roomWithMembers returns a copy of the room's response without its
// message count, served from the cache when possible.
func (s *roomServiceImpl) roomWithMembers(ctx context.Context, roomID int64) (*domain.RoomResponse, error) {
	l := log.Ctx(ctx)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, roomID)
		if err == nil {
			cached.MessageCount = 0
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Int64(log.FieldRoomID, roomID).Msg("room cache read failed")
		}
	}

	v, err, _ := s.sf.Do(strconv.FormatInt(roomID, 10), func() (interface{}, error) {
		room, err := s.rooms.GetByID(ctx, roomID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		resp, err := s.buildResponse(ctx, room)
		if err != nil {
			return nil, err
		}
		resp.MessageCount = 0
		if s.cache != nil {
			if err := s.cache.Set(ctx, roomID, resp, s.cacheTTL); err != nil {
				l.Warn().Err(err).Int64(log.FieldRoomID, roomID).Msg("room cache write failed")
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp := *v.(*domain.RoomResponse)
	return &resp, nil
}

// UpdateRoom updates a room. Only the leader or an administrator may.
func (s *roomServiceImpl) UpdateRoom(ctx context.Context, actor domain.Actor, roomID int64, req *domain.UpdateRoomRequest) (*domain.RoomResponse, error) {
	room, err := s.loadManaged(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errInvalid("title is required")
	}
	room.Title = title
	room.Description = req.Description
	if req.ForceRemain != nil {
		room.ForceRemain = *req.ForceRemain
	}

	if err := s.rooms.Update(ctx, room, req.UserIDs); err != nil {
		return nil, mapRepoErr(err)
	}
	s.invalidate(ctx, roomID)

	audit.Log(ctx, audit.ActionUpdateRoom, actor.UserID, roomID, "room updated")

	resp, err := s.buildResponse(ctx, room)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, resp)
	return resp, nil
}

// DeleteRoom deletes a room with its messages and memberships.
func (s *roomServiceImpl) DeleteRoom(ctx context.Context, actor domain.Actor, roomID int64) error {
	if _, err := s.loadManaged(ctx, actor, roomID); err != nil {
		return err
	}

	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return mapRepoErr(err)
	}
	s.invalidate(ctx, roomID)
	s.unindex(ctx, roomID)

	audit.Log(ctx, audit.ActionDeleteRoom, actor.UserID, roomID, "room deleted")
	return nil
}

// JoinRoom adds userID to the room.
func (s *roomServiceImpl) JoinRoom(ctx context.Context, userID, roomID int64) error {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return err
	}

	if err := s.rooms.AddMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, repository.ErrMembershipExists) {
			return domain.ErrAlreadyMember
		}
		return err
	}
	s.invalidate(ctx, roomID)

	audit.Log(ctx, audit.ActionJoinRoom, userID, roomID, "joined room")
	return nil
}

// LeaveRoom removes userID from the room. The leader cannot leave.
func (s *roomServiceImpl) LeaveRoom(ctx context.Context, userID, roomID int64) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.LeaderUserID == userID {
		return domain.ErrLeaderCannotLeave
	}

	if err := s.rooms.RemoveMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return domain.ErrNotAMember
		}
		return err
	}
	s.invalidate(ctx, roomID)

	audit.Log(ctx, audit.ActionLeaveRoom, userID, roomID, "left room")
	return nil
}

func (s *roomServiceImpl) GetMyRooms(ctx context.Context, userID int64) ([]domain.RoomResponse, error) {
	rooms, err := s.rooms.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildResponses(ctx, rooms)
}

func (s *roomServiceImpl) GetLedRooms(ctx context.Context, userID int64) ([]domain.RoomResponse, error) {
	rooms, err := s.rooms.ListByLeader(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildResponses(ctx, rooms)
}

// SearchRooms searches rooms with zero-based paging.
func (s *roomServiceImpl) SearchRooms(ctx context.Context, req *domain.SearchRoomsRequest) (*domain.RoomPage, error) {
	q := domain.RoomQuery{
		SearchBy: req.SearchBy,
		Search:   strings.TrimSpace(req.Search),
		Page:     req.Page,
		Size:     req.Size,
		SortBy:   req.SortBy,
		Desc:     strings.EqualFold(req.SortDirection, "desc"),
	}
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size < 1 || q.Size > 100 {
		q.Size = 20
	}

	rooms, total, err := s.searchRooms(ctx, q)
	if err != nil {
		return nil, err
	}

	responses, err := s.buildResponses(ctx, rooms)
	if err != nil {
		return nil, err
	}

	return &domain.RoomPage{
		Rooms:      responses,
		Total:      total,
		Page:       q.Page,
		Size:       q.Size,
		TotalPages: domain.TotalPages(total, q.Size),
	}, nil
}

func (s *roomServiceImpl) GetUnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.messages.CountUnreadForUser(ctx, userID)
}

// ProvisionAssistantRoom returns the caller's personal assistant room,
// creating it on first use.
func (s *roomServiceImpl) ProvisionAssistantRoom(ctx context.Context, userID int64) (*domain.RoomResponse, error) {
	led, err := s.rooms.ListByLeader(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range led {
		r := &led[i]
		if r.AssistantEnabled && r.ForceRemain && r.Title == AssistantRoomTitle {
			return s.buildResponse(ctx, r)
		}
	}

	return s.CreateRoom(ctx, domain.Actor{UserID: userID}, &domain.CreateRoomRequest{
		Title:            AssistantRoomTitle,
		Description:      AssistantRoomDescription,
		ForceRemain:      true,
		AssistantEnabled: true,
	})
}

// searchRooms prefers the search index and falls back to the store when
// the index is absent or failing.
func (s *roomServiceImpl) searchRooms(ctx context.Context, q domain.RoomQuery) ([]domain.Room, int64, error) {
	if s.index != nil {
		rooms, total, err := s.index.SearchRooms(ctx, q)
		if err == nil {
			return rooms, total, nil
		}
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("room index search failed, searching the store")
	}
	return s.rooms.Search(ctx, q)
}

// reindex and unindex keep the search index in step with the store. The
// store is authoritative, so index failures are logged and not returned.
func (s *roomServiceImpl) reindex(ctx context.Context, resp *domain.RoomResponse) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexRoom(ctx, domain.NewRoomDocument(resp)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Int64(log.FieldRoomID, resp.ID).Msg("failed to index room")
	}
}

func (s *roomServiceImpl) unindex(ctx context.Context, roomID int64) {
	if s.index == nil {
		return
	}
	if err := s.index.DeleteRoom(ctx, roomID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Int64(log.FieldRoomID, roomID).Msg("failed to remove room from index")
	}
}

func (s *roomServiceImpl) loadManaged(ctx context.Context, actor domain.Actor, roomID int64) (*domain.Room, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.CanManage(actor) {
		return nil, domain.ErrNotRoomLeader
	}
	return room, nil
}

func (s *roomServiceImpl) getRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return room, nil
}

func (s *roomServiceImpl) invalidate(ctx context.Context, roomID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, roomID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Int64(log.FieldRoomID, roomID).Msg("room cache invalidation failed")
	}
}

func (s *roomServiceImpl) buildResponse(ctx context.Context, room *domain.Room) (*domain.RoomResponse, error) {
	members, err := s.rooms.ListMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.messages.CountByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	resp := &domain.RoomResponse{
		Room:         *room,
		Users:        make([]domain.UserSummary, len(members)),
		UserCount:    len(members),
		MessageCount: count,
	}
	for i := range members {
		resp.Users[i] = members[i].Summary()
		if members[i].ID == room.LeaderUserID {
			leader := members[i].Summary()
			resp.LeaderUser = &leader
		}
	}
	return resp, nil
}

func (s *roomServiceImpl) buildResponses(ctx context.Context, rooms []domain.Room) ([]domain.RoomResponse, error) {
	out := make([]domain.RoomResponse, 0, len(rooms))
	for i := range rooms {
		resp, err := s.buildResponse(ctx, &rooms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		return domain.ErrRoomNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return domain.ErrUserNotFound
	case errors.Is(err, repository.ErrMessageNotFound):
		return domain.ErrMessageNotFound
	default:
		return err
	}
}

func errInvalid(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return domain.ErrValidation.Error() + ": " + e.msg }
func (e *validationError) Unwrap() error { return domain.ErrValidation }
