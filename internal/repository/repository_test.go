package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/testutil"
)

func TestRoomCreateWithMembers(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	testutil.SeedUser(t, db, 2, "bob")
	repo := NewGormRoomRepository(db)
	ctx := context.Background()

	room := &domain.Room{Title: "general", LeaderUserID: 1}
	require.NoError(t, repo.Create(ctx, room, []int64{1, 2, 2}))
	assert.NotZero(t, room.ID)

	members, err := repo.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(1), members[0].ID)
	assert.Equal(t, int64(2), members[1].ID)
}

func TestRoomCreateUnknownMemberRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	repo := NewGormRoomRepository(db)
	ctx := context.Background()

	err := repo.Create(ctx, &domain.Room{Title: "x", LeaderUserID: 1}, []int64{99})
	assert.ErrorIs(t, err, ErrUserNotFound)

	var count int64
	require.NoError(t, db.Model(&domain.RoomModel{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&domain.MembershipModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRoomUpdateReplacesMembers(t *testing.T) {
	db := testutil.NewDB(t)
	for i, n := range []string{"alice", "bob", "carol"} {
		testutil.SeedUser(t, db, int64(i+1), n)
	}
	repo := NewGormRoomRepository(db)
	ctx := context.Background()

	room := &domain.Room{Title: "general", LeaderUserID: 1}
	require.NoError(t, repo.Create(ctx, room, []int64{2}))

	room.Title = "renamed"
	ids := []int64{3}
	require.NoError(t, repo.Update(ctx, room, &ids))

	got, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	isBob, err := repo.IsMember(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.False(t, isBob)
	isCarol, err := repo.IsMember(ctx, room.ID, 3)
	require.NoError(t, err)
	assert.True(t, isCarol)
	isLeader, err := repo.IsMember(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.True(t, isLeader)

	assert.ErrorIs(t, repo.Update(ctx, &domain.Room{ID: 404, Title: "x"}, nil), ErrRoomNotFound)
}

func TestRoomDeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	rooms := NewGormRoomRepository(db)
	msgs := NewGormMessageRepository(db)
	ctx := context.Background()

	room := &domain.Room{Title: "general", LeaderUserID: 1}
	require.NoError(t, rooms.Create(ctx, room, nil))
	require.NoError(t, msgs.Create(ctx, &domain.Message{RoomID: room.ID, SenderID: 1, Body: "hi"}))

	require.NoError(t, rooms.Delete(ctx, room.ID))

	_, err := rooms.GetByID(ctx, room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	count, err := msgs.CountByRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	ok, err := rooms.IsMember(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, rooms.Delete(ctx, room.ID), ErrRoomNotFound)
}

func TestRoomMembership(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	testutil.SeedUser(t, db, 2, "bob")
	repo := NewGormRoomRepository(db)
	ctx := context.Background()

	room := &domain.Room{Title: "general", LeaderUserID: 1}
	require.NoError(t, repo.Create(ctx, room, nil))

	require.NoError(t, repo.AddMember(ctx, room.ID, 2))
	assert.ErrorIs(t, repo.AddMember(ctx, room.ID, 2), ErrMembershipExists)

	mine, err := repo.ListByMember(ctx, 2)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, repo.RemoveMember(ctx, room.ID, 2))
	assert.ErrorIs(t, repo.RemoveMember(ctx, room.ID, 2), ErrMembershipNotFound)

	led, err := repo.ListByLeader(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, led, 1)
}

func TestRoomSearch(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	testutil.SeedUser(t, db, 2, "bob")
	repo := NewGormRoomRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Room{Title: "Go club", Description: "gophers", LeaderUserID: 1}, nil))
	require.NoError(t, repo.Create(ctx, &domain.Room{Title: "Rust club", Description: "crabs", LeaderUserID: 2, ForceRemain: true}, nil))
	require.NoError(t, repo.Create(ctx, &domain.Room{Title: "Cooking", Description: "go-to recipes", LeaderUserID: 2}, nil))

	tests := []struct {
		name  string
		query domain.RoomQuery
		want  int64
	}{
		{"title", domain.RoomQuery{SearchBy: domain.SearchByTitle, Search: "club"}, 2},
		{"description", domain.RoomQuery{SearchBy: domain.SearchByDescription, Search: "crab"}, 1},
		{"leader", domain.RoomQuery{SearchBy: domain.SearchByLeader, Search: "BOB"}, 2},
		{"force remain", domain.RoomQuery{SearchBy: domain.SearchByForceRemain, Search: "true"}, 1},
		{"all", domain.RoomQuery{SearchBy: domain.SearchByAll, Search: "go"}, 2},
		{"empty", domain.RoomQuery{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := repo.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}

	page, total, err := repo.Search(ctx, domain.RoomQuery{Page: 1, Size: 2, SortBy: "title"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "Rust club", page[0].Title)
}

func TestMessageHistoryOrdering(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	repo := NewGormMessageRepository(db)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, repo.Create(ctx, &domain.Message{RoomID: 7, SenderID: 1, Body: body, Type: domain.MessageTypeChat}))
	}

	all, err := repo.ListAll(ctx, 7)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Body)
	assert.Equal(t, "three", all[2].Body)

	recent, total, err := repo.ListRecent(ctx, 7, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Body)
	assert.Equal(t, "two", recent[1].Body)

	older, _, err := repo.ListRecent(ctx, 7, 1, 2)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "one", older[0].Body)
}

func TestMessageHydration(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	repo := NewGormMessageRepository(db)
	ctx := context.Background()

	human := &domain.Message{RoomID: 1, SenderID: 1, Body: "hello"}
	require.NoError(t, repo.Create(ctx, human))
	bot := &domain.Message{RoomID: 1, SenderID: domain.AssistantSenderID, Body: "beep"}
	require.NoError(t, repo.Create(ctx, bot))

	got, err := repo.GetByID(ctx, human.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.SenderName)
	assert.Equal(t, "alice_nick", got.SenderNickname)
	assert.Equal(t, domain.MessageTypeChat, got.Type)

	got, err = repo.GetByID(ctx, bot.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SenderName)
	assert.True(t, got.Author().IsAssistant())

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMarkReadAndUnread(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	testutil.SeedUser(t, db, 2, "bob")
	rooms := NewGormRoomRepository(db)
	msgs := NewGormMessageRepository(db)
	ctx := context.Background()

	room := &domain.Room{Title: "general", LeaderUserID: 1}
	require.NoError(t, rooms.Create(ctx, room, []int64{2}))
	require.NoError(t, msgs.Create(ctx, &domain.Message{RoomID: room.ID, SenderID: 1, Body: "a"}))
	require.NoError(t, msgs.Create(ctx, &domain.Message{RoomID: room.ID, SenderID: 2, Body: "b"}))

	unread, err := msgs.CountUnreadForUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err := msgs.MarkRoomRead(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = msgs.MarkRoomRead(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err = msgs.CountUnreadForUser(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMessageDelete(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewGormMessageRepository(db)
	ctx := context.Background()

	msg := &domain.Message{RoomID: 1, SenderID: 3, Body: "x"}
	require.NoError(t, repo.Create(ctx, msg))
	require.NoError(t, repo.Delete(ctx, msg.ID))
	assert.ErrorIs(t, repo.Delete(ctx, msg.ID), ErrMessageNotFound)
}

func TestUserRepository(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "alice")
	testutil.SeedUser(t, db, 2, "bob")
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	u, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Name)

	_, err = repo.GetByID(ctx, 3)
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := repo.GetByIDs(ctx, []int64{2, 1, 5})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDeadLetterCreateIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewGormDeadLetterRepository(db)
	ctx := context.Background()

	dl := &domain.DeadLetter{TaskID: "task-1", RoomID: 4, TriggerMessageID: 9, Attempts: 3, LastError: "boom"}
	require.NoError(t, repo.Create(ctx, dl))
	require.NoError(t, repo.Create(ctx, &domain.DeadLetter{TaskID: "task-1", RoomID: 4}))
	require.NoError(t, repo.Create(ctx, &domain.DeadLetter{TaskID: "task-2", RoomID: 5}))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "task-2", list[0].TaskID)
	assert.Equal(t, "boom", list[1].LastError)
}
