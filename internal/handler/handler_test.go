package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/guard"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/internal/testutil"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

type fixture struct {
	db     *gorm.DB
	router *gin.Engine
	tokens *jwt.Manager
	rooms  repository.RoomRepository
	dead   repository.DeadLetterRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 42, "alice")
	testutil.SeedUser(t, db, 7, "bob")
	testutil.SeedAdmin(t, db, 1, "root")

	ctx, cancel := context.WithCancel(context.Background())

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 8192,
		SendBuffer:     16,
	}
	h := hub.NewHub(wsCfg)
	go h.Run(ctx)

	_, redisClient := testutil.NewRedis(t)
	bus := pubsub.NewRedisPubSubFromClient(redisClient)
	d := dispatcher.NewDispatcher(bus, h)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() {
		cancel()
		d.Wait()
	})

	rooms := repository.NewGormRoomRepository(db)
	messages := repository.NewGormMessageRepository(db)
	dead := repository.NewGormDeadLetterRepository(db)

	chat := service.NewChatService(rooms, messages, guard.NewMembershipGuard(rooms), d, "Assistant")
	roomSvc := service.NewRoomService(rooms, messages, nil, 0, nil)

	tokens, err := jwt.NewManager("test-secret", time.Hour, "wes-io-chat")
	require.NoError(t, err)
	identities := auth.NewIdentityProvider(tokens, repository.NewGormUserRepository(db))
	authMW := middleware.NewAuthMiddleware(identities)

	r := gin.New()
	r.Use(log.GinMiddleware(log.L()))
	NewChatHandler(chat, authMW).RegisterRoutes(r)
	NewRoomHandler(roomSvc, authMW).RegisterRoutes(r)
	NewAdminHandler(dead, authMW).RegisterRoutes(r)
	NewWSHandler(h, chat, d, identities, wsCfg).RegisterRoutes(r)

	return &fixture{db: db, router: r, tokens: tokens, rooms: rooms, dead: dead}
}

func (f *fixture) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, _, err := f.tokens.GenerateAccessToken(userID, "user")
	require.NoError(t, err)
	return tok
}

func (f *fixture) room(t *testing.T, leader int64, members ...int64) *domain.Room {
	t.Helper()
	room := &domain.Room{Title: "general", LeaderUserID: leader}
	require.NoError(t, f.rooms.Create(context.Background(), room, members))
	return room
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, userID int64, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestRESTRequiresAuth(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/api/chatroom/my", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chatroom/my", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRESTSendMessage(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 42)

	code, env := f.do(t, http.MethodPost, "/api/chat/room/"+itoa(room.ID)+"/send", 42, domain.SendMessageRequest{Message: "hello"})
	require.Equal(t, http.StatusCreated, code)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, int64(42), msg.SenderID)
	assert.Equal(t, "alice", msg.SenderName)
	assert.Equal(t, domain.MessageTypeChat, msg.Type)
}

func TestRESTStatusMapping(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 42)
	path := "/api/chat/room/" + itoa(room.ID)

	cases := []struct {
		name   string
		method string
		path   string
		user   int64
		body   interface{}
		status int
		code   string
	}{
		{"non-member send", http.MethodPost, path + "/send", 7, domain.SendMessageRequest{Message: "hi"}, http.StatusForbidden, "FORBIDDEN"},
		{"blank body", http.MethodPost, path + "/send", 42, domain.SendMessageRequest{Message: "   "}, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing room", http.MethodPost, "/api/chat/room/999/send", 42, domain.SendMessageRequest{Message: "hi"}, http.StatusNotFound, "NOT_FOUND"},
		{"bad room id", http.MethodGet, "/api/chat/room/abc/messages", 42, nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"non-member history", http.MethodGet, path + "/messages", 7, nil, http.StatusForbidden, "FORBIDDEN"},
		{"leader leave", http.MethodPost, "/api/chatroom/" + itoa(room.ID) + "/leave", 42, nil, http.StatusForbidden, "FORBIDDEN"},
		{"non-leader delete", http.MethodDelete, "/api/chatroom/" + itoa(room.ID), 7, nil, http.StatusForbidden, "FORBIDDEN"},
		{"non-admin dead letters", http.MethodGet, "/api/admin/assistant/dead-letters", 42, nil, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := f.do(t, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestRESTRoomLifecycle(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/chatroom", 42, domain.CreateRoomRequest{Title: "study", UserIDs: []int64{7}})
	require.Equal(t, http.StatusCreated, code)
	var created domain.RoomResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, 2, created.UserCount)
	path := "/api/chatroom/" + itoa(created.ID)

	code, _ = f.do(t, http.MethodPost, path+"/join", 7, nil)
	assert.Equal(t, http.StatusBadRequest, code, "already a member")

	code, _ = f.do(t, http.MethodPost, path+"/leave", 7, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodGet, path, 7, nil)
	require.Equal(t, http.StatusOK, code)
	var fetched domain.RoomResponse
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, 1, fetched.UserCount)

	code, _ = f.do(t, http.MethodPut, path, 42, domain.UpdateRoomRequest{Title: "renamed"})
	assert.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodGet, "/api/chatroom/search?searchBy=title&search=renam", 7, nil)
	require.Equal(t, http.StatusOK, code)
	var page domain.RoomPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)

	code, _ = f.do(t, http.MethodDelete, path, 1, nil)
	assert.Equal(t, http.StatusOK, code, "admin may delete")

	code, _ = f.do(t, http.MethodGet, path, 42, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRESTReadStateAndCounts(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 42, 7)
	path := "/api/chat/room/" + itoa(room.ID)

	for _, body := range []string{"one", "two"} {
		code, _ := f.do(t, http.MethodPost, path+"/send", 7, domain.SendMessageRequest{Message: body})
		require.Equal(t, http.StatusCreated, code)
	}

	code, env := f.do(t, http.MethodGet, "/api/chatroom/unreadCount", 42, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	code, env = f.do(t, http.MethodGet, path+"/messages/count", 42, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	code, env = f.do(t, http.MethodPost, path+"/read", 42, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":2}`, string(env.Data))

	code, env = f.do(t, http.MethodPost, path+"/read", 42, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":0}`, string(env.Data))

	code, env = f.do(t, http.MethodGet, path+"/messages/all", 42, nil)
	require.Equal(t, http.StatusOK, code)
	var all []domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &all))
	require.Len(t, all, 2)
	assert.Equal(t, "one", all[0].Body)
}

func TestRESTAdminDeadLetters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dead.Create(context.Background(), &domain.DeadLetter{
		TaskID: "task-1", RoomID: 3, TriggerMessageID: 4, Prompt: "hi", Attempts: 3, LastError: "upstream failure",
	}))

	code, env := f.do(t, http.MethodGet, "/api/admin/assistant/dead-letters?limit=10", 1, nil)
	require.Equal(t, http.StatusOK, code)
	var letters []domain.DeadLetter
	require.NoError(t, json.Unmarshal(env.Data, &letters))
	require.Len(t, letters, 1)
	assert.Equal(t, "task-1", letters[0].TaskID)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	_, resp, err := dial(t, srv, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketAnonymous(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 42)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)

	connected := readFrame(t, conn)
	assert.Equal(t, domain.FrameConnected, connected["type"])
	assert.Equal(t, false, connected["authenticated"])

	require.NoError(t, conn.WriteJSON(domain.RoomFrame{Type: domain.FrameSubscribe, RoomID: room.ID}))
	frame := readFrame(t, conn)
	assert.Equal(t, domain.FrameError, frame["type"])
	assert.Equal(t, domain.CodeUnauthorized, frame["code"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame = readFrame(t, conn)
	assert.Equal(t, domain.CodeMalformedFrame, frame["code"])
}

func TestWebSocketSubscribeAndSend(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 42, 7)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	alice, _, err := dial(t, srv, f.token(t, 42))
	require.NoError(t, err)
	bob, _, err := dial(t, srv, f.token(t, 7))
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{alice, bob} {
		connected := readFrame(t, conn)
		assert.Equal(t, true, connected["authenticated"])

		require.NoError(t, conn.WriteJSON(domain.RoomFrame{Type: domain.FrameSubscribe, RoomID: room.ID}))
		subscribed := readFrame(t, conn)
		assert.Equal(t, domain.FrameSubscribed, subscribed["type"])
	}

	require.NoError(t, alice.WriteJSON(domain.SendMessageFrame{Type: domain.FrameSendMessage, RoomID: room.ID, Message: "hello"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		require.Equal(t, domain.FrameChatMessage, frame["type"])
		msg := frame["message"].(map[string]interface{})
		assert.Equal(t, "hello", msg["message"])
		assert.Equal(t, "alice", msg["senderName"])
	}

	require.NoError(t, bob.WriteJSON(domain.BaseFrame{Type: domain.FramePing}))
	assert.Equal(t, domain.FramePong, readFrame(t, bob)["type"])
}

func TestWebSocketSendErrorReachesUser(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, 42)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	bob, _, err := dial(t, srv, f.token(t, 7))
	require.NoError(t, err)
	readFrame(t, bob)

	require.NoError(t, bob.WriteJSON(domain.RoomFrame{Type: domain.FrameSubscribe, RoomID: room.ID}))
	frame := readFrame(t, bob)
	assert.Equal(t, domain.CodeForbidden, frame["code"], "subscribe needs membership")

	require.NoError(t, bob.WriteJSON(domain.SendMessageFrame{Type: domain.FrameSendMessage, RoomID: room.ID, Message: "let me in"}))
	frame = readFrame(t, bob)
	assert.Equal(t, domain.FrameError, frame["type"])
	assert.Equal(t, domain.CodeForbidden, frame["code"])

	count, err := repository.NewGormMessageRepository(f.db).CountByRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
