package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConnectionAuthenticator resolves the credential of an upgrade request.
type ConnectionAuthenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error)
}

// WSHandler upgrades connections and routes their frames.
type WSHandler struct {
	hub      *hub.Hub
	chat     service.ChatService
	notifier service.Broadcaster
	authn    ConnectionAuthenticator
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, chat service.ChatService, notifier service.Broadcaster, authn ConnectionAuthenticator, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		chat:     chat,
		notifier: notifier,
		authn:    authn,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/chat/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the upgrade request once and binds the
// resulting principal to the connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	principal, err := h.authn.Authenticate(ctx, c.Request)
	if err != nil {
		if domain.ErrorCode(err) == domain.CodeUpstream {
			l.Error().Err(err).Msg("identity lookup failed during upgrade")
			response.BadGateway(c, "failed to validate token")
			return
		}
		l.Warn().Err(err).Msg("rejected websocket credential")
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, principal, h.wsCfg)

	connLog := l.With().Str(log.FieldClientID, client.ID)
	bound := []string{log.FieldClientID}
	if principal != nil {
		connLog = connLog.Int64(log.FieldUserID, principal.UserID)
		bound = append(bound, log.FieldUserID)
	}
	connCtx := log.WithLogger(context.WithoutCancel(ctx), connLog.Logger(), bound...)

	h.hub.Register(client)

	frame := &domain.ConnectedFrame{Type: domain.FrameConnected, Authenticated: principal != nil}
	if principal != nil {
		frame.UserID = principal.UserID
	}
	client.SendFrame(frame)

	go client.WritePump()
	go client.ReadPump(connCtx, h.handleMessage)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	var base domain.BaseFrame
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.CodeMalformedFrame, "invalid message format"))
		return
	}

	if base.Type == domain.FramePing {
		client.SendFrame(domain.BaseFrame{Type: domain.FramePong})
		return
	}

	userID, ok := client.UserID()
	switch base.Type {
	case domain.FrameSubscribe, domain.FrameUnsubscribe, domain.FrameSendMessage:
		if !ok {
			client.SendFrame(domain.NewErrorFrame(domain.CodeUnauthorized, "authentication required"))
			return
		}
	default:
		client.SendFrame(domain.NewErrorFrame(domain.CodeUnknownFrame, "unknown message type"))
		return
	}

	switch base.Type {
	case domain.FrameSubscribe:
		var frame domain.RoomFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.CodeMalformedFrame, "invalid subscribe frame"))
			return
		}
		if err := h.chat.AuthorizeSubscribe(ctx, userID, frame.RoomID); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.ErrorCode(err), publicMessage(err)))
			return
		}
		h.hub.Subscribe(client, frame.RoomID)
		client.SendFrame(&domain.SubscribedFrame{Type: domain.FrameSubscribed, RoomID: frame.RoomID})

	case domain.FrameUnsubscribe:
		var frame domain.RoomFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.CodeMalformedFrame, "invalid unsubscribe frame"))
			return
		}
		h.hub.Unsubscribe(client, frame.RoomID)
		client.SendFrame(&domain.SubscribedFrame{Type: domain.FrameUnsubscribed, RoomID: frame.RoomID})

	case domain.FrameSendMessage:
		var frame domain.SendMessageFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.CodeMalformedFrame, "invalid send_message frame"))
			return
		}
		_, err := h.chat.SendMessage(ctx, domain.SendMessageCommand{
			RoomID: frame.RoomID,
			Author: domain.Human(userID),
			Body:   frame.Message,
			Type:   domain.ParseMessageType(frame.MessageType),
		})
		if err != nil {
			h.notifySendFailure(ctx, userID, err)
		}
	}
}

// notifySendFailure reports a failed send on the user's error channel,
// reaching every session of that user.
func (h *WSHandler) notifySendFailure(ctx context.Context, userID int64, err error) {
	l := log.Ctx(ctx)
	if !domain.IsClientError(err) {
		l.Error().Err(err).Msg("failed to send message")
	}

	if notifyErr := h.notifier.NotifyUser(ctx, userID, domain.ErrorCode(err), publicMessage(err)); notifyErr != nil {
		l.Error().Err(notifyErr).Msg("failed to publish send failure")
	}
}

func publicMessage(err error) string {
	if domain.IsClientError(err) {
		return err.Error()
	}
	if errors.Is(err, domain.ErrUpstream) {
		return "upstream failure"
	}
	return "internal error"
}
