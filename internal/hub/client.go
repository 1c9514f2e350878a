package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Client is one websocket connection. Its principal is fixed at upgrade
// time and is nil for anonymous connections.
type Client struct {
	ID         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	registered chan struct{}
	principal  *auth.Principal
	config     config.WebSocketConfig
	now        func() time.Time
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, principal *auth.Principal, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:         id,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, buffer),
		registered: make(chan struct{}),
		principal:  principal,
		config:     cfg,
		now:        time.Now,
	}
}

// Principal returns the connection's identity, or nil if anonymous.
func (c *Client) Principal() *auth.Principal {
	return c.principal
}

// UserID returns the authenticated user id.
func (c *Client) UserID() (int64, bool) {
	if c.principal == nil {
		return 0, false
	}
	return c.principal.UserID, true
}

// ReadPump handles inbound frames sequentially until the connection
// fails, then unregisters the client.
func (c *Client) ReadPump(ctx context.Context, handler func(context.Context, *Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(ctx, c, message)
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// pings. With token expiry enforcement on, a lapsed credential closes
// the connection at the next ping tick.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if c.tokenExpired() {
				c.closeExpired()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) tokenExpired() bool {
	return c.config.EnforceTokenExpiry && c.principal != nil && c.principal.Expired(c.now())
}

func (c *Client) closeExpired() {
	l := log.L()
	l.Info().Str(log.FieldClientID, c.ID).Int64(log.FieldUserID, c.principal.UserID).Msg("closing connection with expired token")

	if data, err := json.Marshal(domain.NewErrorFrame(domain.CodeTokenExpired, "token has expired")); err == nil {
		c.conn.WriteMessage(websocket.TextMessage, data)
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "token expired"))
}

// SendFrame queues a frame for this connection only. A full buffer drops it.
func (c *Client) SendFrame(frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.hub.sendDirect(c, data)
	return nil
}
