package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/metrics"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Hub tracks this node's websocket clients and fans frames out to them
// by room subscription or by user.
type Hub struct {
	clients    map[string]*Client           // clientID -> client
	rooms      map[int64]map[string]*Client // roomID -> clientID -> client
	users      map[int64]map[string]*Client // userID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	deliver    chan *delivery
	done       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// delivery targets either a room or a user.
type delivery struct {
	roomID int64
	userID int64
	data   []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[int64]map[string]*Client),
		users:      make(map[int64]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan *delivery, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run owns client registration and delivery until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	l := log.L()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if id, ok := client.UserID(); ok {
				if _, exists := h.users[id]; !exists {
					h.users[id] = make(map[string]*Client)
				}
				h.users[id][client.ID] = client
			}
			h.mu.Unlock()
			close(client.registered)
			metrics.WSConnections.Inc()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client unregistered")

		case msg := <-h.deliver:
			h.mu.RLock()
			var targets map[string]*Client
			if msg.roomID != 0 {
				targets = h.rooms[msg.roomID]
			} else {
				targets = h.users[msg.userID]
			}
			for _, client := range targets {
				select {
				case client.send <- msg.data:
				default:
					metrics.BroadcastDropped.Inc()
					l.Warn().Str(log.FieldClientID, client.ID).Msg("client buffer full, dropping client")
					go h.removeClient(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// dropLocked forgets client and closes its send channel. h.mu must be held.
func (h *Hub) dropLocked(client *Client) {
	for roomID, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if id, ok := client.UserID(); ok {
		if sessions, exists := h.users[id]; exists {
			delete(sessions, client.ID)
			if len(sessions) == 0 {
				delete(h.users, id)
			}
		}
	}
	delete(h.clients, client.ID)
	close(client.send)
	metrics.WSConnections.Dec()
}

// Register adds client and returns once it can be subscribed.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
		<-client.registered
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds client to the room's delivery set.
func (h *Hub) Subscribe(client *Client, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][client.ID] = client

	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Int64(log.FieldRoomID, roomID).Msg("client subscribed to room")
}

// Unsubscribe removes client from the room's delivery set.
func (h *Hub) Unsubscribe(client *Client, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// BroadcastToRoom marshals frame once and queues it for every subscriber of roomID.
func (h *Hub) BroadcastToRoom(roomID int64, frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	h.enqueue(&delivery{roomID: roomID, data: data})
	return nil
}

// SendToUser queues frame for every session of userID on this node.
func (h *Hub) SendToUser(userID int64, frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	h.enqueue(&delivery{userID: userID, data: data})
	return nil
}

// sendDirect queues data for client if it is still registered.
func (h *Hub) sendDirect(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) enqueue(d *delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

func (h *Hub) RoomClientCount(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.Unregister(client)
}
