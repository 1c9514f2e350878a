package domain

// WebSocket frame types from client.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSendMessage = "send_message"
	FramePing        = "ping"
)

// WebSocket frame types to client.
const (
	FrameConnected    = "connected"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameChatMessage  = "chat_message"
	FrameError        = "error"
	FramePong         = "pong"
)

// BaseFrame is the base structure for all WebSocket frames.
type BaseFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

// RoomFrame carries subscribe and unsubscribe requests.
type RoomFrame struct {
	Type   string `json:"type"`
	RoomID int64  `json:"room_id"`
}

// SendMessageFrame is the send envelope {roomId, message, type}.
type SendMessageFrame struct {
	Type        string `json:"type"`
	RoomID      int64  `json:"room_id"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
}

// Server -> Client frames

type ConnectedFrame struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	UserID        int64  `json:"user_id,omitempty"`
}

type SubscribedFrame struct {
	Type   string `json:"type"`
	RoomID int64  `json:"room_id"`
}

type ChatMessageFrame struct {
	Type    string   `json:"type"`
	RoomID  int64    `json:"room_id"`
	Message *Message `json:"message"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame creates an error frame.
func NewErrorFrame(code, message string) *ErrorFrame {
	return &ErrorFrame{
		Type:    FrameError,
		Code:    code,
		Message: message,
	}
}

// NewChatMessageFrame wraps a hydrated message for delivery.
func NewChatMessageFrame(msg *Message) *ChatMessageFrame {
	return &ChatMessageFrame{
		Type:    FrameChatMessage,
		RoomID:  msg.RoomID,
		Message: msg,
	}
}
