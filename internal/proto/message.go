package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stop_typing"
	InboundTypeViewed      = "viewed"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// SendMessageData is a text chat message from the client. Attachments go
// over the REST endpoint; the socket carries text only.
type SendMessageData struct {
	ReceiverID int64  `json:"receiverId"`
	Body       string `json:"message"`
}

// TypingData signals the start or end of typing toward another user.
type TypingData struct {
	ReceiverID int64 `json:"receiverId"`
}

// ViewedData reports that the client has opened the thread with a peer.
type ViewedData struct {
	PeerID int64 `json:"peerId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
