package core

import "time"

// Live event names pushed to connected clients.
const (
	// EventOnline notifies conversation partners that a user came online.
	// Payload: the user's id.
	EventOnline = "online"
	// EventOffline notifies conversation partners that a user went offline.
	EventOffline = "offline"
	// EventReceiveMessage delivers a freshly persisted message to the
	// receiver's live handles. Best-effort; custody is acknowledged
	// separately.
	EventReceiveMessage = "receive_message"
	// EventViewed notifies a sender that the receiver opened the thread.
	EventViewed = "viewed"
	// EventTyping and EventStopTyping are ephemeral relay signals.
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
)

// OfflinePayload accompanies EventOffline.
type OfflinePayload struct {
	UserID     int64     `json:"userId"`
	LastActive time.Time `json:"lastActive"`
}

// ViewedPayload accompanies EventViewed.
type ViewedPayload struct {
	ViewerID int64 `json:"viewerId"`
}

// TypingPayload accompanies EventTyping and EventStopTyping.
type TypingPayload struct {
	FromUserID int64 `json:"fromUserId"`
	ToUserID   int64 `json:"toUserId"`
}
