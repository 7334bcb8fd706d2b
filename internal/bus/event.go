package bus

import "time"

// Event kinds published by the service. Subscribers filter by namespace
// prefix, e.g. "message." or "health.".
const (
	KindMessageSent         = "message.sent"
	KindConversationUpdated = "conversation.updated"
	KindHealthChanged       = "health.status_changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageSent is the payload for KindMessageSent.
type MessageSent struct {
	MessageID      int64
	ConversationID int64
	SenderID       int64
	ReceiverID     int64
}

// ConversationUpdated is the payload for KindConversationUpdated.
type ConversationUpdated struct {
	ConversationID int64
	LastAt         time.Time
}
