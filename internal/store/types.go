package store

import "time"

// CounterKind names a counter row. One counter exists per entity kind.
type CounterKind string

const (
	CounterConversation CounterKind = "conversation_id"
	CounterMessage      CounterKind = "message_id"
)

// Message is one immutable entry in a conversation's log.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	ReceiverID     int64
	Content        string
	At             time.Time
}

// ConversationSummary is the denormalized per-conversation view row.
// SenderID and ReceiverID reflect the direction of the latest message; for a
// conversation with no messages yet they reflect the creating call and
// LastMessage is empty. The summary is a materialized view, never the source
// of truth for message content.
type ConversationSummary struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	LastAt      time.Time
	LastMessage string
}
