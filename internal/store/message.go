package store

import (
	"context"
	"fmt"
	"time"

	"courier/internal/paginate"
)

const (
	insertMessage = `INSERT INTO messages (conversation_id, at, message_id, sender_id, receiver_id, content) VALUES (?, ?, ?, ?, ?, ?)`

	selectMessages       = `SELECT message_id, sender_id, receiver_id, content, at FROM messages WHERE conversation_id = ?`
	selectMessagesBefore = `SELECT message_id, sender_id, receiver_id, content, at FROM messages WHERE conversation_id = ? AND at < ?`
)

// MessageLog is the append-only store of messages. Rows are keyed by
// conversation and clustered newest-first, so partition reads come back in
// reverse chronological order without any sort.
type MessageLog struct {
	exec  Executor
	alloc *Allocator
	now   func() time.Time
}

// NewMessageLog creates a MessageLog using alloc for message IDs.
func NewMessageLog(exec Executor, alloc *Allocator) *MessageLog {
	return &MessageLog{exec: exec, alloc: alloc, now: func() time.Time { return time.Now().UTC() }}
}

// Append allocates a message ID, writes one immutable row into the
// conversation's partition, and returns the full message. The caller is
// responsible for touching the conversation summary afterwards; Append must
// come first so a crash can only leave a stale summary, never a summary
// pointing at a message that was not written.
func (ml *MessageLog) Append(ctx context.Context, conversationID, senderID, receiverID int64, content string) (Message, error) {
	id, err := ml.alloc.NextID(ctx, CounterMessage)
	if err != nil {
		return Message{}, err
	}
	at := ml.now()
	if err := ml.exec.Exec(ctx, insertMessage, conversationID, at, id, senderID, receiverID, content); err != nil {
		return Message{}, fmt.Errorf("append message %d: %w", id, err)
	}
	return Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		At:             at,
	}, nil
}

// ListByConversation returns one page of the conversation's messages, newest
// first, plus the total count. The whole partition is fetched once and both
// the page and the total derive from that single materialized set, so the
// two can never disagree.
func (ml *MessageLog) ListByConversation(ctx context.Context, conversationID int64, page, limit int) ([]Message, int, error) {
	rows, err := ml.exec.Select(ctx, selectMessages, conversationID)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages for conversation %d: %w", conversationID, err)
	}
	pageItems, total := paginate.Slice(messagesFromRows(conversationID, rows), page, limit)
	return pageItems, total, nil
}

// ListBefore is the cursor form of ListByConversation: only messages with a
// timestamp strictly before the bound are considered. Preferred by clients
// for deep pagination, since the clustering key prunes the read server-side.
func (ml *MessageLog) ListBefore(ctx context.Context, conversationID int64, before time.Time, page, limit int) ([]Message, int, error) {
	rows, err := ml.exec.Select(ctx, selectMessagesBefore, conversationID, before)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages before %s for conversation %d: %w", before.Format(time.RFC3339), conversationID, err)
	}
	pageItems, total := paginate.Slice(messagesFromRows(conversationID, rows), page, limit)
	return pageItems, total, nil
}

func messagesFromRows(conversationID int64, rows []Row) []Message {
	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, Message{
			ID:             rowInt64(r, "message_id"),
			ConversationID: conversationID,
			SenderID:       rowInt64(r, "sender_id"),
			ReceiverID:     rowInt64(r, "receiver_id"),
			Content:        rowString(r, "content"),
			At:             rowTime(r, "at"),
		})
	}
	return msgs
}
