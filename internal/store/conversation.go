package store

import (
	"context"
	"fmt"
	"time"

	"courier/internal/paginate"
)

const (
	selectPair = `SELECT conversation_id, created_at FROM conversations WHERE user_low = ? AND user_high = ?`
	insertPair = `INSERT INTO conversations (user_low, user_high, conversation_id, created_at) VALUES (?, ?, ?, ?)`

	selectSummary = `SELECT conversation_id, sender_id, receiver_id, last_at, last_message FROM conversation_summaries WHERE conversation_id = ?`
	upsertSummary = `INSERT INTO conversation_summaries (conversation_id, sender_id, receiver_id, last_at, last_message) VALUES (?, ?, ?, ?, ?)`

	selectByUser = `SELECT conversation_id, sender_id, receiver_id, last_at, last_message FROM conversations_by_user WHERE user_id = ?`
	insertByUser = `INSERT INTO conversations_by_user (user_id, last_at, conversation_id, sender_id, receiver_id, last_message) VALUES (?, ?, ?, ?, ?, ?)`
	deleteByUser = `DELETE FROM conversations_by_user WHERE user_id = ? AND last_at = ? AND conversation_id = ?`
)

// ConversationIndex maintains conversation identity and the denormalized
// summary rows that make "a user's conversations" queryable without scanning
// the message log.
//
// Identity rows key the user pair canonically (smaller ID first), so one
// lookup answers "does a conversation exist between these two users" for
// either ordering. conversations_by_user is a write-time fan-out view:
// one row per participant, clustered newest-first by last activity, rewritten
// on every message. No transaction ties any of these tables together;
// readers tolerate the gaps partial failures can leave (stale summary, stale
// view row) as documented degraded states.
type ConversationIndex struct {
	exec  Executor
	alloc *Allocator
	now   func() time.Time
}

// NewConversationIndex creates a ConversationIndex using alloc for new
// conversation IDs.
func NewConversationIndex(exec Executor, alloc *Allocator) *ConversationIndex {
	return &ConversationIndex{exec: exec, alloc: alloc, now: func() time.Time { return time.Now().UTC() }}
}

func pairKey(a, b int64) (low, high int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// ResolveOrCreate returns the summary of the conversation between the two
// users, creating the identity row first if no conversation exists yet.
// Creation is best-effort: two racing callers can still mint two identity
// rows for the same pair in the window between lookup and insert; the first
// write wins for subsequent resolves. That weak guarantee is inherent to a
// store without cross-row transactions.
func (ci *ConversationIndex) ResolveOrCreate(ctx context.Context, userA, userB int64) (ConversationSummary, error) {
	low, high := pairKey(userA, userB)

	rows, err := ci.exec.Select(ctx, selectPair, low, high)
	if err != nil {
		return ConversationSummary{}, fmt.Errorf("resolve pair (%d,%d): %w", low, high, err)
	}
	if len(rows) > 0 {
		id := rowInt64(rows[0], "conversation_id")
		summary, ok, err := ci.GetByID(ctx, id)
		if err != nil {
			return ConversationSummary{}, err
		}
		if ok {
			return summary, nil
		}
		// Identity exists but no message was ever recorded (or the summary
		// write was lost). Synthesize the summary from the identity row.
		return ConversationSummary{
			ID:         id,
			SenderID:   userA,
			ReceiverID: userB,
			LastAt:     rowTime(rows[0], "created_at"),
		}, nil
	}

	id, err := ci.alloc.NextID(ctx, CounterConversation)
	if err != nil {
		return ConversationSummary{}, err
	}
	createdAt := ci.now()
	if err := ci.exec.Exec(ctx, insertPair, low, high, id, createdAt); err != nil {
		return ConversationSummary{}, fmt.Errorf("create conversation %d: %w", id, err)
	}
	return ConversationSummary{
		ID:         id,
		SenderID:   userA,
		ReceiverID: userB,
		LastAt:     createdAt,
	}, nil
}

// GetByID returns the summary row for a conversation, reporting absence via
// the second return value rather than an error.
func (ci *ConversationIndex) GetByID(ctx context.Context, conversationID int64) (ConversationSummary, bool, error) {
	rows, err := ci.exec.Select(ctx, selectSummary, conversationID)
	if err != nil {
		return ConversationSummary{}, false, fmt.Errorf("get conversation %d: %w", conversationID, err)
	}
	if len(rows) == 0 {
		return ConversationSummary{}, false, nil
	}
	return summaryFromRow(rows[0]), true, nil
}

// Touch records new activity on a conversation: it overwrites the summary
// row and rewrites the per-participant view rows under the new timestamp.
// Called once per sent message, strictly after the message itself is
// durably appended. A crash partway through leaves the summary or view
// stale; the next Touch repairs both, and ListForUser tolerates leftover
// stale view rows in the meantime.
func (ci *ConversationIndex) Touch(ctx context.Context, conversationID, senderID, receiverID int64, at time.Time, content string) error {
	prev, existed, err := ci.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := ci.exec.Exec(ctx, upsertSummary, conversationID, senderID, receiverID, at, content); err != nil {
		return fmt.Errorf("touch conversation %d: %w", conversationID, err)
	}

	// Retire the view rows clustered under the previous activity timestamp.
	if existed && !prev.LastAt.Equal(at) {
		for _, uid := range []int64{prev.SenderID, prev.ReceiverID} {
			if err := ci.exec.Exec(ctx, deleteByUser, uid, prev.LastAt, conversationID); err != nil {
				return fmt.Errorf("retire view row user %d conversation %d: %w", uid, conversationID, err)
			}
		}
	}
	for _, uid := range []int64{senderID, receiverID} {
		if err := ci.exec.Exec(ctx, insertByUser, uid, at, conversationID, senderID, receiverID, content); err != nil {
			return fmt.Errorf("fan out view row user %d conversation %d: %w", uid, conversationID, err)
		}
	}
	return nil
}

// ListForUser returns one page of the user's conversations ordered by most
// recent activity, plus the total count. The read is a single partition of
// conversations_by_user, already clustered newest-first; total and page are
// derived from the same fetched set. Stale duplicates left behind by an
// interrupted Touch are collapsed here, keeping the newest row per
// conversation.
func (ci *ConversationIndex) ListForUser(ctx context.Context, userID int64, page, limit int) ([]ConversationSummary, int, error) {
	rows, err := ci.exec.Select(ctx, selectByUser, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations for user %d: %w", userID, err)
	}

	seen := make(map[int64]struct{}, len(rows))
	summaries := make([]ConversationSummary, 0, len(rows))
	for _, r := range rows {
		s := summaryFromRow(r)
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		summaries = append(summaries, s)
	}

	pageItems, total := paginate.Slice(summaries, page, limit)
	return pageItems, total, nil
}

func summaryFromRow(r Row) ConversationSummary {
	return ConversationSummary{
		ID:          rowInt64(r, "conversation_id"),
		SenderID:    rowInt64(r, "sender_id"),
		ReceiverID:  rowInt64(r, "receiver_id"),
		LastAt:      rowTime(r, "last_at"),
		LastMessage: rowString(r, "last_message"),
	}
}
