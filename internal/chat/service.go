// Package chat exposes the operations the request-handling layer calls:
// sending a message and the paged read views over conversations and the
// message log. It owns the append-then-touch ordering contract for sends.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courier/internal/bus"
	"courier/internal/paginate"
	"courier/internal/store"
)

// ErrInvalid marks a request rejected by input validation.
var ErrInvalid = errors.New("invalid request")

// Conversation is the read shape for a conversation summary. User1 and
// User2 reflect the direction of the latest message.
type Conversation struct {
	ID                 int64
	User1ID            int64
	User2ID            int64
	LastMessageAt      time.Time
	LastMessageContent string
}

// Page is a paged result envelope. Page and Limit echo the normalized
// request values used to produce Data.
type Page[T any] struct {
	Total int
	Page  int
	Limit int
	Data  []T
}

// Service wires the conversation index and the message log into the send
// and read operations. One Service instance serves all requests
// concurrently; it holds no mutable state of its own.
type Service struct {
	convs *store.ConversationIndex
	msgs  *store.MessageLog
	bus   *bus.Bus
}

// NewService creates a Service. The bus may be nil in tests.
func NewService(convs *store.ConversationIndex, msgs *store.MessageLog, b *bus.Bus) *Service {
	return &Service{convs: convs, msgs: msgs, bus: b}
}

// SendMessage stores a message from sender to receiver, creating the
// conversation on first contact. The message is appended before the
// conversation summary is touched; if the touch fails the message is already
// durable and only the summary lags, which readers tolerate until the next
// send repairs it.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID int64, content string) (store.Message, error) {
	if err := validateSend(senderID, receiverID, content); err != nil {
		return store.Message{}, err
	}

	conv, err := s.convs.ResolveOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return store.Message{}, err
	}

	msg, err := s.msgs.Append(ctx, conv.ID, senderID, receiverID, content)
	if err != nil {
		return store.Message{}, err
	}

	if err := s.convs.Touch(ctx, conv.ID, senderID, receiverID, msg.At, content); err != nil {
		// The append already succeeded; the caller learns about the failure
		// but the message itself is not lost.
		return store.Message{}, fmt.Errorf("message %d stored, summary update failed: %w", msg.ID, err)
	}

	s.publish(bus.Event{
		Kind:      bus.KindMessageSent,
		Timestamp: msg.At,
		Payload: bus.MessageSent{
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			SenderID:       senderID,
			ReceiverID:     receiverID,
		},
	})
	s.publish(bus.Event{
		Kind:      bus.KindConversationUpdated,
		Timestamp: msg.At,
		Payload:   bus.ConversationUpdated{ConversationID: conv.ID, LastAt: msg.At},
	})
	return msg, nil
}

// GetConversation returns a conversation summary by ID. A conversation
// becomes visible here once its first message lands.
func (s *Service) GetConversation(ctx context.Context, conversationID int64) (Conversation, bool, error) {
	summary, ok, err := s.convs.GetByID(ctx, conversationID)
	if err != nil || !ok {
		return Conversation{}, false, err
	}
	return conversationFromSummary(summary), true, nil
}

// ListUserConversations returns one page of the user's conversations,
// newest activity first.
func (s *Service) ListUserConversations(ctx context.Context, userID int64, page, limit int) (Page[Conversation], error) {
	page, limit = paginate.Normalize(page, limit)
	items, total, err := s.convs.ListForUser(ctx, userID, page, limit)
	if err != nil {
		return Page[Conversation]{}, err
	}
	data := make([]Conversation, len(items))
	for i, it := range items {
		data[i] = conversationFromSummary(it)
	}
	return Page[Conversation]{Total: total, Page: page, Limit: limit, Data: data}, nil
}

// ListConversationMessages returns one page of a conversation's messages,
// newest first. A missing conversation is ErrConversationNotFound, distinct
// from an existing conversation with an empty page.
func (s *Service) ListConversationMessages(ctx context.Context, conversationID int64, page, limit int) (Page[store.Message], error) {
	page, limit = paginate.Normalize(page, limit)
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return Page[store.Message]{}, err
	}
	items, total, err := s.msgs.ListByConversation(ctx, conversationID, page, limit)
	if err != nil {
		return Page[store.Message]{}, err
	}
	return Page[store.Message]{Total: total, Page: page, Limit: limit, Data: items}, nil
}

// ListMessagesBefore is the cursor form of ListConversationMessages: only
// messages strictly older than before are considered.
func (s *Service) ListMessagesBefore(ctx context.Context, conversationID int64, before time.Time, page, limit int) (Page[store.Message], error) {
	page, limit = paginate.Normalize(page, limit)
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return Page[store.Message]{}, err
	}
	items, total, err := s.msgs.ListBefore(ctx, conversationID, before, page, limit)
	if err != nil {
		return Page[store.Message]{}, err
	}
	return Page[store.Message]{Total: total, Page: page, Limit: limit, Data: items}, nil
}

func (s *Service) requireConversation(ctx context.Context, conversationID int64) error {
	_, ok, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %d: %w", conversationID, store.ErrConversationNotFound)
	}
	return nil
}

func (s *Service) publish(evt bus.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}

func validateSend(senderID, receiverID int64, content string) error {
	switch {
	case senderID <= 0 || receiverID <= 0:
		return fmt.Errorf("%w: user ids must be positive", ErrInvalid)
	case senderID == receiverID:
		return fmt.Errorf("%w: sender and receiver must differ", ErrInvalid)
	case strings.TrimSpace(content) == "":
		return fmt.Errorf("%w: content must not be empty", ErrInvalid)
	}
	return nil
}

func conversationFromSummary(s store.ConversationSummary) Conversation {
	return Conversation{
		ID:                 s.ID,
		User1ID:            s.SenderID,
		User2ID:            s.ReceiverID,
		LastMessageAt:      s.LastAt,
		LastMessageContent: s.LastMessage,
	}
}
