package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testIndex(t *testing.T) (*ConversationIndex, *MessageLog, *MemExec) {
	t.Helper()
	exec := NewMemExec()
	alloc := NewAllocator(exec)
	return NewConversationIndex(exec, alloc), NewMessageLog(exec, alloc), exec
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestResolveOrCreateIsSymmetric(t *testing.T) {
	index, _, _ := testIndex(t)
	ctx := context.Background()

	first, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != 1 {
		t.Errorf("new conversation id = %d, want 1", first.ID)
	}
	if first.LastMessage != "" {
		t.Errorf("new conversation last message = %q, want empty", first.LastMessage)
	}

	// Resolving with the users swapped must find the same conversation.
	second, err := index.ResolveOrCreate(ctx, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("swapped resolve id = %d, want %d", second.ID, first.ID)
	}

	// A different pair gets a different conversation.
	other, err := index.ResolveOrCreate(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Error("distinct pair reused the same conversation id")
	}
}

func TestResolveOrCreateWithoutSummary(t *testing.T) {
	index, _, _ := testIndex(t)
	ctx := context.Background()

	created, err := index.ResolveOrCreate(ctx, 5, 9)
	if err != nil {
		t.Fatal(err)
	}

	// No Touch has happened, so there is no summary row. Resolving again
	// must still return the existing conversation, not mint a new one.
	resolved, err := index.ResolveOrCreate(ctx, 9, 5)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != created.ID {
		t.Errorf("resolved id = %d, want %d", resolved.ID, created.ID)
	}
	if resolved.LastMessage != "" {
		t.Errorf("last message = %q, want empty before any touch", resolved.LastMessage)
	}
}

func TestGetByIDAbsent(t *testing.T) {
	index, _, _ := testIndex(t)

	_, ok, err := index.GetByID(context.Background(), 404)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("GetByID reported a summary for an unknown conversation")
	}
}

func TestGetByIDIsIdempotent(t *testing.T) {
	index, _, _ := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, conv.ID, 1, 2, at(0), "hi"); err != nil {
		t.Fatal(err)
	}

	a, okA, errA := index.GetByID(ctx, conv.ID)
	b, okB, errB := index.GetByID(ctx, conv.ID)
	if errA != nil || errB != nil {
		t.Fatal(errA, errB)
	}
	if !okA || !okB || a != b {
		t.Errorf("repeated reads differ: %+v vs %+v", a, b)
	}
}

func TestTouchOverwritesSummary(t *testing.T) {
	index, _, _ := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, conv.ID, 1, 2, at(0), "hi"); err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, conv.ID, 2, 1, at(1), "hello back"); err != nil {
		t.Fatal(err)
	}

	s, ok, err := index.GetByID(ctx, conv.ID)
	if err != nil || !ok {
		t.Fatalf("GetByID: ok=%v err=%v", ok, err)
	}
	if s.LastMessage != "hello back" {
		t.Errorf("last message = %q, want %q", s.LastMessage, "hello back")
	}
	if s.SenderID != 2 || s.ReceiverID != 1 {
		t.Errorf("direction = %d->%d, want 2->1", s.SenderID, s.ReceiverID)
	}
	if !s.LastAt.Equal(at(1)) {
		t.Errorf("last at = %v, want %v", s.LastAt, at(1))
	}
}

func TestTouchRetiresOldViewRows(t *testing.T) {
	index, _, exec := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := index.Touch(ctx, conv.ID, 1, 2, at(i), fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	// One view row per participant must remain; older clustering rows are
	// deleted as activity moves forward.
	exec.mu.Lock()
	rows := len(exec.byUser)
	exec.mu.Unlock()
	if rows != 2 {
		t.Errorf("view rows = %d, want 2", rows)
	}

	items, total, err := index.ListForUser(ctx, 1, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total = %d len = %d, want 1 and 1", total, len(items))
	}
	if items[0].LastMessage != "msg 4" {
		t.Errorf("last message = %q, want %q", items[0].LastMessage, "msg 4")
	}
}

func TestListForUserOrdersByRecency(t *testing.T) {
	index, _, _ := testIndex(t)
	ctx := context.Background()

	a, _ := index.ResolveOrCreate(ctx, 1, 2)
	b, _ := index.ResolveOrCreate(ctx, 1, 3)
	c, _ := index.ResolveOrCreate(ctx, 1, 4)
	if err := index.Touch(ctx, a.ID, 1, 2, at(0), "oldest"); err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, c.ID, 4, 1, at(2), "newest"); err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, b.ID, 1, 3, at(1), "middle"); err != nil {
		t.Fatal(err)
	}

	items, total, err := index.ListForUser(ctx, 1, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	want := []int64{c.ID, b.ID, a.ID}
	for i, s := range items {
		if s.ID != want[i] {
			t.Errorf("items[%d].ID = %d, want %d", i, s.ID, want[i])
		}
	}

	// User 3 only participates in conversation b.
	items, total, err = index.ListForUser(ctx, 3, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].ID != b.ID {
		t.Errorf("user 3: total=%d first=%v, want 1 and conversation %d", total, items, b.ID)
	}
}

func TestListForUserPaginates(t *testing.T) {
	index, _, _ := testIndex(t)
	ctx := context.Background()

	for peer := int64(2); peer <= 4; peer++ {
		conv, err := index.ResolveOrCreate(ctx, 1, peer)
		if err != nil {
			t.Fatal(err)
		}
		if err := index.Touch(ctx, conv.ID, 1, peer, at(int(peer)), "hi"); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := index.ListForUser(ctx, 1, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("page 1: total=%d len=%d, want 3 and 2", total, len(items))
	}
	items, total, err = index.ListForUser(ctx, 1, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 1 {
		t.Errorf("page 2: total=%d len=%d, want 3 and 1", total, len(items))
	}
}

func TestListForUserCollapsesStaleViewRows(t *testing.T) {
	index, _, exec := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Touch(ctx, conv.ID, 1, 2, at(3), "current"); err != nil {
		t.Fatal(err)
	}

	// Simulate an interrupted earlier Touch that left its view row behind.
	exec.mu.Lock()
	exec.byUser[byUserKey{1, at(0), conv.ID}] = Row{
		"conversation_id": conv.ID,
		"sender_id":       int64(1),
		"receiver_id":     int64(2),
		"last_at":         at(0),
		"last_message":    "stale",
	}
	exec.mu.Unlock()

	items, total, err := index.ListForUser(ctx, 1, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total=%d len=%d, want 1 and 1", total, len(items))
	}
	if items[0].LastMessage != "current" {
		t.Errorf("kept %q, want the newest row", items[0].LastMessage)
	}
}

func TestListForUserUnavailable(t *testing.T) {
	index, _, exec := testIndex(t)
	exec.Fail(fmt.Errorf("%w: connection refused", ErrUnavailable))

	_, _, err := index.ListForUser(context.Background(), 1, 1, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestAppendAndListByConversation(t *testing.T) {
	index, log, _ := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	times := []int{0, 1, 2}
	for i, sec := range times {
		log.now = func() time.Time { return at(sec) }
		if _, err := log.Append(ctx, conv.ID, 1, 2, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	msgs, total, err := log.ListByConversation(ctx, conv.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(msgs) != 3 {
		t.Fatalf("total=%d len=%d, want 3 and 3", total, len(msgs))
	}
	// Newest first.
	if msgs[0].Content != "msg 2" || msgs[2].Content != "msg 0" {
		t.Errorf("order = [%s .. %s], want newest first", msgs[0].Content, msgs[2].Content)
	}
	if msgs[0].SenderID != 1 || msgs[0].ReceiverID != 2 {
		t.Errorf("direction = %d->%d, want 1->2", msgs[0].SenderID, msgs[0].ReceiverID)
	}
}

func TestListByConversationEmpty(t *testing.T) {
	_, log, _ := testIndex(t)

	msgs, total, err := log.ListByConversation(context.Background(), 7, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(msgs) != 0 {
		t.Errorf("total=%d len=%d, want 0 and 0", total, len(msgs))
	}
}

func TestListBeforeExcludesBound(t *testing.T) {
	index, log, _ := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	for sec := 0; sec < 5; sec++ {
		s := sec
		log.now = func() time.Time { return at(s) }
		if _, err := log.Append(ctx, conv.ID, 1, 2, fmt.Sprintf("msg %d", s)); err != nil {
			t.Fatal(err)
		}
	}

	msgs, total, err := log.ListBefore(ctx, conv.ID, at(3), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	for _, m := range msgs {
		if !m.At.Before(at(3)) {
			t.Errorf("message at %v is not before the bound %v", m.At, at(3))
		}
	}
	if msgs[0].Content != "msg 2" {
		t.Errorf("first = %q, want msg 2", msgs[0].Content)
	}
}

func TestListByConversationPaginates(t *testing.T) {
	index, log, _ := testIndex(t)
	ctx := context.Background()

	conv, err := index.ResolveOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	for sec := 0; sec < 5; sec++ {
		s := sec
		log.now = func() time.Time { return at(s) }
		if _, err := log.Append(ctx, conv.ID, 1, 2, fmt.Sprintf("msg %d", s)); err != nil {
			t.Fatal(err)
		}
	}

	msgs, total, err := log.ListByConversation(ctx, conv.ID, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(msgs) != 2 {
		t.Fatalf("total=%d len=%d, want 5 and 2", total, len(msgs))
	}
	if msgs[0].Content != "msg 2" || msgs[1].Content != "msg 1" {
		t.Errorf("page 2 = [%s, %s], want [msg 2, msg 1]", msgs[0].Content, msgs[1].Content)
	}
}

func TestAppendUnavailable(t *testing.T) {
	_, log, exec := testIndex(t)
	exec.Fail(fmt.Errorf("%w: no hosts", ErrUnavailable))

	_, err := log.Append(context.Background(), 1, 1, 2, "hi")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
