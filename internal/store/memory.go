package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemExec is an in-memory stand-in for the storage tier, used by tests and
// by the daemon's "memory" storage mode for local development. It understands
// exactly the statements this package issues and keeps the same per-table
// semantics: upsert on insert, clustering order on read, compare-and-swap
// for the counter statements.
type MemExec struct {
	mu sync.Mutex

	counters  map[string]int64
	pairs     map[[2]int64]Row
	summaries map[int64]Row
	byUser    map[byUserKey]Row
	messages  map[int64][]Row

	failing error // non-nil: every call fails with this error
}

type byUserKey struct {
	userID         int64
	lastAt         time.Time
	conversationID int64
}

// NewMemExec creates an empty in-memory executor.
func NewMemExec() *MemExec {
	return &MemExec{
		counters:  make(map[string]int64),
		pairs:     make(map[[2]int64]Row),
		summaries: make(map[int64]Row),
		byUser:    make(map[byUserKey]Row),
		messages:  make(map[int64][]Row),
	}
}

// Fail makes every subsequent call return err; nil restores service.
func (m *MemExec) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = err
}

// Select implements Executor.
func (m *MemExec) Select(_ context.Context, stmt string, values ...any) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}

	switch stmt {
	case selectCounter:
		name := values[0].(string)
		v, ok := m.counters[name]
		if !ok {
			return nil, nil
		}
		return []Row{{"value": v}}, nil

	case selectPair:
		r, ok := m.pairs[[2]int64{values[0].(int64), values[1].(int64)}]
		if !ok {
			return nil, nil
		}
		return []Row{r}, nil

	case selectSummary:
		r, ok := m.summaries[values[0].(int64)]
		if !ok {
			return nil, nil
		}
		return []Row{r}, nil

	case selectByUser:
		userID := values[0].(int64)
		var rows []Row
		for k, r := range m.byUser {
			if k.userID == userID {
				rows = append(rows, r)
			}
		}
		sortNewestFirst(rows, "last_at", "conversation_id")
		return rows, nil

	case selectMessages:
		rows := append([]Row(nil), m.messages[values[0].(int64)]...)
		sortNewestFirst(rows, "at", "message_id")
		return rows, nil

	case selectMessagesBefore:
		before := values[1].(time.Time)
		var rows []Row
		for _, r := range m.messages[values[0].(int64)] {
			if rowTime(r, "at").Before(before) {
				rows = append(rows, r)
			}
		}
		sortNewestFirst(rows, "at", "message_id")
		return rows, nil
	}
	return nil, fmt.Errorf("memexec: unknown select %q", stmt)
}

// Exec implements Executor.
func (m *MemExec) Exec(_ context.Context, stmt string, values ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}

	switch stmt {
	case insertPair:
		m.pairs[[2]int64{values[0].(int64), values[1].(int64)}] = Row{
			"conversation_id": values[2].(int64),
			"created_at":      values[3].(time.Time),
		}
		return nil

	case upsertSummary:
		m.summaries[values[0].(int64)] = Row{
			"conversation_id": values[0].(int64),
			"sender_id":       values[1].(int64),
			"receiver_id":     values[2].(int64),
			"last_at":         values[3].(time.Time),
			"last_message":    values[4].(string),
		}
		return nil

	case insertByUser:
		k := byUserKey{values[0].(int64), values[1].(time.Time), values[2].(int64)}
		m.byUser[k] = Row{
			"conversation_id": values[2].(int64),
			"sender_id":       values[3].(int64),
			"receiver_id":     values[4].(int64),
			"last_at":         values[1].(time.Time),
			"last_message":    values[5].(string),
		}
		return nil

	case deleteByUser:
		delete(m.byUser, byUserKey{values[0].(int64), values[1].(time.Time), values[2].(int64)})
		return nil

	case insertMessage:
		convID := values[0].(int64)
		m.messages[convID] = append(m.messages[convID], Row{
			"message_id":  values[2].(int64),
			"sender_id":   values[3].(int64),
			"receiver_id": values[4].(int64),
			"content":     values[5].(string),
			"at":          values[1].(time.Time),
		})
		return nil
	}
	return fmt.Errorf("memexec: unknown exec %q", stmt)
}

// ExecCAS implements Executor.
func (m *MemExec) ExecCAS(_ context.Context, stmt string, values ...any) (bool, Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return false, nil, m.failing
	}

	switch stmt {
	case bootstrapCounter:
		name := values[0].(string)
		if v, ok := m.counters[name]; ok {
			return false, Row{"value": v}, nil
		}
		m.counters[name] = 1
		return true, nil, nil

	case reserveCounter:
		candidate := values[0].(int64)
		name := values[1].(string)
		expected := values[2].(int64)
		if m.counters[name] != expected {
			return false, Row{"value": m.counters[name]}, nil
		}
		m.counters[name] = candidate
		return true, nil, nil
	}
	return false, nil, fmt.Errorf("memexec: unknown cas %q", stmt)
}

// Ping reports the injected failure, mirroring a reachability probe.
func (m *MemExec) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failing
}

// sortNewestFirst orders rows by the timestamp column descending, breaking
// ties by the id column ascending, matching the tables' clustering order.
func sortNewestFirst(rows []Row, tsCol, idCol string) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, tj := rowTime(rows[i], tsCol), rowTime(rows[j], tsCol)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return rowInt64(rows[i], idCol) < rowInt64(rows[j], idCol)
	})
}
