package store

import (
	"context"
	"fmt"
)

const (
	selectCounter    = `SELECT value FROM counters WHERE name = ?`
	bootstrapCounter = `INSERT INTO counters (name, value) VALUES (?, 1) IF NOT EXISTS`
	reserveCounter   = `UPDATE counters SET value = ? WHERE name = ? IF value = ?`
)

// maxAllocAttempts bounds the CAS retry loop. Exhaustion means sustained
// contention on one counter row and is surfaced as a retryable error.
const maxAllocAttempts = 8

// Allocator hands out unique, strictly increasing integer IDs per entity
// kind from a single shared counter row per kind.
//
// Reservation is a compare-and-swap: the observed value plus one is written
// back conditioned on the observed value still being current. A lost race
// re-reads and tries again, so two concurrent callers can never both reserve
// the same ID; the read and the increment are never split into
// independently-failing unconditional statements.
type Allocator struct {
	exec Executor
}

// NewAllocator creates an Allocator over the given storage executor.
func NewAllocator(exec Executor) *Allocator {
	return &Allocator{exec: exec}
}

// NextID reserves and returns the next ID for kind. The first ID of a kind
// is 1 (missing counter row bootstraps the sequence). On storage failure no
// ID is returned and the counter is untouched or already past the candidate,
// so a retried call can only skip values, never repeat them.
func (a *Allocator) NextID(ctx context.Context, kind CounterKind) (int64, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		rows, err := a.exec.Select(ctx, selectCounter, string(kind))
		if err != nil {
			return 0, fmt.Errorf("allocate %s: %w", kind, err)
		}

		if len(rows) == 0 {
			applied, _, err := a.exec.ExecCAS(ctx, bootstrapCounter, string(kind))
			if err != nil {
				return 0, fmt.Errorf("bootstrap %s: %w", kind, err)
			}
			if applied {
				return 1, nil
			}
			// Another caller bootstrapped first; re-read and race for value 2.
			continue
		}

		current := rowInt64(rows[0], "value")
		candidate := current + 1
		applied, _, err := a.exec.ExecCAS(ctx, reserveCounter, candidate, string(kind), current)
		if err != nil {
			return 0, fmt.Errorf("reserve %s %d: %w", kind, candidate, err)
		}
		if applied {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("allocate %s: %w", kind, ErrAllocationConflict)
}
