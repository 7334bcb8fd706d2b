// Package store implements the denormalized data-access layer for direct
// message conversations: ID allocation, conversation identity and summary
// upkeep, and the append-only message log. All components speak to the
// storage tier through Executor, which mirrors the driver's
// execute(query, params) contract and keeps the package testable without a
// running cluster.
package store

import (
	"context"
	"time"
)

// Row is a single result row keyed by column name, as returned by the
// wide-column driver.
type Row map[string]any

// Executor is the minimal contract the store needs from the storage tier.
// Implementations must be safe for concurrent use. Transport or availability
// failures are reported wrapped in ErrUnavailable.
type Executor interface {
	// Select runs a read statement and returns all matching rows.
	Select(ctx context.Context, stmt string, values ...any) ([]Row, error)

	// Exec runs a write statement with no result.
	Exec(ctx context.Context, stmt string, values ...any) error

	// ExecCAS runs a conditional (lightweight transaction) statement and
	// reports whether it was applied. When not applied, prev holds the row
	// that caused the condition to fail.
	ExecCAS(ctx context.Context, stmt string, values ...any) (applied bool, prev Row, err error)
}

func rowInt64(r Row, col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func rowString(r Row, col string) string {
	s, _ := r[col].(string)
	return s
}

func rowTime(r Row, col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}
