package store

import "errors"

var (
	// ErrConversationNotFound indicates the referenced conversation does not
	// exist. Callers check existence before dependent reads.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrUnavailable indicates a transient storage-tier failure. The store
	// never retries internally; callers may retry with backoff.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrAllocationConflict indicates the ID allocator lost its conditional
	// update too many times in a row under concurrent load. Retryable.
	ErrAllocationConflict = errors.New("id allocation conflict")
)
