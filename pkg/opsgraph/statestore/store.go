// Package statestore provides durable session-state persistence for
// resumable workflow execution.
//
// A store holds the latest checkpoint per session with last-write-wins
// semantics. There is no concurrent-checkpoint merge logic: two engines
// must never run the same session concurrently (callers enforce this,
// e.g. via sticky session routing).
package statestore

import (
	"context"
	"errors"
	"time"
)

// Store persists the latest checkpoint per session.
// Implementations must be safe for concurrent use across sessions.
type Store interface {
	// Save stores the checkpoint for a session, overwriting any previous
	// checkpoint (last-write-wins).
	Save(ctx context.Context, sessionID string, cp *Checkpoint) error

	// Load retrieves the latest checkpoint for a session.
	// Returns ErrNotFound if the session has no checkpoint.
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)

	// Exists reports whether a checkpoint exists for the session.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// Delete removes a session's checkpoint.
	// Returns the number of checkpoints removed (0 or 1).
	Delete(ctx context.Context, sessionID string) (int64, error)

	// List returns session summaries matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Info, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Filter narrows a List call. Zero value matches everything.
type Filter struct {
	// Prefix matches session IDs starting with the given string.
	Prefix string

	// Limit caps the number of results. 0 means no limit.
	Limit int
}

// Info summarizes a stored session without loading full state.
type Info struct {
	SessionID string
	Sequence  int
	WrittenAt time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no checkpoint exists for the session.
	ErrNotFound = errors.New("session checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("state store closed")
)
