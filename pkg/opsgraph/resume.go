package opsgraph

import (
	"context"
	"fmt"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/statestore"
)

// Resume continues an interrupted session from its latest checkpoint.
// Unlike Run with WithSessionID, a missing checkpoint is an error here,
// not a fresh start. A session that already finished returns its stored
// final result without executing anything.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*FinalResult, error) {
	cp, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	st, err := stateFromCheckpoint(cp)
	if err != nil {
		return nil, err
	}
	if st.FinalResult != nil {
		return st.FinalResult, nil
	}
	return e.run(ctx, st, true, cp.Sequence, nil)
}

// Sessions lists checkpointed sessions, newest first.
func (e *Engine) Sessions(ctx context.Context, f statestore.Filter) ([]statestore.Info, error) {
	return e.store.List(ctx, f)
}

// Forget deletes a session's checkpoint. Returns true if one existed.
func (e *Engine) Forget(ctx context.Context, sessionID string) (bool, error) {
	n, err := e.store.Delete(ctx, sessionID)
	return n > 0, err
}
