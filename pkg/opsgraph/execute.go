package opsgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/observability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/statestore"
)

// RunOption configures a single Run or Stream call.
type RunOption func(*runOptions)

type runOptions struct {
	sessionID string
}

// WithSessionID pins the session identifier instead of generating one.
// If a checkpoint already exists for the ID, the run resumes from it;
// a completed session returns its stored final result without
// re-executing anything.
func WithSessionID(id string) RunOption {
	return func(o *runOptions) {
		o.sessionID = id
	}
}

// Run executes a workflow to completion and returns its final result.
//
// Fatal workflow failures (synthesis, timeout, persistence) still return
// a non-nil *FinalResult of type error_response with a nil error; the
// error return is reserved for conditions where no result could be
// produced at all: caller cancellation (*CancellationError), a session
// already running on this engine, a runaway graph (*MaxStepsError), or a
// broken state store on resume.
func (e *Engine) Run(ctx context.Context, input string, opts ...RunOption) (*FinalResult, error) {
	st, resumed, seq, err := e.prepare(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	if st.FinalResult != nil {
		return st.FinalResult, nil
	}
	return e.run(ctx, st, resumed, seq, nil)
}

// prepare builds the initial state for a run: a fresh state, or a
// rehydrated one when the caller pinned a session ID that has a
// checkpoint.
func (e *Engine) prepare(ctx context.Context, input string, opts []RunOption) (State, bool, int, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if ro.sessionID != "" {
		cp, err := e.store.Load(ctx, ro.sessionID)
		switch {
		case err == nil:
			st, lerr := stateFromCheckpoint(cp)
			if lerr != nil {
				return State{}, false, 0, lerr
			}
			return st, true, cp.Sequence, nil
		case errors.Is(err, statestore.ErrNotFound):
			// Fall through to a fresh session under the pinned ID.
		default:
			return State{}, false, 0, fmt.Errorf("load session %s: %w", ro.sessionID, err)
		}
	}

	st := NewState(input)
	st.SessionID = ro.sessionID
	if st.SessionID == "" {
		st.SessionID = uuid.New().String()
	}
	return st, false, 0, nil
}

func stateFromCheckpoint(cp *statestore.Checkpoint) (State, error) {
	var st State
	if err := json.Unmarshal(cp.State, &st); err != nil {
		return State{}, fmt.Errorf("decode checkpoint for session %s: %w", cp.SessionID, err)
	}
	return st, nil
}

// run wraps the node loop with session-level bookkeeping: the
// one-run-per-session guard, session span and logs, run metrics, and the
// post-completion memory extraction dispatch.
func (e *Engine) run(ctx context.Context, st State, resumed bool, seq int, emit func(State)) (*FinalResult, error) {
	if err := e.acquire(st.SessionID); err != nil {
		return nil, err
	}
	defer e.release(st.SessionID)

	start := time.Now()
	observability.LogSessionStart(e.cfg.logger, st.SessionID, resumed)

	runCtx := ctx
	var endSpan func(error)
	if e.cfg.tracingEnabled {
		sctx, span := e.cfg.spans.StartSessionSpan(ctx, st.SessionID)
		runCtx = sctx
		endSpan = func(err error) { e.cfg.spans.EndSpanWithError(span, err) }
	}

	st, err := e.loop(runCtx, st, seq, emit)
	durationMs := float64(time.Since(start)) / float64(time.Millisecond)
	if endSpan != nil {
		endSpan(err)
	}

	class := ""
	if st.Classification != nil {
		class = string(st.Classification.Class)
	}

	if err != nil {
		observability.LogSessionError(e.cfg.logger, st.SessionID, err, durationMs, string(st.CurrentNode))
		e.cfg.metrics.RecordSessionRun(ctx, class, false, time.Since(start))
		return nil, err
	}

	success := st.FinalResult != nil && st.FinalResult.Type == ResultAnswer
	e.cfg.metrics.RecordSessionRun(ctx, class, success, time.Since(start))
	observability.LogSessionComplete(e.cfg.logger, st.SessionID, durationMs, len(st.ExecutionPath))

	e.dispatchExtract(st)
	return st.FinalResult, nil
}

// loop drives the router/execute/checkpoint cycle until the router
// reports a terminal state. Every transition persists a checkpoint
// before the next node runs, so a crash or cancellation loses at most
// the in-flight node.
func (e *Engine) loop(ctx context.Context, st State, seq int, emit func(State)) (State, error) {
	deadline := time.Now().Add(e.cfg.deadline)
	steps := len(st.ExecutionPath)

	var pinned NodeName
	for {
		next := Route(st)
		if pinned != NextRouter {
			next, pinned = pinned, NextRouter
		}
		if next == End {
			return st, nil
		}

		if err := ctx.Err(); err != nil {
			// The previous transition's checkpoint is already durable;
			// the session resumes from exactly this node.
			return st, &CancellationError{Node: next, SessionID: st.SessionID, Cause: err}
		}

		if time.Now().After(deadline) && next != NodeErrorHandler {
			st.LastError = &ErrorInfo{
				Kind:   KindTimeout,
				Node:   next,
				Detail: fmt.Sprintf("session deadline %s exceeded", e.cfg.deadline),
				Fatal:  true,
			}
			continue
		}

		steps++
		if steps > e.cfg.maxSteps {
			return st, &MaxStepsError{Max: e.cfg.maxSteps, LastNode: next}
		}

		// Bounded fan-out: when concurrency is enabled and several
		// sources are queued, collect them as one batch with a join
		// barrier and a single checkpoint.
		if e.cfg.collectionN > 1 && len(st.Pending) > 1 {
			if _, isSource := sourceForNode(next); isSource {
				batched, queued := e.collectBatch(ctx, st)
				if ctx.Err() != nil {
					// Discard the partial batch; all sources stay pending.
					return st, &CancellationError{Node: next, SessionID: st.SessionID, Cause: ctx.Err()}
				}
				for _, src := range queued {
					batched = batched.appendPath(nodeForSource(src))
				}
				steps += len(queued) - 1
				st = batched
				seq++
				e.saveCheckpoint(ctx, &st, seq)
				if emit != nil {
					emit(st)
				}
				continue
			}
		}

		updated, forced, err := e.executeNode(ctx, next, st)
		if err != nil {
			if ctx.Err() != nil {
				// Caller cancellation surfacing through the node. The
				// pre-node checkpoint stands; the node re-runs on resume.
				return st, &CancellationError{Node: next, SessionID: st.SessionID, Cause: ctx.Err()}
			}
			if next == NodeErrorHandler {
				// The handler is the last resort; if it fails there is
				// nothing left to produce a result with.
				return st, err
			}
			kind, ok := KindOf(err)
			if !ok {
				kind = KindInternal
			}
			st = updated.appendPath(next)
			st.LastError = &ErrorInfo{Kind: kind, Node: next, Detail: err.Error(), Fatal: true}
		} else {
			st = updated.appendPath(next)
		}

		seq++
		e.saveCheckpoint(ctx, &st, seq)
		if emit != nil {
			emit(st)
		}

		// A node may pin its own successor; fatal errors always go back
		// through the router so rule 2 can divert to the error handler.
		if err == nil {
			pinned = forced
		}
	}
}

// executeNode runs one node with panic recovery, per-node span, logging,
// and metrics. A panicking node surfaces as a *PanicError with the input
// state unchanged.
func (e *Engine) executeNode(ctx context.Context, name NodeName, st State) (out State, next NodeName, err error) {
	fn, ok := e.nodes.Get(name)
	if !ok {
		return st, NextRouter, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}

	logger := observability.EnrichLogger(e.cfg.logger, st.SessionID, string(name))

	nodeCtx := ctx
	var endSpan func(error)
	if e.cfg.tracingEnabled {
		sctx, span := e.cfg.spans.StartNodeSpan(ctx, string(name))
		nodeCtx = sctx
		endSpan = func(err error) { e.cfg.spans.EndSpanWithError(span, err) }
	}

	observability.LogNodeStart(logger, string(name))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = st
			next = NextRouter
			err = &PanicError{Node: name, Value: r, Stack: string(debug.Stack())}
		}
		elapsed := time.Since(start)
		e.cfg.metrics.RecordNodeExecution(ctx, string(name), elapsed, err)
		durationMs := float64(elapsed) / float64(time.Millisecond)
		if err != nil {
			kind, _ := KindOf(err)
			observability.LogNodeError(logger, string(name), err, kind.Fatal())
		} else {
			observability.LogNodeComplete(logger, string(name), durationMs)
		}
		if endSpan != nil {
			endSpan(err)
		}
	}()

	out, next, err = fn(nodeCtx, st)
	return out, next, err
}

// saveCheckpoint persists the state snapshot for the given sequence.
// Failure degrades rather than aborts: the first failure is recorded as
// a fatal persistence error so the router diverts to the error handler,
// and later failures (including the handler's own snapshot) are only
// logged so the caller still receives a result.
func (e *Engine) saveCheckpoint(ctx context.Context, st *State, seq int) {
	raw, err := json.Marshal(st)
	if err == nil {
		cp := statestore.New(st.SessionID, seq, raw)
		err = e.store.Save(ctx, st.SessionID, cp)
	}

	logger := observability.EnrichLogger(e.cfg.logger, st.SessionID, string(st.CurrentNode))
	if err != nil {
		if logger != nil {
			logger.Error("checkpoint save failed", "sequence", seq, "error", err)
		}
		if st.LastError == nil {
			st.LastError = &ErrorInfo{
				Kind:   KindPersistence,
				Node:   st.CurrentNode,
				Detail: err.Error(),
				Fatal:  true,
			}
		}
		return
	}

	e.cfg.metrics.RecordCheckpoint(ctx, string(st.CurrentNode), int64(len(raw)))
	observability.LogCheckpoint(logger, string(st.CurrentNode), seq, len(raw))
}
