package opsgraph

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// collectNode gathers data from one source. Failures are non-fatal: a
// missing data source must not abort the investigation, so errors are
// recorded and the queue advances either way.
func (e *Engine) collectNode(ctx context.Context, src capability.Source, st State) (State, NodeName, error) {
	payload, err := e.collectOne(ctx, src, st)
	if err != nil && ctx.Err() != nil {
		// Caller cancellation, not a source failure. Leave the state
		// untouched so the source is still pending on resume.
		return st, NextRouter, err
	}
	st = st.bump("capability_calls", 1)

	node := nodeForSource(src)
	if err != nil {
		st = st.withFailure(node, err.Error())
	} else {
		var serr error
		st, serr = st.withSuccess(node, payload)
		if serr != nil {
			st = st.withFailure(node, serr.Error())
		}
	}

	st = st.popPending()
	return st, NextRouter, nil
}

// collectOne runs a single source collection with the per-call timeout
// and applies the data-reduction policy to oversized payloads.
func (e *Engine) collectOne(ctx context.Context, src capability.Source, st State) (capability.Payload, error) {
	ds, ok := e.sources.Get(src)
	if !ok {
		return capability.Payload{}, fmt.Errorf("source %s not configured", src)
	}

	plan := e.queryPlan(st)
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.callTimeout)
	defer cancel()

	start := time.Now()
	payload, err := ds.Collect(callCtx, plan)
	e.cfg.metrics.RecordCapabilityCall(ctx, string(src), time.Since(start), err)
	if err != nil {
		return capability.Payload{}, err
	}

	payload.Source = src
	return reducePayload(payload, e.cfg.payloadBudget), nil
}

// queryPlan derives the source-agnostic parts of a collection request
// from the enhanced input and classification.
func (e *Engine) queryPlan(st State) capability.QueryPlan {
	plan := capability.QueryPlan{
		Query:  st.inputText(),
		Window: e.cfg.window,
	}
	if st.Classification != nil {
		plan.Class = st.Classification.Class
	}
	return plan
}

// collectBatch fans out collection for every pending source with bounded
// concurrency and a join barrier. Individual failures do not abort the
// batch; the barrier waits for all outcomes before the phase can advance,
// so a partially-collected batch is never observable in a checkpoint.
//
// Returns the state after all sources completed and the sources in the
// order they were queued (for execution-path bookkeeping).
func (e *Engine) collectBatch(ctx context.Context, st State) (State, []capability.Source) {
	queued := make([]capability.Source, len(st.Pending))
	copy(queued, st.Pending)

	type outcome struct {
		src     capability.Source
		payload capability.Payload
		err     error
	}
	outcomes := make([]outcome, len(queued))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.collectionN)
	for i, src := range queued {
		i, src := i, src
		g.Go(func() error {
			payload, err := e.collectOne(gctx, src, st)
			outcomes[i] = outcome{src: src, payload: payload, err: err}
			// Collection errors are recorded, never propagated: the
			// barrier must see every outcome.
			return nil
		})
	}
	// Join barrier. Goroutines never return errors, so this cannot fail.
	_ = g.Wait()

	for _, out := range outcomes {
		node := nodeForSource(out.src)
		if out.err != nil {
			st = st.withFailure(node, out.err.Error())
			continue
		}
		updated, serr := st.withSuccess(node, out.payload)
		if serr != nil {
			st = st.withFailure(node, serr.Error())
			continue
		}
		st = updated
	}

	st = st.bump("capability_calls", int64(len(queued)))
	st.Pending = nil
	return st, queued
}
