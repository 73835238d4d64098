package opsgraph

import (
	"context"
)

// StepEvent is one progress update from a streaming run. An event is
// emitted after every checkpointed transition; the last event before the
// channel closes carries either the final result or the terminal error.
type StepEvent struct {
	SessionID       string                  `json:"session_id"`
	Node            NodeName                `json:"node"`
	Phase           Phase                   `json:"phase"`
	ExecutionPath   []NodeName              `json:"execution_path"`
	ProgressPercent int                     `json:"progress_percent"`
	PartialResults  map[NodeName]StepResult `json:"partial_results,omitempty"`

	// FinalResult is set only on the last event of a completed run.
	FinalResult *FinalResult `json:"final_result,omitempty"`

	// Err is set only on the last event when the run produced no result
	// (cancellation, runaway graph, broken store). Mutually exclusive
	// with FinalResult.
	Err error `json:"-"`
}

// Stream executes a workflow like Run but emits a StepEvent after every
// node transition. The channel closes when the run ends; cancel ctx to
// stop both the run and the stream. Events are delivered in order and
// the producer blocks on an unread channel, so consume promptly.
func (e *Engine) Stream(ctx context.Context, input string, opts ...RunOption) (<-chan StepEvent, error) {
	st, resumed, seq, err := e.prepare(ctx, input, opts)
	if err != nil {
		return nil, err
	}

	events := make(chan StepEvent, 1)

	if st.FinalResult != nil {
		events <- terminalEvent(st, st.FinalResult, nil)
		close(events)
		return events, nil
	}

	go func() {
		defer close(events)

		emit := func(snapshot State) {
			select {
			case events <- eventFromState(snapshot):
			case <-ctx.Done():
			}
		}

		result, runErr := e.run(ctx, st, resumed, seq, emit)
		select {
		case events <- terminalEvent(st, result, runErr):
		case <-ctx.Done():
			// The consumer is gone; the terminal event has nowhere to go.
		}
	}()

	return events, nil
}

func eventFromState(st State) StepEvent {
	return StepEvent{
		SessionID:       st.SessionID,
		Node:            st.CurrentNode,
		Phase:           st.Phase,
		ExecutionPath:   st.ExecutionPath,
		ProgressPercent: progressPercent(st),
		PartialResults:  st.NodeResults,
		FinalResult:     st.FinalResult,
	}
}

func terminalEvent(st State, result *FinalResult, err error) StepEvent {
	ev := eventFromState(st)
	ev.FinalResult = result
	ev.Err = err
	if err == nil {
		ev.ProgressPercent = 100
	}
	return ev
}

// progressPercent estimates completion from the phase, scaling through
// the collection phase by how much of the source queue has drained.
func progressPercent(st State) int {
	switch st.Phase {
	case PhaseInit:
		return 5
	case PhaseValidation:
		return 15
	case PhaseCategorization:
		return 30
	case PhaseCollection:
		done := 0
		for node := range st.NodeResults {
			if _, ok := sourceForNode(node); ok {
				done++
			}
		}
		total := done + len(st.Pending)
		if total == 0 {
			return 75
		}
		return 40 + 35*done/total
	case PhaseInvestigation, PhaseAnalysis:
		return 85
	case PhaseCompleted, PhaseError:
		return 100
	}
	return 0
}
