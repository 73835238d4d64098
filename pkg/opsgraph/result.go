package opsgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// resultNode synthesizes everything collected so far into the final
// answer. Synthesis failure is fatal: a run that cannot produce its
// answer has nothing useful to fall back on.
func (e *Engine) resultNode(ctx context.Context, st State) (State, NodeName, error) {
	used, failed := st.collectedSources()

	req := capability.SummarizeRequest{
		RawInput:           st.RawInput,
		EnhancedInput:      st.EnhancedInput,
		Collected:          collectedPayloads(st),
		Documents:          ragDocuments(st),
		MemoryInstructions: st.MemoryInstructions,
		FailedSources:      failed,
	}
	if st.Classification != nil {
		req.Class = st.Classification.Class
	}

	if e.caps.Summarizer == nil {
		return st, NextRouter, newWorkflowError(KindSynthesis, NodeResult,
			fmt.Errorf("no summarizer configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.callTimeout)
	defer cancel()

	start := time.Now()
	content, err := e.caps.Summarizer.Summarize(callCtx, req)
	e.cfg.metrics.RecordCapabilityCall(ctx, "summarize", time.Since(start), err)
	st = st.bump("capability_calls", 1)
	if err != nil {
		return st, NextRouter, newWorkflowError(KindSynthesis, NodeResult, err)
	}

	st.FinalResult = &FinalResult{
		Type:            ResultAnswer,
		Content:         content,
		Class:           req.Class,
		DataSourcesUsed: used,
		FailedSources:   failed,
		ExecutionTimeMS: st.elapsedMS(),
		SessionID:       st.SessionID,
	}
	st.Phase = PhaseCompleted
	return st, NextRouter, nil
}

// errorHandlerNode is the terminal node for fatal failures. It never
// calls external capabilities, so it cannot itself fail; whatever
// partial results exist are summarized mechanically into the error
// response.
func (e *Engine) errorHandlerNode(ctx context.Context, st State) (State, NodeName, error) {
	used, failed := st.collectedSources()

	kind := KindSynthesis
	detail := "unknown failure"
	if st.LastError != nil {
		kind = st.LastError.Kind
		detail = st.LastError.Detail
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The request could not be completed: %s.", detail)
	if len(used) > 0 {
		fmt.Fprintf(&b, " Data was collected from %d source(s) before the failure.", len(used))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, " Collection had already failed for: %s.", joinSources(failed))
	}

	var class capability.WorkflowClass
	if st.Classification != nil {
		class = st.Classification.Class
	}

	st.FinalResult = &FinalResult{
		Type:               ResultError,
		Content:            b.String(),
		Class:              class,
		DataSourcesUsed:    used,
		FailedSources:      failed,
		ExecutionTimeMS:    st.elapsedMS(),
		SessionID:          st.SessionID,
		ErrorKind:          kind,
		RecoverySuggestion: recoverySuggestion(kind),
	}
	st.Phase = PhaseError
	return st, NextRouter, nil
}

// collectedPayloads unmarshals the successful source-node payloads back
// into typed form for the synthesis request.
func collectedPayloads(st State) map[capability.Source]capability.Payload {
	collected := make(map[capability.Source]capability.Payload)
	for node, res := range st.NodeResults {
		src, ok := sourceForNode(node)
		if !ok || res.Status != StatusSuccess {
			continue
		}
		var payload capability.Payload
		if err := json.Unmarshal(res.Payload, &payload); err != nil {
			continue
		}
		collected[src] = payload
	}
	if len(collected) == 0 {
		return nil
	}
	return collected
}

func joinSources(sources []capability.Source) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// recoverySuggestion maps an error kind to operator guidance.
func recoverySuggestion(kind Kind) string {
	switch kind {
	case KindSynthesis:
		return "Retry the request; if synthesis keeps failing, check the summarizer service."
	case KindTimeout:
		return "Retry with a narrower question, or raise the session deadline."
	case KindPersistence:
		return "Check the state store; the session cannot be resumed until it is healthy."
	default:
		return "Retry the request."
	}
}
