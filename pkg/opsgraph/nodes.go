package opsgraph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// refusalContent is the static response for out-of-scope input.
const refusalContent = "This assistant answers operational questions about monitored services " +
	"(status lookups, analysis, incident investigation). The request doesn't look like one of those, " +
	"so no data was collected. Rephrase it as a question about your infrastructure to proceed."

// startNode initializes a fresh session: assigns a session ID if absent
// and stamps the start time.
func (e *Engine) startNode(_ context.Context, st State) (State, NodeName, error) {
	if st.SessionID == "" {
		st.SessionID = uuid.New().String()
	}
	if st.Meta.StartedAt.IsZero() {
		st.Meta.StartedAt = time.Now().UTC()
	}
	st.Phase = PhaseInit
	return st, NextRouter, nil
}

// guardrailNode validates request relevance and asks the memory enhancer
// for operator instructions. Raw and enhanced input are immutable after
// this node runs.
func (e *Engine) guardrailNode(ctx context.Context, st State) (State, NodeName, error) {
	input := strings.TrimSpace(st.RawInput)

	if input == "" || len(input) > e.cfg.maxInputLen {
		detail := "empty request"
		if input != "" {
			detail = fmt.Sprintf("request exceeds %d bytes", e.cfg.maxInputLen)
		}
		st = st.withFailure(NodeGuardrail, detail)
		st.Phase = PhaseValidation
		st.FinalResult = &FinalResult{
			Type:            ResultRefusal,
			Content:         refusalContent,
			SessionID:       st.SessionID,
			DataSourcesUsed: []capability.Source{},
			ExecutionTimeMS: st.elapsedMS(),
			ErrorKind:       KindInput,
		}
		return st, NextRouter, nil
	}

	// Memory enhancement is best-effort: a short bounded search that
	// degrades to the raw input on any failure.
	instructions := e.enhanceFromMemory(ctx, input)
	st.MemoryInstructions = instructions
	st.EnhancedInput = applyInstructions(input, instructions)

	st.Phase = PhaseValidation
	var err error
	st, err = st.withSuccess(NodeGuardrail, map[string]any{
		"instructions_applied": len(instructions),
	})
	if err != nil {
		st = st.withFailure(NodeGuardrail, err.Error())
	}
	return st, NextRouter, nil
}

// applyInstructions injects memory guidance into the operator input.
func applyInstructions(input string, instructions []string) string {
	if len(instructions) == 0 {
		return input
	}
	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n\nOperator guidance:\n")
	for _, ins := range instructions {
		b.WriteString("- ")
		b.WriteString(ins)
		b.WriteString("\n")
	}
	return b.String()
}

// categorizeNode calls the classification capability and derives the
// pending-source queue. The run never dead-ends here: on failure or an
// unknown class it falls back to ACTION with metrics required.
func (e *Engine) categorizeNode(ctx context.Context, st State) (State, NodeName, error) {
	cls, err := e.classify(ctx, st.inputText())
	if err != nil && ctx.Err() != nil {
		// Caller cancellation, not a classifier failure; the fallback
		// policy must not be checkpointed for it.
		return st, NextRouter, err
	}
	st = st.bump("capability_calls", 1)

	if err != nil {
		cls = fallbackClassification(err)
		st = st.withFailure(NodeCategorize, err.Error())
	} else {
		var serr error
		st, serr = st.withSuccess(NodeCategorize, cls)
		if serr != nil {
			st = st.withFailure(NodeCategorize, serr.Error())
		}
	}

	st.Classification = &cls
	st.Pending = pendingFromRequired(cls.Required)
	st.Phase = PhaseCategorization
	return st, NextRouter, nil
}

// classify invokes the classifier with the per-call timeout and validates
// the returned class against the closed enum.
func (e *Engine) classify(ctx context.Context, text string) (capability.Classification, error) {
	if e.caps.Classifier == nil {
		return capability.Classification{}, fmt.Errorf("no classifier configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.callTimeout)
	defer cancel()

	start := time.Now()
	cls, err := e.caps.Classifier.Classify(callCtx, text)
	e.cfg.metrics.RecordCapabilityCall(ctx, "classifier", time.Since(start), err)

	if err != nil {
		return capability.Classification{}, err
	}
	if !cls.Class.Valid() {
		return capability.Classification{}, fmt.Errorf("unknown workflow class %q", cls.Class)
	}
	return cls, nil
}

// fallbackClassification is the documented fail-closed default: ACTION
// with metrics required.
func fallbackClassification(cause error) capability.Classification {
	return capability.Classification{
		Class:      capability.ClassAction,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("classification unavailable (%v); defaulting to broad analysis", cause),
		Required:   capability.RequiredSources{Metrics: true},
		Fallback:   true,
	}
}

// pendingFromRequired builds the source queue in fixed priority order
// (metrics, logs, alerts) so collection order is reproducible for a given
// classification.
func pendingFromRequired(req capability.RequiredSources) []capability.Source {
	var pending []capability.Source
	if req.Metrics {
		pending = append(pending, capability.SourcePrometheus)
	}
	if req.Logs {
		pending = append(pending, capability.SourceLoki)
	}
	if req.Alerts {
		pending = append(pending, capability.SourceAlertmanager)
	}
	return pending
}

// queryNode honors the latency budget of quick lookups: at most one
// source, and a direct answer from classification reasoning when no
// source is required at all.
func (e *Engine) queryNode(_ context.Context, st State) (State, NodeName, error) {
	if len(st.Pending) > 1 {
		st.Pending = st.Pending[:1:1]
	}

	if len(st.Pending) == 0 {
		content := "No monitoring data was required for this request."
		if st.Classification != nil && st.Classification.Reasoning != "" {
			content = st.Classification.Reasoning
		}
		st.Phase = PhaseCompleted
		st.FinalResult = &FinalResult{
			Type:            ResultAnswer,
			Content:         content,
			Class:           capability.ClassQuery,
			DataSourcesUsed: []capability.Source{},
			ExecutionTimeMS: st.elapsedMS(),
			SessionID:       st.SessionID,
		}
		return st, NextRouter, nil
	}

	st.Phase = PhaseCollection
	return st, NextRouter, nil
}

// actionNode keeps the full source list built by categorize, in order.
func (e *Engine) actionNode(_ context.Context, st State) (State, NodeName, error) {
	st.Phase = PhaseCollection
	return st, NextRouter, nil
}

// incidentNode investigates broadly: all three sources regardless of the
// classifier's verdict, plus a one-shot documentation search afterward.
func (e *Engine) incidentNode(_ context.Context, st State) (State, NodeName, error) {
	st.Pending = []capability.Source{
		capability.SourcePrometheus,
		capability.SourceLoki,
		capability.SourceAlertmanager,
	}
	st.RequiresRAG = true
	st.Phase = PhaseCollection
	return st, NextRouter, nil
}

// elapsedMS returns milliseconds since the session started.
func (st State) elapsedMS() int64 {
	if st.Meta.StartedAt.IsZero() {
		return 0
	}
	return time.Since(st.Meta.StartedAt).Milliseconds()
}
