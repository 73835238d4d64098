package opsgraph

import (
	"context"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/observability"
)

// enhanceFromMemory searches long-term memory for instructions relevant
// to the input. It never blocks longer than the configured memory timeout
// and returns nil on any failure; the primary execution path must not be
// blocked or corrupted by the memory side channel.
func (e *Engine) enhanceFromMemory(ctx context.Context, input string) []string {
	if e.caps.Memory == nil {
		return nil
	}

	memCtx, cancel := context.WithTimeout(ctx, e.cfg.memoryTimeout)
	defer cancel()

	start := time.Now()
	entries, err := e.caps.Memory.Search(memCtx, capability.MemoryQuery{
		Query:         input,
		Types:         []capability.MemoryType{capability.MemoryInstruction, capability.MemoryPreference},
		Limit:         e.cfg.memoryLimit,
		MinConfidence: e.cfg.memoryMinConf,
	})
	e.cfg.metrics.RecordCapabilityCall(ctx, "memory_search", time.Since(start), err)

	if err != nil {
		observability.LogMemoryDegraded(e.cfg.logger, "search", err)
		return nil
	}

	instructions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Content != "" {
			instructions = append(instructions, entry.Content)
		}
	}
	if len(instructions) == 0 {
		return nil
	}
	return instructions
}

// dispatchExtract asynchronously mines a completed interaction for
// memory-worthy facts. Errors are logged and swallowed; the caller's
// response is never delayed or failed by extraction.
func (e *Engine) dispatchExtract(st State) {
	if e.caps.Extractor == nil || st.FinalResult == nil {
		return
	}
	if !memoryWorthy(st) {
		return
	}

	req := capability.ExtractRequest{
		Content:   st.FinalResult.Content,
		UserInput: st.RawInput,
		Class:     st.FinalResult.Class,
		SessionID: st.SessionID,
	}

	e.extractWG.Add(1)
	go func() {
		defer e.extractWG.Done()

		// Detached from the run context: extraction outlives the response.
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.callTimeout)
		defer cancel()

		start := time.Now()
		res, err := e.caps.Extractor.Extract(ctx, req)
		e.cfg.metrics.RecordCapabilityCall(ctx, "memory_extract", time.Since(start), err)
		if err != nil {
			observability.LogMemoryDegraded(e.cfg.logger, "extract", err)
			return
		}
		if e.cfg.logger != nil && res.StoredCount > 0 {
			e.cfg.logger.Debug("memory extraction stored entries",
				"session_id", st.SessionID,
				"stored", res.StoredCount,
			)
		}
	}()
}

// memoryWorthy is the cheap pre-extraction heuristic: only pay for an
// extraction call when the interaction likely produced durable knowledge.
// Quick lookups with no collected data are not worth remembering.
func memoryWorthy(st State) bool {
	if st.FinalResult == nil || st.FinalResult.Type != ResultAnswer {
		return false
	}
	if st.FinalResult.Class == capability.ClassIncident {
		return true
	}
	if st.FinalResult.Class == capability.ClassQuery && len(st.FinalResult.DataSourcesUsed) == 0 {
		return false
	}
	return len(st.FinalResult.DataSourcesUsed) > 0
}
