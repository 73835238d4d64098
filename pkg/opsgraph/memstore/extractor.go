package memstore

import (
	"context"
	"strings"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// Extractor mines completed interactions for durable facts and stores
// them in the backing store. It is rule-based: incident summaries become
// incident memories, imperative phrasing in the operator input becomes
// an instruction memory. Deployments with an LLM extraction capability
// can implement capability.MemoryExtractor directly instead.
type Extractor struct {
	store *Store
}

// NewExtractor creates an extractor over the given store.
func NewExtractor(store *Store) *Extractor {
	return &Extractor{store: store}
}

// Extract implements capability.MemoryExtractor.
func (x *Extractor) Extract(ctx context.Context, req capability.ExtractRequest) (capability.ExtractResult, error) {
	var result capability.ExtractResult

	for _, entry := range mine(req) {
		id, err := x.store.Put(ctx, entry)
		if err != nil {
			return result, err
		}
		result.StoredCount++
		result.IDs = append(result.IDs, id)
	}

	// Entries mined from the same interaction are related: an instruction
	// accompanying an incident derives from that incident.
	if len(result.IDs) == 2 {
		if err := x.store.Relate(ctx, Relation{
			FromID: result.IDs[1],
			ToID:   result.IDs[0],
			Type:   "derived_from",
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// mine derives candidate memory entries from a completed interaction.
func mine(req capability.ExtractRequest) []capability.MemoryEntry {
	var entries []capability.MemoryEntry
	meta := map[string]string{"session_id": req.SessionID}

	if req.Class == capability.ClassIncident && req.Content != "" {
		entries = append(entries, capability.MemoryEntry{
			Content:    "Incident investigated: " + req.UserInput + " | Findings: " + firstSentences(req.Content, 3),
			Type:       capability.MemoryIncident,
			Confidence: 0.8,
			Metadata:   meta,
		})
	}

	if instruction, ok := imperative(req.UserInput); ok {
		entries = append(entries, capability.MemoryEntry{
			Content:    instruction,
			Type:       capability.MemoryInstruction,
			Confidence: 0.6,
			Metadata:   meta,
		})
	}

	return entries
}

// imperative detects standing-instruction phrasing in the operator input
// ("always check X first", "ignore Y", "prefer Z").
func imperative(input string) (string, bool) {
	lower := strings.ToLower(input)
	for _, prefix := range []string{"always ", "never ", "ignore ", "prefer ", "remember "} {
		if idx := strings.Index(lower, prefix); idx >= 0 {
			clause := strings.TrimSpace(input[idx:])
			if end := strings.IndexAny(clause, ".\n"); end > 0 {
				clause = clause[:end]
			}
			if len(clause) > 10 {
				return clause, true
			}
		}
	}
	return "", false
}

// firstSentences truncates text to at most n sentences.
func firstSentences(text string, n int) string {
	count := 0
	for i, r := range text {
		if r == '.' || r == '\n' {
			count++
			if count == n {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return strings.TrimSpace(text)
}
