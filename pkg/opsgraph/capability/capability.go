// Package capability defines the external service boundary of the workflow
// engine: classification, summarization, monitoring data sources, long-term
// memory, and document search.
//
// Every adapter is an independently-failing external system. The engine
// treats adapters as stateless and idempotent per call; retries are the
// adapter's responsibility (see WithRetry), never the router's.
package capability

import (
	"context"
	"time"
)

// Classifier decides which workflow class a request belongs to.
// Implementations must fail closed: a recognizable Classification or an
// error, never a silently-unknown class.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Summarizer synthesizes collected data into a final answer.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
}

// DataSource collects monitoring data for one named source.
type DataSource interface {
	// Name returns the stable source identifier (e.g. "prometheus").
	Name() Source

	// Collect executes the query plan and returns the gathered payload.
	Collect(ctx context.Context, plan QueryPlan) (Payload, error)
}

// MemorySearcher retrieves long-term memory entries relevant to a query.
type MemorySearcher interface {
	Search(ctx context.Context, q MemoryQuery) ([]MemoryEntry, error)
}

// MemoryExtractor stores memory-worthy facts from a completed interaction.
type MemoryExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}

// DocumentSearcher searches the runbook/documentation corpus.
type DocumentSearcher interface {
	Search(ctx context.Context, q DocQuery) ([]Document, error)
}

// SummarizeRequest carries everything the synthesis step may use.
type SummarizeRequest struct {
	RawInput           string             `json:"raw_input"`
	EnhancedInput      string             `json:"enhanced_input,omitempty"`
	Class              WorkflowClass      `json:"workflow_class"`
	Collected          map[Source]Payload `json:"collected_data,omitempty"`
	Documents          []Document         `json:"documents,omitempty"`
	MemoryInstructions []string           `json:"memory_instructions,omitempty"`
	FailedSources      []Source           `json:"failed_sources,omitempty"`
}

// QueryPlan is the source-specific collection request derived from the
// operator input and its classification.
type QueryPlan struct {
	Class  WorkflowClass `json:"workflow_class"`
	Query  string        `json:"query"`
	Window time.Duration `json:"window"`
	Limit  int           `json:"limit,omitempty"`
}

// MemoryQuery filters a memory search.
type MemoryQuery struct {
	Query         string       `json:"query"`
	Types         []MemoryType `json:"types,omitempty"`
	Limit         int          `json:"limit"`
	MinConfidence float64      `json:"confidence_threshold"`
}

// ExtractRequest asks the extractor to mine a completed interaction.
type ExtractRequest struct {
	Content   string        `json:"content"`
	UserInput string        `json:"user_input"`
	Class     WorkflowClass `json:"workflow_class"`
	SessionID string        `json:"session_id"`
}

// ExtractResult reports what the extractor stored.
type ExtractResult struct {
	StoredCount int      `json:"stored_count"`
	IDs         []string `json:"ids,omitempty"`
}

// DocQuery filters a document search.
type DocQuery struct {
	Query          string            `json:"query"`
	Limit          int               `json:"limit"`
	ScoreThreshold float64           `json:"score_threshold"`
	Filters        map[string]string `json:"filters,omitempty"`
}

// Document is one document-search hit.
type Document struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
