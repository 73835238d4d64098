package opsgraph

import (
	"encoding/json"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// Phase tracks where a session sits in its lifecycle. It advances
// monotonically except for the COLLECTION self-loop over pending sources.
type Phase string

// Lifecycle phases.
const (
	PhaseInit           Phase = "INIT"
	PhaseValidation     Phase = "VALIDATION"
	PhaseCategorization Phase = "CATEGORIZATION"
	PhaseCollection     Phase = "COLLECTION"
	PhaseInvestigation  Phase = "INVESTIGATION"
	PhaseAnalysis       Phase = "ANALYSIS"
	PhaseCompleted      Phase = "COMPLETED"
	PhaseError          Phase = "ERROR"
)

// ResultStatus is the outcome of a single node's work.
type ResultStatus string

// Node result statuses.
const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// StepResult records what one node produced. Each key in
// State.NodeResults is written only by the node that owns it.
type StepResult struct {
	Status      ResultStatus    `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
}

// ErrorInfo captures the first fatal error for the error handler and the
// audit trail.
type ErrorInfo struct {
	Kind   Kind     `json:"kind"`
	Node   NodeName `json:"node"`
	Detail string   `json:"detail"`
	Fatal  bool     `json:"fatal"`
}

// ResultType distinguishes the kinds of terminal payload.
type ResultType string

// Final result types.
const (
	ResultAnswer  ResultType = "answer"
	ResultRefusal ResultType = "refusal"
	ResultError   ResultType = "error_response"
)

// FinalResult is the terminal payload of a run. Its presence is the sole
// termination condition for the run loop.
type FinalResult struct {
	Type               ResultType               `json:"type"`
	Content            string                   `json:"content"`
	Class              capability.WorkflowClass `json:"workflow_class,omitempty"`
	DataSourcesUsed    []capability.Source      `json:"data_sources_used"`
	FailedSources      []capability.Source      `json:"failed_sources,omitempty"`
	ExecutionTimeMS    int64                    `json:"execution_time_ms"`
	SessionID          string                   `json:"session_id"`
	ErrorKind          Kind                     `json:"error_kind,omitempty"`
	RecoverySuggestion string                   `json:"recovery_suggestion,omitempty"`
}

// Metadata holds free-form observability counters. Never used for control
// flow.
type Metadata struct {
	StartedAt time.Time        `json:"started_at,omitempty"`
	Counters  map[string]int64 `json:"counters,omitempty"`
}

// State is the single mutable record threaded through every node. It is
// passed by value between node invocations; nodes return an updated copy
// rather than mutating shared references. The helper mutators below
// copy-on-write the map and slice fields so a node never aliases state
// held by the engine or a checkpoint.
type State struct {
	SessionID     string `json:"session_id"`
	RawInput      string `json:"raw_input"`
	EnhancedInput string `json:"enhanced_input,omitempty"`

	// MemoryInstructions are operator-guidance entries injected by the
	// memory enhancer before categorization.
	MemoryInstructions []string `json:"memory_instructions,omitempty"`

	// Classification is set exactly once by the categorize node and never
	// mutated afterward.
	Classification *capability.Classification `json:"classification,omitempty"`

	CurrentNode   NodeName                `json:"current_node,omitempty"`
	ExecutionPath []NodeName              `json:"execution_path"`
	Pending       []capability.Source     `json:"pending_sources"`
	NodeResults   map[NodeName]StepResult `json:"node_results,omitempty"`

	// RequiresRAG gates the one-shot rag_search transition for incidents.
	RequiresRAG bool `json:"requires_rag_search,omitempty"`

	FinalResult *FinalResult `json:"final_result,omitempty"`
	LastError   *ErrorInfo   `json:"last_error,omitempty"`
	Phase       Phase        `json:"phase"`
	Meta        Metadata     `json:"metadata"`
}

// NewState creates a fresh state for a raw operator request.
func NewState(input string) State {
	return State{
		RawInput: input,
		Phase:    PhaseInit,
	}
}

// withResult returns a copy of st with the node's result recorded.
// The NodeResults map is copied so earlier checkpoints stay intact.
func (st State) withResult(node NodeName, res StepResult) State {
	results := make(map[NodeName]StepResult, len(st.NodeResults)+1)
	for k, v := range st.NodeResults {
		results[k] = v
	}
	results[node] = res
	st.NodeResults = results
	return st
}

// withSuccess records a success result with a JSON payload.
func (st State) withSuccess(node NodeName, payload any) (State, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return st, err
	}
	return st.withResult(node, StepResult{Status: StatusSuccess, Payload: raw}), nil
}

// withFailure records a non-fatal error result.
func (st State) withFailure(node NodeName, detail string) State {
	return st.withResult(node, StepResult{Status: StatusError, ErrorDetail: detail})
}

// appendPath returns a copy of st with node appended to the execution path
// and CurrentNode updated. The path slice is copied to keep checkpointed
// states independent.
func (st State) appendPath(node NodeName) State {
	path := make([]NodeName, len(st.ExecutionPath), len(st.ExecutionPath)+1)
	copy(path, st.ExecutionPath)
	st.ExecutionPath = append(path, node)
	st.CurrentNode = node
	return st
}

// popPending returns a copy of st with the head of the pending-source
// queue removed.
func (st State) popPending() State {
	if len(st.Pending) == 0 {
		return st
	}
	rest := make([]capability.Source, len(st.Pending)-1)
	copy(rest, st.Pending[1:])
	st.Pending = rest
	return st
}

// bump increments a metadata counter, copying the counter map.
func (st State) bump(counter string, delta int64) State {
	counters := make(map[string]int64, len(st.Meta.Counters)+1)
	for k, v := range st.Meta.Counters {
		counters[k] = v
	}
	counters[counter] += delta
	st.Meta.Counters = counters
	return st
}

// inputText returns the text downstream nodes should reason over.
func (st State) inputText() string {
	if st.EnhancedInput != "" {
		return st.EnhancedInput
	}
	return st.RawInput
}

// collectedSources splits node results into succeeded and failed source
// lists, preserving execution order. Both slices are always non-nil so
// the result fields serialize as [] rather than null.
func (st State) collectedSources() (used, failed []capability.Source) {
	used = []capability.Source{}
	failed = []capability.Source{}
	for _, node := range st.ExecutionPath {
		src, ok := sourceForNode(node)
		if !ok {
			continue
		}
		res, ok := st.NodeResults[node]
		if !ok {
			continue
		}
		if res.Status == StatusSuccess {
			used = append(used, src)
		} else {
			failed = append(failed, src)
		}
	}
	return used, failed
}
