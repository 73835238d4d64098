package opsgraph

import (
	"errors"
	"fmt"
)

// Kind classifies workflow errors. Only synthesis, timeout, and
// persistence kinds (or errors explicitly marked fatal) are allowed to
// short-circuit the router into the error handler; every other kind is
// absorbed locally as a status=error node result.
type Kind string

// Error kinds.
const (
	// KindInput is an out-of-scope or malformed request. Handled by the
	// guardrail with a static refusal, never the error handler.
	KindInput Kind = "input"

	// KindClassification is a classification capability failure,
	// recovered via the default-ACTION fallback.
	KindClassification Kind = "classification"

	// KindSourceCollection is a per-source collection failure, recorded
	// and skipped.
	KindSourceCollection Kind = "source_collection"

	// KindMemory is an enhancer/extractor failure, always swallowed.
	KindMemory Kind = "memory"

	// KindSynthesis is a summarization failure in the result node. Fatal.
	KindSynthesis Kind = "synthesis"

	// KindTimeout is a global deadline overrun. Fatal.
	KindTimeout Kind = "timeout"

	// KindPersistence is a state store read/write failure. Fatal, since
	// resumability depends on it.
	KindPersistence Kind = "persistence"

	// KindCancellation is a caller-initiated stop. Terminal but not a
	// failure.
	KindCancellation Kind = "cancellation"

	// KindInternal is an engine bug surfacing as a node panic or an
	// unclassified node error. Fatal.
	KindInternal Kind = "internal"
)

// Fatal reports whether the kind forces a transition to the error handler.
func (k Kind) Fatal() bool {
	switch k {
	case KindSynthesis, KindTimeout, KindPersistence, KindInternal:
		return true
	}
	return false
}

// Sentinel errors for engine construction and execution.
var (
	// ErrNilStore indicates the engine was built without a state store.
	ErrNilStore = errors.New("state store cannot be nil")

	// ErrMaxSteps indicates the run loop exceeded the configured limit.
	ErrMaxSteps = errors.New("exceeded maximum workflow steps")

	// ErrSessionRunning indicates Run was called for a session this engine
	// is already executing.
	ErrSessionRunning = errors.New("session already running")

	// ErrUnknownNode indicates the router produced a node with no
	// registered function. This is a bug, not an operational error.
	ErrUnknownNode = errors.New("unknown workflow node")
)

// WorkflowError carries an error kind and its originating node.
type WorkflowError struct {
	// Kind classifies the failure.
	Kind Kind
	// Node is where the failure occurred.
	Node NodeName
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s error at node %s: %v", e.Kind, e.Node, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// newWorkflowError wraps err with kind and node context.
func newWorkflowError(kind Kind, node NodeName, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Node: node, Err: err}
}

// KindOf extracts the error kind, defaulting to synthesis-level fatality
// only for recognized kinds.
func KindOf(err error) (Kind, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind, true
	}
	return "", false
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// Node is the node that panicked.
	Node NodeName
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node, e.Value)
}

// CancellationError captures the state of a caller-initiated stop.
// The last completed checkpoint is already persisted when this is
// returned.
type CancellationError struct {
	// Node is the node that was about to execute.
	Node NodeName
	// SessionID identifies the stopped session for later resumption.
	SessionID string
	// Cause is the underlying cancellation cause.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("session %s cancelled before node %s: %v", e.SessionID, e.Node, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// MaxStepsError provides context when the step limit is exceeded.
type MaxStepsError struct {
	// Max is the configured step limit.
	Max int
	// LastNode is the node that would have executed next.
	LastNode NodeName
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum workflow steps (%d) at node %s", e.Max, e.LastNode)
}

// Unwrap returns ErrMaxSteps for errors.Is support.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}
