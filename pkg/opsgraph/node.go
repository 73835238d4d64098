package opsgraph

import (
	"context"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// NodeName identifies a node in the workflow graph. The set is closed:
// every name the router can return is declared below or derived from a
// registered data source. Keeping the set closed lets the router's table
// be exhaustively tested instead of relying on runtime string matching.
type NodeName string

// Graph nodes.
const (
	NodeStart        NodeName = "start"
	NodeGuardrail    NodeName = "guardrail"
	NodeCategorize   NodeName = "categorize"
	NodeQuery        NodeName = "query"
	NodeAction       NodeName = "action"
	NodeIncident     NodeName = "incident"
	NodeRAGSearch    NodeName = "rag_search"
	NodeResult       NodeName = "result"
	NodeErrorHandler NodeName = "error_handler"
)

// NextRouter is the next-node hint meaning "ask the router".
const NextRouter NodeName = ""

// End is the terminal marker returned by the router when the run is done.
const End NodeName = "__end__"

// NodeFunc is the signature for all node functions. A node receives the
// current state by value and returns the updated state plus a next-node
// hint (usually NextRouter).
//
// Nodes absorb adapter failures into NodeResults; a returned error is
// reserved for the fatal conditions that must short-circuit to the error
// handler (synthesis, timeout, persistence, or explicitly fatal).
type NodeFunc func(ctx context.Context, st State) (State, NodeName, error)

// nodeForSource maps a data source to its collection node.
func nodeForSource(src capability.Source) NodeName {
	return NodeName(src)
}

// sourceForNode reports whether node is a data-collection node and for
// which source.
func sourceForNode(node NodeName) (capability.Source, bool) {
	switch src := capability.Source(node); src {
	case capability.SourcePrometheus, capability.SourceLoki, capability.SourceAlertmanager:
		return src, true
	}
	return "", false
}
