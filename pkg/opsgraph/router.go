package opsgraph

import "github.com/opsgraph/opsgraph/pkg/opsgraph/capability"

// Route computes the next node from the current state. It is a pure
// function over phase, classification, the pending-source queue, and the
// final result, and is the single source of truth for graph topology.
//
// Rules, in priority order:
//  1. Final result present: terminal.
//  2. Recorded fatal error: error handler.
//  3. INIT: start for a never-executed session, then guardrail.
//  4. VALIDATION: categorize (an out-of-scope input already set a refusal
//     final result in the guardrail, so rule 1 terminated first).
//  5. CATEGORIZATION: dispatch on workflow class.
//  6. COLLECTION with pending sources: head source's node (self-loop).
//  7. COLLECTION drained: rag_search once if the incident flag is set,
//     otherwise result.
//  8. INVESTIGATION (post rag_search) and ANALYSIS: result.
func Route(st State) NodeName {
	if st.FinalResult != nil {
		return End
	}
	if st.LastError != nil && st.LastError.Fatal {
		return NodeErrorHandler
	}

	switch st.Phase {
	case PhaseInit:
		if st.CurrentNode == NodeStart {
			return NodeGuardrail
		}
		return NodeStart

	case PhaseValidation:
		return NodeCategorize

	case PhaseCategorization:
		return classNode(st.Classification)

	case PhaseCollection:
		if len(st.Pending) > 0 {
			return nodeForSource(st.Pending[0])
		}
		if st.RequiresRAG {
			return NodeRAGSearch
		}
		return NodeResult

	case PhaseInvestigation, PhaseAnalysis:
		return NodeResult

	case PhaseError, PhaseCompleted:
		// Terminal phases without a final result only occur on malformed
		// checkpoints; route to the error handler to produce one.
		return NodeErrorHandler
	}

	return NodeErrorHandler
}

// classNode maps a workflow class to its strategy node. A missing or
// unknown classification falls back to the ACTION strategy, mirroring the
// categorize node's fail-closed policy.
func classNode(cls *capability.Classification) NodeName {
	if cls == nil {
		return NodeAction
	}
	switch cls.Class {
	case capability.ClassQuery:
		return NodeQuery
	case capability.ClassIncident:
		return NodeIncident
	case capability.ClassAction:
		return NodeAction
	}
	return NodeAction
}
