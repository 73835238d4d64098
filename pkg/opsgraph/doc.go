// Package opsgraph is a workflow engine for AI-assisted operations
// requests. A free-text operator request is classified into one of three
// workflow classes (QUERY, ACTION, INCIDENT), routed through a closed
// directed graph of nodes that collect monitoring data, optionally
// search runbook documentation, and synthesize a final answer.
//
// Execution is checkpointed after every node transition, so an
// interrupted session resumes from its last completed node (Resume, or
// Run with WithSessionID). A pure router (Route) computes every
// transition from state alone, which keeps the graph topology a single
// testable function.
//
// External systems plug in through the capability package interfaces;
// the engine owns the control flow and the error policy, the adapters
// own their calls and retries. Failures degrade along a fixed policy:
// classification falls back to a safe default, per-source collection
// failures are recorded and skipped, memory is a best-effort side
// channel, and only synthesis, timeout, and persistence failures divert
// the run to the error handler terminal node.
package opsgraph
