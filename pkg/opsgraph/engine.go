package opsgraph

import (
	"context"
	"sort"
	"sync"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/registry"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/statestore"
)

// Capabilities bundles the external adapters the engine drives. Only the
// state store is mandatory at construction; missing capabilities degrade
// per the error policy (classification falls back to ACTION, sources are
// recorded as failed, memory and documents become no-ops).
type Capabilities struct {
	Classifier capability.Classifier
	Summarizer capability.Summarizer
	Sources    []capability.DataSource
	Memory     capability.MemorySearcher
	Extractor  capability.MemoryExtractor
	Documents  capability.DocumentSearcher
}

// Engine drives workflow execution node-by-node: it invokes the router
// after each node, persists a checkpoint after each transition, enforces
// the global deadline, and exposes blocking (Run) and streaming (Stream)
// entry points.
//
// An Engine is safe for concurrent use across sessions. It refuses to run
// the same session twice concurrently; callers coordinating across
// processes must keep session routing sticky.
type Engine struct {
	store   statestore.Store
	caps    Capabilities
	nodes   *registry.Registry[NodeName, NodeFunc]
	sources *registry.Registry[capability.Source, capability.DataSource]
	cfg     engineConfig

	mu      sync.Mutex
	running map[string]struct{}

	// extractWG tracks fire-and-forget memory extractions so Close can
	// drain them.
	extractWG sync.WaitGroup
}

// New creates an engine over the given state store and capabilities.
func New(store statestore.Store, caps Capabilities, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		store:   store,
		caps:    caps,
		nodes:   registry.New[NodeName, NodeFunc](),
		sources: registry.New[capability.Source, capability.DataSource](),
		cfg:     cfg,
		running: make(map[string]struct{}),
	}

	for _, src := range caps.Sources {
		if src != nil {
			e.sources.Register(src.Name(), src)
		}
	}
	e.registerNodes()
	return e, nil
}

// registerNodes builds the closed node table. Collection nodes are
// registered for every known source, not just configured adapters, so a
// classification demanding an unconfigured source degrades to a recorded
// failure instead of an unroutable graph.
func (e *Engine) registerNodes() {
	e.nodes.Register(NodeStart, e.startNode)
	e.nodes.Register(NodeGuardrail, e.guardrailNode)
	e.nodes.Register(NodeCategorize, e.categorizeNode)
	e.nodes.Register(NodeQuery, e.queryNode)
	e.nodes.Register(NodeAction, e.actionNode)
	e.nodes.Register(NodeIncident, e.incidentNode)
	e.nodes.Register(NodeRAGSearch, e.ragSearchNode)
	e.nodes.Register(NodeResult, e.resultNode)
	e.nodes.Register(NodeErrorHandler, e.errorHandlerNode)

	for _, src := range []capability.Source{
		capability.SourcePrometheus,
		capability.SourceLoki,
		capability.SourceAlertmanager,
	} {
		src := src
		e.nodes.Register(nodeForSource(src), func(ctx context.Context, st State) (State, NodeName, error) {
			return e.collectNode(ctx, src, st)
		})
	}
}

// Sources reports the data sources the engine was configured with, in
// stable order.
func (e *Engine) Sources() []capability.Source {
	keys := e.sources.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Close drains in-flight memory extractions. Call on shutdown; it does
// not close the state store, which the caller owns.
func (e *Engine) Close() error {
	e.extractWG.Wait()
	return nil
}

// acquire marks a session as running on this engine.
func (e *Engine) acquire(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[sessionID]; ok {
		return ErrSessionRunning
	}
	e.running[sessionID] = struct{}{}
	return nil
}

// release clears the running mark for a session.
func (e *Engine) release(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, sessionID)
}
