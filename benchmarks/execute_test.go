package benchmarks

import (
	"context"
	"testing"

	"github.com/opsgraph/opsgraph/pkg/opsgraph"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/statestore"
)

// BenchmarkRun_QueryDirectAnswer runs a QUERY needing no data sources,
// the shortest complete path through the graph.
func BenchmarkRun_QueryDirectAnswer(b *testing.B) {
	engine := mustEngine(b, opsgraph.Capabilities{
		Classifier: classifierStub{class: capability.ClassQuery},
		Summarizer: summarizerStub{},
	})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Run(ctx, "what version is the api gateway running")
	}
}

// BenchmarkRun_QuerySingleSource runs a QUERY that collects from one source.
func BenchmarkRun_QuerySingleSource(b *testing.B) {
	engine := mustEngine(b, opsgraph.Capabilities{
		Classifier: classifierStub{
			class:    capability.ClassQuery,
			required: capability.RequiredSources{Alerts: true},
		},
		Summarizer: summarizerStub{},
		Sources:    []capability.DataSource{sourceStub{name: capability.SourceAlertmanager}},
	})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Run(ctx, "are any alerts firing")
	}
}

// BenchmarkRun_IncidentPipeline runs the full INCIDENT path: three
// sources, memory enhancement, runbook search, and synthesis.
func BenchmarkRun_IncidentPipeline(b *testing.B) {
	engine := mustEngine(b, opsgraph.Capabilities{
		Classifier: classifierStub{
			class:    capability.ClassIncident,
			required: capability.RequiredSources{Metrics: true, Logs: true, Alerts: true},
		},
		Summarizer: summarizerStub{},
		Sources:    allSources(),
		Memory:     memoryStub{},
		Documents:  docsStub{},
	})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Run(ctx, "checkout is down, investigate")
	}
}

// BenchmarkRun_FanOut3 runs an ACTION collecting three sources concurrently.
func BenchmarkRun_FanOut3(b *testing.B) {
	engine := mustEngine(b, opsgraph.Capabilities{
		Classifier: classifierStub{
			class:    capability.ClassAction,
			required: capability.RequiredSources{Metrics: true, Logs: true, Alerts: true},
		},
		Summarizer: summarizerStub{},
		Sources:    allSources(),
	}, opsgraph.WithCollectionConcurrency(3))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Run(ctx, "build the weekly reliability report")
	}
}

// BenchmarkRoute measures a single routing decision.
func BenchmarkRoute(b *testing.B) {
	st := opsgraph.NewState("are any alerts firing")
	st.Phase = opsgraph.PhaseCollection
	st.CurrentNode = opsgraph.NodeQuery
	st.Pending = []capability.Source{capability.SourcePrometheus, capability.SourceLoki}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = opsgraph.Route(st)
	}
}

func mustEngine(b *testing.B, caps opsgraph.Capabilities, opts ...opsgraph.Option) *opsgraph.Engine {
	b.Helper()
	engine, err := opsgraph.New(statestore.NewMemoryStore(), caps, opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { engine.Close() })
	return engine
}

func allSources() []capability.DataSource {
	return []capability.DataSource{
		sourceStub{name: capability.SourcePrometheus},
		sourceStub{name: capability.SourceLoki},
		sourceStub{name: capability.SourceAlertmanager},
	}
}

type classifierStub struct {
	class    capability.WorkflowClass
	required capability.RequiredSources
}

func (c classifierStub) Classify(ctx context.Context, text string) (capability.Classification, error) {
	return capability.Classification{Class: c.class, Confidence: 0.9, Required: c.required}, nil
}

type summarizerStub struct{}

func (summarizerStub) Summarize(ctx context.Context, req capability.SummarizeRequest) (string, error) {
	return "done", nil
}

type sourceStub struct {
	name capability.Source
}

func (s sourceStub) Name() capability.Source { return s.name }

func (s sourceStub) Collect(ctx context.Context, plan capability.QueryPlan) (capability.Payload, error) {
	return capability.Payload{Source: s.name, Points: []capability.Point{{Value: 1}}}, nil
}

type memoryStub struct{}

func (memoryStub) Search(ctx context.Context, q capability.MemoryQuery) ([]capability.MemoryEntry, error) {
	return []capability.MemoryEntry{
		{Content: "always check the payments cluster first", Type: capability.MemoryInstruction, Confidence: 0.8},
	}, nil
}

type docsStub struct{}

func (docsStub) Search(ctx context.Context, q capability.DocQuery) ([]capability.Document, error) {
	return []capability.Document{{Content: "runbook: restart the checkout pods", Score: 0.9}}, nil
}
