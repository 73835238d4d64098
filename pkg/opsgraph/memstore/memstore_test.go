package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
	"github.com/opsgraph/opsgraph/pkg/opsgraph/memstore"
)

func openStore(t *testing.T) *memstore.Store {
	t.Helper()
	store, err := memstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_PutAndSearch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, capability.MemoryEntry{
		Content:    "Always check the eu-west cluster before us-east",
		Type:       capability.MemoryInstruction,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	_, err = store.Put(ctx, capability.MemoryEntry{
		Content:    "The checkout service owns the payments database",
		Type:       capability.MemoryFact,
		Confidence: 0.8,
	})
	require.NoError(t, err)

	entries, err := store.Search(ctx, capability.MemoryQuery{
		Query:         "which cluster takes priority",
		Limit:         5,
		MinConfidence: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "eu-west")
	assert.Equal(t, capability.MemoryInstruction, entries[0].Type)
}

func TestStore_SearchFiltersByTypeAndConfidence(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, e := range []capability.MemoryEntry{
		{Content: "checkout latency instruction", Type: capability.MemoryInstruction, Confidence: 0.9},
		{Content: "checkout latency incident last month", Type: capability.MemoryIncident, Confidence: 0.9},
		{Content: "checkout latency low-confidence note", Type: capability.MemoryInstruction, Confidence: 0.2},
	} {
		_, err := store.Put(ctx, e)
		require.NoError(t, err)
	}

	entries, err := store.Search(ctx, capability.MemoryQuery{
		Query:         "checkout latency",
		Types:         []capability.MemoryType{capability.MemoryInstruction},
		Limit:         10,
		MinConfidence: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "instruction")
}

func TestStore_SearchOrdersByOverlapThenConfidence(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, e := range []capability.MemoryEntry{
		{Content: "database connection pool exhausted", Type: capability.MemoryFact, Confidence: 0.6},
		{Content: "database errors", Type: capability.MemoryFact, Confidence: 0.9},
	} {
		_, err := store.Put(ctx, e)
		require.NoError(t, err)
	}

	entries, err := store.Search(ctx, capability.MemoryQuery{
		Query: "database connection pool",
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Higher term overlap outranks higher confidence.
	assert.Contains(t, entries[0].Content, "pool exhausted")
}

func TestStore_Delete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, capability.MemoryEntry{
		Content: "disposable note about redis", Type: capability.MemoryFact, Confidence: 0.9,
	})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, id))

	entries, err := store.Search(ctx, capability.MemoryQuery{Query: "redis", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_RelationRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	incident, err := store.Put(ctx, capability.MemoryEntry{
		Content: "Incident: checkout OOM", Type: capability.MemoryIncident, Confidence: 0.8,
	})
	require.NoError(t, err)
	instruction, err := store.Put(ctx, capability.MemoryEntry{
		Content: "Always check pod memory limits first", Type: capability.MemoryInstruction, Confidence: 0.6,
	})
	require.NoError(t, err)

	rel := memstore.Relation{FromID: instruction, ToID: incident, Type: "derived_from"}
	require.NoError(t, store.Relate(ctx, rel))
	// Duplicate relation is a no-op.
	require.NoError(t, store.Relate(ctx, rel))

	rels, err := store.Related(ctx, incident)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, rel, rels[0])

	// Deleting an endpoint removes the relation.
	require.NoError(t, store.Delete(ctx, instruction))
	rels, err = store.Related(ctx, incident)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestStore_ClosedReturnsError(t *testing.T) {
	store, err := memstore.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Put(context.Background(), capability.MemoryEntry{Content: "x"})
	assert.ErrorIs(t, err, memstore.ErrClosed)
}

func TestExtractor_IncidentStoresIncidentMemory(t *testing.T) {
	store := openStore(t)
	extractor := memstore.NewExtractor(store)
	ctx := context.Background()

	res, err := extractor.Extract(ctx, capability.ExtractRequest{
		Content:   "Root cause: the payments pod ran out of memory. Restarted with a higher limit.",
		UserInput: "payments is down, investigate",
		Class:     capability.ClassIncident,
		SessionID: "sess-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.StoredCount)
	assert.Len(t, res.IDs, 1)

	entries, err := store.Search(ctx, capability.MemoryQuery{
		Query: "payments memory",
		Types: []capability.MemoryType{capability.MemoryIncident},
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "payments")
}

func TestExtractor_ImperativePhrasingBecomesInstruction(t *testing.T) {
	store := openStore(t)
	extractor := memstore.NewExtractor(store)
	ctx := context.Background()

	res, err := extractor.Extract(ctx, capability.ExtractRequest{
		Content:   "CPU is normal across the fleet.",
		UserInput: "check cpu. Always look at the eu-west cluster first.",
		Class:     capability.ClassAction,
		SessionID: "sess-2",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.StoredCount)

	entries, err := store.Search(ctx, capability.MemoryQuery{
		Query: "eu-west cluster",
		Types: []capability.MemoryType{capability.MemoryInstruction},
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Always look at the eu-west cluster first", entries[0].Content)
}

func TestExtractor_IncidentWithInstructionRelatesEntries(t *testing.T) {
	store := openStore(t)
	extractor := memstore.NewExtractor(store)
	ctx := context.Background()

	res, err := extractor.Extract(ctx, capability.ExtractRequest{
		Content:   "Root cause: stale DNS cache on the edge nodes.",
		UserInput: "edge is flapping. Remember to flush DNS on the edge tier first.",
		Class:     capability.ClassIncident,
		SessionID: "sess-4",
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.StoredCount)

	rels, err := store.Related(ctx, res.IDs[0])
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "derived_from", rels[0].Type)
	assert.Equal(t, res.IDs[1], rels[0].FromID)
	assert.Equal(t, res.IDs[0], rels[0].ToID)
}

func TestExtractor_NothingWorthKeeping(t *testing.T) {
	store := openStore(t)
	extractor := memstore.NewExtractor(store)

	res, err := extractor.Extract(context.Background(), capability.ExtractRequest{
		Content:   "All systems nominal.",
		UserInput: "status?",
		Class:     capability.ClassQuery,
		SessionID: "sess-3",
	})
	require.NoError(t, err)
	assert.Zero(t, res.StoredCount)
}
