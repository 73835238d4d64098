package opsgraph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

func seriesPayload(n int) capability.Payload {
	p := capability.Payload{Source: capability.SourcePrometheus}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		p.Points = append(p.Points, capability.Point{
			At:    base.Add(time.Duration(i) * time.Minute),
			Value: float64(i),
		})
	}
	return p
}

func TestReducePayload_UnderBudgetUntouched(t *testing.T) {
	p := seriesPayload(10)
	out := reducePayload(p, 1<<20)

	assert.False(t, out.Reduced)
	assert.Empty(t, out.ReductionSteps)
	assert.Len(t, out.Points, 10)
	assert.Nil(t, out.Stats)
}

func TestReducePayload_WindowDropsOlderHalf(t *testing.T) {
	p := seriesPayload(100)
	size, _ := json.Marshal(p)

	// A budget just below full size forces exactly the window step.
	out := reducePayload(p, len(size)-1)

	assert.True(t, out.Reduced)
	assert.Equal(t, []string{"window"}, out.ReductionSteps)
	require.Len(t, out.Points, 50)
	// The newer half survives.
	assert.Equal(t, float64(50), out.Points[0].Value)
	assert.Equal(t, float64(99), out.Points[len(out.Points)-1].Value)
}

func TestReducePayload_AggregateComputesStats(t *testing.T) {
	p := seriesPayload(2000)

	out := reducePayload(p, 20_000)

	assert.True(t, out.Reduced)
	assert.Contains(t, out.ReductionSteps, "aggregate")
	require.NotNil(t, out.Stats)

	// Stats cover the post-window half: values 1000..1999.
	assert.Equal(t, 1000, out.Stats.Count)
	assert.Equal(t, float64(1000), out.Stats.Min)
	assert.Equal(t, float64(1999), out.Stats.Max)
	assert.InDelta(t, 1499.5, out.Stats.Avg, 0.001)
	assert.LessOrEqual(t, len(out.Points), 256)
}

func TestReducePayload_SamplingKeepsNewest(t *testing.T) {
	p := seriesPayload(4000)

	out := reducePayload(p, 2_000)

	assert.True(t, out.Reduced)
	assert.Equal(t, []string{"window", "aggregate", "sample"}, out.ReductionSteps)
	assert.Greater(t, len(out.Points), 0)

	// The newest point always survives sampling.
	last := out.Points[len(out.Points)-1]
	assert.Equal(t, float64(3999), last.Value)

	// Still in ascending time order.
	for i := 1; i < len(out.Points); i++ {
		assert.True(t, out.Points[i].At.After(out.Points[i-1].At))
	}
}

func TestReducePayload_LogLines(t *testing.T) {
	p := capability.Payload{Source: capability.SourceLoki}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		p.Lines = append(p.Lines, capability.LogLine{
			At:   base.Add(time.Duration(i) * time.Second),
			Line: "error: connection refused to upstream service, retrying with backoff",
		})
	}

	out := reducePayload(p, 10_000)

	assert.True(t, out.Reduced)
	assert.LessOrEqual(t, out.Len(), 500)
	// Newest lines are the ones kept.
	last := out.Lines[len(out.Lines)-1]
	assert.Equal(t, base.Add(999*time.Second), last.At)
}

func TestReducePayload_ZeroBudgetDisablesReduction(t *testing.T) {
	p := seriesPayload(500)
	out := reducePayload(p, 0)
	assert.False(t, out.Reduced)
	assert.Len(t, out.Points, 500)
}
