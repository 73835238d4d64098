package opsgraph

import (
	"encoding/json"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// Reduction limits. Aggregation trims collections to these sizes before
// sampling kicks in.
const (
	maxPointsAfterAggregate = 256
	maxLinesAfterAggregate  = 256
	maxAlertsAfterAggregate = 128
	minSampledItems         = 16
)

// reducePayload shrinks an oversized source payload until its JSON
// encoding fits the budget. Policies apply in a fixed order, cheapest
// first: drop the older half of the window, replace raw series with
// aggregates plus a capped tail, then halve by uniform sampling. Every
// applied policy is recorded so synthesis can caveat the answer. A
// payload that already fits is returned untouched.
func reducePayload(p capability.Payload, budget int) capability.Payload {
	if budget <= 0 || payloadSize(p) <= budget {
		return p
	}

	p = dropOlderHalf(p)
	p.Reduced = true
	p.ReductionSteps = append(p.ReductionSteps, "window")
	if payloadSize(p) <= budget {
		return p
	}

	p = aggregate(p)
	p.ReductionSteps = append(p.ReductionSteps, "aggregate")
	if payloadSize(p) <= budget {
		return p
	}

	for payloadSize(p) > budget && p.Len() > minSampledItems {
		p = sampleHalf(p)
	}
	p.ReductionSteps = append(p.ReductionSteps, "sample")
	return p
}

func payloadSize(p capability.Payload) int {
	raw, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(raw)
}

// dropOlderHalf keeps the newer half of the payload. Source adapters
// return items in ascending time order, so the tail is the recent data.
func dropOlderHalf(p capability.Payload) capability.Payload {
	switch {
	case len(p.Points) > 1:
		p.Points = append([]capability.Point(nil), p.Points[len(p.Points)/2:]...)
	case len(p.Lines) > 1:
		p.Lines = append([]capability.LogLine(nil), p.Lines[len(p.Lines)/2:]...)
	case len(p.Alerts) > 1:
		p.Alerts = append([]capability.Alert(nil), p.Alerts[len(p.Alerts)/2:]...)
	}
	return p
}

// aggregate computes summary statistics over the numeric series and caps
// each collection to a fixed tail. The stats cover everything still in
// the payload at this point, so the caps lose raw samples but not the
// shape of the data.
func aggregate(p capability.Payload) capability.Payload {
	if len(p.Points) > 0 {
		stats := capability.Stats{
			Count: len(p.Points),
			Min:   p.Points[0].Value,
			Max:   p.Points[0].Value,
		}
		var sum float64
		for _, pt := range p.Points {
			if pt.Value < stats.Min {
				stats.Min = pt.Value
			}
			if pt.Value > stats.Max {
				stats.Max = pt.Value
			}
			sum += pt.Value
		}
		stats.Avg = sum / float64(stats.Count)
		p.Stats = &stats

		if len(p.Points) > maxPointsAfterAggregate {
			p.Points = append([]capability.Point(nil), p.Points[len(p.Points)-maxPointsAfterAggregate:]...)
		}
	}

	if len(p.Lines) > maxLinesAfterAggregate {
		p.Stats = &capability.Stats{Count: len(p.Lines)}
		p.Lines = append([]capability.LogLine(nil), p.Lines[len(p.Lines)-maxLinesAfterAggregate:]...)
	}

	if len(p.Alerts) > maxAlertsAfterAggregate {
		p.Stats = &capability.Stats{Count: len(p.Alerts)}
		p.Alerts = append([]capability.Alert(nil), p.Alerts[len(p.Alerts)-maxAlertsAfterAggregate:]...)
	}
	return p
}

// sampleHalf keeps every other item, always retaining the newest one.
func sampleHalf(p capability.Payload) capability.Payload {
	p.Points = sampleEveryOther(p.Points)
	p.Lines = sampleEveryOther(p.Lines)
	p.Alerts = sampleEveryOther(p.Alerts)
	return p
}

func sampleEveryOther[T any](items []T) []T {
	if len(items) <= 1 {
		return items
	}
	kept := make([]T, 0, len(items)/2+1)
	// Walk backward by two so the newest item always survives.
	for i := len(items) - 1; i >= 0; i -= 2 {
		kept = append(kept, items[i])
	}
	// Restore ascending order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
