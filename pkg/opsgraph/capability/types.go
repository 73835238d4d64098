package capability

import "time"

// WorkflowClass is the closed set of execution strategies.
type WorkflowClass string

// Workflow classes.
const (
	// ClassQuery is a fast single-fact lookup.
	ClassQuery WorkflowClass = "QUERY"

	// ClassAction is a multi-source analysis or report.
	ClassAction WorkflowClass = "ACTION"

	// ClassIncident is a broad investigation with root-cause synthesis.
	ClassIncident WorkflowClass = "INCIDENT"
)

// Valid reports whether c is a known workflow class.
func (c WorkflowClass) Valid() bool {
	switch c {
	case ClassQuery, ClassAction, ClassIncident:
		return true
	}
	return false
}

// Source identifies a monitoring data source.
type Source string

// Known data sources, in collection priority order.
const (
	SourcePrometheus   Source = "prometheus"
	SourceLoki         Source = "loki"
	SourceAlertmanager Source = "alertmanager"
)

// RequiredSources is the classifier's verdict on which sources matter.
type RequiredSources struct {
	Metrics bool `json:"metrics"`
	Logs    bool `json:"logs"`
	Alerts  bool `json:"alerts"`
}

// Classification is the classifier's full verdict on a request.
type Classification struct {
	Class      WorkflowClass   `json:"workflow_class"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
	Required   RequiredSources `json:"required_sources"`
	Complexity string          `json:"complexity_estimate,omitempty"`

	// Fallback is true when the default-ACTION policy was applied because
	// the classifier failed or returned an unknown class.
	Fallback bool `json:"fallback,omitempty"`
}

// MemoryType categorizes a long-term memory entry. The core set below is
// closed; any other non-empty string is treated as an opaque extension type
// so confidence-scored taxonomy suggestions stay off the critical path.
type MemoryType string

// Core memory types.
const (
	MemoryInstruction MemoryType = "instruction"
	MemoryFact        MemoryType = "fact"
	MemoryIncident    MemoryType = "incident"
	MemoryPreference  MemoryType = "preference"
)

// Core reports whether t belongs to the fixed core taxonomy.
func (t MemoryType) Core() bool {
	switch t {
	case MemoryInstruction, MemoryFact, MemoryIncident, MemoryPreference:
		return true
	}
	return false
}

// MemoryEntry is one long-term memory record.
type MemoryEntry struct {
	ID         string            `json:"id,omitempty"`
	Content    string            `json:"content"`
	Type       MemoryType        `json:"type"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Point is one numeric sample from a metrics source.
type Point struct {
	At     time.Time         `json:"t"`
	Value  float64           `json:"v"`
	Labels map[string]string `json:"labels,omitempty"`
}

// LogLine is one log entry from a logs source.
type LogLine struct {
	At     time.Time         `json:"t"`
	Line   string            `json:"line"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Alert is one active alert from an alerting source.
type Alert struct {
	Name     string            `json:"name"`
	Severity string            `json:"severity,omitempty"`
	Summary  string            `json:"summary,omitempty"`
	StartsAt time.Time         `json:"starts_at"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// Stats are the aggregates computed when a payload is reduced.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// Payload is the data returned by a source. Exactly one of Points, Lines,
// or Alerts is populated, matching the source kind.
type Payload struct {
	Source Source    `json:"source"`
	Points []Point   `json:"points,omitempty"`
	Lines  []LogLine `json:"lines,omitempty"`
	Alerts []Alert   `json:"alerts,omitempty"`
	Stats  *Stats    `json:"stats,omitempty"`

	// Reduced flags lossy shrinking so the synthesis step can caveat its
	// answer. ReductionSteps records which policies were applied, in order.
	Reduced        bool     `json:"reduced,omitempty"`
	ReductionSteps []string `json:"reduction_steps,omitempty"`
}

// Len returns the number of items in the payload, whatever its kind.
func (p Payload) Len() int {
	return len(p.Points) + len(p.Lines) + len(p.Alerts)
}

// Empty reports whether the payload carries no data.
func (p Payload) Empty() bool {
	return p.Len() == 0
}
