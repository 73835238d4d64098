package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification_StrictJSON(t *testing.T) {
	out := `{"workflow_class":"INCIDENT","confidence":0.92,"reasoning":"multiple services failing",` +
		`"required_sources":{"metrics":true,"logs":true,"alerts":true},"complexity_estimate":"high"}`

	cls, err := ParseClassification(out)
	require.NoError(t, err)

	assert.Equal(t, ClassIncident, cls.Class)
	assert.Equal(t, 0.92, cls.Confidence)
	assert.True(t, cls.Required.Metrics)
	assert.True(t, cls.Required.Logs)
	assert.True(t, cls.Required.Alerts)
	assert.Equal(t, "high", cls.Complexity)
}

func TestParseClassification_ToleratesSurroundingProse(t *testing.T) {
	out := "Sure! Here is the classification:\n" +
		`{"workflow_class":"query","confidence":0.8,"required_sources":{"alerts":true}}` +
		"\nLet me know if you need anything else."

	cls, err := ParseClassification(out)
	require.NoError(t, err)
	assert.Equal(t, ClassQuery, cls.Class)
	assert.True(t, cls.Required.Alerts)
	assert.False(t, cls.Required.Metrics)
}

func TestParseClassification_ClampsConfidence(t *testing.T) {
	cls, err := ParseClassification(`{"workflow_class":"ACTION","confidence":3.5}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cls.Confidence)

	cls, err = ParseClassification(`{"workflow_class":"ACTION","confidence":-1}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cls.Confidence)
}

func TestParseClassification_Rejects(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"no json", "I think this is a query."},
		{"unknown class", `{"workflow_class":"ESCALATE","confidence":0.9}`},
		{"empty class", `{"confidence":0.9}`},
		{"malformed json", `{"workflow_class":"QUERY",`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClassification(tt.out)
			assert.Error(t, err)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"braces inside strings", `{"a":"}{"}`, `{"a":"}{"}`},
		{"escaped quote in string", `{"a":"say \"hi\" {now}"}`, `{"a":"say \"hi\" {now}"}`},
		{"prose around", `text before {"a":1} text after {"b":2}`, `{"a":1}`},
		{"unbalanced", `{"a":1`, ""},
		{"no object", "nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONObject(tt.in))
		})
	}
}

func TestBuildSummarizePrompt_IncludesSections(t *testing.T) {
	req := SummarizeRequest{
		RawInput:           "why is checkout slow?",
		EnhancedInput:      "why is checkout slow? [check eu-west first]",
		Class:              ClassAction,
		MemoryInstructions: []string{"check eu-west first"},
		Collected: map[Source]Payload{
			SourcePrometheus: {Source: SourcePrometheus, Stats: &Stats{Count: 100, Avg: 0.3}},
		},
		Documents:     []Document{{Content: "Checkout latency runbook", Score: 0.88}},
		FailedSources: []Source{SourceLoki},
	}

	prompt, err := buildSummarizePrompt(req)
	require.NoError(t, err)

	assert.Contains(t, prompt, "why is checkout slow?")
	assert.Contains(t, prompt, "Enhanced request:")
	assert.Contains(t, prompt, "ACTION")
	assert.Contains(t, prompt, "check eu-west first")
	assert.Contains(t, prompt, "prometheus")
	assert.Contains(t, prompt, "Checkout latency runbook")
	assert.Contains(t, prompt, "loki")
}

func TestBuildSummarizePrompt_OmitsEmptySections(t *testing.T) {
	prompt, err := buildSummarizePrompt(SummarizeRequest{RawInput: "status?", Class: ClassQuery})
	require.NoError(t, err)

	assert.NotContains(t, prompt, "Enhanced request:")
	assert.NotContains(t, prompt, "Collected data:")
	assert.NotContains(t, prompt, "Relevant documentation:")
	assert.NotContains(t, prompt, "failed to collect")
}

func TestIsRetryableMessage(t *testing.T) {
	assert.True(t, isRetryableMessage("Error: rate limit exceeded"))
	assert.True(t, isRetryableMessage("upstream 529 Overloaded"))
	assert.True(t, isRetryableMessage("request timeout"))
	assert.False(t, isRetryableMessage("invalid api key"))
	assert.False(t, isRetryableMessage(""))
}
