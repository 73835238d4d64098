package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

const defaultLokiLimit = 500

// Loki collects log lines via the Loki HTTP API's range-query endpoint.
type Loki struct {
	client client

	// selectorFor maps the operator request to a LogQL selector. The
	// default selects error-level lines across all jobs.
	selectorFor func(plan capability.QueryPlan) string
}

// NewLoki creates a Loki adapter for the given base URL
// (e.g. "http://loki:3100").
func NewLoki(baseURL string, opts ...ClientOption) *Loki {
	return &Loki{
		client:      newClient(baseURL, opts...),
		selectorFor: defaultLogQL,
	}
}

// WithSelectorBuilder replaces the request-to-LogQL mapping.
func (l *Loki) WithSelectorBuilder(fn func(capability.QueryPlan) string) *Loki {
	if fn != nil {
		l.selectorFor = fn
	}
	return l
}

// Name implements capability.DataSource.
func (l *Loki) Name() capability.Source { return capability.SourceLoki }

type lokiQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Collect implements capability.DataSource.
func (l *Loki) Collect(ctx context.Context, plan capability.QueryPlan) (capability.Payload, error) {
	window := plan.Window
	if window <= 0 {
		window = time.Hour
	}
	end := time.Now().UTC()
	start := end.Add(-window)

	limit := plan.Limit
	if limit <= 0 {
		limit = defaultLokiLimit
	}

	q := url.Values{}
	q.Set("query", l.selectorFor(plan))
	q.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	q.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("direction", "backward")

	var resp lokiQueryResponse
	if err := l.client.getJSON(ctx, "/loki/api/v1/query_range", q, &resp); err != nil {
		return capability.Payload{}, fmt.Errorf("loki query: %w", err)
	}
	if resp.Status != "success" {
		return capability.Payload{}, fmt.Errorf("loki query: status %s", resp.Status)
	}

	var lines []capability.LogLine
	for _, stream := range resp.Data.Result {
		for _, entry := range stream.Values {
			ns, err := strconv.ParseInt(entry[0], 10, 64)
			if err != nil {
				continue
			}
			lines = append(lines, capability.LogLine{
				At:     time.Unix(0, ns).UTC(),
				Line:   entry[1],
				Labels: stream.Stream,
			})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].At.Before(lines[j].At) })

	return capability.Payload{Source: capability.SourceLoki, Lines: lines}, nil
}

// defaultLogQL selects error-level lines across all jobs.
func defaultLogQL(capability.QueryPlan) string {
	return `{job=~".+"} |~ "(?i)(error|panic|fatal)"`
}
