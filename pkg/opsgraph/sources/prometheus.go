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

// Prometheus collects metric samples via the Prometheus HTTP API's
// range-query endpoint.
type Prometheus struct {
	client client

	// queryFor maps the operator request to a PromQL expression. The
	// default falls back to a broad instance-health query; deployments
	// with a query-generation capability can replace it.
	queryFor func(plan capability.QueryPlan) string
}

// NewPrometheus creates a Prometheus adapter for the given base URL
// (e.g. "http://prometheus:9090").
func NewPrometheus(baseURL string, opts ...ClientOption) *Prometheus {
	return &Prometheus{
		client:   newClient(baseURL, opts...),
		queryFor: defaultPromQL,
	}
}

// WithQueryBuilder replaces the request-to-PromQL mapping.
func (p *Prometheus) WithQueryBuilder(fn func(capability.QueryPlan) string) *Prometheus {
	if fn != nil {
		p.queryFor = fn
	}
	return p
}

// Name implements capability.DataSource.
func (p *Prometheus) Name() capability.Source { return capability.SourcePrometheus }

// promRangeResponse is the subset of the Prometheus API response the
// adapter consumes.
type promRangeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]any          `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Collect implements capability.DataSource.
func (p *Prometheus) Collect(ctx context.Context, plan capability.QueryPlan) (capability.Payload, error) {
	window := plan.Window
	if window <= 0 {
		window = time.Hour
	}
	end := time.Now().UTC()
	start := end.Add(-window)

	q := url.Values{}
	q.Set("query", p.queryFor(plan))
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.FormatInt(int64(stepFor(window).Seconds()), 10))

	var resp promRangeResponse
	if err := p.client.getJSON(ctx, "/api/v1/query_range", q, &resp); err != nil {
		return capability.Payload{}, fmt.Errorf("prometheus query: %w", err)
	}
	if resp.Status != "success" {
		return capability.Payload{}, fmt.Errorf("prometheus query: %s", resp.Error)
	}

	var points []capability.Point
	for _, series := range resp.Data.Result {
		for _, sample := range series.Values {
			pt, ok := parseSample(sample)
			if !ok {
				continue
			}
			pt.Labels = series.Metric
			points = append(points, pt)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })

	return capability.Payload{Source: capability.SourcePrometheus, Points: points}, nil
}

// parseSample decodes one [timestamp, "value"] pair.
func parseSample(sample [2]any) (capability.Point, bool) {
	ts, ok := sample[0].(float64)
	if !ok {
		return capability.Point{}, false
	}
	raw, ok := sample[1].(string)
	if !ok {
		return capability.Point{}, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return capability.Point{}, false
	}
	return capability.Point{
		At:    time.Unix(int64(ts), 0).UTC(),
		Value: value,
	}, true
}

// defaultPromQL is the fallback expression when no query builder is
// configured: overall target health for the window.
func defaultPromQL(capability.QueryPlan) string {
	return "up"
}
