package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// Alertmanager collects active alerts via the Alertmanager v2 API.
type Alertmanager struct {
	client client

	// includeSilenced also returns silenced and inhibited alerts.
	includeSilenced bool
}

// NewAlertmanager creates an Alertmanager adapter for the given base URL
// (e.g. "http://alertmanager:9093").
func NewAlertmanager(baseURL string, opts ...ClientOption) *Alertmanager {
	return &Alertmanager{client: newClient(baseURL, opts...)}
}

// IncludeSilenced also returns silenced and inhibited alerts.
func (a *Alertmanager) IncludeSilenced() *Alertmanager {
	a.includeSilenced = true
	return a
}

// Name implements capability.DataSource.
func (a *Alertmanager) Name() capability.Source { return capability.SourceAlertmanager }

type amAlert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	Status      struct {
		State string `json:"state"`
	} `json:"status"`
}

// Collect implements capability.DataSource. The query plan's window
// filters out alerts that started before it.
func (a *Alertmanager) Collect(ctx context.Context, plan capability.QueryPlan) (capability.Payload, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("silenced", boolParam(a.includeSilenced))
	q.Set("inhibited", boolParam(a.includeSilenced))

	var raw []amAlert
	if err := a.client.getJSON(ctx, "/api/v2/alerts", q, &raw); err != nil {
		return capability.Payload{}, fmt.Errorf("alertmanager query: %w", err)
	}

	var cutoff time.Time
	if plan.Window > 0 {
		cutoff = time.Now().UTC().Add(-plan.Window)
	}

	var alerts []capability.Alert
	for _, al := range raw {
		if !cutoff.IsZero() && al.StartsAt.Before(cutoff) {
			continue
		}
		alerts = append(alerts, capability.Alert{
			Name:     al.Labels["alertname"],
			Severity: al.Labels["severity"],
			Summary:  al.Annotations["summary"],
			StartsAt: al.StartsAt.UTC(),
			Labels:   al.Labels,
		})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].StartsAt.Before(alerts[j].StartsAt) })

	return capability.Payload{Source: capability.SourceAlertmanager, Alerts: alerts}, nil
}

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
