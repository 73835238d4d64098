package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

func TestPrometheus_Collect(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query_range", r.URL.Path)
		gotQuery.Store(r.URL.Query().Get("query"))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []map[string]any{
					{
						"metric": map[string]string{"instance": "api-1"},
						"values": [][2]any{
							{float64(1700000060), "0.75"},
							{float64(1700000000), "0.50"},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	prom := NewPrometheus(srv.URL)
	payload, err := prom.Collect(context.Background(), capability.QueryPlan{
		Query:  "cpu usage",
		Window: time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, capability.SourcePrometheus, payload.Source)
	require.Len(t, payload.Points, 2)
	// Samples come back in ascending time order regardless of API order.
	assert.Equal(t, 0.50, payload.Points[0].Value)
	assert.Equal(t, 0.75, payload.Points[1].Value)
	assert.Equal(t, "api-1", payload.Points[0].Labels["instance"])
	assert.Equal(t, "up", gotQuery.Load())
}

func TestPrometheus_CustomQueryBuilder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `rate(http_requests_total[5m])`, r.URL.Query().Get("query"))
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": map[string]any{}})
	}))
	defer srv.Close()

	prom := NewPrometheus(srv.URL).WithQueryBuilder(func(capability.QueryPlan) string {
		return `rate(http_requests_total[5m])`
	})
	_, err := prom.Collect(context.Background(), capability.QueryPlan{Window: time.Hour})
	require.NoError(t, err)
}

func TestPrometheus_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": "query parse error"})
	}))
	defer srv.Close()

	_, err := NewPrometheus(srv.URL).Collect(context.Background(), capability.QueryPlan{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query parse error")
}

func TestPrometheus_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": map[string]any{}})
	}))
	defer srv.Close()

	prom := NewPrometheus(srv.URL, WithRetryConfig(capability.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  1.0,
	}))
	_, err := prom.Collect(context.Background(), capability.QueryPlan{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPrometheus_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewPrometheus(srv.URL).Collect(context.Background(), capability.QueryPlan{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoki_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		assert.Equal(t, "backward", r.URL.Query().Get("direction"))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []map[string]any{
					{
						"stream": map[string]string{"job": "api"},
						"values": [][2]string{
							{"1700000060000000000", "error: timeout"},
							{"1700000000000000000", "error: refused"},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	loki := NewLoki(srv.URL)
	payload, err := loki.Collect(context.Background(), capability.QueryPlan{Window: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, capability.SourceLoki, payload.Source)
	require.Len(t, payload.Lines, 2)
	assert.Equal(t, "error: refused", payload.Lines[0].Line)
	assert.Equal(t, "error: timeout", payload.Lines[1].Line)
	assert.Equal(t, "api", payload.Lines[0].Labels["job"])
}

func TestAlertmanager_Collect(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/alerts", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("silenced"))

		json.NewEncoder(w).Encode([]map[string]any{
			{
				"labels":      map[string]string{"alertname": "HighLatency", "severity": "critical"},
				"annotations": map[string]string{"summary": "p99 above 2s"},
				"startsAt":    now.Add(-10 * time.Minute).Format(time.RFC3339),
			},
			{
				"labels":   map[string]string{"alertname": "StaleAlert"},
				"startsAt": now.Add(-48 * time.Hour).Format(time.RFC3339),
			},
		})
	}))
	defer srv.Close()

	am := NewAlertmanager(srv.URL)
	payload, err := am.Collect(context.Background(), capability.QueryPlan{Window: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, capability.SourceAlertmanager, payload.Source)
	// The stale alert falls outside the window.
	require.Len(t, payload.Alerts, 1)
	assert.Equal(t, "HighLatency", payload.Alerts[0].Name)
	assert.Equal(t, "critical", payload.Alerts[0].Severity)
	assert.Equal(t, "p99 above 2s", payload.Alerts[0].Summary)
}

func TestClient_SendsConfiguredHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tenant-42", r.Header.Get("X-Scope-OrgID"))
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": map[string]any{}})
	}))
	defer srv.Close()

	loki := NewLoki(srv.URL, WithHeader("X-Scope-OrgID", "tenant-42"))
	_, err := loki.Collect(context.Background(), capability.QueryPlan{})
	require.NoError(t, err)
}

func TestStepFor(t *testing.T) {
	assert.Equal(t, 15*time.Second, stepFor(time.Minute))
	assert.Equal(t, 15*time.Second, stepFor(time.Hour))
	assert.Equal(t, 6*time.Minute, stepFor(24*time.Hour))
}
