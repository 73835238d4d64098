// Package sources provides capability.DataSource adapters for the
// monitoring backends: Prometheus (metrics), Loki (logs), and
// Alertmanager (alerts).
//
// Each adapter owns its HTTP client, query construction, and retry
// policy. The engine treats a failed adapter as a recorded non-fatal
// result, so adapters return plain errors and never panic.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

const defaultHTTPTimeout = 10 * time.Second

// client is the shared HTTP plumbing for the three adapters.
type client struct {
	baseURL string
	http    *http.Client
	retry   capability.RetryConfig
	headers map[string]string
}

func newClient(baseURL string, opts ...ClientOption) client {
	c := client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		retry:   capability.DefaultRetry,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ClientOption configures a source adapter's HTTP behavior.
type ClientOption func(*client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryConfig replaces the default retry policy.
func WithRetryConfig(cfg capability.RetryConfig) ClientOption {
	return func(c *client) {
		c.retry = cfg
	}
}

// WithHeader adds a header to every request (e.g. auth or tenant IDs).
func WithHeader(key, value string) ClientOption {
	return func(c *client) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// getJSON performs a GET with retries and decodes the JSON response into
// out. 5xx and 429 responses are transient; other non-2xx are permanent.
func (c client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := capability.WithRetry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, capability.Transient("http get", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, capability.Transient("read body", err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, capability.Transient("http get",
				fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 256)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 256))
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// stepFor picks a range-query resolution that yields a manageable number
// of samples for the window.
func stepFor(window time.Duration) time.Duration {
	step := window / 240
	if step < 15*time.Second {
		step = 15 * time.Second
	}
	return step.Round(time.Second)
}
