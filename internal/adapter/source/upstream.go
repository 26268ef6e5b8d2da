package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"metromap/internal/domain/layer"
	"metromap/internal/metrics"
)

const maxBodyBytes = 128 << 20

// DefaultUserAgent identifies outbound requests; some public APIs reject anonymous clients
const DefaultUserAgent = "metromap/1.0 (live layer aggregator)"

// Client performs time-bounded GET requests on behalf of source adapters
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a client with a pooled transport
func NewClient(userAgent string) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return NewClientWithHTTP(&http.Client{Transport: transport}, userAgent)
}

// NewClientWithHTTP wraps an existing http.Client
func NewClientWithHTTP(hc *http.Client, userAgent string) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{http: hc, userAgent: userAgent}
}

// get fetches url within timeout. Non-2xx statuses and transport errors
// become UpstreamUnavailable.
func (c *Client) get(ctx context.Context, key layer.Key, url string, timeout time.Duration, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, layer.Invalid(key, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDurationMs.WithLabelValues(string(key)).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(string(key), outcome).Inc()
		return nil, layer.Upstream(key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(string(key), "status").Inc()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, layer.Upstream(key, fmt.Errorf("GET %s: status %d", req.URL.Host, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(string(key), "error").Inc()
		return nil, layer.Upstream(key, fmt.Errorf("read body: %w", err))
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(string(key), "ok").Inc()
	return body, nil
}

// getJSON fetches url and decodes the body into v
func (c *Client) getJSON(ctx context.Context, key layer.Key, url string, timeout time.Duration, v any) error {
	body, err := c.get(ctx, key, url, timeout, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return layer.Decode(key, err)
	}
	return nil
}
