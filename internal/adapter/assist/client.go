package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"metromap/internal/domain/layer"
)

const maxResponseBytes = 16 << 20

// postJSON sends body to url and returns the raw response. Transport
// failures and non-2xx statuses wrap layer.ErrUpstreamUnavailable.
func postJSON(ctx context.Context, hc *http.Client, url string, timeout time.Duration, headers map[string]string, body any) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, requestID, fmt.Errorf("%w: %v", layer.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, requestID, fmt.Errorf("%w: read body: %v", layer.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, requestID, fmt.Errorf("%w: status %d: %s", layer.ErrUpstreamUnavailable, resp.StatusCode, snippet(data))
	}
	return data, requestID, nil
}

func snippet(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
