// internal/adapter/assist/analyst.go
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
)

const (
	DefaultAnalysisModel   = "anthropic/claude-haiku-4.5"
	DefaultAnalysisTimeout = 15 * time.Second
)

// AnalystConfig points at an OpenAI-compatible chat completions endpoint
type AnalystConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Analyst produces short layer summaries through a chat completions API
type Analyst struct {
	http   *http.Client
	cfg    AnalystConfig
	logger *slog.Logger
}

// NewAnalyst returns nil when no endpoint is configured
func NewAnalyst(cfg AnalystConfig, hc *http.Client, l *slog.Logger) *Analyst {
	if cfg.Endpoint == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnalysisModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAnalysisTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Analyst{http: hc, cfg: cfg, logger: logger.OrDiscard(l)}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze summarises payload for the given layer
func (a *Analyst) Analyze(ctx context.Context, key layer.Key, payload any) (layer.Analysis, error) {
	if !key.Valid() {
		return layer.Analysis{}, layer.Invalid(key, errors.New("unknown layer"))
	}
	prompt, err := BuildPrompt(key, payload)
	if err != nil {
		return layer.Analysis{}, err
	}

	headers := map[string]string{}
	if a.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.cfg.APIKey
	}

	start := time.Now()
	body, requestID, err := postJSON(ctx, a.http, a.cfg.Endpoint, a.cfg.Timeout, headers, chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		MaxTokens: prompt.MaxTokens,
	})
	if err != nil {
		a.logger.Warn("analysis_failed", "layer", key, "request_id", requestID, "error", err)
		return layer.Analysis{}, layer.Upstream(key, err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return layer.Analysis{}, layer.Decode(key, err)
	}
	if len(resp.Choices) == 0 {
		return layer.Analysis{}, layer.Decode(key, fmt.Errorf("no choices in response %s", requestID))
	}

	model := resp.Model
	if model == "" {
		model = a.cfg.Model
	}
	a.logger.Info("analysis_complete",
		"layer", key,
		"request_id", requestID,
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return layer.Analysis{
		Key:   key,
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: model,
	}, nil
}
