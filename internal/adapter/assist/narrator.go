package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"metromap/internal/logger"
)

const (
	DefaultNarrationEndpoint = "https://api.cartesia.ai/tts/bytes"
	DefaultVoiceID           = "b7d50908-b17c-442d-ad8d-810c63997ed9"
	defaultNarrationModel    = "sonic-2"
	cartesiaVersion          = "2024-11-13"
	narrationSampleRate      = 24000
	DefaultNarrationTimeout  = 20 * time.Second
	maxNarrationChars        = 2000
)

var ErrEmptyText = errors.New("narration text is empty")

type NarratorConfig struct {
	Endpoint string
	APIKey   string
	VoiceID  string
	Timeout  time.Duration
}

// Narrator renders text to WAV audio with the Cartesia TTS bytes API
type Narrator struct {
	http   *http.Client
	cfg    NarratorConfig
	logger *slog.Logger
}

// NewNarrator returns nil when no API key is configured
func NewNarrator(cfg NarratorConfig, hc *http.Client, l *slog.Logger) *Narrator {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultNarrationEndpoint
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNarrationTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Narrator{http: hc, cfg: cfg, logger: logger.OrDiscard(l)}
}

type ttsVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type ttsFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type ttsRequest struct {
	ModelID      string    `json:"model_id"`
	Transcript   string    `json:"transcript"`
	Voice        ttsVoice  `json:"voice"`
	OutputFormat ttsFormat `json:"output_format"`
	Language     string    `json:"language"`
}

// Narrate returns WAV bytes for text
func (n *Narrator) Narrate(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxNarrationChars {
		text = strings.ToValidUTF8(text[:maxNarrationChars], "")
	}

	audio, requestID, err := postJSON(ctx, n.http, n.cfg.Endpoint, n.cfg.Timeout,
		map[string]string{
			"X-API-Key":        n.cfg.APIKey,
			"Cartesia-Version": cartesiaVersion,
		},
		ttsRequest{
			ModelID:    defaultNarrationModel,
			Transcript: text,
			Voice:      ttsVoice{Mode: "id", ID: n.cfg.VoiceID},
			OutputFormat: ttsFormat{
				Container:  "wav",
				Encoding:   "pcm_s16le",
				SampleRate: narrationSampleRate,
			},
			Language: "en",
		})
	if err != nil {
		n.logger.Warn("narration_failed", "request_id", requestID, "error", err)
		return nil, fmt.Errorf("narrate: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("narrate: empty audio response")
	}
	n.logger.Debug("narration_complete", "request_id", requestID, "bytes", len(audio))
	return audio, nil
}
