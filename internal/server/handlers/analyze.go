// internal/server/handlers/analyze.go

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
)

const maxAnalyzeBody = 2 << 20

// AssistHandler exposes the analysis and narration collaborators. Either
// may be nil, in which case its route answers 503.
type AssistHandler struct {
	analyst  layer.Analyst
	narrator layer.Narrator
	logger   *slog.Logger
}

// NewAssistHandler creates a new assist handler
func NewAssistHandler(a layer.Analyst, n layer.Narrator, l *slog.Logger) *AssistHandler {
	return &AssistHandler{analyst: a, narrator: n, logger: logger.OrDiscard(l)}
}

type analyzeRequest struct {
	LayerKey string          `json:"layerKey"`
	Data     json.RawMessage `json:"data"`
}

type narrateRequest struct {
	Text string `json:"text"`
}

// Analyze returns a short prose summary of a layer payload
func (h *AssistHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAnalyzeBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, ok := layer.ParseKey(req.LayerKey)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid layer key")
		return
	}

	if h.analyst == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Analysis is not configured")
		return
	}

	var payload any
	if len(req.Data) > 0 {
		payload = req.Data
	}

	analysis, err := h.analyst.Analyze(r.Context(), key, payload)
	if err != nil {
		if errors.Is(err, layer.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, "Invalid layer data")
			return
		}
		h.logger.Error("analysis_failed", "layer", key, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	respondWithJSON(w, http.StatusOK, analysis)
}

// Narrate renders text to speech and streams the audio back
func (h *AssistHandler) Narrate(w http.ResponseWriter, r *http.Request) {
	var req narrateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAnalyzeBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "text is required")
		return
	}

	if h.narrator == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Narration is not configured")
		return
	}

	audio, err := h.narrator.Narrate(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("narration_failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Narration failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
