// internal/server/handlers/layers.go

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
	"metromap/internal/service/cache"
)

// LayerCache is the part of the cache manager the HTTP layer reads from
type LayerCache interface {
	Keys() []layer.Key
	TTL(key layer.Key) (time.Duration, bool)
	Get(ctx context.Context, key layer.Key) (cache.Result, error)
	GetAll(ctx context.Context) map[layer.Key]cache.Result
}

// LayerHandler serves layer envelopes and the layer catalogue
type LayerHandler struct {
	cache  LayerCache
	logger *slog.Logger
}

// NewLayerHandler creates a new layer handler
func NewLayerHandler(c LayerCache, l *slog.Logger) *LayerHandler {
	return &LayerHandler{cache: c, logger: logger.OrDiscard(l)}
}

// Catalog lists the registered layers with their effective TTLs
func (h *LayerHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	keys := h.cache.Keys()
	out := make([]layer.Config, 0, len(keys))
	for _, k := range keys {
		cfg := layer.ConfigFor(k)
		if ttl, ok := h.cache.TTL(k); ok {
			cfg.TTL = ttl
			cfg.TTLSeconds = int(ttl / time.Second)
		}
		out = append(out, cfg)
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"layers": out})
}

// GetLayer returns one layer envelope
func (h *LayerHandler) GetLayer(w http.ResponseWriter, r *http.Request) {
	key, ok := layer.ParseKey(chi.URLParam(r, "key"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "Unknown layer")
		return
	}

	res, err := h.cache.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, cache.ErrUnknownLayer) {
			respondWithError(w, http.StatusNotFound, "Layer not enabled")
			return
		}
		h.logger.Error("layer_lookup_failed", "layer", key, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load layer")
		return
	}

	status := res.HTTPStatus()
	if status >= 500 {
		h.logger.Warn("layer_unavailable", "layer", key, "status", status)
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", cacheControl(res.MaxAge()))
	}
	w.Header().Set("X-Cache", res.Status.String())
	respondWithJSON(w, status, res.Envelope)
}

// GetAll returns every registered layer, fetched concurrently
func (h *LayerHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	results := h.cache.GetAll(r.Context())

	layers := make(map[layer.Key]layer.Envelope, len(results))
	var maxAge time.Duration = -1
	for k, res := range results {
		layers[k] = res.Envelope
		if age := res.MaxAge(); maxAge < 0 || age < maxAge {
			maxAge = age
		}
	}
	if maxAge < 0 {
		maxAge = 0
	}

	w.Header().Set("Cache-Control", cacheControl(maxAge))
	respondWithJSON(w, http.StatusOK, map[string]any{
		"layers":    layers,
		"count":     len(layers),
		"fetchedAt": time.Now().UTC(),
	})
}

func cacheControl(maxAge time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(maxAge/time.Second))
}
