// internal/service/cache/manager.go

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
	"metromap/internal/metrics"
)

// ErrUnknownLayer is returned for keys with no registered source
var ErrUnknownLayer = errors.New("unknown layer")

// StaleMaxAge is the client cache lifetime advertised for stale responses
const StaleMaxAge = 5 * time.Minute

// Status describes how a Result was produced
type Status int

const (
	// StatusHit means a fresh entry was served without calling the source
	StatusHit Status = iota
	// StatusFetched means the source was called and succeeded
	StatusFetched
	// StatusStale means the source failed and a previous entry was served
	StatusStale
	// StatusUnconfigured means the source lacks a credential
	StatusUnconfigured
	// StatusFailed means the source failed and nothing was cached
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusFetched:
		return "fetched"
	case StatusStale:
		return "stale"
	case StatusUnconfigured:
		return "unconfigured"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Entry is one cached envelope. Entries are replaced, never mutated.
type Entry struct {
	Envelope  layer.Envelope
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry is still within its TTL at now
func (e *Entry) Fresh(now time.Time) bool {
	return e != nil && now.Sub(e.FetchedAt) < e.TTL
}

// Result is what callers get back from Get
type Result struct {
	Envelope layer.Envelope
	Status   Status
	TTL      time.Duration
}

// HTTPStatus is the response status for this result
func (r Result) HTTPStatus() int {
	if r.Status == StatusFailed {
		if code := layer.ConfigFor(r.Envelope.Layer).FailureStatus; code != 0 {
			return code
		}
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// MaxAge is the Cache-Control max-age for this result
func (r Result) MaxAge() time.Duration {
	switch r.Status {
	case StatusStale:
		return StaleMaxAge
	case StatusFailed, StatusUnconfigured:
		return 0
	}
	return r.TTL
}

type registration struct {
	source layer.Source
	ttl    time.Duration
}

// Config configures a Manager
type Config struct {
	// Now overrides the clock, for tests
	Now func() time.Time

	Logger *slog.Logger
}

// Manager caches layer envelopes per source with a TTL. Concurrent misses
// for the same key share one upstream call.
type Manager struct {
	mu      sync.RWMutex
	sources map[layer.Key]registration
	entries map[layer.Key]*Entry
	group   singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

// NewManager creates an empty cache manager
func NewManager(cfg Config) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sources: make(map[layer.Key]registration),
		entries: make(map[layer.Key]*Entry),
		now:     now,
		logger:  logger.OrDiscard(cfg.Logger),
	}
}

// Register adds a source with its TTL, replacing any previous source for the key
func (m *Manager) Register(src layer.Source, ttl time.Duration) error {
	if src == nil {
		return errors.New("nil source")
	}
	if ttl <= 0 {
		return fmt.Errorf("layer %s: ttl must be positive, got %s", src.Key(), ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.Key()] = registration{source: src, ttl: ttl}
	delete(m.entries, src.Key())
	return nil
}

// Keys returns the registered layer keys in catalogue order
func (m *Manager) Keys() []layer.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]layer.Key, 0, len(m.sources))
	for k := range m.sources {
		keys = append(keys, k)
	}
	order := make(map[layer.Key]int, len(layer.Keys))
	for i, k := range layer.Keys {
		order[k] = i
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// TTL returns the registered TTL for key
func (m *Manager) TTL(key layer.Key) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.sources[key]
	return reg.ttl, ok
}

// Peek returns the current entry for key without fetching
func (m *Manager) Peek(key layer.Key) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

// Get returns the envelope for key. Only an unregistered key is an error;
// source failures are folded into the Result.
func (m *Manager) Get(ctx context.Context, key layer.Key) (Result, error) {
	m.mu.RLock()
	reg, ok := m.sources[key]
	entry := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownLayer, key)
	}

	if entry.Fresh(m.now()) {
		metrics.CacheLookupsTotal.WithLabelValues(string(key), StatusHit.String()).Inc()
		return Result{Envelope: entry.Envelope, Status: StatusHit, TTL: reg.ttl}, nil
	}

	res := m.do(ctx, reg, false)
	metrics.CacheLookupsTotal.WithLabelValues(string(key), res.Status.String()).Inc()
	return res, nil
}

// Refresh calls the source for key even when the cached entry is fresh.
// Failures fold into the Result exactly as they do for Get.
func (m *Manager) Refresh(ctx context.Context, key layer.Key) (Result, error) {
	m.mu.RLock()
	reg, ok := m.sources[key]
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownLayer, key)
	}
	return m.do(ctx, reg, true), nil
}

// do runs one refresh per key at a time. Forced refreshes use their own
// flight so they never settle for a concurrent Get's cache hit.
func (m *Manager) do(ctx context.Context, reg registration, force bool) Result {
	name := string(reg.source.Key())
	if force {
		name += "#refresh"
	}
	// the flight outlives any single caller; the source's own timeout bounds it
	flightCtx := context.WithoutCancel(ctx)
	v, _, _ := m.group.Do(name, func() (any, error) {
		return m.refresh(flightCtx, reg, force), nil
	})
	return v.(Result)
}

// Fetch adapts Get to the fetcher contract used by the layer controller
func (m *Manager) Fetch(ctx context.Context, key layer.Key) (layer.Envelope, error) {
	res, err := m.Get(ctx, key)
	if err != nil {
		return layer.Envelope{}, err
	}
	return res.Envelope, nil
}

// GetAll fetches every registered layer concurrently
func (m *Manager) GetAll(ctx context.Context) map[layer.Key]Result {
	keys := m.Keys()
	results := make(map[layer.Key]Result, len(keys))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k layer.Key) {
			defer wg.Done()
			res, err := m.Get(ctx, k)
			if err != nil {
				return
			}
			mu.Lock()
			results[k] = res
			mu.Unlock()
		}(k)
	}
	wg.Wait()

	return results
}

// refresh calls the source unless another flight already filled the entry.
// The entry is stamped with the time the call started, so a caller polling
// once per TTL always finds it expired.
func (m *Manager) refresh(ctx context.Context, reg registration, force bool) Result {
	key := reg.source.Key()

	m.mu.RLock()
	prev := m.entries[key]
	m.mu.RUnlock()
	if !force && prev.Fresh(m.now()) {
		return Result{Envelope: prev.Envelope, Status: StatusHit, TTL: reg.ttl}
	}

	start := m.now()
	env, err := m.fetch(ctx, reg.source)
	if err == nil {
		env.Layer = key
		if env.Items == nil {
			env.Items = []layer.Point{}
		}
		entry := &Entry{Envelope: env, FetchedAt: start, TTL: reg.ttl}

		m.mu.Lock()
		m.entries[key] = entry
		m.mu.Unlock()

		m.logger.Debug("layer_fetched", "layer", key, "count", env.Count, "elapsed", m.now().Sub(start))
		return Result{Envelope: env, Status: StatusFetched, TTL: reg.ttl}
	}

	if errors.Is(err, layer.ErrConfigurationMissing) {
		m.logger.Debug("layer_unconfigured", "layer", key, "error", err)
		return Result{
			Envelope: layer.Empty(key, layer.UserMessage(err, ""), m.now()),
			Status:   StatusUnconfigured,
			TTL:      reg.ttl,
		}
	}

	cfg := layer.ConfigFor(key)
	if prev != nil {
		m.logger.Warn("layer_fetch_failed_serving_stale", "layer", key, "error", err, "age", m.now().Sub(prev.FetchedAt))
		stale := prev.Envelope
		stale.Stale = true
		stale.Error = cfg.FailureMessage
		return Result{Envelope: stale, Status: StatusStale, TTL: reg.ttl}
	}

	m.logger.Error("layer_fetch_failed", "layer", key, "error", err)
	return Result{
		Envelope: layer.Empty(key, cfg.FailureMessage, m.now()),
		Status:   StatusFailed,
		TTL:      reg.ttl,
	}
}

// fetch calls the source, converting a panic into an error
func (m *Manager) fetch(ctx context.Context, src layer.Source) (env layer.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = layer.Decode(src.Key(), fmt.Errorf("source panicked: %v", r))
		}
	}()
	return src.Fetch(ctx)
}
