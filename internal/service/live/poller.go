// internal/service/live/poller.go
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
	"metromap/internal/metrics"
	"metromap/internal/service/cache"
)

const (
	DefaultSubjectPrefix = "layers"
	minPollInterval      = time.Second
)

// DefaultLayers are the feeds that change fast enough to stream
var DefaultLayers = []layer.Key{layer.Transit, layer.Aircraft}

// Publisher is satisfied by *nats.Conn
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Getter is the part of the cache manager the poller needs
type Getter interface {
	Refresh(ctx context.Context, key layer.Key) (cache.Result, error)
	TTL(key layer.Key) (time.Duration, bool)
}

// Update is the event published whenever a layer has new data
type Update struct {
	ID          string         `json:"id"`
	Layer       layer.Key      `json:"layer"`
	Status      string         `json:"status"`
	Envelope    layer.Envelope `json:"envelope"`
	PublishedAt time.Time      `json:"publishedAt"`
}

// Subject returns the NATS subject carrying updates for key
func Subject(prefix string, key layer.Key) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.%s.updated", prefix, key)
}

type Config struct {
	Layers        []layer.Key
	SubjectPrefix string
	Now           func() time.Time
}

// Poller refreshes live layers through the cache once per TTL and
// publishes each new envelope.
type Poller struct {
	getter Getter
	pub    Publisher
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	last map[layer.Key]time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPoller(g Getter, pub Publisher, cfg Config, l *slog.Logger) *Poller {
	if cfg.Layers == nil {
		cfg.Layers = DefaultLayers
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		getter: g,
		pub:    pub,
		cfg:    cfg,
		logger: logger.OrDiscard(l),
		last:   make(map[layer.Key]time.Time),
	}
}

// Start launches one polling loop per configured layer
func (p *Poller) Start(ctx context.Context) error {
	intervals := make(map[layer.Key]time.Duration, len(p.cfg.Layers))
	for _, key := range p.cfg.Layers {
		ttl, ok := p.getter.TTL(key)
		if !ok {
			return fmt.Errorf("live layer %q is not registered", key)
		}
		if ttl < minPollInterval {
			ttl = minPollInterval
		}
		intervals[key] = ttl
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for _, key := range p.cfg.Layers {
		p.wg.Add(1)
		go p.run(ctx, key, intervals[key])
	}
	p.logger.Info("live_poller_started", "layers", p.cfg.Layers)
	return nil
}

// Stop cancels every loop and waits for them to exit
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, key layer.Key, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx, key); err != nil {
			p.logger.Warn("live_poll_failed", "layer", key, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll refreshes key through the cache and publishes it if the envelope is
// newer than the last one sent. It reports whether an update went out.
func (p *Poller) Poll(ctx context.Context, key layer.Key) (bool, error) {
	res, err := p.getter.Refresh(ctx, key)
	if err != nil {
		return false, err
	}
	if res.Status == cache.StatusUnconfigured || res.Status == cache.StatusFailed {
		return false, nil
	}

	fetchedAt := res.Envelope.FetchedAt
	p.mu.Lock()
	prev, seen := p.last[key]
	p.mu.Unlock()
	if seen && !fetchedAt.After(prev) {
		return false, nil
	}

	data, err := json.Marshal(Update{
		ID:          uuid.NewString(),
		Layer:       key,
		Status:      res.Status.String(),
		Envelope:    res.Envelope,
		PublishedAt: p.cfg.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("encode update: %w", err)
	}
	if err := p.pub.Publish(Subject(p.cfg.SubjectPrefix, key), data); err != nil {
		return false, fmt.Errorf("publish %s: %w", key, err)
	}

	p.mu.Lock()
	p.last[key] = fetchedAt
	p.mu.Unlock()
	metrics.LiveUpdatesTotal.WithLabelValues(string(key)).Inc()
	return true, nil
}
