package layers

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"metromap/internal/domain/layer"
	"metromap/internal/logger"
)

// Fetcher loads the envelope for one layer
type Fetcher interface {
	Fetch(ctx context.Context, key layer.Key) (layer.Envelope, error)
}

// Controller owns a State and drives it from toggles: activate, load, analyze.
// Dispatches are serialized; listeners run after each state change.
type Controller struct {
	mu        sync.Mutex
	state     State
	fetcher   Fetcher
	analyst   layer.Analyst
	logger    *slog.Logger
	listeners map[int]func(State)
	nextID    int

	// bumped whenever the active layer changes
	activation uint64
}

// NewController creates a controller. A nil analyst skips analysis.
func NewController(fetcher Fetcher, analyst layer.Analyst, log *slog.Logger) *Controller {
	return &Controller{
		state:     Initial(),
		fetcher:   fetcher,
		analyst:   analyst,
		logger:    logger.OrDiscard(log),
		listeners: make(map[int]func(State)),
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive every new state
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Dispatch applies a and notifies listeners when the state changed
func (c *Controller) Dispatch(a Action) State {
	state, _, _ := c.apply(a, 0)
	return state
}

// apply reduces a under the lock. A non-zero activation must still be
// current, otherwise a is dropped. It returns the activation after a.
func (c *Controller) apply(a Action, activation uint64) (State, uint64, bool) {
	c.mu.Lock()
	prev := c.state
	if activation != 0 && activation != c.activation {
		current := c.activation
		c.mu.Unlock()
		return prev, current, false
	}
	next := Reduce(prev, a)
	c.state = next
	if next.Active != prev.Active {
		c.activation++
	}
	current := c.activation
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if !sameState(prev, next) {
		for _, fn := range listeners {
			fn(next)
		}
	}
	return next, current, true
}

// Toggle flips key. When the layer becomes active it is loaded and then
// analyzed. Results are dropped once the layer was switched off, even if it
// has been switched on again since.
func (c *Controller) Toggle(ctx context.Context, key layer.Key) State {
	state, activation, _ := c.apply(Toggle{Key: key}, 0)
	if !state.IsActive(key) {
		return state
	}

	c.apply(LoadStart{Key: key}, activation)

	env, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		c.logger.Warn("layer_load_failed", "layer", key, "error", err)
		env = layer.Empty(key, layer.UserMessage(err, layer.ConfigFor(key).FailureMessage), time.Now())
	}
	state, _, ok := c.apply(DataReady{Key: key, Payload: env}, activation)
	if !ok {
		c.logger.Debug("layer_load_superseded", "layer", key)
		return state
	}

	if c.analyst == nil || env.Error != "" {
		return state
	}
	analysis, err := c.analyst.Analyze(ctx, key, env)
	if err != nil {
		c.logger.Warn("layer_analysis_failed", "layer", key, "error", err)
		return c.State()
	}
	state, _, _ = c.apply(AnalysisReady{Key: key, Text: analysis.Text, Model: analysis.Model}, activation)
	return state
}

// sameState reports whether b is a if the reducer ignored the action.
// Ignored actions return the input unchanged, so map identity is enough.
func sameState(a, b State) bool {
	return a.Active == b.Active &&
		a.Analysis == b.Analysis &&
		a.WeatherSubType == b.WeatherSubType &&
		reflect.ValueOf(a.Loading).Pointer() == reflect.ValueOf(b.Loading).Pointer() &&
		reflect.ValueOf(a.Data).Pointer() == reflect.ValueOf(b.Data).Pointer()
}
