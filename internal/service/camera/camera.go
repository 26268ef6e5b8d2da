// internal/service/camera/camera.go
package camera

import (
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"metromap/internal/logger"
	"metromap/internal/service/geo"
)

const (
	DefaultZoom     = 14.0
	DefaultPitch    = 50.0
	DefaultBearing  = 0.0
	DefaultDuration = 1500 * time.Millisecond
	DefaultCurve    = 1.42

	DefaultFitPadding  = 100.0
	DefaultFitMaxZoom  = 16.0
	DefaultFitDuration = 1200 * time.Millisecond

	// completionGrace is added to the animation duration before the
	// fallback timer resolves a movement that never reported move-end.
	completionGrace = 500 * time.Millisecond
)

// DefaultCenter is downtown Orlando.
var DefaultCenter = orb.Point{-81.3792, 28.5383}

// Target is a single camera flight.
type Target struct {
	Center    orb.Point
	Zoom      float64
	Pitch     float64
	Bearing   float64
	Duration  time.Duration
	Curve     float64
	Essential bool
}

type Padding struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// UniformPadding pads every side by p.
func UniformPadding(p float64) Padding {
	return Padding{Top: p, Bottom: p, Left: p, Right: p}
}

// FitOptions control FitBounds.
type FitOptions struct {
	Padding  Padding
	MaxZoom  float64
	Duration time.Duration

	durationSet bool
}

// Surface is the map being driven. OnMoveEnd handlers may unsubscribe from
// inside the callback, so implementations must not hold locks while
// invoking them.
type Surface interface {
	Stop()
	FlyTo(t Target)
	FitBounds(b orb.Bound, opts FitOptions)
	OnMoveEnd(fn func()) (unsubscribe func())
}

type FlyOption func(*Target)

func WithZoom(z float64) FlyOption           { return func(t *Target) { t.Zoom = z } }
func WithPitch(p float64) FlyOption          { return func(t *Target) { t.Pitch = p } }
func WithBearing(b float64) FlyOption        { return func(t *Target) { t.Bearing = b } }
func WithDuration(d time.Duration) FlyOption { return func(t *Target) { t.Duration = d } }
func WithCurve(c float64) FlyOption          { return func(t *Target) { t.Curve = c } }

type FitOption func(*FitOptions)

func WithPadding(p Padding) FitOption { return func(o *FitOptions) { o.Padding = p } }
func WithMaxZoom(z float64) FitOption { return func(o *FitOptions) { o.MaxZoom = z } }
func WithFitDuration(d time.Duration) FitOption {
	return func(o *FitOptions) {
		o.Duration = d
		o.durationSet = true
	}
}

// NewTarget builds a flight to center with the default camera settings.
func NewTarget(center orb.Point, opts ...FlyOption) Target {
	t := Target{
		Center:    center,
		Zoom:      DefaultZoom,
		Pitch:     DefaultPitch,
		Bearing:   DefaultBearing,
		Duration:  DefaultDuration,
		Curve:     DefaultCurve,
		Essential: true,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func newFitOptions(opts ...FitOption) FitOptions {
	o := FitOptions{
		Padding:  UniformPadding(DefaultFitPadding),
		MaxZoom:  DefaultFitMaxZoom,
		Duration: DefaultFitDuration,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Controller serialises camera movements on one surface. Starting a new
// movement stops whatever the surface was doing.
type Controller struct {
	mu      sync.Mutex
	surface Surface
	logger  *slog.Logger
}

func NewController(s Surface, l *slog.Logger) *Controller {
	return &Controller{surface: s, logger: logger.OrDiscard(l)}
}

// FlyToPoint animates the camera to center. Invalid coordinates are logged
// and produce an already-resolved completion without touching the surface.
func (c *Controller) FlyToPoint(center orb.Point, opts ...FlyOption) *Completion {
	if !geo.ValidPoint(center) {
		c.logger.Warn("camera_invalid_coordinates",
			"lng", center.Lon(),
			"lat", center.Lat(),
		)
		return Resolved()
	}
	t := NewTarget(center, opts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.surface.Stop()
	return race(c.surface.OnMoveEnd, t.Duration+completionGrace, func() {
		c.surface.FlyTo(t)
	})
}

// FitBoundsToPoints frames every valid point. A single distinct point
// becomes a FlyToPoint, carrying over only an explicit duration.
func (c *Controller) FitBoundsToPoints(points []orb.Point, opts ...FitOption) *Completion {
	valid := distinctValid(points)
	o := newFitOptions(opts...)

	switch len(valid) {
	case 0:
		c.logger.Warn("camera_no_valid_points", "count", len(points))
		return Resolved()
	case 1:
		var fly []FlyOption
		if o.durationSet {
			fly = append(fly, WithDuration(o.Duration))
		}
		return c.FlyToPoint(valid[0], fly...)
	}

	bound := orb.MultiPoint(valid).Bound()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.surface.Stop()
	return race(c.surface.OnMoveEnd, o.Duration+completionGrace, func() {
		c.surface.FitBounds(bound, o)
	})
}

// CalculateCenter is the mean of the valid points, or DefaultCenter.
func CalculateCenter(points []orb.Point) orb.Point {
	return geo.Mean(points, DefaultCenter)
}

func distinctValid(points []orb.Point) []orb.Point {
	seen := make(map[orb.Point]struct{}, len(points))
	out := make([]orb.Point, 0, len(points))
	for _, p := range points {
		if !geo.ValidPoint(p) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
