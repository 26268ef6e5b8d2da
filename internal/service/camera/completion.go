package camera

import (
	"context"
	"sync"
	"time"
)

// Cause records which trigger resolved a Completion.
type Cause int

const (
	CausePending Cause = iota
	CauseMoveEnd
	CauseTimeout
	CauseSkipped
)

func (c Cause) String() string {
	switch c {
	case CauseMoveEnd:
		return "moveend"
	case CauseTimeout:
		return "timeout"
	case CauseSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Completion is resolved exactly once when a camera movement settles.
type Completion struct {
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	cause Cause
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolved returns a completion that is already settled.
func Resolved() *Completion {
	c := newCompletion()
	c.resolve(CauseSkipped)
	return c
}

// resolve settles the completion and reports whether this call won.
func (c *Completion) resolve(cause Cause) bool {
	won := false
	c.once.Do(func() {
		c.mu.Lock()
		c.cause = cause
		c.mu.Unlock()
		close(c.done)
		won = true
	})
	return won
}

// Done is closed once the movement has settled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether the completion has resolved.
func (c *Completion) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Cause returns the trigger that resolved the completion.
func (c *Completion) Cause() Cause {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Wait blocks until the completion resolves or ctx ends.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// race subscribes to the move-end event, arms a fallback timer and then
// calls start. The first trigger to fire resolves the completion; the
// other one is stopped or unsubscribed.
func race(subscribe func(func()) func(), fallback time.Duration, start func()) *Completion {
	c := newCompletion()

	var (
		mu          sync.Mutex
		unsubscribe func()
		timer       *time.Timer
	)
	release := func() {
		mu.Lock()
		u, t := unsubscribe, timer
		mu.Unlock()
		if t != nil {
			t.Stop()
		}
		if u != nil {
			u()
		}
	}
	finish := func(cause Cause) {
		if c.resolve(cause) {
			release()
		}
	}

	u := sync.OnceFunc(subscribe(func() { finish(CauseMoveEnd) }))
	t := time.AfterFunc(fallback, func() { finish(CauseTimeout) })
	mu.Lock()
	unsubscribe, timer = u, t
	mu.Unlock()

	// The event may have fired before the handles were stored.
	if c.Settled() {
		release()
	}

	start()
	return c
}
