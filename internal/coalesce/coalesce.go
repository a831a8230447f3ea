// Package coalesce batches items that arrive in bursts so the consumer can
// process them together.
//
// The server decodes client input into events. A paste or a held key yields
// many events in quick succession, and rendering a frame after each one
// would flood every attached client. The Coalescer accumulates items and
// flushes when:
//
//   - the deadline expires (measured from the first item in a batch, NOT
//     reset by subsequent adds: deadline semantics, not debounce)
//   - the threshold is reached
//   - Flush() is called explicitly (detach, shutdown)
package coalesce

import "time"

const (
	// DefaultDelay is one frame at ~60 Hz.
	DefaultDelay = 16 * time.Millisecond

	// DefaultThreshold triggers an immediate flush when reached.
	DefaultThreshold = 256
)

// Coalescer accumulates items and flushes on deadline or threshold.
// All methods are used from a single goroutine (the select loop).
type Coalescer[T any] struct {
	buf       []T
	delay     time.Duration
	threshold int
	timer     *time.Timer
	armed     bool // true when timer is running
}

// New creates a Coalescer. Non-positive arguments select the defaults.
func New[T any](delay time.Duration, threshold int) *Coalescer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	t := time.NewTimer(0)
	// Drain the initial fire from NewTimer(0) so Timer() starts clean
	if !t.Stop() {
		<-t.C
	}
	return &Coalescer[T]{
		buf:       make([]T, 0, threshold),
		delay:     delay,
		threshold: threshold,
		timer:     t,
	}
}

// Add appends items to the batch. Returns true if the threshold was reached
// and the caller should flush immediately.
//
// Arms the deadline timer on the first item in a batch. Subsequent adds do
// NOT reset the timer.
func (c *Coalescer[T]) Add(items ...T) bool {
	if len(items) == 0 {
		return false
	}

	if len(c.buf) == 0 && !c.armed {
		c.timer.Reset(c.delay)
		c.armed = true
	}

	c.buf = append(c.buf, items...)
	return len(c.buf) >= c.threshold
}

// Flush returns the accumulated items and resets the batch.
// Returns nil if the batch is empty. The returned slice is a copy
// that the caller owns.
func (c *Coalescer[T]) Flush() []T {
	if len(c.buf) == 0 {
		return nil
	}

	if c.armed {
		if !c.timer.Stop() {
			// Timer already fired: drain the channel so it doesn't
			// trigger a spurious select case later.
			select {
			case <-c.timer.C:
			default:
			}
		}
		c.armed = false
	}

	out := make([]T, len(c.buf))
	copy(out, c.buf)
	clear(c.buf)
	c.buf = c.buf[:0]
	return out
}

// Timer returns the channel that fires when the batch deadline expires.
// Use this in a select statement:
//
//	case <-coal.Timer():
//	    events := coal.Flush()
//	    // apply events, draw once
//
// Returns a nil channel when no deadline is active (nil channels block forever
// in select, effectively disabling the case).
func (c *Coalescer[T]) Timer() <-chan time.Time {
	if !c.armed {
		return nil
	}
	return c.timer.C
}

// Stop releases the timer. Call in defer when done with the Coalescer.
func (c *Coalescer[T]) Stop() {
	c.timer.Stop()
	c.armed = false
}

// Pending returns the number of buffered items.
func (c *Coalescer[T]) Pending() int {
	return len(c.buf)
}
