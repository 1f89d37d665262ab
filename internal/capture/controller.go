// Package capture implements the three-state capture mode machine that
// governs what the audio callback writes into the capture ring buffer.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/trungkh/alexa-emulator/internal/ringbuf"
)

// Mode is one of Live, Recording, Stopped.
type Mode int32

const (
	// Live is the default detector-feeding mode: every frame is written.
	Live Mode = iota
	// Recording writes at most Remaining frames, decrementing as it goes.
	Recording
	// Stopped writes nothing; drain-only.
	Stopped
)

func (m Mode) String() string {
	switch m {
	case Live:
		return "LIVE"
	case Recording:
		return "RECORDING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Controller owns the capture ring buffer's mode and remaining-frame budget.
// The orchestrator and the multipart builder publish the transitions into
// Recording and Live; the audio callback decrements remaining and publishes
// the transition into Stopped.
type Controller struct {
	mode      atomic.Int32
	remaining atomic.Int64

	mu   sync.Mutex
	ring *ringbuf.Ring
}

// NewController wraps the given capture ring with a mode/remaining pair
// initialized to Live.
func NewController(ring *ringbuf.Ring) *Controller {
	c := &Controller{ring: ring}
	c.mode.Store(int32(Live))
	return c
}

// Ring returns the underlying capture ring buffer.
func (c *Controller) Ring() *ringbuf.Ring {
	return c.ring
}

// Mode returns the current mode with acquire semantics.
func (c *Controller) Mode() Mode {
	return Mode(c.mode.Load())
}

// Remaining returns the current remaining-frame budget.
func (c *Controller) Remaining() int64 {
	return c.remaining.Load()
}

// Lock acquires the capture mutex guarding non-callback access to the ring.
// The callback never takes this lock.
func (c *Controller) Lock() {
	c.mu.Lock()
}

// Unlock releases the capture mutex.
func (c *Controller) Unlock() {
	c.mu.Unlock()
}

// EnterRecording completes the four-step transition into Recording: the
// caller flushes the ring and stages the preamble bytes, then this sets the
// remaining-frame budget and publishes mode = Recording with a release
// store. Callers must hold the lock (via Lock/Unlock) around the
// combination of flush, staging writes and this call so the preamble is
// fully written before the callback observes Recording.
func (c *Controller) EnterRecording(frames int64) {
	c.remaining.Store(frames)
	c.mode.Store(int32(Recording))
}

// EnterLive transitions back to Live, ready for the next turn's detector
// gate.
func (c *Controller) EnterLive() {
	c.mode.Store(int32(Live))
}

// AcceptCallback is invoked by the real-time audio callback with the
// captured samples of one callback period. It
// writes according to the current mode and, in Recording mode, decrements
// the remaining budget and transitions to Stopped when it reaches zero. It
// never allocates and never blocks.
func (c *Controller) AcceptCallback(input []int16) {
	switch Mode(c.mode.Load()) {
	case Live:
		if c.ring.WriteAvailable() >= len(input) {
			c.ring.Write(input)
		}
		// else: overflow tolerated while idle, per spec.
	case Recording:
		remaining := c.remaining.Load()
		n := int64(len(input))
		if n > remaining {
			n = remaining
		}
		written := c.ring.Write(input[:n])
		left := remaining - int64(written)
		if left < 0 {
			left = 0
		}
		c.remaining.Store(left)
		if left == 0 {
			c.mode.Store(int32(Stopped))
		}
	case Stopped:
		// no capture write
	}
}
