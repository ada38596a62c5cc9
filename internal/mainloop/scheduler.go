// Package mainloop abstracts the host UI runtime's frame queue. The engine
// is single-writer and cooperative: everything it defers runs on the next
// animation frame, and a scheduled callback can be canceled before it fires.
package mainloop

import "sync"

// FrameHandle identifies one scheduled frame callback.
type FrameHandle uint64

// FrameScheduler schedules work for the next animation frame of the host
// runtime. Implementations must run callbacks on the single UI thread, in
// submission order.
type FrameScheduler interface {
	// RequestFrame schedules fn for the next frame and returns a handle
	// usable for cancellation.
	RequestFrame(fn func()) FrameHandle
	// CancelFrame drops a scheduled callback. Unknown or already-fired
	// handles are ignored.
	CancelFrame(h FrameHandle)
}

// Coalescer merges bursts of same-key tasks into a single frame callback:
// the last function posted under a key before the frame fires is the one
// that runs. Used for persist-and-remeasure work that many tree mutations
// within one frame would otherwise repeat.
type Coalescer struct {
	mu        sync.Mutex
	scheduler FrameScheduler
	pending   map[string]FrameHandle
	callbacks map[string]func()
	destroyed bool
}

// NewCoalescer creates a coalescer submitting through scheduler.
func NewCoalescer(scheduler FrameScheduler) *Coalescer {
	if scheduler == nil {
		panic("mainloop.NewCoalescer: scheduler cannot be nil")
	}

	return &Coalescer{
		scheduler: scheduler,
		pending:   make(map[string]FrameHandle),
		callbacks: make(map[string]func()),
	}
}

// Post schedules fn under key. Posting again before the frame fires
// replaces the stored function without scheduling a second callback.
func (c *Coalescer) Post(key string, fn func()) {
	if fn == nil || key == "" {
		return
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.callbacks[key] = fn
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return
	}
	scheduler := c.scheduler
	c.mu.Unlock()

	handle := scheduler.RequestFrame(func() {
		c.mu.Lock()
		if c.destroyed {
			delete(c.pending, key)
			delete(c.callbacks, key)
			c.mu.Unlock()
			return
		}
		fn := c.callbacks[key]
		delete(c.pending, key)
		delete(c.callbacks, key)
		c.mu.Unlock()

		if fn != nil {
			fn()
		}
	})

	c.mu.Lock()
	if !c.destroyed {
		c.pending[key] = handle
	}
	c.mu.Unlock()
}

// Destroy cancels all pending work and rejects further posts.
func (c *Coalescer) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	pending := c.pending
	c.pending = map[string]FrameHandle{}
	c.callbacks = map[string]func(){}
	scheduler := c.scheduler
	c.mu.Unlock()

	for _, handle := range pending {
		scheduler.CancelFrame(handle)
	}
}
