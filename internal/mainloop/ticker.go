package mainloop

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60Hz render loop.
const DefaultFrameInterval = 16 * time.Millisecond

// TickScheduler is a FrameScheduler for hosts with no UI main loop of their
// own: a single goroutine pumps queued callbacks at a fixed interval, so the
// single-thread and submission-order guarantees still hold.
type TickScheduler struct {
	mu      sync.Mutex
	next    FrameHandle
	queue   []FrameHandle
	frames  map[FrameHandle]func()
	stopped bool

	done chan struct{}
	stop chan struct{}
}

// NewTickScheduler starts the pump goroutine. An interval of zero takes
// DefaultFrameInterval.
func NewTickScheduler(interval time.Duration) *TickScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	s := &TickScheduler{
		frames: make(map[FrameHandle]func()),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go s.run(interval)
	return s
}

// RequestFrame implements FrameScheduler. Frames requested after Stop are
// dropped.
func (s *TickScheduler) RequestFrame(fn func()) FrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := s.next
	if s.stopped {
		return handle
	}
	s.frames[handle] = fn
	s.queue = append(s.queue, handle)
	return handle
}

// CancelFrame implements FrameScheduler.
func (s *TickScheduler) CancelFrame(h FrameHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.frames, h)
}

// Stop halts the pump after the current tick and drops queued callbacks.
// Safe to call more than once.
func (s *TickScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.frames = make(map[FrameHandle]func())
	s.queue = nil
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

func (s *TickScheduler) run(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pump()
		}
	}
}

// pump fires everything queued before this tick, in submission order.
// Callbacks scheduled while the tick runs land in the next one.
func (s *TickScheduler) pump() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	frames := make([]func(), 0, len(queue))
	for _, handle := range queue {
		if fn, ok := s.frames[handle]; ok {
			frames = append(frames, fn)
			delete(s.frames, handle)
		}
	}
	s.mu.Unlock()

	for _, fn := range frames {
		fn()
	}
}
