package mainloop

import "sync"

// ManualScheduler is a deterministic FrameScheduler for tests and headless
// use: frames fire only when the owner pumps them with RunFrame.
type ManualScheduler struct {
	mu     sync.Mutex
	next   FrameHandle
	queue  []FrameHandle
	frames map[FrameHandle]func()
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{frames: make(map[FrameHandle]func())}
}

// RequestFrame implements FrameScheduler.
func (s *ManualScheduler) RequestFrame(fn func()) FrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := s.next
	s.frames[handle] = fn
	s.queue = append(s.queue, handle)
	return handle
}

// CancelFrame implements FrameScheduler.
func (s *ManualScheduler) CancelFrame(h FrameHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.frames, h)
}

// Pending returns the number of scheduled, uncanceled callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.frames)
}

// RunFrame fires every callback scheduled so far, in submission order.
// Callbacks scheduled while the frame runs land in the next frame.
func (s *ManualScheduler) RunFrame() {
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
