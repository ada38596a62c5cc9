// Package minimap owns the observer window's lifecycle and decides when to
// ask the snapshot aggregator for a new bundle. Updates are event-driven off
// pane dirty signals and frame-coalesced: any number of triggers within one
// frame collapse into a single capture-and-push.
package minimap

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/logging"
	"github.com/wizterm/wizterm/internal/mainloop"
	"github.com/wizterm/wizterm/internal/registry"
	"github.com/wizterm/wizterm/internal/snapshot"
)

// Observer window height clamp. A transient bad content measurement must
// not drive the window into a runaway resize.
const (
	DefaultMinHeight = 50.0
	DefaultMaxHeight = 10000.0
)

// aspectTolerance is the smallest aspect-ratio change worth a resize.
const aspectTolerance = 0.01

// State is the synchronizer lifecycle state. Opening and Closing are
// transient and only observable while a toggle is in flight.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options wires a synchronizer's collaborators.
type Options struct {
	Registry   *registry.Registry
	Aggregator *snapshot.Aggregator
	// Tree returns the current layout revision to snapshot.
	Tree      func() layout.Tree
	Scheduler mainloop.FrameScheduler
	// OpenWindow creates the observer window when the minimap is toggled on.
	OpenWindow WindowFactory
	// OnFocusRequest receives pane ids the observer asks to focus. Optional.
	OnFocusRequest func(paneID string)
	Logger         zerolog.Logger

	// Height clamp overrides; zero values take the defaults.
	MinHeight float64
	MaxHeight float64
}

// Synchronizer keeps one observer window live against the layout. At most
// one capture is pending at any time; its frame handle is tracked so a
// close can cancel it before the capture touches a torn-down window.
type Synchronizer struct {
	registry   *registry.Registry
	aggregator *snapshot.Aggregator
	tree       func() layout.Tree
	scheduler  mainloop.FrameScheduler
	openWindow WindowFactory
	onFocus    func(paneID string)
	log        zerolog.Logger

	minHeight float64
	maxHeight float64

	mu             sync.Mutex
	state          State
	updatesEnabled bool
	window         Window
	hasPending     bool
	pendingFrame   mainloop.FrameHandle
	readyPending   bool
	lastAspect     float64
	resizing       bool
}

// New creates a closed synchronizer. All collaborators except
// OnFocusRequest are required.
func New(opts Options) *Synchronizer {
	if opts.Registry == nil || opts.Aggregator == nil || opts.Tree == nil ||
		opts.Scheduler == nil || opts.OpenWindow == nil {
		panic("minimap.New: missing required collaborator")
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = DefaultMinHeight
	}
	if opts.MaxHeight <= opts.MinHeight {
		opts.MaxHeight = DefaultMaxHeight
	}

	return &Synchronizer{
		registry:   opts.Registry,
		aggregator: opts.Aggregator,
		tree:       opts.Tree,
		scheduler:  opts.Scheduler,
		openWindow: opts.OpenWindow,
		onFocus:    opts.OnFocusRequest,
		log:        opts.Logger.With().Str("component", "minimap").Logger(),
		minHeight:  opts.MinHeight,
		maxHeight:  opts.MaxHeight,
		state:      StateClosed,
	}
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// UpdatesEnabled reports whether scheduled updates are currently delivered.
func (s *Synchronizer) UpdatesEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updatesEnabled
}

// Toggle opens the observer window when closed and tears it down when open.
// A toggle during an in-flight transition is ignored.
func (s *Synchronizer) Toggle() error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.state = StateOpening
		s.mu.Unlock()
		return s.open()

	case StateOpen:
		s.state = StateClosing
		s.updatesEnabled = false
		win := s.window
		s.window = nil
		cancel := s.hasPending
		handle := s.pendingFrame
		s.hasPending = false
		s.mu.Unlock()

		if cancel {
			s.scheduler.CancelFrame(handle)
		}
		var err error
		if win != nil {
			err = win.Close()
		}

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		s.log.Debug().Msg("observer window closed")
		return err

	default:
		s.mu.Unlock()
		return nil
	}
}

func (s *Synchronizer) open() error {
	win, err := s.openWindow(Events{
		Ready:        s.handleReady,
		FocusRequest: s.handleFocusRequest,
		Destroyed:    s.handleDestroyed,
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.readyPending = false
		s.mu.Unlock()
		return fmt.Errorf("open observer window: %w", err)
	}

	s.mu.Lock()
	s.window = win
	s.state = StateOpen
	s.updatesEnabled = true
	s.lastAspect = 0
	ready := s.readyPending
	s.readyPending = false
	s.mu.Unlock()

	s.log.Debug().Msg("observer window opened")
	if ready {
		s.captureAndPush()
	}
	return nil
}

// SetUpdatesEnabled pauses or resumes scheduled updates without closing the
// window. Resuming triggers one update so the observer catches up.
func (s *Synchronizer) SetUpdatesEnabled(enabled bool) {
	s.mu.Lock()
	if s.state != StateOpen || s.updatesEnabled == enabled {
		s.mu.Unlock()
		return
	}
	s.updatesEnabled = enabled
	s.mu.Unlock()

	if enabled {
		s.ScheduleUpdate()
	}
}

// ScheduleUpdate requests one capture-and-push on the next frame. It is a
// no-op unless the window is open, updates are enabled, and no capture is
// already pending; that single pending slot is what coalesces dirty bursts.
func (s *Synchronizer) ScheduleUpdate() {
	s.mu.Lock()
	if s.state != StateOpen || !s.updatesEnabled || s.hasPending {
		s.mu.Unlock()
		return
	}
	s.hasPending = true
	s.mu.Unlock()

	handle := s.scheduler.RequestFrame(func() {
		s.mu.Lock()
		s.hasPending = false
		if s.state != StateOpen || s.window == nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.captureAndPush()
	})

	s.mu.Lock()
	if s.hasPending {
		s.pendingFrame = handle
	}
	s.mu.Unlock()
}

func (s *Synchronizer) captureAndPush() {
	s.mu.Lock()
	win := s.window
	s.mu.Unlock()
	if win == nil {
		return
	}

	drained := s.registry.ConsumeAllDirty()
	ctx := logging.WithContext(context.Background(), s.log)
	bundle := s.aggregator.CaptureAll(ctx, s.tree())

	if err := win.Push(bundle); err != nil {
		s.log.Debug().Err(err).Msg("bundle push failed")
		return
	}
	s.log.Trace().
		Int("drained", len(drained)).
		Int("items", len(bundle.Items)).
		Msg("bundle pushed")

	s.enforceAspect(win, bundle.AspectRatio)
}

// enforceAspect keeps the observer window's proportions matching the
// layout's full content. The resizing flag stops a resize from re-entering
// enforcement through the window's own resize notifications.
func (s *Synchronizer) enforceAspect(win Window, ratio float64) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		return
	}

	s.mu.Lock()
	if s.resizing || math.Abs(ratio-s.lastAspect) < aspectTolerance {
		s.mu.Unlock()
		return
	}
	s.resizing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.resizing = false
		s.mu.Unlock()
	}()

	width, _ := win.Size()
	if width <= 0 {
		return
	}
	height := width / ratio
	if height < s.minHeight {
		height = s.minHeight
	}
	if height > s.maxHeight {
		height = s.maxHeight
	}
	if err := win.Resize(width, height); err != nil {
		s.log.Debug().Err(err).Msg("observer resize failed")
		return
	}

	s.mu.Lock()
	s.lastAspect = ratio
	s.mu.Unlock()
}

// handleReady forces one capture-and-push regardless of dirty state so a
// freshly opened window is not blank until the next output event. A ready
// signal racing the factory return is deferred until the window handle is
// stored.
func (s *Synchronizer) handleReady() {
	s.mu.Lock()
	if s.state == StateOpening || (s.state == StateOpen && s.window == nil) {
		s.readyPending = true
		s.mu.Unlock()
		return
	}
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.captureAndPush()
}

func (s *Synchronizer) handleFocusRequest(paneID string) {
	if paneID == "" || s.onFocus == nil {
		return
	}
	s.log.Debug().Str("pane_id", paneID).Msg("focus requested from observer")
	s.onFocus(paneID)
}

// handleDestroyed forces Open to Closed when the window dies out from under
// the engine. The pending capture, if any, is canceled so it never touches
// the dead window.
func (s *Synchronizer) handleDestroyed() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.updatesEnabled = false
	s.window = nil
	cancel := s.hasPending
	handle := s.pendingFrame
	s.hasPending = false
	s.mu.Unlock()

	if cancel {
		s.scheduler.CancelFrame(handle)
	}
	s.log.Debug().Msg("observer window destroyed")
}
