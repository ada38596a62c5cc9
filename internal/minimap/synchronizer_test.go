package minimap

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/mainloop"
	"github.com/wizterm/wizterm/internal/registry"
	"github.com/wizterm/wizterm/internal/snapshot"

	boundspkg "github.com/wizterm/wizterm/internal/bounds"
)

type fakeWindow struct {
	mu      sync.Mutex
	pushes  []snapshot.Bundle
	resizes [][2]float64
	width   float64
	height  float64
	closed  bool
	pushErr error
}

func newFakeWindow(width, height float64) *fakeWindow {
	return &fakeWindow{width: width, height: height}
}

func (w *fakeWindow) Push(bundle snapshot.Bundle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pushErr != nil {
		return w.pushErr
	}
	w.pushes = append(w.pushes, bundle)
	return nil
}

func (w *fakeWindow) Size() (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.width, w.height
}

func (w *fakeWindow) Resize(width, height float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.width, w.height = width, height
	w.resizes = append(w.resizes, [2]float64{width, height})
	return nil
}

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	return nil
}

func (w *fakeWindow) pushCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.pushes)
}

type fixedMetrics struct{ w, h float64 }

func (m fixedMetrics) ContentSize() (float64, float64) { return m.w, m.h }

type harness struct {
	sync      *Synchronizer
	scheduler *mainloop.ManualScheduler
	registry  *registry.Registry
	window    *fakeWindow
	events    Events
	captures  *int
	openErr   error
	focused   []string
}

func newHarness(t *testing.T, metrics snapshot.ContentMetrics) *harness {
	t.Helper()

	tree := layout.Tree{
		Root: &layout.Node{
			ID:      "p1",
			Kind:    layout.KindTerminal,
			Payload: layout.Payload{SessionID: "s1"},
		},
		Version: 1,
	}
	reg := registry.New(nil)
	captures := 0
	reg.Register("p1", "res-p1", nil)
	reg.RegisterCaptureHook("p1", func(w, h int) ([]byte, error) {
		captures++
		return []byte{0x89, 0x50}, nil
	})

	h := &harness{
		scheduler: mainloop.NewManualScheduler(),
		registry:  reg,
		window:    newFakeWindow(400, 400),
		captures:  &captures,
	}
	h.sync = New(Options{
		Registry:   reg,
		Aggregator: snapshot.New(reg, boundspkg.NewStore(), metrics, 320, 320),
		Tree:       func() layout.Tree { return tree },
		Scheduler:  h.scheduler,
		OpenWindow: func(events Events) (Window, error) {
			if h.openErr != nil {
				return nil, h.openErr
			}
			h.events = events
			return h.window, nil
		},
		OnFocusRequest: func(id string) { h.focused = append(h.focused, id) },
		Logger:         zerolog.Nop(),
	})
	return h
}

func TestToggleLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	require.Equal(t, StateClosed, h.sync.State())
	require.False(t, h.sync.UpdatesEnabled())

	require.NoError(t, h.sync.Toggle())
	require.Equal(t, StateOpen, h.sync.State())
	require.True(t, h.sync.UpdatesEnabled())

	require.NoError(t, h.sync.Toggle())
	require.Equal(t, StateClosed, h.sync.State())
	require.False(t, h.sync.UpdatesEnabled())
	require.True(t, h.window.closed)
}

func TestToggleOpenFailureStaysClosed(t *testing.T) {
	h := newHarness(t, nil)
	h.openErr = errors.New("display unavailable")

	require.Error(t, h.sync.Toggle())
	require.Equal(t, StateClosed, h.sync.State())

	// The failed open must not leave the synchronizer stuck mid-transition.
	h.openErr = nil
	require.NoError(t, h.sync.Toggle())
	require.Equal(t, StateOpen, h.sync.State())
}

func TestDirtyBurstCoalescesIntoOneCapturePass(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sync.Toggle())

	for i := 0; i < 5; i++ {
		h.registry.MarkDirty("p1")
		h.sync.ScheduleUpdate()
	}
	require.Equal(t, 1, h.scheduler.Pending())

	h.scheduler.RunFrame()

	require.Equal(t, 1, h.window.pushCount())
	require.Equal(t, 1, *h.captures)
	// The pass drained the flag; nothing is dirty afterwards.
	require.Empty(t, h.registry.ConsumeAllDirty())
}

func TestScheduleUpdateRequiresOpenAndEnabled(t *testing.T) {
	h := newHarness(t, nil)

	h.sync.ScheduleUpdate()
	require.Zero(t, h.scheduler.Pending())

	require.NoError(t, h.sync.Toggle())
	h.sync.SetUpdatesEnabled(false)
	h.sync.ScheduleUpdate()
	require.Zero(t, h.scheduler.Pending())

	// Re-enabling catches the observer up with one scheduled pass.
	h.sync.SetUpdatesEnabled(true)
	require.Equal(t, 1, h.scheduler.Pending())
}

func TestClosingCancelsPendingCapture(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sync.Toggle())

	h.sync.ScheduleUpdate()
	require.Equal(t, 1, h.scheduler.Pending())

	require.NoError(t, h.sync.Toggle())
	require.Zero(t, h.scheduler.Pending())

	h.scheduler.RunFrame()
	require.Zero(t, h.window.pushCount())
}

func TestReadySignalForcesImmediatePush(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sync.Toggle())
	require.Zero(t, h.window.pushCount())

	h.events.Ready()
	require.Equal(t, 1, h.window.pushCount())
}

func TestDestroyedSignalForcesClosed(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sync.Toggle())
	h.sync.ScheduleUpdate()

	h.events.Destroyed()
	require.Equal(t, StateClosed, h.sync.State())
	require.Zero(t, h.scheduler.Pending())

	h.sync.ScheduleUpdate()
	require.Zero(t, h.scheduler.Pending())
}

func TestFocusRequestForwarded(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sync.Toggle())

	h.events.FocusRequest("p1")
	h.events.FocusRequest("")
	require.Equal(t, []string{"p1"}, h.focused)
}

func TestAspectRatioResizesObserverHeight(t *testing.T) {
	h := newHarness(t, fixedMetrics{w: 2000, h: 1000})
	require.NoError(t, h.sync.Toggle())

	h.events.Ready()
	require.Len(t, h.window.resizes, 1)
	require.Equal(t, [2]float64{400, 200}, h.window.resizes[0])

	// Same ratio again: no second resize.
	h.sync.ScheduleUpdate()
	h.scheduler.RunFrame()
	require.Len(t, h.window.resizes, 1)
}

func TestAspectRatioClampsHeight(t *testing.T) {
	h := newHarness(t, fixedMetrics{w: 100000, h: 1})
	require.NoError(t, h.sync.Toggle())

	h.events.Ready()
	require.Len(t, h.window.resizes, 1)
	require.Equal(t, DefaultMinHeight, h.window.resizes[0][1])
}

func TestDegenerateAspectRatioIgnored(t *testing.T) {
	h := newHarness(t, fixedMetrics{w: 0, h: 0})
	require.NoError(t, h.sync.Toggle())

	h.events.Ready()
	require.Equal(t, 1, h.window.pushCount())
	require.Empty(t, h.window.resizes)
}

func TestPushFailureDoesNotResize(t *testing.T) {
	h := newHarness(t, fixedMetrics{w: 2000, h: 1000})
	require.NoError(t, h.sync.Toggle())
	h.window.pushErr = errors.New("transport gone")

	h.sync.ScheduleUpdate()
	h.scheduler.RunFrame()
	require.Empty(t, h.window.resizes)
}
