// Package registry tracks the live rendering resource behind each pane,
// independent of tree shape. A leaf can exist briefly with no entry (mount
// in progress) or an entry can outlive its leaf (unmount pending); both
// directions are tolerated and reconciled by explicit pruning.
package registry

import (
	"fmt"
	"sync"
)

// Thumbnail floor. Captures are clamped so a degenerate source never
// produces an unusably small image.
const (
	MinThumbWidth  = 100
	MinThumbHeight = 50
)

// CaptureFunc renders a pane's current content into the given target
// dimensions and returns encoded image bytes. It works off-screen: the pane
// does not need to be inside the visible viewport.
type CaptureFunc func(targetW, targetH int) ([]byte, error)

// SurfaceCapturer is the best-effort fallback when a pane has no capture
// hook (or its hook fails): read pixels straight off the visible rendering
// surface identified by the container handle.
type SurfaceCapturer interface {
	CaptureSurface(container any, targetW, targetH int) ([]byte, error)
}

type entry struct {
	resourceKey string
	container   any
	dirty       bool
	capture     CaptureFunc
}

// Registry is the process-wide pane resource map, injected by reference
// rather than reached through package globals.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	fallback SurfaceCapturer
}

// New creates an empty registry. fallback may be nil when no raw-surface
// capture path exists.
func New(fallback SurfaceCapturer) *Registry {
	return &Registry{entries: make(map[string]*entry), fallback: fallback}
}

// Register brackets the mount of a pane's rendering surface. The pane is
// marked dirty immediately so its first paint is captured.
func (r *Registry) Register(id, resourceKey string, container any) {
	if id == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[id] = &entry{
		resourceKey: resourceKey,
		container:   container,
		dirty:       true,
	}
}

// Unregister brackets the unmount of a pane's rendering surface.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, id)
}

// Has reports whether a pane currently has a live entry.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[id]
	return ok
}

// ResourceKey returns the resource identity backing a pane. It is distinct
// from the pane's layout identity even when the two coincide by convention.
func (r *Registry) ResourceKey(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.resourceKey, true
}

// MarkDirty flags that a pane has produced new pixels since the last
// capture. Unknown IDs are ignored; the signal is monotonic until drained.
func (r *Registry) MarkDirty(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.dirty = true
	}
}

// ConsumeDirty drains and returns a single pane's dirty flag.
func (r *Registry) ConsumeDirty(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || !e.dirty {
		return false
	}
	e.dirty = false
	return true
}

// ConsumeAllDirty drains every set dirty flag and returns the affected IDs.
// Arbitrarily many MarkDirty calls between two drains collapse into one
// appearance per pane.
func (r *Registry) ConsumeAllDirty() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, e := range r.entries {
		if e.dirty {
			e.dirty = false
			ids = append(ids, id)
		}
	}
	return ids
}

// RegisterCaptureHook attaches the off-screen capture function for a pane.
func (r *Registry) RegisterCaptureHook(id string, fn CaptureFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.capture = fn
	}
}

// CaptureImage renders a pane's content at the given target dimensions.
// Hook absence or failure falls back to a raw-surface screenshot; if that
// also fails the error is returned and the caller omits the pane from the
// bundle rather than aborting the pass.
func (r *Registry) CaptureImage(id string, targetW, targetH int) ([]byte, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	var capture CaptureFunc
	var container any
	if ok {
		capture = e.capture
		container = e.container
	}
	fallback := r.fallback
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("pane %s not registered", id)
	}
	if targetW < MinThumbWidth {
		targetW = MinThumbWidth
	}
	if targetH < MinThumbHeight {
		targetH = MinThumbHeight
	}

	if capture != nil {
		img, err := safeCapture(capture, targetW, targetH)
		if err == nil && len(img) > 0 {
			return img, nil
		}
	}

	if fallback != nil {
		img, err := fallback.CaptureSurface(container, targetW, targetH)
		if err == nil && len(img) > 0 {
			return img, nil
		}
		if err != nil {
			return nil, fmt.Errorf("surface capture for pane %s: %w", id, err)
		}
	}

	return nil, fmt.Errorf("pane %s has no usable capture path", id)
}

// safeCapture shields the capture pass from a panicking hook; a broken hook
// costs one thumbnail, not the whole pass.
func safeCapture(fn CaptureFunc, w, h int) (img []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, fmt.Errorf("capture hook panicked: %v", rec)
		}
	}()
	return fn(w, h)
}

// FitTarget fits source dimensions into a target box preserving aspect
// ratio: the longer source axis fills its target axis and the other is
// derived, floor-clamped to the thumbnail minimum.
func FitTarget(srcW, srcH float64, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}

	w, h := maxW, maxH
	if srcW >= srcH {
		h = int(float64(maxW) * srcH / srcW)
	} else {
		w = int(float64(maxH) * srcW / srcH)
	}
	if w < MinThumbWidth {
		w = MinThumbWidth
	}
	if h < MinThumbHeight {
		h = MinThumbHeight
	}
	return w, h
}
