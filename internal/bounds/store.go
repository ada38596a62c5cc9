// Package bounds tracks absolute pixel geometry for every leaf pane.
// Rendering surfaces for terminals and browser views live outside normal
// layout flow, so their positions are derived from measurement probes and
// cached here, keyed by leaf ID. Entries are best-effort: one may outlive
// its leaf for a few frames after removal and must be pruned explicitly.
package bounds

import "sync"

// WriteEpsilon is the sub-pixel threshold below which bounds writes are
// suppressed, preventing measure/reflow feedback loops.
const WriteEpsilon = 0.5

// Rect is a pane's pixel rectangle relative to the shared scroll container's
// content origin (scroll offset included, not the viewport).
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the rect has no usable area. Callers must treat a
// zero-sized rect as "not yet positionable" and hide the overlay rather
// than place it at the origin.
func (r Rect) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Store is the per-pane geometry cache. It has a single logical writer (the
// measurement pass) but is safe for concurrent readers.
type Store struct {
	mu         sync.RWMutex
	rects      map[string]Rect
	generation uint64
	epsilon    float64
}

// NewStore creates a bounds store with the default write epsilon.
func NewStore() *Store {
	return &Store{rects: make(map[string]Rect), epsilon: WriteEpsilon}
}

// Update records measured bounds for a pane. The write is suppressed unless
// at least one field moved by more than the epsilon; the return value
// reports whether the entry changed.
func (s *Store) Update(id string, r Rect) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.rects[id]
	if ok && withinEpsilon(prev, r, s.epsilon) {
		return false
	}
	s.rects[id] = r
	return true
}

// Get returns the cached bounds for a pane. ok is false when the pane has
// not been measured yet.
func (s *Store) Get(id string) (Rect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rects[id]
	return r, ok
}

// Remove prunes a pane's entry. It must run synchronously with probe
// teardown; a stale rect would place a re-created surface at a ghost
// location.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rects, id)
}

// IDs returns the identifiers of all cached entries.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rects))
	for id := range s.rects {
		ids = append(ids, id)
	}
	return ids
}

// Generation returns the current remeasure generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// BumpGeneration forces every probe to remeasure on the next frame, covering
// geometry changes invisible to resize observation (a sibling's explicit
// pixel width changing under an unchanged container).
func (s *Store) BumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	return s.generation
}

func withinEpsilon(a, b Rect, eps float64) bool {
	return abs(a.X-b.X) <= eps &&
		abs(a.Y-b.Y) <= eps &&
		abs(a.Width-b.Width) <= eps &&
		abs(a.Height-b.Height) <= eps
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
