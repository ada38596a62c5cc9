// Package overlay positions the natively-composited browser surfaces that
// live outside the normal layout flow. It is the Positioner half of the
// measure/position split: the bounds store carries geometry from the
// measurer, this package pushes it to the overlay backend.
package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/wizterm/wizterm/internal/bounds"
	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/logging"
)

// Backend is the native overlay surface API. Implementations wrap whatever
// the host runtime exposes for child webviews.
type Backend interface {
	// Create makes a new overlay surface showing url at the given rect.
	Create(ctx context.Context, id, url string, rect bounds.Rect) error
	// Update moves and resizes an existing surface.
	Update(ctx context.Context, id string, rect bounds.Rect) error
	// SetHidden toggles a surface's visibility without destroying it.
	SetHidden(ctx context.Context, id string, hidden bool) error
	// Navigate points an existing surface at a new URL.
	Navigate(ctx context.Context, id, url string) error
	// Close destroys a surface. Closing an unknown id is not an error.
	Close(ctx context.Context, id string) error
}

// ErrorBanner surfaces a pane creation failure to the user with the
// underlying cause string.
type ErrorBanner func(paneID string, cause string)

type overlayState struct {
	url     string
	rect    bounds.Rect
	hidden  bool
	created bool
}

// Positioner mirrors browser leaves into backend surfaces. It reads
// geometry exclusively from the bounds store; a leaf whose bounds are
// missing or zero-sized is hidden rather than placed at the origin.
type Positioner struct {
	backend Backend
	store   *bounds.Store
	banner  ErrorBanner

	mu       sync.Mutex
	overlays map[string]*overlayState
}

// NewPositioner creates a positioner. banner may be nil.
func NewPositioner(backend Backend, store *bounds.Store, banner ErrorBanner) *Positioner {
	if backend == nil || store == nil {
		panic("overlay.NewPositioner: backend and store are required")
	}
	return &Positioner{
		backend:  backend,
		store:    store,
		banner:   banner,
		overlays: make(map[string]*overlayState),
	}
}

// Sync reconciles backend surfaces with the browser leaves of tree: creates
// surfaces for new leaves, repositions moved ones, hides unmeasured ones,
// and closes surfaces whose leaves are gone. Backend failures affect only
// the failing pane.
func (p *Positioner) Sync(ctx context.Context, tree layout.Tree) {
	log := logging.FromContext(ctx)

	live := make(map[string]*layout.Node)
	for _, leaf := range layout.AllOfKind(tree, layout.KindBrowser) {
		live[leaf.ID] = leaf
	}

	p.mu.Lock()
	var stale []string
	for id := range p.overlays {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
			delete(p.overlays, id)
		}
	}
	p.mu.Unlock()

	for _, id := range stale {
		if err := p.backend.Close(ctx, id); err != nil {
			log.Warn().Err(err).Str("pane_id", id).Msg("overlay close failed")
		}
	}

	for id, leaf := range live {
		p.syncOne(ctx, id, leaf.Payload.URL)
	}
}

// syncOne brings a single overlay in line with its stored bounds.
func (p *Positioner) syncOne(ctx context.Context, id, url string) {
	log := logging.FromContext(ctx)

	rect, ok := p.store.Get(id)
	positionable := ok && !rect.IsZero()

	p.mu.Lock()
	state, known := p.overlays[id]
	if !known {
		state = &overlayState{url: url}
		p.overlays[id] = state
	}
	p.mu.Unlock()

	if !state.created {
		if !positionable {
			// Not measured yet; creation waits for the next sync.
			return
		}
		if err := p.backend.Create(ctx, id, url, rect); err != nil {
			p.mu.Lock()
			delete(p.overlays, id)
			p.mu.Unlock()

			log.Error().Err(err).Str("pane_id", id).Msg("overlay create failed")
			if p.banner != nil {
				p.banner(id, err.Error())
			}
			return
		}
		state.created = true
		state.rect = rect
		state.hidden = false
		return
	}

	if url != state.url {
		if err := p.backend.Navigate(ctx, id, url); err != nil {
			log.Warn().Err(err).Str("pane_id", id).Msg("overlay navigate failed")
		} else {
			state.url = url
		}
	}

	if !positionable {
		p.setHidden(ctx, id, state, true)
		return
	}

	p.setHidden(ctx, id, state, false)
	if rect != state.rect {
		if err := p.backend.Update(ctx, id, rect); err != nil {
			log.Warn().Err(err).Str("pane_id", id).Msg("overlay update failed")
			return
		}
		state.rect = rect
	}
}

func (p *Positioner) setHidden(ctx context.Context, id string, state *overlayState, hidden bool) {
	if state.hidden == hidden {
		return
	}
	if err := p.backend.SetHidden(ctx, id, hidden); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("pane_id", id).Msg("overlay visibility change failed")
		return
	}
	state.hidden = hidden
}

// Navigate points a live overlay at a new URL, for leaf repointing.
func (p *Positioner) Navigate(ctx context.Context, id, url string) error {
	p.mu.Lock()
	state, ok := p.overlays[id]
	p.mu.Unlock()
	if !ok || !state.created {
		return fmt.Errorf("overlay %s not created", id)
	}

	if err := p.backend.Navigate(ctx, id, url); err != nil {
		return err
	}
	state.url = url
	return nil
}

// CloseAll tears down every overlay surface. Used on shutdown.
func (p *Positioner) CloseAll(ctx context.Context) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.overlays))
	for id := range p.overlays {
		ids = append(ids, id)
	}
	p.overlays = make(map[string]*overlayState)
	p.mu.Unlock()

	for _, id := range ids {
		_ = p.backend.Close(ctx, id)
	}
}
