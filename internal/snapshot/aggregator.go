// Package snapshot produces consistent (tree, thumbnails) bundles for the
// minimap observer by walking one layout revision and reading the pane
// registry.
package snapshot

import (
	"context"
	"math"

	"github.com/wizterm/wizterm/internal/bounds"
	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/logging"
	"github.com/wizterm/wizterm/internal/registry"
)

// Item is one pane's contribution to a bundle. Terminal panes carry encoded
// image bytes; browser panes carry metadata only, never pixels.
type Item struct {
	ID    string      `json:"id"`
	Kind  layout.Kind `json:"kind"`
	Image []byte      `json:"image,omitempty"`
	URL   string      `json:"url,omitempty"`
	Title string      `json:"title,omitempty"`
}

// Bundle is the unit pushed to the observer window: a serialized tree
// revision, the per-pane items, and the aspect ratio of the full scrollable
// content so the observer window can match the layout's proportions even
// while the primary window is mid-scroll.
type Bundle struct {
	Layout      string  `json:"layout"`
	Items       []Item  `json:"items"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
}

// ContentMetrics reports the full scrollable content size of the shared
// container, not just the visible viewport.
type ContentMetrics interface {
	ContentSize() (width, height float64)
}

// Aggregator assembles bundles on demand.
type Aggregator struct {
	registry *registry.Registry
	bounds   *bounds.Store
	metrics  ContentMetrics

	// Requested thumbnail box; per-pane dimensions are fitted into it
	// preserving the pane's on-screen aspect ratio.
	thumbW int
	thumbH int
}

// New creates an aggregator. metrics may be nil when no container exists
// yet; the bundle then carries no aspect ratio.
func New(reg *registry.Registry, store *bounds.Store, metrics ContentMetrics, thumbW, thumbH int) *Aggregator {
	if thumbW <= 0 {
		thumbW = 320
	}
	if thumbH <= 0 {
		thumbH = 320
	}
	return &Aggregator{registry: reg, bounds: store, metrics: metrics, thumbW: thumbW, thumbH: thumbH}
}

// CaptureAll walks the tree and captures every pane. Terminal leaves prefer
// the off-screen capture hook and fall back to the visible surface; leaves
// with no usable image are omitted rather than blocking the bundle. Browser
// leaves always emit metadata only; pixel capture is never attempted for
// them.
func (a *Aggregator) CaptureAll(ctx context.Context, tree layout.Tree) Bundle {
	log := logging.FromContext(ctx)

	bundle := Bundle{
		Layout:      layout.Serialize(tree),
		AspectRatio: a.contentAspectRatio(),
	}

	for _, leaf := range layout.AllLeaves(tree) {
		switch leaf.Kind {
		case layout.KindBrowser:
			bundle.Items = append(bundle.Items, Item{
				ID:    leaf.ID,
				Kind:  layout.KindBrowser,
				URL:   leaf.Payload.URL,
				Title: leaf.Payload.Title,
			})

		case layout.KindTerminal:
			targetW, targetH := a.thumbW, a.thumbH
			if rect, ok := a.bounds.Get(leaf.ID); ok && !rect.IsZero() {
				targetW, targetH = registry.FitTarget(rect.Width, rect.Height, a.thumbW, a.thumbH)
			}

			img, err := a.registry.CaptureImage(leaf.ID, targetW, targetH)
			if err != nil {
				log.Debug().Err(err).Str("pane_id", leaf.ID).Msg("pane omitted from bundle")
				continue
			}
			bundle.Items = append(bundle.Items, Item{
				ID:    leaf.ID,
				Kind:  layout.KindTerminal,
				Image: img,
			})
		}
	}

	return bundle
}

// contentAspectRatio returns width/height of the full scrollable content,
// or 0 when unknown or degenerate.
func (a *Aggregator) contentAspectRatio() float64 {
	if a.metrics == nil {
		return 0
	}
	w, h := a.metrics.ContentSize()
	if w <= 0 || h <= 0 {
		return 0
	}
	ratio := w / h
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return ratio
}
