// Package workspace is the single writer of the layout tree. Every mutation
// flows through the coordinator: apply the pure tree operation, schedule
// persistence and remeasurement on the next frame, reposition overlays, and
// nudge the minimap.
package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wizterm/wizterm/internal/bounds"
	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/logging"
	"github.com/wizterm/wizterm/internal/mainloop"
	"github.com/wizterm/wizterm/internal/registry"
	"github.com/wizterm/wizterm/internal/session"
)

// SessionBackend runs the shell processes behind terminal panes.
type SessionBackend interface {
	Create(cols, rows uint16, cwd string) (string, error)
	Kill(id string) error
	Has(id string) bool
	KillAll()
}

// LayoutStore persists the serialized tree across runs.
type LayoutStore interface {
	Save(ctx context.Context, layoutJSON string, treeVersion uint64) error
	Load(ctx context.Context) (layoutJSON string, treeVersion uint64, ok bool, err error)
}

// SessionRecorder keeps the per-session lifecycle rows.
type SessionRecorder interface {
	RecordStart(ctx context.Context, id, shell, cwd string) error
	RecordEnd(ctx context.Context, id string, exitCode *int) error
}

// OverlaySync repositions out-of-flow browser surfaces against the tree.
type OverlaySync interface {
	Sync(ctx context.Context, tree layout.Tree)
	CloseAll(ctx context.Context)
}

// Observer is nudged whenever pane content or geometry may have changed.
type Observer interface {
	ScheduleUpdate()
}

// Options wires a coordinator's collaborators. Sessions, Registry, Bounds
// and Scheduler are required; the rest degrade to no-ops when nil.
type Options struct {
	Sessions  SessionBackend
	Registry  *registry.Registry
	Bounds    *bounds.Store
	Scheduler mainloop.FrameScheduler
	Overlays  OverlaySync
	Layouts   LayoutStore
	Records   SessionRecorder
	Observer  Observer
	Logger    zerolog.Logger

	// MinShare bounds divider drags; zero takes the layout default.
	MinShare float64
	// Shell is recorded with each session row.
	Shell string
	// Cwd is the working directory new sessions start in. Empty means the
	// user's home; a leading ~ is expanded.
	Cwd string
}

// Coordinator owns the current tree revision and the undo/redo history.
type Coordinator struct {
	sessions  SessionBackend
	registry  *registry.Registry
	bounds    *bounds.Store
	resolver  *bounds.Resolver
	overlays  OverlaySync
	layouts   LayoutStore
	records   SessionRecorder
	observer  Observer
	coalescer *mainloop.Coalescer
	log       zerolog.Logger
	minShare  float64
	shell     string
	cwd       string

	mu        sync.Mutex
	tree      layout.Tree
	undoStack []layout.Tree
	redoStack []layout.Tree
	container bounds.Rect
	focused   string
}

const maxHistory = 100

// New creates a coordinator with an empty tree.
func New(opts Options) *Coordinator {
	if opts.Sessions == nil || opts.Registry == nil || opts.Bounds == nil || opts.Scheduler == nil {
		panic("workspace.New: missing required collaborator")
	}
	if opts.MinShare <= 0 {
		opts.MinShare = layout.DefaultMinShare
	}
	cwd, err := session.ResolveCwd(opts.Cwd)
	if err != nil {
		cwd = opts.Cwd
	}

	return &Coordinator{
		sessions:  opts.Sessions,
		registry:  opts.Registry,
		bounds:    opts.Bounds,
		resolver:  bounds.NewResolver(opts.Bounds),
		overlays:  opts.Overlays,
		layouts:   opts.Layouts,
		records:   opts.Records,
		observer:  opts.Observer,
		coalescer: mainloop.NewCoalescer(opts.Scheduler),
		log:       opts.Logger.With().Str("component", "workspace").Logger(),
		minShare:  opts.MinShare,
		shell:     opts.Shell,
		cwd:       cwd,
	}
}

// Tree returns the current revision. Successive calls never observe the
// version moving backward.
func (c *Coordinator) Tree() layout.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tree
}

// Focused returns the focused pane id, or "" when nothing is focused.
func (c *Coordinator) Focused() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.focused
}

// FocusPane marks a pane focused. Unknown ids are ignored.
func (c *Coordinator) FocusPane(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if layout.FindByID(c.tree, id) == nil {
		return
	}
	c.focused = id
}

// Restore loads the persisted layout and starts fresh sessions for its
// terminal leaves. A malformed stored layout degrades to an empty workspace.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.layouts == nil {
		return nil
	}
	log := logging.FromContext(ctx)

	layoutJSON, _, ok, err := c.layouts.Load(ctx)
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	if !ok {
		return nil
	}

	restored := layout.Deserialize(layoutJSON)
	if restored == nil {
		log.Warn().Msg("stored layout unreadable, starting empty")
		return nil
	}

	c.mu.Lock()
	next := *restored
	if next.Version <= c.tree.Version {
		next.Version = c.tree.Version + 1
	}
	detached := layout.DetachedLeaves(c.tree, next)
	c.tree = next
	c.mu.Unlock()

	c.teardownDetached(ctx, detached)
	c.reconcileSessions(ctx)
	c.afterMutation(ctx)
	log.Info().Uint64("tree_version", c.Tree().Version).Msg("layout restored")
	return nil
}

// teardownDetached releases the sessions, registry entries and bounds of
// panes whose leaf left the tree when a revision was restored. A session
// still referenced by the current tree is left running.
func (c *Coordinator) teardownDetached(ctx context.Context, detached []*layout.Node) {
	for _, leaf := range detached {
		sessionID := leaf.Payload.SessionID
		if leaf.Kind == layout.KindTerminal && sessionID != "" {
			c.mu.Lock()
			referenced := layout.FindLeafByPayloadKey(c.tree, sessionID) != nil
			c.mu.Unlock()
			if !referenced {
				if err := c.sessions.Kill(sessionID); err != nil {
					c.log.Debug().Err(err).Str("session_id", sessionID).Msg("session already gone")
				}
				c.recordEnd(ctx, sessionID, nil)
			}
		}
		c.registry.Unregister(leaf.ID)
		c.bounds.Remove(leaf.ID)
	}
}

// reconcileSessions starts a new shell for every terminal leaf whose session
// is not alive and repoints the leaf at it. Old session ids die with the
// process that owned them.
func (c *Coordinator) reconcileSessions(ctx context.Context) {
	log := logging.FromContext(ctx)

	for {
		c.mu.Lock()
		tree := c.tree
		c.mu.Unlock()

		var stale *layout.Node
		for _, leaf := range layout.AllOfKind(tree, layout.KindTerminal) {
			if !c.sessions.Has(leaf.Payload.SessionID) {
				stale = leaf
				break
			}
		}
		if stale == nil {
			return
		}

		sessionID, err := c.sessions.Create(0, 0, c.cwd)
		if err != nil {
			log.Error().Err(err).Str("pane_id", stale.ID).Msg("session restore failed, dropping pane")
			c.mu.Lock()
			c.tree = layout.RemoveLeaf(c.tree, stale.ID)
			c.mu.Unlock()
			continue
		}
		c.recordStart(ctx, sessionID)

		c.mu.Lock()
		c.tree = layout.RepointLeaf(c.tree, stale.ID, layout.Payload{SessionID: sessionID})
		c.mu.Unlock()
		c.registry.Register(stale.ID, sessionID, nil)
	}
}

// OpenTerminal adds a terminal pane at the given edge of the root row and
// returns its pane id.
func (c *Coordinator) OpenTerminal(ctx context.Context, edge layout.Edge) (string, error) {
	sessionID, err := c.sessions.Create(0, 0, c.cwd)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	c.recordStart(ctx, sessionID)

	c.mu.Lock()
	next := layout.AddLeaf(c.tree, layout.KindTerminal, layout.Payload{SessionID: sessionID}, edge)
	paneID := c.applyLocked(next, layout.NewLeaf(c.tree, next))
	c.mu.Unlock()

	c.registry.Register(paneID, sessionID, nil)
	c.afterMutation(ctx)
	return paneID, nil
}

// OpenBrowser adds a browser pane showing url at the given edge.
func (c *Coordinator) OpenBrowser(ctx context.Context, url string, edge layout.Edge) (string, error) {
	if url == "" {
		return "", fmt.Errorf("browser pane needs a url")
	}

	c.mu.Lock()
	// The new leaf is identified structurally, never by payload key: a
	// second pane at an already-open url must get its own id.
	next := layout.AddLeaf(c.tree, layout.KindBrowser, layout.Payload{URL: url}, edge)
	paneID := c.applyLocked(next, layout.NewLeaf(c.tree, next))
	c.mu.Unlock()

	c.registry.Register(paneID, url, nil)
	c.afterMutation(ctx)
	return paneID, nil
}

// SplitTerminal splits targetID along axis with a fresh terminal session.
func (c *Coordinator) SplitTerminal(ctx context.Context, targetID string, axis layout.Axis, edge layout.SplitEdge) (string, error) {
	c.mu.Lock()
	exists := layout.FindByID(c.tree, targetID) != nil
	c.mu.Unlock()
	if !exists {
		return "", fmt.Errorf("pane %s not found", targetID)
	}

	sessionID, err := c.sessions.Create(0, 0, c.cwd)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	c.recordStart(ctx, sessionID)

	c.mu.Lock()
	next := layout.SplitAt(c.tree, targetID, axis, edge, layout.KindTerminal, layout.Payload{SessionID: sessionID})
	paneID := c.applyLocked(next, layout.NewLeaf(c.tree, next))
	c.mu.Unlock()

	c.registry.Register(paneID, sessionID, nil)
	c.afterMutation(ctx)
	return paneID, nil
}

// InsertTerminalAfter inserts a fresh terminal session after targetID in the
// root row.
func (c *Coordinator) InsertTerminalAfter(ctx context.Context, targetID string) (string, error) {
	sessionID, err := c.sessions.Create(0, 0, c.cwd)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	c.recordStart(ctx, sessionID)

	c.mu.Lock()
	next := layout.InsertAfter(c.tree, targetID, layout.KindTerminal, layout.Payload{SessionID: sessionID})
	paneID := c.applyLocked(next, layout.NewLeaf(c.tree, next))
	c.mu.Unlock()

	c.registry.Register(paneID, sessionID, nil)
	c.afterMutation(ctx)
	return paneID, nil
}

// applyLocked commits next as the new revision, pushing the old one onto the
// undo stack. Returns the id of leaf for caller convenience. Must be called
// with c.mu held.
func (c *Coordinator) applyLocked(next layout.Tree, leaf *layout.Node) string {
	if next.Version == c.tree.Version {
		// Rejected or no-op mutation; nothing to record.
		if leaf == nil {
			return ""
		}
		return leaf.ID
	}
	c.pushUndoLocked()
	c.tree = next
	if c.focused != "" && layout.FindByID(next, c.focused) == nil {
		c.focused = ""
	}
	if leaf == nil {
		return ""
	}
	return leaf.ID
}

func (c *Coordinator) pushUndoLocked() {
	c.undoStack = append(c.undoStack, c.tree)
	if len(c.undoStack) > maxHistory {
		c.undoStack = c.undoStack[1:]
	}
	c.redoStack = nil
}

// ClosePane removes a pane, tearing down its session and geometry. Unknown
// ids are a no-op.
func (c *Coordinator) ClosePane(ctx context.Context, id string) {
	c.mu.Lock()
	leaf := layout.FindByID(c.tree, id)
	if leaf == nil || !leaf.IsLeaf() {
		c.mu.Unlock()
		return
	}
	kind := leaf.Kind
	sessionID := leaf.Payload.SessionID
	c.applyLocked(layout.RemoveLeaf(c.tree, id), nil)
	c.mu.Unlock()

	if kind == layout.KindTerminal && sessionID != "" {
		if err := c.sessions.Kill(sessionID); err != nil {
			c.log.Debug().Err(err).Str("session_id", sessionID).Msg("session already gone")
		}
		c.recordEnd(ctx, sessionID, nil)
	}
	c.registry.Unregister(id)
	// Bounds removal is synchronous with teardown so the positioning pass
	// never sees a ghost rect for a recreated surface.
	c.bounds.Remove(id)

	c.afterMutation(ctx)
}

// HandleSessionExit removes the pane whose shell ended on its own.
func (c *Coordinator) HandleSessionExit(ctx context.Context, sessionID string, exitCode *int) {
	c.recordEnd(ctx, sessionID, exitCode)

	c.mu.Lock()
	leaf := layout.FindLeafByPayloadKey(c.tree, sessionID)
	if leaf == nil {
		c.mu.Unlock()
		return
	}
	id := leaf.ID
	c.applyLocked(layout.RemoveLeaf(c.tree, id), nil)
	c.mu.Unlock()

	c.registry.Unregister(id)
	c.bounds.Remove(id)
	c.afterMutation(ctx)
}

// HandleSessionOutput marks the owning pane dirty and nudges the minimap.
// This is the sole path from "pane produced new pixels" to "minimap
// eventually refreshes".
func (c *Coordinator) HandleSessionOutput(sessionID string) {
	c.mu.Lock()
	leaf := layout.FindLeafByPayloadKey(c.tree, sessionID)
	c.mu.Unlock()
	if leaf == nil {
		return
	}

	c.registry.MarkDirty(leaf.ID)
	if c.observer != nil {
		c.observer.ScheduleUpdate()
	}
}

// ResizeSplit replaces a split's share list verbatim. The caller guarantees
// the shares sum to 100.
func (c *Coordinator) ResizeSplit(ctx context.Context, splitID string, sizes []float64) {
	c.mu.Lock()
	c.applyLocked(layout.Resize(c.tree, splitID, sizes), nil)
	c.mu.Unlock()

	c.afterMutation(ctx)
}

// AdjustDivider moves the divider after child index by delta percentage
// points, refusing drags that would shrink either neighbor below the
// minimum share.
func (c *Coordinator) AdjustDivider(ctx context.Context, splitID string, index int, delta float64) {
	c.mu.Lock()
	c.applyLocked(layout.AdjustDivider(c.tree, splitID, index, delta, c.minShare), nil)
	c.mu.Unlock()

	c.afterMutation(ctx)
}

// Undo restores the previous revision. Restored revisions get a fresh
// version stamp so readers never observe the version moving backward.
func (c *Coordinator) Undo(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.undoStack) == 0 {
		c.mu.Unlock()
		return false
	}
	prev := c.undoStack[len(c.undoStack)-1]
	c.undoStack = c.undoStack[:len(c.undoStack)-1]
	c.redoStack = append(c.redoStack, c.tree)
	prev.Version = c.tree.Version + 1
	detached := layout.DetachedLeaves(c.tree, prev)
	c.tree = prev
	c.mu.Unlock()

	c.teardownDetached(ctx, detached)
	c.reconcileSessions(ctx)
	c.afterMutation(ctx)
	return true
}

// Redo reapplies the most recently undone revision.
func (c *Coordinator) Redo(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.redoStack) == 0 {
		c.mu.Unlock()
		return false
	}
	next := c.redoStack[len(c.redoStack)-1]
	c.redoStack = c.redoStack[:len(c.redoStack)-1]
	c.undoStack = append(c.undoStack, c.tree)
	next.Version = c.tree.Version + 1
	detached := layout.DetachedLeaves(c.tree, next)
	c.tree = next
	c.mu.Unlock()

	c.teardownDetached(ctx, detached)
	c.reconcileSessions(ctx)
	c.afterMutation(ctx)
	return true
}

// SetContainer records the shared container's rect and remeasures.
func (c *Coordinator) SetContainer(ctx context.Context, rect bounds.Rect) {
	c.mu.Lock()
	c.container = rect
	c.mu.Unlock()

	c.afterMutation(ctx)
}

// afterMutation schedules the visual consequences of a tree change.
// Persistence and remeasurement are frame-coalesced: a burst of mutations
// within one frame costs one save and one measure pass.
func (c *Coordinator) afterMutation(ctx context.Context) {
	c.coalescer.Post("persist-layout", func() { c.persist(ctx) })
	c.coalescer.Post("remeasure", func() { c.remeasure(ctx) })

	if c.observer != nil {
		c.observer.ScheduleUpdate()
	}
}

func (c *Coordinator) persist(ctx context.Context) {
	if c.layouts == nil {
		return
	}
	c.mu.Lock()
	tree := c.tree
	c.mu.Unlock()

	if err := c.layouts.Save(ctx, layout.Serialize(tree), tree.Version); err != nil {
		c.log.Warn().Err(err).Msg("layout persist failed")
	}
}

// remeasure re-derives bounds from the tree, prunes entries for departed
// leaves, and repositions overlays. Runs strictly after the mutation's frame.
func (c *Coordinator) remeasure(ctx context.Context) {
	c.mu.Lock()
	tree := c.tree
	container := c.container
	c.mu.Unlock()

	if !container.IsZero() {
		c.resolver.Measure(tree, container)
	}
	c.resolver.Prune(tree)

	if c.overlays != nil {
		c.overlays.Sync(ctx, tree)
	}
}

// Shutdown persists the final revision and tears down sessions and overlays.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.coalescer.Destroy()
	c.persist(ctx)

	if c.overlays != nil {
		c.overlays.CloseAll(ctx)
	}
	c.sessions.KillAll()
	c.log.Debug().Msg("workspace shut down")
}

func (c *Coordinator) recordStart(ctx context.Context, sessionID string) {
	if c.records == nil {
		return
	}
	if err := c.records.RecordStart(ctx, sessionID, c.shell, c.cwd); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("session record failed")
	}
}

func (c *Coordinator) recordEnd(ctx context.Context, sessionID string, exitCode *int) {
	if c.records == nil {
		return
	}
	if err := c.records.RecordEnd(ctx, sessionID, exitCode); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("session record failed")
	}
}
