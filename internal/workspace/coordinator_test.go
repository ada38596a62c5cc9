package workspace

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wizterm/wizterm/internal/bounds"
	"github.com/wizterm/wizterm/internal/layout"
	"github.com/wizterm/wizterm/internal/mainloop"
	"github.com/wizterm/wizterm/internal/registry"
)

type fakeSessions struct {
	next      int
	alive     map[string]bool
	cwds      []string
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{alive: make(map[string]bool)}
}

func (f *fakeSessions) Create(cols, rows uint16, cwd string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := fmt.Sprintf("sess-%d", f.next)
	f.alive[id] = true
	f.cwds = append(f.cwds, cwd)
	return id, nil
}

func (f *fakeSessions) Kill(id string) error {
	if !f.alive[id] {
		return errors.New("not found")
	}
	delete(f.alive, id)
	return nil
}

func (f *fakeSessions) Has(id string) bool { return f.alive[id] }

func (f *fakeSessions) KillAll() { f.alive = make(map[string]bool) }

type fakeLayoutStore struct {
	layoutJSON string
	version    uint64
	saved      int
	ok         bool
}

func (f *fakeLayoutStore) Save(_ context.Context, layoutJSON string, treeVersion uint64) error {
	f.layoutJSON = layoutJSON
	f.version = treeVersion
	f.saved++
	f.ok = true
	return nil
}

func (f *fakeLayoutStore) Load(context.Context) (string, uint64, bool, error) {
	return f.layoutJSON, f.version, f.ok, nil
}

type fakeRecorder struct {
	started []string
	cwds    []string
	ended   []string
}

func (f *fakeRecorder) RecordStart(_ context.Context, id, shell, cwd string) error {
	f.started = append(f.started, id)
	f.cwds = append(f.cwds, cwd)
	return nil
}

func (f *fakeRecorder) RecordEnd(_ context.Context, id string, exitCode *int) error {
	f.ended = append(f.ended, id)
	return nil
}

type fakeOverlays struct {
	synced []uint64
	closed bool
}

func (f *fakeOverlays) Sync(_ context.Context, tree layout.Tree) {
	f.synced = append(f.synced, tree.Version)
}

func (f *fakeOverlays) CloseAll(context.Context) { f.closed = true }

type countingObserver struct{ nudges int }

func (o *countingObserver) ScheduleUpdate() { o.nudges++ }

type fixture struct {
	coord     *Coordinator
	sessions  *fakeSessions
	store     *fakeLayoutStore
	recorder  *fakeRecorder
	overlays  *fakeOverlays
	observer  *countingObserver
	scheduler *mainloop.ManualScheduler
	registry  *registry.Registry
	bounds    *bounds.Store
	ctx       context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sessions:  newFakeSessions(),
		store:     &fakeLayoutStore{},
		recorder:  &fakeRecorder{},
		overlays:  &fakeOverlays{},
		observer:  &countingObserver{},
		scheduler: mainloop.NewManualScheduler(),
		registry:  registry.New(nil),
		bounds:    bounds.NewStore(),
		ctx:       context.Background(),
	}
	f.coord = New(Options{
		Sessions:  f.sessions,
		Registry:  f.registry,
		Bounds:    f.bounds,
		Scheduler: f.scheduler,
		Overlays:  f.overlays,
		Layouts:   f.store,
		Records:   f.recorder,
		Observer:  f.observer,
		Logger:    zerolog.Nop(),
		Shell:     "/bin/sh",
	})
	return f
}

func TestOpenTerminalsBuildsRootRow(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	p2, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	tree := f.coord.Tree()
	require.True(t, tree.Root.IsSplit())
	require.Equal(t, layout.AxisHorizontal, tree.Root.Axis)
	require.Equal(t, []string{p1, p2}, []string{tree.Root.Children[0].ID, tree.Root.Children[1].ID})
	require.InDelta(t, 50, tree.Root.Sizes[0], layout.SizeTolerance)

	require.True(t, f.registry.Has(p1))
	require.True(t, f.registry.Has(p2))
	require.Equal(t, []string{"sess-1", "sess-2"}, f.recorder.started)
	require.Greater(t, f.observer.nudges, 0)
}

func TestMutationBurstPersistsOnce(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	_, err = f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	_, err = f.coord.OpenBrowser(f.ctx, "https://example.com", layout.EdgeEnd)
	require.NoError(t, err)

	require.Zero(t, f.store.saved)
	f.scheduler.RunFrame()
	require.Equal(t, 1, f.store.saved)

	// The saved payload round-trips to the latest revision.
	restored := layout.Deserialize(f.store.layoutJSON)
	require.NotNil(t, restored)
	require.Len(t, layout.AllLeaves(*restored), 3)
	require.Equal(t, f.coord.Tree().Version, f.store.version)
}

func TestRemeasurePopulatesBoundsAndSyncsOverlays(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	p2, err := f.coord.OpenBrowser(f.ctx, "https://example.com", layout.EdgeEnd)
	require.NoError(t, err)

	f.coord.SetContainer(f.ctx, bounds.Rect{Width: 1000, Height: 600})
	f.scheduler.RunFrame()

	r1, ok := f.bounds.Get(p1)
	require.True(t, ok)
	require.InDelta(t, 500, r1.Width, 0.01)
	r2, ok := f.bounds.Get(p2)
	require.True(t, ok)
	require.InDelta(t, 500, r2.X, 0.01)

	require.NotEmpty(t, f.overlays.synced)
	require.Equal(t, f.coord.Tree().Version, f.overlays.synced[len(f.overlays.synced)-1])
}

func TestClosePaneTearsDownEverything(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	p2, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	f.coord.SetContainer(f.ctx, bounds.Rect{Width: 1000, Height: 600})
	f.scheduler.RunFrame()
	_, ok := f.bounds.Get(p1)
	require.True(t, ok)

	f.coord.ClosePane(f.ctx, p1)

	require.False(t, f.sessions.Has("sess-1"))
	require.False(t, f.registry.Has(p1))
	// Bounds removal is synchronous with teardown, not frame-deferred.
	_, ok = f.bounds.Get(p1)
	require.False(t, ok)
	require.Equal(t, []string{"sess-1"}, f.recorder.ended)

	// Single-child split collapsed to the surviving leaf.
	tree := f.coord.Tree()
	require.True(t, tree.Root.IsLeaf())
	require.Equal(t, p2, tree.Root.ID)

	// Unknown id is a no-op.
	before := f.coord.Tree().Version
	f.coord.ClosePane(f.ctx, "missing")
	require.Equal(t, before, f.coord.Tree().Version)
}

func TestSessionExitRemovesPane(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	code := 1
	f.coord.HandleSessionExit(f.ctx, "sess-1", &code)

	require.True(t, f.coord.Tree().IsEmpty())
	require.False(t, f.registry.Has(p1))
	require.Equal(t, []string{"sess-1"}, f.recorder.ended)
}

func TestSessionOutputMarksDirtyAndNudgesObserver(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	f.registry.ConsumeAllDirty() // clear the register-time flag
	nudges := f.observer.nudges

	f.coord.HandleSessionOutput("sess-1")
	require.Equal(t, []string{p1}, f.registry.ConsumeAllDirty())
	require.Equal(t, nudges+1, f.observer.nudges)

	// Output for an unknown session is dropped.
	f.coord.HandleSessionOutput("sess-99")
	require.Empty(t, f.registry.ConsumeAllDirty())
}

func TestUndoRedoVersionNeverMovesBackward(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	p2, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	twoLeaves := f.coord.Tree()
	f.coord.ClosePane(f.ctx, p2)
	afterClose := f.coord.Tree()
	require.True(t, afterClose.Root.IsLeaf())

	require.True(t, f.coord.Undo(f.ctx))
	undone := f.coord.Tree()
	require.Greater(t, undone.Version, afterClose.Version)
	require.Len(t, layout.AllLeaves(undone), len(layout.AllLeaves(twoLeaves)))

	// The closed pane's session was killed; undo started a replacement.
	restored := undone.Root.Children[1]
	require.True(t, f.sessions.Has(restored.Payload.SessionID))

	require.True(t, f.coord.Redo(f.ctx))
	redone := f.coord.Tree()
	require.Greater(t, redone.Version, undone.Version)
	require.True(t, redone.Root.IsLeaf())

	// Nothing left to redo.
	require.False(t, f.coord.Redo(f.ctx))
}

func TestUndoOnEmptyHistory(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.coord.Undo(f.ctx))
	require.False(t, f.coord.Redo(f.ctx))
}

func TestRestoreStartsFreshSessions(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	_, err = f.coord.OpenBrowser(f.ctx, "https://example.com", layout.EdgeEnd)
	require.NoError(t, err)
	f.scheduler.RunFrame() // persist

	// Fresh process: same store, everything else new.
	g := newFixture(t)
	g.store = f.store
	g.coord = New(Options{
		Sessions:  g.sessions,
		Registry:  g.registry,
		Bounds:    g.bounds,
		Scheduler: g.scheduler,
		Overlays:  g.overlays,
		Layouts:   f.store,
		Records:   g.recorder,
		Observer:  g.observer,
		Logger:    zerolog.Nop(),
	})

	require.NoError(t, g.coord.Restore(g.ctx))

	tree := g.coord.Tree()
	require.Len(t, layout.AllLeaves(tree), 2)

	// The stored session id belonged to a dead process; a fresh one was
	// started and the leaf repointed.
	terms := layout.AllOfKind(tree, layout.KindTerminal)
	require.Len(t, terms, 1)
	require.Equal(t, "sess-1", terms[0].Payload.SessionID)
	require.True(t, g.sessions.Has("sess-1"))

	// Browser leaves keep their URL and need no session.
	browsers := layout.AllOfKind(tree, layout.KindBrowser)
	require.Len(t, browsers, 1)
	require.Equal(t, "https://example.com", browsers[0].Payload.URL)
}

func TestRestoreUnreadableLayoutStartsEmpty(t *testing.T) {
	f := newFixture(t)
	f.store.layoutJSON = "{corrupt"
	f.store.ok = true

	require.NoError(t, f.coord.Restore(f.ctx))
	require.True(t, f.coord.Tree().IsEmpty())
}

func TestAdjustDividerHonorsMinShare(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	_, err = f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	rootID := f.coord.Tree().Root.ID
	before := f.coord.Tree().Version

	// 50-45=5 would fall below the 10% floor.
	f.coord.AdjustDivider(f.ctx, rootID, 0, 45)
	require.Equal(t, before, f.coord.Tree().Version)

	f.coord.AdjustDivider(f.ctx, rootID, 0, 20)
	tree := f.coord.Tree()
	require.Greater(t, tree.Version, before)
	require.InDelta(t, 70, tree.Root.Sizes[0], layout.SizeTolerance)
	require.InDelta(t, 30, tree.Root.Sizes[1], layout.SizeTolerance)
}

func TestFocusFollowsPaneLifetime(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	f.coord.FocusPane("missing")
	require.Empty(t, f.coord.Focused())

	f.coord.FocusPane(p1)
	require.Equal(t, p1, f.coord.Focused())

	f.coord.ClosePane(f.ctx, p1)
	require.Empty(t, f.coord.Focused())
}

func TestShutdownPersistsAndTearsDown(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	f.coord.Shutdown(f.ctx)

	require.Equal(t, 1, f.store.saved)
	require.True(t, f.overlays.closed)
	require.False(t, f.sessions.Has("sess-1"))

	// Coalesced work scheduled before shutdown was dropped, not run late.
	f.scheduler.RunFrame()
	require.Equal(t, 1, f.store.saved)
}

func TestOpenBrowserDuplicateURLsGetDistinctPanes(t *testing.T) {
	f := newFixture(t)

	p1, err := f.coord.OpenBrowser(f.ctx, "https://example.com", layout.EdgeEnd)
	require.NoError(t, err)
	p2, err := f.coord.OpenBrowser(f.ctx, "https://example.com", layout.EdgeEnd)
	require.NoError(t, err)

	require.NotEqual(t, p1, p2)
	require.Len(t, layout.AllOfKind(f.coord.Tree(), layout.KindBrowser), 2)
	require.True(t, f.registry.Has(p1))
	require.True(t, f.registry.Has(p2))

	// Both panes stay independently addressable.
	f.coord.ClosePane(f.ctx, p2)
	require.True(t, f.registry.Has(p1))
	require.False(t, f.registry.Has(p2))
	require.NotNil(t, layout.FindByID(f.coord.Tree(), p1))
}

func TestUndoTearsDownDetachedPanes(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	p2, err := f.coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)
	f.bounds.Update(p2, bounds.Rect{X: 500, Width: 500, Height: 600})

	require.True(t, f.coord.Undo(f.ctx))

	// The undone open's session, registry entry and bounds are all gone.
	require.False(t, f.sessions.Has("sess-2"))
	require.False(t, f.registry.Has(p2))
	_, ok := f.bounds.Get(p2)
	require.False(t, ok)
	require.Contains(t, f.recorder.ended, "sess-2")

	// Redo brings the pane back with a fresh session.
	require.True(t, f.coord.Redo(f.ctx))
	leaf := layout.FindByID(f.coord.Tree(), p2)
	require.NotNil(t, leaf)
	require.True(t, f.sessions.Has(leaf.Payload.SessionID))
	require.NotEqual(t, "sess-2", leaf.Payload.SessionID)
	require.True(t, f.registry.Has(p2))
}

func TestSessionsStartInConfiguredDirectory(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	coord := New(Options{
		Sessions:  f.sessions,
		Registry:  f.registry,
		Bounds:    f.bounds,
		Scheduler: f.scheduler,
		Records:   f.recorder,
		Logger:    zerolog.Nop(),
		Shell:     "/bin/sh",
		Cwd:       dir,
	})

	_, err := coord.OpenTerminal(f.ctx, layout.EdgeEnd)
	require.NoError(t, err)

	require.Equal(t, []string{dir}, f.sessions.cwds)
	require.Equal(t, []string{dir}, f.recorder.cwds)
}
