package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLayoutRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := NewConnection(ctx, filepath.Join(t.TempDir(), "wizterm.sqlite"))
	require.NoError(t, err)
	defer Close(db)

	repo := NewLayoutRepository(db)

	_, _, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.Save(ctx, `{"version":1}`, 7))
	layoutJSON, version, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"version":1}`, layoutJSON)
	require.Equal(t, uint64(7), version)

	// Upsert replaces the single row.
	require.NoError(t, repo.Save(ctx, `{"version":1,"root":null}`, 9))
	layoutJSON, version, ok, err = repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"version":1,"root":null}`, layoutJSON)
	require.Equal(t, uint64(9), version)

	require.Error(t, repo.Save(ctx, "", 10))

	require.NoError(t, repo.Clear(ctx))
	_, _, ok, err = repo.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	db, err := NewConnection(ctx, filepath.Join(t.TempDir(), "wizterm.sqlite"))
	require.NoError(t, err)
	defer Close(db)

	repo := NewSessionRecordRepository(db)

	require.NoError(t, repo.RecordStart(ctx, "s1", "/bin/sh", "/tmp"))
	require.NoError(t, repo.RecordStart(ctx, "s2", "/bin/zsh", ""))
	require.Error(t, repo.RecordStart(ctx, "", "/bin/sh", ""))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	code := 0
	require.NoError(t, repo.RecordEnd(ctx, "s1", &code))

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "s2", active[0].ID)
	require.Equal(t, "/bin/zsh", active[0].Shell)

	n, err := repo.MarkAllEnded(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	// Everything ended in the past relative to a future cutoff.
	removed, err := repo.CleanupEndedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
}

func TestPreferencesDefaultsAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := NewConnection(ctx, filepath.Join(t.TempDir(), "wizterm.sqlite"))
	require.NoError(t, err)
	defer Close(db)

	repo := NewPreferencesRepository(db)

	prefs, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultPreferences(), prefs)

	prefs.FontSize = 16
	prefs.CursorBlink = false
	prefs.ShellPath = "/bin/fish"
	require.NoError(t, repo.Save(ctx, prefs))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, prefs, got)

	// Saving again updates the same row.
	prefs.Scrollback = 5000
	require.NoError(t, repo.Save(ctx, prefs))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 5000, got.Scrollback)
}

func TestConnectionRejectsEmptyPath(t *testing.T) {
	_, err := NewConnection(context.Background(), "")
	require.Error(t, err)
}
