package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Preferences are the terminal settings the UI layer persists across runs.
type Preferences struct {
	FontSize         int
	FontFamily       string
	Scrollback       int
	CursorBlink      bool
	MinimapRefreshMS int
	// ShellPath empty means inherit $SHELL.
	ShellPath string
}

// DefaultPreferences returns the values used before anything is saved.
func DefaultPreferences() Preferences {
	return Preferences{
		FontSize:         14,
		FontFamily:       "monospace",
		Scrollback:       10000,
		CursorBlink:      true,
		MinimapRefreshMS: 200,
		ShellPath:        "",
	}
}

// PreferencesRepository stores the single preferences row.
type PreferencesRepository struct {
	db *sql.DB
}

// NewPreferencesRepository creates a preferences repository.
func NewPreferencesRepository(db *sql.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Save upserts the preferences row.
func (r *PreferencesRepository) Save(ctx context.Context, prefs Preferences) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO terminal_preferences
			(id, font_size, font_family, scrollback, cursor_blink, minimap_refresh_ms, shell_path, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			font_size = excluded.font_size,
			font_family = excluded.font_family,
			scrollback = excluded.scrollback,
			cursor_blink = excluded.cursor_blink,
			minimap_refresh_ms = excluded.minimap_refresh_ms,
			shell_path = excluded.shell_path,
			updated_at = excluded.updated_at`,
		prefs.FontSize, prefs.FontFamily, prefs.Scrollback,
		boolToInt(prefs.CursorBlink), prefs.MinimapRefreshMS, prefs.ShellPath,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Load returns the saved preferences, or the defaults when nothing has been
// saved yet.
func (r *PreferencesRepository) Load(ctx context.Context) (Preferences, error) {
	var (
		prefs       Preferences
		cursorBlink int
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT font_size, font_family, scrollback, cursor_blink, minimap_refresh_ms, shell_path
		FROM terminal_preferences WHERE id = 1`)
	err := row.Scan(&prefs.FontSize, &prefs.FontFamily, &prefs.Scrollback,
		&cursorBlink, &prefs.MinimapRefreshMS, &prefs.ShellPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultPreferences(), nil
		}
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	prefs.CursorBlink = cursorBlink != 0
	return prefs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
