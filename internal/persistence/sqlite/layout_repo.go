package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wizterm/wizterm/internal/logging"
)

// LayoutRepository stores the single saved workspace layout as its
// serialized tree string.
type LayoutRepository struct {
	db *sql.DB
}

// NewLayoutRepository creates a layout repository.
func NewLayoutRepository(db *sql.DB) *LayoutRepository {
	return &LayoutRepository{db: db}
}

// Save upserts the serialized layout. treeVersion is stored alongside so a
// stale write (older revision than what is on disk) can be detected by
// callers that care.
func (r *LayoutRepository) Save(ctx context.Context, layoutJSON string, treeVersion uint64) error {
	if layoutJSON == "" {
		return errors.New("layout json cannot be empty")
	}

	log := logging.FromContext(ctx)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workspace_layout (id, layout_json, tree_version, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			layout_json = excluded.layout_json,
			tree_version = excluded.tree_version,
			updated_at = excluded.updated_at`,
		layoutJSON, int64(treeVersion), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save layout: %w", err)
	}

	log.Debug().Uint64("tree_version", treeVersion).Msg("layout saved")
	return nil
}

// Load returns the saved layout, or ok=false when none has been saved yet.
func (r *LayoutRepository) Load(ctx context.Context) (layoutJSON string, treeVersion uint64, ok bool, err error) {
	var version int64
	row := r.db.QueryRowContext(ctx,
		"SELECT layout_json, tree_version FROM workspace_layout WHERE id = 1")
	if scanErr := row.Scan(&layoutJSON, &version); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", 0, false, nil
		}
		return "", 0, false, fmt.Errorf("load layout: %w", scanErr)
	}
	if version > 0 {
		treeVersion = uint64(version)
	}
	return layoutJSON, treeVersion, true, nil
}

// Clear removes the saved layout. The next startup begins with an empty
// workspace.
func (r *LayoutRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM workspace_layout WHERE id = 1"); err != nil {
		return fmt.Errorf("clear layout: %w", err)
	}
	return nil
}
