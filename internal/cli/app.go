// Package cli wires the dependencies shared by the wizterm CLI commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wizterm/wizterm/internal/config"
	"github.com/wizterm/wizterm/internal/logging"
	"github.com/wizterm/wizterm/internal/persistence/sqlite"
)

// App holds CLI dependencies.
type App struct {
	Config  *config.Config
	Layouts *sqlite.LayoutRepository
	Records *sqlite.SessionRecordRepository
	Prefs   *sqlite.PreferencesRepository

	db  *sql.DB
	ctx context.Context
}

// NewApp loads configuration, opens the database and builds the
// repositories the commands work against.
func NewApp() (*App, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	ctx := logging.WithContext(context.Background(), logger)

	db, err := sqlite.NewConnection(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &App{
		Config:  cfg,
		Layouts: sqlite.NewLayoutRepository(db),
		Records: sqlite.NewSessionRecordRepository(db),
		Prefs:   sqlite.NewPreferencesRepository(db),
		db:      db,
		ctx:     ctx,
	}, nil
}

// Ctx returns the logger-carrying context for command execution.
func (a *App) Ctx() context.Context {
	return a.ctx
}

// Close releases the app's resources.
func (a *App) Close() error {
	return sqlite.Close(a.db)
}
