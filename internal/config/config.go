package config

import (
	"fmt"
	"strings"
)

// Config is the complete wizterm configuration.
type Config struct {
	Layout   LayoutConfig   `mapstructure:"layout"`
	Bounds   BoundsConfig   `mapstructure:"bounds"`
	Minimap  MinimapConfig  `mapstructure:"minimap"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LayoutConfig tunes tree mutation behavior.
type LayoutConfig struct {
	// MinShare is the smallest size share (percent) a divider drag may
	// leave a child with.
	MinShare float64 `mapstructure:"min_share"`
}

// BoundsConfig tunes the pane geometry cache.
type BoundsConfig struct {
	// WriteEpsilon is the sub-pixel threshold below which a bounds update
	// is suppressed.
	WriteEpsilon float64 `mapstructure:"write_epsilon"`
}

// MinimapConfig tunes the observer window.
type MinimapConfig struct {
	ThumbnailWidth  int     `mapstructure:"thumbnail_width"`
	ThumbnailHeight int     `mapstructure:"thumbnail_height"`
	MinHeight       float64 `mapstructure:"min_height"`
	MaxHeight       float64 `mapstructure:"max_height"`
	OpenOnStart     bool    `mapstructure:"open_on_start"`
}

// TerminalConfig holds per-session terminal preferences.
type TerminalConfig struct {
	// Shell overrides $SHELL for new sessions. Empty means inherit.
	Shell           string `mapstructure:"shell"`
	ScrollbackLines int    `mapstructure:"scrollback_lines"`
	FontFamily      string `mapstructure:"font_family"`
	FontSize        int    `mapstructure:"font_size"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	// Path to the SQLite file; resolved from XDG data dir when empty.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Layout: LayoutConfig{
			MinShare: 10.0,
		},
		Bounds: BoundsConfig{
			WriteEpsilon: 0.5,
		},
		Minimap: MinimapConfig{
			ThumbnailWidth:  320,
			ThumbnailHeight: 320,
			MinHeight:       50,
			MaxHeight:       10000,
			OpenOnStart:     false,
		},
		Terminal: TerminalConfig{
			Shell:           "",
			ScrollbackLines: 10000,
			FontFamily:      "monospace",
			FontSize:        14,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true, "panic": true,
}

// validateConfig rejects values the engine cannot operate with.
func validateConfig(cfg *Config) error {
	if cfg.Layout.MinShare <= 0 || cfg.Layout.MinShare > 50 {
		return fmt.Errorf("layout.min_share must be in (0, 50], got %v", cfg.Layout.MinShare)
	}
	if cfg.Bounds.WriteEpsilon < 0 {
		return fmt.Errorf("bounds.write_epsilon must be >= 0, got %v", cfg.Bounds.WriteEpsilon)
	}
	if cfg.Minimap.ThumbnailWidth <= 0 || cfg.Minimap.ThumbnailHeight <= 0 {
		return fmt.Errorf("minimap thumbnail dimensions must be positive, got %dx%d",
			cfg.Minimap.ThumbnailWidth, cfg.Minimap.ThumbnailHeight)
	}
	if cfg.Minimap.MinHeight <= 0 || cfg.Minimap.MaxHeight <= cfg.Minimap.MinHeight {
		return fmt.Errorf("minimap height clamp invalid: min=%v max=%v",
			cfg.Minimap.MinHeight, cfg.Minimap.MaxHeight)
	}
	if cfg.Terminal.ScrollbackLines < 0 {
		return fmt.Errorf("terminal.scrollback_lines must be >= 0, got %d", cfg.Terminal.ScrollbackLines)
	}
	if cfg.Terminal.FontSize <= 0 {
		return fmt.Errorf("terminal.font_size must be positive, got %d", cfg.Terminal.FontSize)
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level %q is not a known level", cfg.Logging.Level)
	}
	return nil
}

// normalizeConfig canonicalizes string enums in place.
func normalizeConfig(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console":
		cfg.Logging.Format = "console"
	case "json":
		cfg.Logging.Format = "json"
	default:
		cfg.Logging.Format = "console"
	}

	cfg.Terminal.Shell = strings.TrimSpace(cfg.Terminal.Shell)
	cfg.Terminal.FontFamily = strings.TrimSpace(cfg.Terminal.FontFamily)
}
