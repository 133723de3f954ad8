// Package config provides configuration management for Portico.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/portico-labs/portico/internal/constants"
)

// Config is the user-level configuration shared by the CLI and the session
// layer. It is deliberately small; per-connection settings live in the
// connection store, not here.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\portico\config
//   - Unix: ~/.config/portico/config
//
// INI format:
//
//	[portico]
//	terminal_cols = 120
//	terminal_rows = 32
//	log_level = info
//
//	[portico.transfers]
//	max_batch_depth = 32
//	max_batch_items = 10000
//	check_disk_space = true
//
//	[portico.notifications]
//	enabled = true
//	show_transfer_complete = true
//	show_transfer_failed = true
//	show_session_ended = false
//
//	[portico.desktop]
//	client_path = /usr/bin/xfreerdp
//	client_args =
type Config struct {
	// Default terminal geometry for new shell sessions.
	TerminalCols uint16 `ini:"terminal_cols"`
	TerminalRows uint16 `ini:"terminal_rows"`

	// LogLevel is the minimum level written to the log output.
	// One of: debug, info, warn, error. Default: info
	LogLevel string `ini:"log_level"`

	// Transfer settings
	Transfers TransferConfig

	// Notification settings
	Notifications NotificationConfig

	// Desktop session settings
	Desktop DesktopConfig
}

// TransferConfig contains limits applied to recursive batch transfers.
type TransferConfig struct {
	// MaxBatchDepth is the deepest directory nesting a single drop or
	// batch upload will walk. Default: 32
	MaxBatchDepth int `ini:"max_batch_depth"`

	// MaxBatchItems caps the number of files and directories a single
	// batch may contain. Default: 10000
	MaxBatchItems int `ini:"max_batch_items"`

	// CheckDiskSpace enables the free-space preflight before downloads.
	// Default: true
	CheckDiskSpace bool `ini:"check_disk_space"`
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	// Enabled indicates whether notifications are shown at all.
	// Default: true
	Enabled bool `ini:"enabled"`

	// ShowTransferComplete shows a notification when a transfer batch
	// finishes without errors. Default: true
	ShowTransferComplete bool `ini:"show_transfer_complete"`

	// ShowTransferFailed shows a notification when a transfer fails.
	// Default: true
	ShowTransferFailed bool `ini:"show_transfer_failed"`

	// ShowSessionEnded shows a notification when a session exits while
	// its tab is not focused. Default: false
	ShowSessionEnded bool `ini:"show_session_ended"`
}

// DesktopConfig configures the external remote-desktop client that desktop
// sessions are delegated to.
type DesktopConfig struct {
	// ClientPath is the executable launched for desktop sessions. When
	// empty, desktop sessions fail with a host-init error.
	ClientPath string `ini:"client_path"`

	// ClientArgs is appended to the generated argument list, split on
	// whitespace. Default: empty
	ClientArgs string `ini:"client_args"`
}

// Validation errors
var (
	ErrInvalidTerminalGeometry = errors.New("terminal_cols and terminal_rows must be between 1 and 1000")
	ErrInvalidLogLevel         = errors.New("log_level must be one of: debug, info, warn, error")
	ErrInvalidBatchDepth       = errors.New("max_batch_depth must be between 1 and 64")
	ErrInvalidBatchItems       = errors.New("max_batch_items must be between 1 and 1000000")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		TerminalCols: constants.DefaultTerminalCols,
		TerminalRows: constants.DefaultTerminalRows,
		LogLevel:     "info",
		Transfers: TransferConfig{
			MaxBatchDepth:  constants.MaxBatchDepth,
			MaxBatchItems:  constants.MaxBatchItems,
			CheckDiskSpace: true,
		},
		Notifications: NotificationConfig{
			Enabled:              true,
			ShowTransferComplete: true,
			ShowTransferFailed:   true,
			ShowSessionEnded:     false,
		},
		Desktop: DesktopConfig{},
	}
}

// Load reads configuration from an INI file. If path is empty the default
// location is used. A missing file is not an error: defaults are returned so
// first runs work without a config step. A file that exists but cannot be
// parsed is an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	main := iniFile.Section("portico")
	cfg.TerminalCols = uint16(main.Key("terminal_cols").MustUint(uint(cfg.TerminalCols)))
	cfg.TerminalRows = uint16(main.Key("terminal_rows").MustUint(uint(cfg.TerminalRows)))
	cfg.LogLevel = main.Key("log_level").MustString(cfg.LogLevel)

	transfers := iniFile.Section("portico.transfers")
	cfg.Transfers.MaxBatchDepth = transfers.Key("max_batch_depth").MustInt(cfg.Transfers.MaxBatchDepth)
	cfg.Transfers.MaxBatchItems = transfers.Key("max_batch_items").MustInt(cfg.Transfers.MaxBatchItems)
	cfg.Transfers.CheckDiskSpace = transfers.Key("check_disk_space").MustBool(true)

	notify := iniFile.Section("portico.notifications")
	cfg.Notifications.Enabled = notify.Key("enabled").MustBool(true)
	cfg.Notifications.ShowTransferComplete = notify.Key("show_transfer_complete").MustBool(true)
	cfg.Notifications.ShowTransferFailed = notify.Key("show_transfer_failed").MustBool(true)
	cfg.Notifications.ShowSessionEnded = notify.Key("show_session_ended").MustBool(false)

	desktop := iniFile.Section("portico.desktop")
	cfg.Desktop.ClientPath = desktop.Key("client_path").String()
	cfg.Desktop.ClientArgs = desktop.Key("client_args").String()

	return cfg, nil
}

// Save writes configuration to an INI file, creating parent directories as
// needed. Writes go through a temp file and rename so a crash never leaves a
// half-written config behind.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	main, err := iniFile.NewSection("portico")
	if err != nil {
		return fmt.Errorf("failed to create portico section: %w", err)
	}
	main.Key("terminal_cols").SetValue(fmt.Sprintf("%d", cfg.TerminalCols))
	main.Key("terminal_rows").SetValue(fmt.Sprintf("%d", cfg.TerminalRows))
	main.Key("log_level").SetValue(cfg.LogLevel)

	transfers, err := iniFile.NewSection("portico.transfers")
	if err != nil {
		return fmt.Errorf("failed to create transfers section: %w", err)
	}
	transfers.Key("max_batch_depth").SetValue(fmt.Sprintf("%d", cfg.Transfers.MaxBatchDepth))
	transfers.Key("max_batch_items").SetValue(fmt.Sprintf("%d", cfg.Transfers.MaxBatchItems))
	transfers.Key("check_disk_space").SetValue(fmt.Sprintf("%t", cfg.Transfers.CheckDiskSpace))

	notify, err := iniFile.NewSection("portico.notifications")
	if err != nil {
		return fmt.Errorf("failed to create notifications section: %w", err)
	}
	notify.Key("enabled").SetValue(fmt.Sprintf("%t", cfg.Notifications.Enabled))
	notify.Key("show_transfer_complete").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowTransferComplete))
	notify.Key("show_transfer_failed").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowTransferFailed))
	notify.Key("show_session_ended").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowSessionEnded))

	desktop, err := iniFile.NewSection("portico.desktop")
	if err != nil {
		return fmt.Errorf("failed to create desktop section: %w", err)
	}
	desktop.Key("client_path").SetValue(cfg.Desktop.ClientPath)
	desktop.Key("client_args").SetValue(cfg.Desktop.ClientArgs)

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration. Returns nil if valid, or an error
// describing the first problem found.
func (cfg *Config) Validate() error {
	if cfg.TerminalCols < 1 || cfg.TerminalCols > 1000 || cfg.TerminalRows < 1 || cfg.TerminalRows > 1000 {
		return ErrInvalidTerminalGeometry
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	if cfg.Transfers.MaxBatchDepth < 1 || cfg.Transfers.MaxBatchDepth > 64 {
		return ErrInvalidBatchDepth
	}
	if cfg.Transfers.MaxBatchItems < 1 || cfg.Transfers.MaxBatchItems > 1000000 {
		return ErrInvalidBatchItems
	}
	return nil
}

// DesktopClientArgs splits the configured extra arguments on whitespace.
func (cfg *Config) DesktopClientArgs() []string {
	return strings.Fields(cfg.Desktop.ClientArgs)
}
