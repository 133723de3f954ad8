package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.TerminalCols != 120 || cfg.TerminalRows != 32 {
		t.Errorf("terminal geometry = %dx%d, want 120x32", cfg.TerminalCols, cfg.TerminalRows)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if !cfg.Notifications.Enabled {
		t.Errorf("Notifications.Enabled = false, want true")
	}
	if cfg.Transfers.MaxBatchDepth != 32 {
		t.Errorf("MaxBatchDepth = %d, want 32", cfg.Transfers.MaxBatchDepth)
	}
	if cfg.Transfers.MaxBatchItems != 10000 {
		t.Errorf("MaxBatchItems = %d, want 10000", cfg.Transfers.MaxBatchItems)
	}
	if !cfg.Transfers.CheckDiskSpace {
		t.Errorf("CheckDiskSpace = false, want true")
	}
}

func TestLoadParsesAllSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	content := `[portico]
terminal_cols = 200
terminal_rows = 50
log_level = debug

[portico.transfers]
max_batch_depth = 16
max_batch_items = 500
check_disk_space = false

[portico.notifications]
enabled = false
show_transfer_complete = false
show_session_ended = true

[portico.desktop]
client_path = /usr/bin/xfreerdp
client_args = /cert:ignore +clipboard
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.TerminalCols != 200 || cfg.TerminalRows != 50 {
		t.Errorf("terminal geometry = %dx%d, want 200x50", cfg.TerminalCols, cfg.TerminalRows)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Transfers.MaxBatchDepth != 16 || cfg.Transfers.MaxBatchItems != 500 {
		t.Errorf("batch limits = %d/%d, want 16/500", cfg.Transfers.MaxBatchDepth, cfg.Transfers.MaxBatchItems)
	}
	if cfg.Transfers.CheckDiskSpace {
		t.Errorf("CheckDiskSpace = true, want false")
	}
	if cfg.Notifications.Enabled {
		t.Errorf("Notifications.Enabled = true, want false")
	}
	if cfg.Notifications.ShowTransferComplete {
		t.Errorf("ShowTransferComplete = true, want false")
	}
	// Unset keys keep their defaults.
	if !cfg.Notifications.ShowTransferFailed {
		t.Errorf("ShowTransferFailed = false, want default true")
	}
	if !cfg.Notifications.ShowSessionEnded {
		t.Errorf("ShowSessionEnded = false, want true")
	}
	if cfg.Desktop.ClientPath != "/usr/bin/xfreerdp" {
		t.Errorf("ClientPath = %q, want %q", cfg.Desktop.ClientPath, "/usr/bin/xfreerdp")
	}
	args := cfg.DesktopClientArgs()
	if len(args) != 2 || args[0] != "/cert:ignore" || args[1] != "+clipboard" {
		t.Errorf("DesktopClientArgs() = %v, want [/cert:ignore +clipboard]", args)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	cfg := New()
	cfg.TerminalCols = 100
	cfg.LogLevel = "warn"
	cfg.Transfers.MaxBatchItems = 2500
	cfg.Notifications.ShowSessionEnded = true
	cfg.Desktop.ClientPath = "/opt/client"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v, want nil", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if loaded.TerminalCols != 100 {
		t.Errorf("TerminalCols = %d, want 100", loaded.TerminalCols)
	}
	if loaded.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", loaded.LogLevel, "warn")
	}
	if loaded.Transfers.MaxBatchItems != 2500 {
		t.Errorf("MaxBatchItems = %d, want 2500", loaded.Transfers.MaxBatchItems)
	}
	if !loaded.Notifications.ShowSessionEnded {
		t.Errorf("ShowSessionEnded = false, want true")
	}
	if loaded.Desktop.ClientPath != "/opt/client" {
		t.Errorf("ClientPath = %q, want %q", loaded.Desktop.ClientPath, "/opt/client")
	}

	// No temp file left behind after the atomic rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present after Save")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults valid", func(c *Config) {}, nil},
		{"zero cols", func(c *Config) { c.TerminalCols = 0 }, ErrInvalidTerminalGeometry},
		{"huge rows", func(c *Config) { c.TerminalRows = 5000 }, ErrInvalidTerminalGeometry},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"depth too deep", func(c *Config) { c.Transfers.MaxBatchDepth = 100 }, ErrInvalidBatchDepth},
		{"zero items", func(c *Config) { c.Transfers.MaxBatchItems = 0 }, ErrInvalidBatchItems},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveIdentityFileSource(t *testing.T) {
	if got, source := ResolveIdentityFileSource("/tmp/key", "/stored/key"); got != "/tmp/key" || source != "flag" {
		t.Errorf("ResolveIdentityFileSource = (%q, %q), want (/tmp/key, flag)", got, source)
	}
	if got, source := ResolveIdentityFileSource("", "/stored/key"); got != "/stored/key" || source != "connection" {
		t.Errorf("ResolveIdentityFileSource = (%q, %q), want (/stored/key, connection)", got, source)
	}
}
