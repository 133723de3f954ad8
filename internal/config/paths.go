// Package config provides configuration management for Portico.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDirName is the per-user directory holding the config file, the
// connection store, and logs.
const ConfigDirName = "portico"

// DataDirectory returns the per-user Portico directory.
//
// Locations:
//   - Windows: %USERPROFILE%\.config\portico
//   - Unix: ~/.config/portico
func DataDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile != "" {
			return filepath.Join(userProfile, ".config", ConfigDirName), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", ConfigDirName), nil
}

// DefaultConfigPath returns the default path of the INI config file.
func DefaultConfigPath() (string, error) {
	dir, err := DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultStorePath returns the default path of the SQLite store that holds
// connections and pinned host keys.
func DefaultStorePath() (string, error) {
	dir, err := DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "portico.db"), nil
}

// LogDirectory returns the directory for Portico log files. Falls back to a
// temp-dir subpath when no home directory can be determined.
func LogDirectory() string {
	dir, err := DataDirectory()
	if err != nil {
		return filepath.Join(os.TempDir(), "portico-logs")
	}
	return filepath.Join(dir, "logs")
}

// EnsureLogDirectory creates the log directory if it doesn't exist.
// Uses 0700 permissions to restrict log access to the owner.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
