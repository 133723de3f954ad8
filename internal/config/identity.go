package config

import (
	"os"
	"path/filepath"
)

// defaultIdentityNames are the conventional private key files probed under
// ~/.ssh, in preference order.
var defaultIdentityNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// ResolveIdentityFile returns the SSH private key path to use for a
// connection, checking sources in priority order:
//
//  1. Provided flagPath (e.g. from an --identity flag)
//  2. The connection's stored key path
//  3. The first conventional key found under ~/.ssh
//
// Returns empty string if no identity file is found; password or agent
// authentication may still apply in that case.
func ResolveIdentityFile(flagPath, connectionPath string) string {
	path, _ := ResolveIdentityFileSource(flagPath, connectionPath)
	return path
}

// ResolveIdentityFileSource returns the identity file and the source it came
// from, for verbose logging. Source is one of "flag", "connection",
// "default", or "" when nothing was found.
func ResolveIdentityFileSource(flagPath, connectionPath string) (string, string) {
	if flagPath != "" {
		return expandHome(flagPath), "flag"
	}
	if connectionPath != "" {
		return expandHome(connectionPath), "connection"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	for _, name := range defaultIdentityNames {
		candidate := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, "default"
		}
	}
	return "", ""
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if len(path) >= 2 && path[0] == '~' && os.IsPathSeparator(path[1]) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
