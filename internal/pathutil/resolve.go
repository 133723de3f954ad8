// Package pathutil resolves user-supplied filesystem paths.
package pathutil

import (
	"os"
	"path/filepath"
)

// ResolveAbsolutePath turns a user-supplied path into an absolute one with
// symlinks resolved. A leading ~ expands to the home directory and an empty
// path means the current directory.
//
// Symlinks are resolved for the existing portion of the path only; trailing
// components that do not exist yet are appended afterwards. That keeps a
// destination like a not-yet-created subdirectory of a junction (Windows
// Downloads) pointing at the real location.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	if path == "~" || (len(path) >= 2 && path[0] == '~' && os.IsPathSeparator(path[1])) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	// The path does not fully exist. Walk up to the deepest existing
	// ancestor, resolve that, then put the missing components back.
	current := abs
	var missing []string
	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current
			}
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
