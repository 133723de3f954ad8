// Package validation checks entry names before they reach filesystem
// operations. Remote listings are untrusted input; a name is only safe to
// join onto a directory when it is a single path element.
package validation

import (
	"fmt"
	"strings"
)

// ValidateEntryName rejects names that cannot be a single path element:
// the empty string, the dot entries, and anything containing a path
// separator or a null byte. It is applied to names from remote listings
// before they are joined onto a local directory, and to names typed for
// new files and folders.
func ValidateEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is reserved", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("name contains a null byte")
	}
	return nil
}
