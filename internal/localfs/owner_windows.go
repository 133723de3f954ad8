//go:build windows

package localfs

import (
	"github.com/portico-labs/portico/internal/protocol"
)

// fillOwnership is a no-op on Windows; owner and permission columns stay
// empty in the local pane there.
func fillOwnership(path string, entry *protocol.FileEntry) {}
