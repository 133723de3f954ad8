//go:build !windows

package localfs

import (
	"os/user"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/portico-labs/portico/internal/protocol"
)

var ownerCache sync.Map // uid string -> username

// fillOwnership populates Owner and Permissions from the inode. Lookup
// failures leave both nil; listings degrade rather than fail.
func fillOwnership(path string, entry *protocol.FileEntry) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return
	}
	mode := uint32(st.Mode)
	entry.Permissions = &mode

	uid := strconv.FormatUint(uint64(st.Uid), 10)
	if cached, ok := ownerCache.Load(uid); ok {
		name := cached.(string)
		entry.Owner = &name
		return
	}
	name := uid
	if u, err := user.LookupId(uid); err == nil && u.Username != "" {
		name = u.Username
	}
	ownerCache.Store(uid, name)
	entry.Owner = &name
}
