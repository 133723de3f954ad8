//go:build !windows

package diskspace

import "syscall"

// availableSpace returns the bytes available to an unprivileged caller on
// the filesystem containing dir, or 0 when the probe fails.
func availableSpace(dir string) int64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0
	}

	// Bavail is the block count available to non-root users.
	return int64(stat.Bavail) * int64(stat.Bsize)
}
