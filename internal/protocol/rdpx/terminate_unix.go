//go:build !windows

package rdpx

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// killGracePeriod is how long a client gets to exit after SIGTERM before it
// is killed.
const killGracePeriod = 3 * time.Second

// terminate asks the client to exit with SIGTERM and escalates to SIGKILL
// when it is still running after the grace period. Errors from signaling an
// already exited process are not interesting to callers.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return nil
	}
	go func(p *os.Process) {
		time.Sleep(killGracePeriod)
		p.Kill()
	}(cmd.Process)
	return nil
}
