//go:build windows

package rdpx

import "os/exec"

// terminate kills the client process. Windows offers no polite signal to
// ask a GUI process to exit from here.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
