//go:build !windows

package cli

import (
	"os"
	"os/signal"
	"syscall"
)

// watchResize invokes fn whenever the terminal window changes size, until
// the returned stop function is called.
func watchResize(fn func()) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				fn()
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
