//go:build windows

package cli

import (
	"os"
	"time"

	"golang.org/x/term"
)

// watchResize invokes fn whenever the terminal window changes size, until
// the returned stop function is called. Windows has no SIGWINCH, so the
// console size is polled.
func watchResize(fn func()) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		width, height, _ := term.GetSize(int(os.Stdout.Fd()))
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w, h, err := term.GetSize(int(os.Stdout.Fd()))
				if err != nil {
					continue
				}
				if w != width || h != height {
					width, height = w, h
					fn()
				}
			}
		}
	}()

	return func() { close(done) }
}
