package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/protocol"
)

// newShellCmd creates the 'shell' command.
func newShellCmd() *cobra.Command {
	var (
		cols      uint16
		rows      uint16
		acceptNew bool
	)

	cmd := &cobra.Command{
		Use:   "shell <connection>",
		Short: "Open an interactive shell on a saved connection",
		Long: `Open an interactive SSH shell on a saved connection.

The local terminal is switched to raw mode and resized with the window;
everything typed goes to the remote shell, including Ctrl+C. The session
ends when the remote shell exits.

Example:
  portico shell devbox
  portico shell devbox --cols 100 --rows 40`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(args[0], cols, rows, acceptNew)
		},
	}

	cmd.Flags().Uint16Var(&cols, "cols", 0, "Terminal columns (0 = detect)")
	cmd.Flags().Uint16Var(&rows, "rows", 0, "Terminal rows (0 = detect)")
	cmd.Flags().BoolVar(&acceptNew, "accept-new-hostkey", false, "Pin a changed host key without prompting")

	return cmd
}

func runShell(ref string, cols, rows uint16, acceptNew bool) error {
	ctx := GetContext()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	// Subscribe before opening so the first output chunk is not lost.
	outCh := app.bus.Subscribe(events.EventShellOutput)
	defer app.bus.Unsubscribe(events.EventShellOutput, outCh)
	exitCh := app.bus.Subscribe(events.EventShellExit)
	defer app.bus.Unsubscribe(events.EventShellExit, exitCh)

	key, err := app.openSession(ctx, ref, app.terminalSize(cols, rows), acceptNew)
	if err != nil {
		return err
	}

	tab, _ := app.controller.Tab(key)
	title := tab.Title

	stdinFd := int(os.Stdin.Fd())
	var restore func()
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		restore = func() { _ = term.Restore(stdinFd, oldState) }
		defer restore()
	}

	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			select {
			case <-quit:
				return
			case e, ok := <-outCh:
				if !ok {
					return
				}
				out, ok := e.(*events.ShellOutputEvent)
				if !ok || out.SessionID != key {
					continue
				}
				os.Stdout.Write(out.Data)
			}
		}
	}()

	// Stdin reads cannot be interrupted; the pump is abandoned when the
	// command returns and dies with the process.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				if werr := app.controller.Write(ctx, key, data); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	stopResize := watchResize(func() {
		if w, h, err := term.GetSize(stdinFd); err == nil && w > 0 && h > 0 {
			_ = app.controller.Resize(ctx, key, protocol.TerminalSize{Cols: uint16(w), Rows: uint16(h)})
		}
	})
	defer stopResize()

	for {
		select {
		case <-ctx.Done():
			// The root context is gone; teardown gets its own.
			app.controller.CloseTab(context.Background(), key)
			return nil
		case e, ok := <-exitCh:
			if !ok {
				return nil
			}
			exit, ok := e.(*events.ShellExitEvent)
			if !ok || exit.SessionID != key {
				continue
			}
			if restore != nil {
				restore()
				restore = nil
			}
			if exit.Code != 0 {
				fmt.Printf("\nSession %q ended (exit code %d)\n", title, exit.Code)
			} else {
				fmt.Printf("\nSession %q ended\n", title)
			}
			app.notifier.SessionEnded(title, exit.Code)
			return nil
		}
	}
}
