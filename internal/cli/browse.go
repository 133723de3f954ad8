package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/browser"
	"github.com/portico-labs/portico/internal/pathutil"
	"github.com/portico-labs/portico/internal/protocol"
)

// newBrowseCmd creates the 'browse' command.
func newBrowseCmd() *cobra.Command {
	var (
		remoteDir string
		localDir  string
		sortFlag  string
		acceptNew bool
	)

	cmd := &cobra.Command{
		Use:   "browse <connection>",
		Short: "List both sides of a connection's file browser",
		Long: `Open the two-pane file browser on a connection and print both
listings: the remote pane seeded at the session's initial directory and
the local pane at the local browsing root.

Example:
  portico browse devbox
  portico browse devbox --remote /var/log --sort size`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(args[0], remoteDir, localDir, sortFlag, acceptNew)
		},
	}

	cmd.Flags().StringVar(&remoteDir, "remote", "", "Remote directory to list (default: session initial directory)")
	cmd.Flags().StringVar(&localDir, "local", "", "Local directory to list (default: browsing root)")
	cmd.Flags().StringVar(&sortFlag, "sort", "", "Sort entries by name or size (default: name)")
	cmd.Flags().BoolVar(&acceptNew, "accept-new-hostkey", false, "Pin a changed host key without prompting")

	return cmd
}

func runBrowse(ref, remoteDir, localDir, sortFlag string, acceptNew bool) error {
	ctx := GetContext()

	var sortKey browser.SortKey
	switch sortFlag {
	case "":
	case string(browser.SortByName):
		sortKey = browser.SortByName
	case string(browser.SortBySize):
		sortKey = browser.SortBySize
	default:
		return fmt.Errorf("unknown sort key %q (use name or size)", sortFlag)
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	key, err := app.openSession(ctx, ref, app.terminalSize(0, 0), acceptNew)
	if err != nil {
		return err
	}
	if err := app.browser.OpenFor(ctx, key); err != nil {
		return err
	}

	if remoteDir != "" {
		if err := app.browser.Navigate(ctx, browser.SideRemote, remoteDir); err != nil {
			return err
		}
	}
	if localDir != "" {
		localAbs, err := pathutil.ResolveAbsolutePath(localDir)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", localDir, err)
		}
		if err := app.browser.Navigate(ctx, browser.SideLocal, localAbs); err != nil {
			return err
		}
	}
	if sortKey != "" {
		if err := app.browser.Sort(browser.SideRemote, sortKey); err != nil {
			return err
		}
		if err := app.browser.Sort(browser.SideLocal, sortKey); err != nil {
			return err
		}
	}

	remotePane, ok := app.browser.Pane(browser.SideRemote)
	if !ok {
		return fmt.Errorf("remote pane unavailable")
	}
	localPane, ok := app.browser.Pane(browser.SideLocal)
	if !ok {
		return fmt.Errorf("local pane unavailable")
	}

	fmt.Printf("Remote: %s\n", remotePane.CWD)
	printPane(remotePane)
	fmt.Println()
	fmt.Printf("Local: %s\n", localPane.CWD)
	printPane(localPane)
	return nil
}

func printPane(pane browser.PaneView) {
	if len(pane.Entries) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, entry := range pane.Entries {
		fmt.Printf("  %s %10s  %-16s %s%s\n",
			kindMarker(entry.Kind),
			formatSize(entry.Size),
			formatModified(entry.ModifiedAt),
			entry.Name,
			dirSuffix(entry.Kind))
	}
}

func kindMarker(kind protocol.EntryKind) string {
	switch kind {
	case protocol.KindDir:
		return "d"
	case protocol.KindFile:
		return "-"
	}
	return "?"
}

func dirSuffix(kind protocol.EntryKind) string {
	if kind == protocol.KindDir {
		return "/"
	}
	return ""
}

func formatSize(size *int64) string {
	if size == nil {
		return "-"
	}
	n := float64(*size)
	for _, unit := range []string{"B", "KiB", "MiB", "GiB", "TiB"} {
		if n < 1024 || unit == "TiB" {
			if unit == "B" {
				return fmt.Sprintf("%d %s", *size, unit)
			}
			return fmt.Sprintf("%.1f %s", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%d B", *size)
}

func formatModified(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Format("2006-01-02 15:04")
}
