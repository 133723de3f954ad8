package cli

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/browser"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/pathutil"
)

// newTransferCmd creates the 'transfer' command group.
func newTransferCmd() *cobra.Command {
	transferCmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move files between the local machine and a connection",
		Long: `Transfer files over a connection's SFTP channel.

Commands:
  put - Upload a local file or directory
  get - Download a remote file`,
	}

	transferCmd.AddCommand(newTransferPutCmd())
	transferCmd.AddCommand(newTransferGetCmd())

	return transferCmd
}

// newTransferPutCmd creates the 'transfer put' command.
func newTransferPutCmd() *cobra.Command {
	var (
		overwrite bool
		acceptNew bool
	)

	cmd := &cobra.Command{
		Use:   "put <connection> <local-path> [remote-dir]",
		Short: "Upload a local file or directory",
		Long: `Upload a local file or directory to a connection.

A directory is uploaded recursively: the tree is recreated under the
remote directory, parents before children. Existing remote files prompt
before being replaced unless --overwrite is given.

The remote directory defaults to the session's initial directory.

Example:
  portico transfer put devbox ./results.tar.gz /srv/data
  portico transfer put devbox ./project --overwrite`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			remoteDir := ""
			if len(args) == 3 {
				remoteDir = args[2]
			}
			return runPut(args[0], args[1], remoteDir, overwrite, acceptNew)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files without prompting")
	cmd.Flags().BoolVar(&acceptNew, "accept-new-hostkey", false, "Pin a changed host key without prompting")

	return cmd
}

func runPut(ref, localPath, remoteDir string, overwrite, acceptNew bool) error {
	ctx := GetContext()

	local, err := pathutil.ResolveAbsolutePath(localPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", localPath, err)
	}
	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", localPath, err)
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

	stop := make(chan struct{})
	app.answerConfirms(overwrite, stop)
	defer close(stop)

	name := filepath.Base(local)
	if info.IsDir() {
		err = app.engine.BatchUpload(ctx, []string{local})
	} else {
		if err := app.browser.Navigate(ctx, browser.SideLocal, filepath.Dir(local)); err != nil {
			return err
		}
		if err := app.browser.Select(browser.SideLocal, local); err != nil {
			return err
		}
		err = app.engine.SingleTransfer(ctx, events.DirectionUpload)
	}

	app.ui.Wait()
	if err != nil {
		app.notifier.TransferFailed(name, err.Error())
		return err
	}

	remotePane, _ := app.browser.Pane(browser.SideRemote)
	if info.IsDir() {
		app.notifier.BatchComplete(fmt.Sprintf("Uploaded %q to %s", name, remotePane.CWD))
	} else {
		app.notifier.TransferComplete(events.DirectionUpload, name, remotePane.CWD)
	}
	return nil
}

// newTransferGetCmd creates the 'transfer get' command.
func newTransferGetCmd() *cobra.Command {
	var (
		overwrite bool
		acceptNew bool
	)

	cmd := &cobra.Command{
		Use:   "get <connection> <remote-path> [local-dir]",
		Short: "Download a remote file",
		Long: `Download a file from a connection.

A relative remote path is resolved against the session's initial
directory. The local directory defaults to the local browsing root
(Desktop, or the home directory). Downloads check free disk space
before starting; an existing local file prompts before being replaced
unless --overwrite is given.

Example:
  portico transfer get devbox /var/log/syslog ./logs
  portico transfer get devbox report.pdf`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			localDir := ""
			if len(args) == 3 {
				localDir = args[2]
			}
			return runGet(args[0], args[1], localDir, overwrite, acceptNew)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files without prompting")
	cmd.Flags().BoolVar(&acceptNew, "accept-new-hostkey", false, "Pin a changed host key without prompting")

	return cmd
}

func runGet(ref, remotePath, localDir string, overwrite, acceptNew bool) error {
	ctx := GetContext()

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

	remotePane, ok := app.browser.Pane(browser.SideRemote)
	if !ok {
		return fmt.Errorf("remote pane unavailable")
	}
	remote := remotePath
	if !path.IsAbs(remote) {
		remote = path.Join(remotePane.CWD, remote)
	}

	if err := app.browser.Navigate(ctx, browser.SideRemote, path.Dir(remote)); err != nil {
		return err
	}

	// Select by name against the refreshed listing; the backend may have
	// resolved the directory to a different absolute path.
	remotePane, _ = app.browser.Pane(browser.SideRemote)
	target := ""
	for _, entry := range remotePane.Entries {
		if entry.Name == path.Base(remote) {
			target = entry.Path
			break
		}
	}
	if target == "" {
		return fmt.Errorf("no entry %q in %s", path.Base(remote), remotePane.CWD)
	}
	if err := app.browser.Select(browser.SideRemote, target); err != nil {
		return err
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

	stop := make(chan struct{})
	app.answerConfirms(overwrite, stop)
	defer close(stop)

	err = app.engine.SingleTransfer(ctx, events.DirectionDownload)

	app.ui.Wait()
	name := path.Base(remote)
	if err != nil {
		app.notifier.TransferFailed(name, err.Error())
		return err
	}

	localPane, _ := app.browser.Pane(browser.SideLocal)
	app.notifier.TransferComplete(events.DirectionDownload, name, localPane.CWD)
	return nil
}
