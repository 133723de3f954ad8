// Package transfer runs tracked file transfers over the open browser's
// sub-session: single uploads and downloads with overwrite negotiation, and
// recursive batch uploads fed by drag-drop. One transfer is tracked at a
// time; progress events from the backend aggregate into a view the frontend
// renders.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/portico-labs/portico/internal/browser"
	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/diskspace"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/localfs"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/render"
	"github.com/portico-labs/portico/internal/validation"
)

// Engine owns the single tracked-transfer slot and drives transfers against
// the browser's sub-session.
type Engine struct {
	logger   *logging.Logger
	bus      *events.EventBus
	observer render.Observer
	browser  *browser.Browser
	cfg      *config.Config

	mu     sync.Mutex
	active *trackedTransfer

	progressCh <-chan events.Event
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewEngine wires the transfer engine. Call Stop on shutdown to release the
// progress listener.
func NewEngine(bus *events.EventBus, b *browser.Browser, cfg *config.Config, observer render.Observer) *Engine {
	if observer == nil {
		observer = render.Nop{}
	}
	e := &Engine{
		logger:     logging.NewLogger("transfer", bus),
		bus:        bus,
		observer:   observer,
		browser:    b,
		cfg:        cfg,
		progressCh: bus.Subscribe(events.EventTransferProgress),
		quit:       make(chan struct{}),
	}
	go e.pumpProgress()
	return e
}

// Stop releases the progress listener.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.bus.Unsubscribe(events.EventTransferProgress, e.progressCh)
		close(e.quit)
	})
}

func (e *Engine) pumpProgress() {
	for {
		select {
		case <-e.quit:
			return
		case ev, ok := <-e.progressCh:
			if !ok {
				return
			}
			progress, ok := ev.(*events.TransferProgressEvent)
			if !ok {
				continue
			}
			e.handleProgress(progress)
		}
	}
}

func (e *Engine) handleProgress(ev *events.TransferProgressEvent) {
	e.mu.Lock()
	t := e.active
	if t == nil {
		e.mu.Unlock()
		return
	}
	t.applyProgress(ev, time.Now())
	e.mu.Unlock()
	e.observer.Notify("transfer")
}

// InFlight reports whether a transfer is being tracked.
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Active returns a snapshot of the tracked transfer.
func (e *Engine) Active() (TransferView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return TransferView{}, false
	}
	return e.active.view(), true
}

// begin claims the transfer slot. A second concurrent transfer is refused.
func (e *Engine) begin(t *trackedTransfer) error {
	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		e.observer.Status("A transfer is already in progress")
		return protocol.Errorf(protocol.CodeInternal, "transfer.begin", "",
			"a transfer is already in progress")
	}
	e.active = t
	e.mu.Unlock()
	e.observer.Notify("transfer")
	return nil
}

// end releases the slot. Always deferred so the slot clears on every path.
func (e *Engine) end(t *trackedTransfer) {
	e.mu.Lock()
	if e.active == t {
		e.active = nil
	}
	e.mu.Unlock()
	e.observer.Notify("transfer")
}

// SingleTransfer copies the source pane's selected file to the destination
// pane's directory. The first attempt never overwrites; an already-exists
// failure asks for confirmation on the destination side and retries exactly
// once with overwrite set. Both panes refresh on success.
func (e *Engine) SingleTransfer(ctx context.Context, direction events.TransferDirection) error {
	if err := e.browser.SettleEdit(ctx); err != nil {
		return err
	}

	ts, ok := e.browser.Session()
	if !ok {
		return protocol.Errorf(protocol.CodeSessionClosed, "transfer.single", "",
			"no file browser is open")
	}

	srcSide, dstSide := browser.SideLocal, browser.SideRemote
	if direction == events.DirectionDownload {
		srcSide, dstSide = browser.SideRemote, browser.SideLocal
	}
	src, ok := e.browser.Pane(srcSide)
	if !ok {
		return protocol.Errorf(protocol.CodeSessionClosed, "transfer.single", "",
			"no file browser is open")
	}
	dst, _ := e.browser.Pane(dstSide)

	entry, ok := src.Selected()
	if !ok {
		e.observer.Status("Select a file to transfer")
		return protocol.Errorf(protocol.CodeNotFound, "transfer.single", "",
			"no entry selected")
	}
	if entry.Kind != protocol.KindFile {
		e.observer.Status("Only files can be transferred")
		return protocol.Errorf(protocol.CodeInvalidName, "transfer.single", entry.Path,
			"%q is not a file", entry.Name)
	}
	if dst.CWD == "" {
		e.observer.Status("Destination directory is unknown")
		return protocol.Errorf(protocol.CodeNotFound, "transfer.single", "",
			"destination directory is unknown")
	}

	var localPath, remotePath string
	if direction == events.DirectionUpload {
		localPath = entry.Path
		remotePath = path.Join(dst.CWD, entry.Name)
	} else {
		remotePath = entry.Path
		// The name came off the remote listing; only a single path element
		// may be joined onto the local directory.
		if err := validation.ValidateEntryName(entry.Name); err != nil {
			return protocol.Errorf(protocol.CodeInvalidName, "transfer.single", entry.Path, "%v", err)
		}
		localPath = filepath.Join(dst.CWD, entry.Name)
		if err := e.preflightDownload(localPath, entry.Size); err != nil {
			e.observer.Status(fmt.Sprintf("Transfer failed: %v", err))
			return err
		}
	}

	t := newTracked(ModeSingle, direction, ts.ID(), entry.Size)
	if err := e.begin(t); err != nil {
		return err
	}
	defer e.end(t)

	err := e.transferOnce(ctx, ts, direction, localPath, remotePath, false)
	if protocol.IsAlreadyExists(err) {
		prompt := fmt.Sprintf("%q already exists. Overwrite?", entry.Name)
		if accepted := <-e.browser.RequestConfirm(dstSide, prompt, false); !accepted {
			e.observer.Status(fmt.Sprintf("Skipped %q", entry.Name))
			return nil
		}
		err = e.transferOnce(ctx, ts, direction, localPath, remotePath, true)
	}
	if err != nil {
		e.observer.Status(fmt.Sprintf("Transfer failed: %v", err))
		return err
	}

	e.refreshPanes(ctx)
	verb := "Uploaded"
	if direction == events.DirectionDownload {
		verb = "Downloaded"
	}
	e.observer.Status(fmt.Sprintf("%s %q", verb, entry.Name))
	return nil
}

// preflightDownload checks local free space for the incoming file. Skipped
// when disabled in config or when the remote size is unknown.
func (e *Engine) preflightDownload(localPath string, size *int64) error {
	if !e.cfg.Transfers.CheckDiskSpace || size == nil {
		return nil
	}
	err := diskspace.CheckAvailableSpace(localPath, *size, 1+constants.DiskSpaceBufferPercent)
	if err != nil {
		return protocol.WrapError(protocol.CodeInternal, "transfer.preflight", localPath, err)
	}
	return nil
}

func (e *Engine) transferOnce(ctx context.Context, ts protocol.TransferSession, direction events.TransferDirection, localPath, remotePath string, overwrite bool) error {
	if direction == events.DirectionDownload {
		return ts.Download(ctx, remotePath, localPath, overwrite)
	}
	return ts.Upload(ctx, localPath, remotePath, overwrite)
}

// batchCounts accumulates the batch-upload outcome.
type batchCounts struct {
	filesUploaded  int
	foldersCreated int
	skipped        int
	errors         int
}

func (c batchCounts) summary() string {
	return fmt.Sprintf("Uploaded %d files, created %d folders, skipped %d, %d errors",
		c.filesUploaded, c.foldersCreated, c.skipped, c.errors)
}

// BatchUpload uploads the dropped local paths into the remote pane's current
// directory. Directories are recreated on the remote side (an existing
// directory counts as success) and recursed; files negotiate overwrites one
// by one. A session-closed failure aborts the batch; any other per-item
// failure is counted and the batch continues. The panes refresh and a
// summary is reported whether the batch completed or aborted.
func (e *Engine) BatchUpload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := e.browser.SettleEdit(ctx); err != nil {
		return err
	}

	ts, ok := e.browser.Session()
	if !ok {
		return protocol.Errorf(protocol.CodeSessionClosed, "transfer.batch", "",
			"no file browser is open")
	}
	remote, ok := e.browser.Pane(browser.SideRemote)
	if !ok || remote.CWD == "" {
		e.observer.Status("Remote directory is unknown")
		return protocol.Errorf(protocol.CodeNotFound, "transfer.batch", "",
			"remote working directory is unknown")
	}

	t := newTracked(ModeBatchUpload, events.DirectionUpload, ts.ID(), nil)
	if err := e.begin(t); err != nil {
		return err
	}
	defer e.end(t)

	var counts batchCounts
	err := e.runBatch(ctx, ts, remote.CWD, paths, &counts)

	e.refreshPanes(ctx)
	e.observer.Status(counts.summary())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Batch upload aborted")
		return err
	}
	return nil
}

func (e *Engine) runBatch(ctx context.Context, ts protocol.TransferSession, remoteCWD string, paths []string, counts *batchCounts) error {
	local := e.browser.Local()

	budget := e.cfg.Transfers.MaxBatchItems
	if budget <= 0 {
		budget = math.MaxInt
	}

	for _, dropped := range paths {
		info, err := local.Stat(ctx, dropped)
		if err != nil {
			counts.errors++
			continue
		}
		budget--
		if budget < 0 {
			return e.capError(dropped, localfs.ErrMaxItemsExceeded)
		}

		switch info.Kind {
		case protocol.KindDir:
			if err := e.uploadTree(ctx, ts, dropped, path.Join(remoteCWD, info.Name), &budget, counts); err != nil {
				return err
			}
		case protocol.KindFile:
			if err := e.uploadFile(ctx, ts, dropped, path.Join(remoteCWD, info.Name), counts); err != nil {
				return err
			}
		default:
			counts.skipped++
		}
	}
	return nil
}

// uploadTree recreates one dropped directory under remoteRoot. The tree is
// collected up front so the depth and item caps abort before any transfer
// starts.
func (e *Engine) uploadTree(ctx context.Context, ts protocol.TransferSession, root, remoteRoot string, budget *int, counts *batchCounts) error {
	ensured, err := e.ensureRemoteDir(ctx, ts, remoteRoot, counts)
	if err != nil {
		return err
	}
	if !ensured {
		return nil
	}

	collected, err := localfs.WalkCollect(ctx, root, localfs.WalkOptions{
		IncludeHidden: true,
		MaxDepth:      e.cfg.Transfers.MaxBatchDepth,
		MaxItems:      *budget,
	})
	if err != nil {
		if errors.Is(err, localfs.ErrMaxDepthExceeded) || errors.Is(err, localfs.ErrMaxItemsExceeded) {
			return e.capError(root, err)
		}
		return err
	}
	*budget -= len(collected.Directories) + len(collected.Files)

	for _, dir := range collected.Directories {
		if _, err := e.ensureRemoteDir(ctx, ts, path.Join(remoteRoot, dir.Rel), counts); err != nil {
			return err
		}
	}
	for _, file := range collected.Files {
		if err := e.uploadFile(ctx, ts, file.Path, path.Join(remoteRoot, file.Rel), counts); err != nil {
			return err
		}
	}
	return nil
}

// ensureRemoteDir creates the directory if needed. An existing directory is
// success; a closed session aborts the batch; anything else is counted and
// reported false so the caller can skip dependents.
func (e *Engine) ensureRemoteDir(ctx context.Context, ts protocol.TransferSession, remotePath string, counts *batchCounts) (bool, error) {
	err := ts.MakeDir(ctx, remotePath)
	switch {
	case err == nil:
		counts.foldersCreated++
		return true, nil
	case protocol.IsAlreadyExists(err):
		return true, nil
	case protocol.IsSessionClosed(err):
		return false, err
	default:
		counts.errors++
		return false, nil
	}
}

// uploadFile uploads one file with per-file overwrite negotiation. A closed
// session aborts the batch; any other failure is counted.
func (e *Engine) uploadFile(ctx context.Context, ts protocol.TransferSession, localPath, remotePath string, counts *batchCounts) error {
	err := ts.Upload(ctx, localPath, remotePath, false)
	if protocol.IsAlreadyExists(err) {
		prompt := fmt.Sprintf("%q already exists. Overwrite?", path.Base(remotePath))
		if accepted := <-e.browser.RequestConfirm(browser.SideRemote, prompt, false); !accepted {
			counts.skipped++
			return nil
		}
		err = ts.Upload(ctx, localPath, remotePath, true)
	}
	switch {
	case err == nil:
		counts.filesUploaded++
		return nil
	case protocol.IsSessionClosed(err):
		return err
	default:
		counts.errors++
		return nil
	}
}

func (e *Engine) capError(root string, cause error) error {
	return protocol.WrapError(protocol.CodeInternal, "transfer.batch", root, cause)
}

// refreshPanes re-lists both panes, best-effort. A browser closed mid-batch
// makes this a no-op.
func (e *Engine) refreshPanes(ctx context.Context) {
	if e.browser.OpenKey() == "" {
		return
	}
	if err := e.browser.Refresh(ctx, browser.SideRemote); err != nil {
		e.logger.Debug().Err(err).Msg("Remote pane refresh failed")
	}
	if err := e.browser.Refresh(ctx, browser.SideLocal); err != nil {
		e.logger.Debug().Err(err).Msg("Local pane refresh failed")
	}
}
