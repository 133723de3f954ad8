// Package browser drives the two-pane file browser attached to a shell tab:
// a remote pane backed by the tab's transfer sub-session and a local pane
// backed by the host filesystem. One browser is open at a time; its modal
// state (inline name edit, confirm prompt) lives in single shared slots.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/render"
	"github.com/portico-labs/portico/internal/session"
)

// ShellTabs is the slice of the session controller the browser needs: tab
// lookup by key.
type ShellTabs interface {
	Tab(key string) (session.TabSummary, bool)
}

// Browser owns the pane, edit, and confirm state for the open file browser.
// All mutation goes through its mutex; channel waits happen outside it.
type Browser struct {
	logger   *logging.Logger
	bus      *events.EventBus
	observer render.Observer
	tabs     ShellTabs
	backend  protocol.TransferBackend
	local    protocol.LocalFS

	mu       sync.Mutex
	shellKey string // tab key the browser is open for, empty when closed
	session  protocol.TransferSession
	panes    map[Side]*paneState
	edit     *inlineEdit
	confirm  *pendingConfirm

	tabCh    <-chan events.Event
	quit     chan struct{}
	stopOnce sync.Once
}

// NewBrowser wires the browser controller. It watches tab-change events so
// the browser closes itself when its owning tab goes away; call Stop on
// shutdown to release the watcher.
func NewBrowser(bus *events.EventBus, tabs ShellTabs, backend protocol.TransferBackend, local protocol.LocalFS, observer render.Observer) *Browser {
	if observer == nil {
		observer = render.Nop{}
	}
	b := &Browser{
		logger:   logging.NewLogger("browser", bus),
		bus:      bus,
		observer: observer,
		tabs:     tabs,
		backend:  backend,
		local:    local,
		tabCh:    bus.Subscribe(events.EventTabChange),
		quit:     make(chan struct{}),
	}
	go b.watchTabs()
	return b
}

// Stop releases the tab watcher. The browser itself is closed separately.
func (b *Browser) Stop() {
	b.stopOnce.Do(func() {
		b.bus.Unsubscribe(events.EventTabChange, b.tabCh)
		close(b.quit)
	})
}

func (b *Browser) watchTabs() {
	for {
		select {
		case <-b.quit:
			return
		case e, ok := <-b.tabCh:
			if !ok {
				return
			}
			tc, ok := e.(*events.TabChangeEvent)
			if !ok || tc.Reason != "closed" {
				continue
			}
			b.mu.Lock()
			match := b.shellKey != "" && b.shellKey == tc.Key
			b.mu.Unlock()
			if match {
				b.Close(context.Background())
			}
		}
	}
}

// OpenFor opens the browser for the given shell tab. Opening for the tab it
// is already open for is a no-op; opening for a different tab closes the
// current browser first. The remote pane seeds at the sub-session's initial
// directory and the local pane at the default root.
func (b *Browser) OpenFor(ctx context.Context, shellKey string) error {
	tab, ok := b.tabs.Tab(shellKey)
	if !ok || tab.Kind != session.TabShell {
		return protocol.Errorf(protocol.CodeNotFound, "browser.open", shellKey,
			"no shell tab %q", shellKey)
	}
	if tab.State != session.StateConnected {
		return protocol.Errorf(protocol.CodeSessionClosed, "browser.open", shellKey,
			"tab %q is not connected", shellKey)
	}

	b.mu.Lock()
	if b.shellKey == shellKey {
		b.mu.Unlock()
		return nil
	}
	open := b.shellKey != ""
	b.mu.Unlock()
	if open {
		b.Close(ctx)
	}

	ts, err := b.backend.OpenTransfer(ctx, tab.SessionID)
	if err != nil {
		b.observer.Status(fmt.Sprintf("Failed to open file browser: %v", err))
		return err
	}

	root, err := b.local.DefaultRoot()
	if err != nil {
		b.logger.Warn().Err(err).Msg("No usable local root, falling back to the working directory")
		root = "."
	}

	b.mu.Lock()
	b.shellKey = shellKey
	b.session = ts
	b.panes = map[Side]*paneState{
		SideRemote: {side: SideRemote, cwd: ts.InitialDir(), sortKey: SortByName},
		SideLocal:  {side: SideLocal, cwd: root, sortKey: SortByName},
	}
	b.mu.Unlock()
	b.changed(shellKey, "opened")

	// Initial listings are best-effort; a failure leaves the pane empty
	// with a status already reported.
	_ = b.Navigate(ctx, SideRemote, ts.InitialDir())
	_ = b.Navigate(ctx, SideLocal, root)
	return nil
}

// Close tears the browser down and releases the transfer sub-session in the
// background. A pending confirm resolves false; closing a closed browser is
// a no-op.
func (b *Browser) Close(ctx context.Context) {
	b.mu.Lock()
	if b.shellKey == "" {
		b.mu.Unlock()
		return
	}
	key := b.shellKey
	ts := b.session
	pc := b.confirm
	b.shellKey = ""
	b.session = nil
	b.panes = nil
	b.edit = nil
	b.confirm = nil
	b.mu.Unlock()

	if pc != nil {
		pc.ch <- false
	}
	if ts != nil {
		go func() {
			if err := ts.Close(context.Background()); err != nil {
				b.logger.Debug().Err(err).Msg("Transfer sub-session release failed")
			}
		}()
	}
	b.changed(key, "closed")
}

// OpenKey returns the tab key the browser is open for, or empty.
func (b *Browser) OpenKey() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shellKey
}

// Session returns the open browser's transfer sub-session.
func (b *Browser) Session() (protocol.TransferSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, b.session != nil
}

// Local returns the local-pane filesystem.
func (b *Browser) Local() protocol.LocalFS {
	return b.local
}

// Pane returns a snapshot of one pane.
func (b *Browser) Pane(side Side) (PaneView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pane, _, err := b.paneLocked(side)
	if err != nil {
		return PaneView{}, false
	}
	return pane.view(), true
}

// Navigate lists path into the pane. The pane shows loading while the
// request is in flight; on success the entries are replaced wholesale and a
// selection that no longer resolves to a listed path is cleared.
func (b *Browser) Navigate(ctx context.Context, side Side, target string) error {
	b.mu.Lock()
	pane, key, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	pane.loading = true
	ts := b.session
	b.mu.Unlock()
	b.changed(key, "loading")

	listing, listErr := b.list(ctx, ts, side, target)

	b.mu.Lock()
	current, _, stillOpen := b.paneLocked(side)
	if stillOpen != nil || current != pane {
		// The browser closed or reopened while the listing was in flight.
		b.mu.Unlock()
		return listErr
	}
	pane.loading = false
	if listErr != nil {
		b.mu.Unlock()
		b.changed(key, "loaded")
		b.observer.Status(fmt.Sprintf("Failed to list %q: %v", target, listErr))
		return listErr
	}
	pane.cwd = listing.CWD
	pane.entries = listing.Entries
	sortEntries(pane.entries, pane.sortKey)
	if pane.selected != "" && !pane.hasPath(pane.selected) {
		pane.selected = ""
	}
	b.mu.Unlock()
	b.changed(key, "listing")
	return nil
}

// Refresh re-lists the pane's current directory.
func (b *Browser) Refresh(ctx context.Context, side Side) error {
	b.mu.Lock()
	pane, _, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	cwd := pane.cwd
	b.mu.Unlock()
	return b.Navigate(ctx, side, cwd)
}

func (b *Browser) list(ctx context.Context, ts protocol.TransferSession, side Side, target string) (*protocol.DirListing, error) {
	if side == SideRemote {
		return ts.List(ctx, target)
	}
	return b.local.List(ctx, target)
}

// Sort reorders the pane for display without re-fetching.
func (b *Browser) Sort(side Side, key SortKey) error {
	b.mu.Lock()
	pane, tabKey, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	pane.sortKey = key
	sortEntries(pane.entries, key)
	b.mu.Unlock()
	b.changed(tabKey, "sorted")
	return nil
}

// Select marks the entry at target as selected; an empty target clears the
// selection.
func (b *Browser) Select(side Side, target string) error {
	b.mu.Lock()
	pane, key, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if target != "" && !pane.hasPath(target) {
		b.mu.Unlock()
		return protocol.Errorf(protocol.CodeNotFound, "browser.select", target,
			"no entry %q in the current listing", target)
	}
	pane.selected = target
	b.mu.Unlock()
	b.changed(key, "selected")
	return nil
}

// CreateEntry starts an inline edit that will create a file or directory in
// the pane's current directory.
func (b *Browser) CreateEntry(side Side, kind EditKind) error {
	if kind != EditCreateFile && kind != EditCreateDir {
		return protocol.Errorf(protocol.CodeInternal, "browser.edit", string(kind),
			"kind %q does not create anything", kind)
	}
	b.mu.Lock()
	pane, _, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	edit := &inlineEdit{side: side, kind: kind, targetDir: pane.cwd}
	return b.startEditLocked(edit)
}

// RenameEntry starts an inline edit over the selected entry's name.
func (b *Browser) RenameEntry(side Side) error {
	b.mu.Lock()
	pane, _, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	entry, ok := pane.selectedEntry()
	if !ok {
		b.mu.Unlock()
		b.observer.Status("Select an entry to rename")
		return protocol.Errorf(protocol.CodeNotFound, "browser.edit", string(side),
			"no entry selected")
	}
	edit := &inlineEdit{
		side:         side,
		kind:         EditRename,
		targetPath:   entry.Path,
		originalName: entry.Name,
		draft:        entry.Name,
	}
	return b.startEditLocked(edit)
}

// startEditLocked installs the edit. The caller holds the mutex; it is
// released here. Starting an edit cancels any pending confirm; a second
// concurrent edit is rejected with the focus redirected to the first.
func (b *Browser) startEditLocked(edit *inlineEdit) error {
	if b.edit != nil {
		key := b.shellKey
		b.mu.Unlock()
		b.observer.Status("Another name edit is already in progress")
		b.changed(key, "edit")
		return protocol.Errorf(protocol.CodeInternal, "browser.edit", "",
			"an edit is already active")
	}
	pc := b.confirm
	b.confirm = nil
	b.edit = edit
	key := b.shellKey
	b.mu.Unlock()

	if pc != nil {
		pc.ch <- false
	}
	b.changed(key, "edit")
	return nil
}

// SetDraft replaces the edit's draft text. Ignored while a commit is in
// flight or when no edit is active.
func (b *Browser) SetDraft(text string) {
	b.mu.Lock()
	if b.edit != nil && !b.edit.committing {
		b.edit.draft = text
	}
	b.mu.Unlock()
}

// Edit returns a snapshot of the active inline edit.
func (b *Browser) Edit() (EditView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.edit == nil {
		return EditView{}, false
	}
	return b.edit.view(), true
}

// CommitEdit runs the edit's operation once. A commit already in flight is
// joined, not repeated: concurrent callers share its result. On success the
// edit clears and the pane reloads; on failure the draft stays editable. A
// rename whose trimmed draft is empty or unchanged commits as a no-op.
func (b *Browser) CommitEdit(ctx context.Context) error {
	b.mu.Lock()
	edit := b.edit
	if edit == nil {
		b.mu.Unlock()
		return nil
	}
	if edit.committing {
		done := edit.done
		b.mu.Unlock()
		<-done
		return edit.err
	}
	edit.committing = true
	edit.done = make(chan struct{})
	draft := strings.TrimSpace(edit.draft)
	key := b.shellKey
	ts := b.session
	b.mu.Unlock()
	b.changed(key, "edit")

	if edit.kind == EditRename && (draft == "" || draft == edit.originalName) {
		b.settleCommit(edit, key, nil, true)
		return nil
	}

	err := b.performCommit(ctx, ts, edit, draft)
	b.settleCommit(edit, key, err, err == nil)
	if err != nil {
		b.observer.Status(fmt.Sprintf("%v", err))
		return err
	}
	return b.Refresh(ctx, edit.side)
}

// settleCommit publishes the commit result to waiters and either clears the
// edit or re-enables the draft.
func (b *Browser) settleCommit(edit *inlineEdit, key string, err error, clear bool) {
	b.mu.Lock()
	edit.err = err
	close(edit.done)
	if b.edit == edit {
		if clear {
			b.edit = nil
		} else {
			edit.committing = false
		}
	}
	b.mu.Unlock()
	b.changed(key, "edit")
}

func (b *Browser) performCommit(ctx context.Context, ts protocol.TransferSession, edit *inlineEdit, draft string) error {
	if err := validateEntryName(draft); err != nil {
		return err
	}

	switch edit.kind {
	case EditCreateFile, EditCreateDir:
		target := joinEntry(edit.side, edit.targetDir, draft)
		if edit.side == SideRemote {
			if ts == nil {
				return protocol.Errorf(protocol.CodeSessionClosed, "browser.edit", target, "file browser is closed")
			}
			if edit.kind == EditCreateFile {
				return ts.MakeFile(ctx, target)
			}
			return ts.MakeDir(ctx, target)
		}
		if edit.kind == EditCreateFile {
			return b.local.MakeFile(ctx, target)
		}
		return b.local.MakeDir(ctx, target)

	case EditRename:
		target := joinEntry(edit.side, parentOf(edit.side, edit.targetPath), draft)
		if edit.side == SideRemote {
			if ts == nil {
				return protocol.Errorf(protocol.CodeSessionClosed, "browser.edit", target, "file browser is closed")
			}
			return ts.Rename(ctx, edit.targetPath, target)
		}
		return b.local.Rename(ctx, edit.targetPath, target)
	}
	return nil
}

// CancelEdit drops the edit without side effects. A commit in flight cannot
// be cancelled; its outcome settles the edit instead.
func (b *Browser) CancelEdit() {
	b.mu.Lock()
	if b.edit == nil || b.edit.committing {
		b.mu.Unlock()
		return
	}
	b.edit = nil
	key := b.shellKey
	b.mu.Unlock()
	b.changed(key, "edit")
}

// SettleEdit is called by global actions that conflict with an in-progress
// edit. It waits out a pending commit, then fails if an edit is still
// active afterwards.
func (b *Browser) SettleEdit(ctx context.Context) error {
	b.mu.Lock()
	edit := b.edit
	if edit == nil {
		b.mu.Unlock()
		return nil
	}
	if edit.committing {
		done := edit.done
		b.mu.Unlock()
		<-done
		b.mu.Lock()
	}
	active := b.edit != nil
	b.mu.Unlock()

	if active {
		b.observer.Status("Finish or cancel the name edit first")
		return protocol.Errorf(protocol.CodeInternal, "browser.edit", "",
			"an entry edit is still active")
	}
	return nil
}

// RequestConfirm asks the operator a yes/no question and returns the channel
// the answer arrives on. A second request while one is pending resolves
// false immediately instead of queueing.
func (b *Browser) RequestConfirm(side Side, message string, danger bool) <-chan bool {
	b.mu.Lock()
	if b.shellKey == "" || b.confirm != nil {
		b.mu.Unlock()
		return resolvedFalse()
	}
	pc := &pendingConfirm{side: side, message: message, danger: danger, ch: make(chan bool, 1)}
	b.confirm = pc
	key := b.shellKey
	b.mu.Unlock()
	b.changed(key, "confirm")
	return pc.ch
}

// ResolveConfirm answers the pending confirm. Resolving with none pending is
// a no-op.
func (b *Browser) ResolveConfirm(accept bool) {
	b.mu.Lock()
	pc := b.confirm
	b.confirm = nil
	key := b.shellKey
	b.mu.Unlock()
	if pc == nil {
		return
	}
	pc.ch <- accept
	b.changed(key, "confirm")
}

// PendingConfirm returns a snapshot of the pending confirm prompt.
func (b *Browser) PendingConfirm() (ConfirmView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.confirm == nil {
		return ConfirmView{}, false
	}
	return b.confirm.view(), true
}

// DeleteEntry deletes the pane's selected entry after a danger-tone confirm.
// Directories are deleted recursively. The pane reloads on success.
func (b *Browser) DeleteEntry(ctx context.Context, side Side) error {
	b.mu.Lock()
	pane, _, err := b.paneLocked(side)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	entry, ok := pane.selectedEntry()
	if !ok {
		b.mu.Unlock()
		b.observer.Status("Select an entry to delete")
		return protocol.Errorf(protocol.CodeNotFound, "browser.delete", string(side),
			"no entry selected")
	}
	ts := b.session
	b.mu.Unlock()

	noun := "file"
	if entry.Kind == protocol.KindDir {
		noun = "folder"
	}
	accepted := <-b.RequestConfirm(side, fmt.Sprintf("Delete %s %q?", noun, entry.Name), true)
	if !accepted {
		return nil
	}

	recursive := entry.Kind == protocol.KindDir
	var delErr error
	if side == SideRemote {
		delErr = ts.Delete(ctx, entry.Path, recursive)
	} else {
		delErr = b.local.Delete(ctx, entry.Path, recursive)
	}
	if delErr != nil {
		b.observer.Status(fmt.Sprintf("Failed to delete %q: %v", entry.Name, delErr))
		return delErr
	}
	return b.Refresh(ctx, side)
}

// paneLocked resolves a pane while the caller holds the mutex.
func (b *Browser) paneLocked(side Side) (*paneState, string, error) {
	if b.shellKey == "" {
		return nil, "", protocol.Errorf(protocol.CodeSessionClosed, "browser.pane", string(side),
			"file browser is not open")
	}
	pane, ok := b.panes[side]
	if !ok {
		return nil, "", protocol.Errorf(protocol.CodeNotFound, "browser.pane", string(side),
			"unknown pane %q", side)
	}
	return pane, b.shellKey, nil
}

// changed publishes the browser change on the bus and pokes the observer.
func (b *Browser) changed(key, reason string) {
	b.bus.PublishBrowserChange(key, reason)
	b.observer.Notify("browser")
}
