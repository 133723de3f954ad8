package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/render"
	"github.com/portico-labs/portico/internal/store"
)

// Controller opens and closes session tabs, owns the Registry, and turns
// backend events into tab state transitions. All registry access goes
// through the controller's mutex.
type Controller struct {
	logger   *logging.Logger
	bus      *events.EventBus
	store    *store.Store
	shell    protocol.ShellBackend
	desktop  protocol.DesktopBackend
	observer render.Observer

	// openTimeout is the shell-open watchdog deadline. Tests shorten it.
	openTimeout time.Duration

	mu       sync.Mutex
	registry *Registry
}

// NewController wires the session controller. A nil observer is replaced
// with a no-op.
func NewController(bus *events.EventBus, st *store.Store, shell protocol.ShellBackend, desktop protocol.DesktopBackend, observer render.Observer) *Controller {
	if observer == nil {
		observer = render.Nop{}
	}
	return &Controller{
		logger:      logging.NewLogger("session", bus),
		bus:         bus,
		store:       st,
		shell:       shell,
		desktop:     desktop,
		observer:    observer,
		openTimeout: constants.ShellOpenTimeout,
		registry:    NewRegistry(),
	}
}

type openOutcome struct {
	id  string
	err error
}

// OpenShell opens an interactive shell tab for the connection and returns
// its session key. The key is allocated up front and handed to the backend
// as the session-id hint, and the exit listener is registered before the
// open request goes out, so no early event is lost.
//
// The open races a watchdog. On expiry the caller gets a timeout error and
// the tab is rolled back, but the open request itself is not cancelled: a
// success arriving after the deadline has no tab to own it and is closed
// automatically.
func (c *Controller) OpenShell(ctx context.Context, connectionID string, size protocol.TerminalSize) (string, error) {
	conn, err := c.resolveConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}

	if size.Cols == 0 {
		size.Cols = constants.DefaultTerminalCols
	}
	if size.Rows == 0 {
		size.Rows = constants.DefaultTerminalRows
	}

	key := uuid.NewString()
	tab := &ShellTab{
		ConnectionID: conn.ID,
		SessionID:    key,
		Title:        conn.Name,
		State:        StateConnecting,
	}

	exitCh := c.bus.Subscribe(events.EventShellExit)
	quit := make(chan struct{})
	addTeardown(tab, func() {
		c.bus.Unsubscribe(events.EventShellExit, exitCh)
		close(quit)
	})

	c.mu.Lock()
	c.registry.Put(key, tab)
	c.mu.Unlock()
	c.changed(key, "opened")

	go c.pumpShell(key, exitCh, quit)

	resCh := make(chan openOutcome, 1)
	go func() {
		id, err := c.shell.OpenShell(ctx, conn.ID, size, key)
		resCh <- openOutcome{id: id, err: err}
	}()

	select {
	case res := <-resCh:
		return c.settleShellOpen(key, res)
	case <-time.After(c.openTimeout):
		go c.reconcileLateOpen(key, resCh)
		c.rollbackTab(key)
		c.observer.Status(fmt.Sprintf("Opening session %q timed out", conn.Name))
		return "", protocol.Errorf(protocol.CodeTimeout, "session.open", conn.Name,
			"session open timed out after %s", c.openTimeout)
	}
}

// settleShellOpen reconciles the open outcome against whatever happened to
// the tab while the request was in flight.
func (c *Controller) settleShellOpen(key string, res openOutcome) (string, error) {
	if res.err != nil {
		c.rollbackTab(key)
		if mismatch, ok := protocol.AsHostKeyMismatch(res.err); ok {
			c.observer.Status(mismatch.Warning())
			return "", res.err
		}
		c.observer.Status(fmt.Sprintf("Failed to open session: %v", res.err))
		return "", res.err
	}

	c.mu.Lock()
	tab, ok := c.registry.Get(key)
	if !ok {
		// The tab was closed while the open was in flight; the session
		// has no owner now.
		c.mu.Unlock()
		c.closeShellQuietly(res.id)
		return "", protocol.Errorf(protocol.CodeSessionClosed, "session.open", key,
			"tab was closed while the session was opening")
	}
	shellTab := tab.(*ShellTab)
	if shellTab.State == StateExited {
		// An exit event raced the open and won; the tab stays exited.
		c.mu.Unlock()
		return key, nil
	}
	shellTab.State = StateConnected
	c.mu.Unlock()
	c.changed(key, "state")
	return key, nil
}

// reconcileLateOpen waits out an open request that outlived the watchdog.
func (c *Controller) reconcileLateOpen(key string, resCh <-chan openOutcome) {
	res := <-resCh
	if res.err != nil {
		c.logger.Debug().Str("session", key).Err(res.err).Msg("Open failed after watchdog expiry")
		return
	}
	c.logger.Info().Str("session", res.id).Msg("Session opened after watchdog expiry, closing it")
	c.closeShellQuietly(res.id)
}

func (c *Controller) closeShellQuietly(sessionID string) {
	if err := c.shell.CloseShell(context.Background(), sessionID); err != nil {
		c.logger.Debug().Str("session", sessionID).Err(err).Msg("Shell close failed")
	}
}

// AcceptHostKeyAndRetry pins the host key recorded under the mismatch token
// and opens the session again.
func (c *Controller) AcceptHostKeyAndRetry(ctx context.Context, connectionID, token string, size protocol.TerminalSize) (string, error) {
	if err := c.shell.AcceptHostKey(ctx, connectionID, token); err != nil {
		return "", fmt.Errorf("failed to accept host key: %w", err)
	}
	return c.OpenShell(ctx, connectionID, size)
}

func (c *Controller) pumpShell(key string, exitCh <-chan events.Event, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case e, ok := <-exitCh:
			if !ok {
				return
			}
			exit, ok := e.(*events.ShellExitEvent)
			if !ok || exit.SessionID != key {
				continue
			}
			c.handleShellExit(key, exit.Code)
		}
	}
}

// handleShellExit marks the tab exited. Exits are idempotent: once a tab is
// exited, further exit events are ignored. A non-zero exit while the tab
// was still connecting reads as a failed connection, not a session end.
func (c *Controller) handleShellExit(key string, code int) {
	c.mu.Lock()
	tab, ok := c.registry.Get(key)
	if !ok {
		c.mu.Unlock()
		return
	}
	shellTab, ok := tab.(*ShellTab)
	if !ok || shellTab.State == StateExited {
		c.mu.Unlock()
		return
	}
	wasConnecting := shellTab.State == StateConnecting
	shellTab.State = StateExited
	shellTab.ExitCode = &code
	title := shellTab.Title
	c.mu.Unlock()

	if wasConnecting && code != 0 {
		c.observer.Status(fmt.Sprintf("Connection to %q failed (exit code %d)", title, code))
	} else {
		c.observer.Status(fmt.Sprintf("Session %q ended", title))
	}
	c.changed(key, "state")
}

// OpenRemoteDesktop opens a remote-desktop tab. The tab enters the registry
// under a provisional key and is renamed, not copied, to the confirmed
// session id so in-flight callbacks keep their identity. Lifecycle and exit
// listeners subscribe before the open call; their pump starts once the id
// is known and drains anything buffered in between.
func (c *Controller) OpenRemoteDesktop(ctx context.Context, connectionID string, viewport protocol.Viewport) (string, error) {
	if viewport.Empty() {
		return "", protocol.Errorf(protocol.CodeInternal, "session.open_desktop", connectionID,
			"render surface has no extent")
	}

	conn, err := c.resolveConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}

	provisional := uuid.NewString()
	tab := &DesktopTab{
		ConnectionID: conn.ID,
		Title:        conn.Name,
		State:        StateConnecting,
	}

	lifecycleCh := c.bus.Subscribe(events.EventDesktopLifecycle)
	exitCh := c.bus.Subscribe(events.EventDesktopExit)
	quit := make(chan struct{})
	addTeardown(tab, func() {
		c.bus.Unsubscribe(events.EventDesktopLifecycle, lifecycleCh)
		c.bus.Unsubscribe(events.EventDesktopExit, exitCh)
		close(quit)
	})

	c.mu.Lock()
	c.registry.Put(provisional, tab)
	c.mu.Unlock()
	c.changed(provisional, "opened")

	id, err := c.desktop.OpenDesktop(ctx, conn.ID, viewport)
	if err != nil {
		c.rollbackTab(provisional)
		c.observer.Status(fmt.Sprintf("Failed to open desktop session: %v", err))
		return "", err
	}

	c.mu.Lock()
	c.registry.Rekey(provisional, id)
	tab.SessionID = id
	c.mu.Unlock()
	c.changed(id, "confirmed")

	go c.pumpDesktop(id, lifecycleCh, exitCh, quit)
	return id, nil
}

func (c *Controller) pumpDesktop(id string, lifecycleCh, exitCh <-chan events.Event, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case e, ok := <-lifecycleCh:
			if !ok {
				return
			}
			lc, ok := e.(*events.DesktopLifecycleEvent)
			if !ok || lc.SessionID != id {
				continue
			}
			c.handleDesktopLifecycle(id, lc)
		case e, ok := <-exitCh:
			if !ok {
				return
			}
			exit, ok := e.(*events.DesktopExitEvent)
			if !ok || exit.SessionID != id {
				continue
			}
			// An exit always closes the tab, whatever state it was in.
			c.CloseTab(context.Background(), id)
			return
		}
	}
}

func (c *Controller) handleDesktopLifecycle(key string, ev *events.DesktopLifecycleEvent) {
	c.mu.Lock()
	tab, ok := c.registry.Get(key)
	if !ok {
		c.mu.Unlock()
		return
	}
	desktopTab, ok := tab.(*DesktopTab)
	if !ok {
		c.mu.Unlock()
		return
	}

	switch ev.Phase {
	case events.DesktopConnecting:
		desktopTab.State = StateConnecting
	case events.DesktopConnected, events.DesktopLoginComplete:
		desktopTab.State = StateConnected
	case events.DesktopDisconnected:
		desktopTab.State = StateError
		desktopTab.Diagnostic = fmt.Sprintf("disconnected (reason %d)", ev.Reason)
	case events.DesktopFatalError:
		desktopTab.State = StateError
		desktopTab.Diagnostic = fmt.Sprintf("fatal error (code %d)", ev.Code)
	case events.DesktopLogonError:
		desktopTab.State = StateError
		desktopTab.Diagnostic = fmt.Sprintf("logon error (code %d)", ev.Code)
	case events.DesktopHostInitFailed:
		desktopTab.State = StateError
		if ev.HResult != nil {
			desktopTab.Diagnostic = fmt.Sprintf("host init failed at %s (hresult %#x): %s", ev.Stage, *ev.HResult, ev.Message)
		} else {
			desktopTab.Diagnostic = fmt.Sprintf("host init failed at %s: %s", ev.Stage, ev.Message)
		}
	default:
		desktopTab.State = StateError
		desktopTab.Diagnostic = fmt.Sprintf("unexpected lifecycle phase %q", ev.Phase)
	}
	failed := desktopTab.State == StateError
	title := desktopTab.Title
	diagnostic := desktopTab.Diagnostic
	c.mu.Unlock()

	if failed {
		c.observer.Status(fmt.Sprintf("Desktop session %q: %s", title, diagnostic))
	}
	c.changed(key, "state")
}

// SyncVisibility shows the active confirmed desktop session at the scaled
// viewport and hides every other one. Failures are collected and reported
// together; one session's failure never blocks its siblings.
func (c *Controller) SyncVisibility(ctx context.Context, activeKey string, viewport protocol.Viewport, scale float64) error {
	type target struct {
		id     string
		active bool
	}

	c.mu.Lock()
	var targets []target
	for _, key := range c.registry.Keys() {
		tab, _ := c.registry.Get(key)
		desktopTab, ok := tab.(*DesktopTab)
		if !ok || desktopTab.SessionID == "" {
			continue
		}
		targets = append(targets, target{id: desktopTab.SessionID, active: key == activeKey})
	}
	c.mu.Unlock()

	scaled := viewport.Scale(scale)
	var errs []error
	for _, tg := range targets {
		if tg.active {
			if err := c.desktop.SetBounds(ctx, tg.id, scaled); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := c.desktop.Show(ctx, tg.id); err != nil {
				errs = append(errs, err)
			}
		} else {
			if err := c.desktop.Hide(ctx, tg.id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// CloseTab removes the tab, releases its listeners, and closes its backend
// session. Teardown is best-effort: backend failures are logged, never
// surfaced. Closing an unknown key is a no-op.
func (c *Controller) CloseTab(ctx context.Context, key string) {
	c.mu.Lock()
	tab, ok := c.registry.Remove(key)
	c.mu.Unlock()
	if !ok {
		return
	}

	runTeardown(takeTeardown(tab))

	switch t := tab.(type) {
	case *ShellTab:
		if t.SessionID != "" {
			if err := c.shell.CloseShell(ctx, t.SessionID); err != nil {
				c.logger.Debug().Str("session", t.SessionID).Err(err).Msg("Shell close during tab teardown failed")
			}
		}
	case *DesktopTab:
		if t.SessionID != "" {
			if err := c.desktop.CloseDesktop(ctx, t.SessionID); err != nil {
				c.logger.Debug().Str("session", t.SessionID).Err(err).Msg("Desktop close during tab teardown failed")
			}
		}
	}
	c.changed(key, "closed")
}

// CloseAll closes every tab. Used on shutdown.
func (c *Controller) CloseAll(ctx context.Context) {
	c.mu.Lock()
	keys := c.registry.Keys()
	c.mu.Unlock()
	for _, key := range keys {
		c.CloseTab(ctx, key)
	}
}

// rollbackTab undoes a failed open: listeners off, tab out, observers told.
func (c *Controller) rollbackTab(key string) {
	c.mu.Lock()
	tab, ok := c.registry.Remove(key)
	c.mu.Unlock()
	if !ok {
		return
	}
	runTeardown(takeTeardown(tab))
	c.changed(key, "closed")
}

// Write sends keystrokes to a shell tab's session.
func (c *Controller) Write(ctx context.Context, key string, data []byte) error {
	id, err := c.shellSessionID(key)
	if err != nil {
		return err
	}
	return c.shell.Write(ctx, id, data)
}

// Resize adjusts a shell tab's terminal geometry.
func (c *Controller) Resize(ctx context.Context, key string, size protocol.TerminalSize) error {
	id, err := c.shellSessionID(key)
	if err != nil {
		return err
	}
	return c.shell.Resize(ctx, id, size)
}

func (c *Controller) shellSessionID(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, ok := c.registry.Get(key)
	if !ok {
		return "", protocol.Errorf(protocol.CodeSessionClosed, "session.lookup", key, "no tab for key %s", key)
	}
	shellTab, ok := tab.(*ShellTab)
	if !ok {
		return "", protocol.Errorf(protocol.CodeSessionClosed, "session.lookup", key, "tab %s is not a shell tab", key)
	}
	if shellTab.State == StateExited {
		return "", protocol.Errorf(protocol.CodeSessionClosed, "session.lookup", key, "session %s has exited", key)
	}
	return shellTab.SessionID, nil
}

// TabSummary is a read-only snapshot of one tab.
type TabSummary struct {
	Key          string
	Kind         TabKind
	ConnectionID string
	SessionID    string
	Title        string
	State        TabState
	ExitCode     *int
	Diagnostic   string
	Active       bool
}

// Tabs returns snapshots of all tabs in display order.
func (c *Controller) Tabs() []TabSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.registry.Keys()
	summaries := make([]TabSummary, 0, len(keys))
	for _, key := range keys {
		tab, _ := c.registry.Get(key)
		summaries = append(summaries, summarize(key, tab, key == c.registry.Active()))
	}
	return summaries
}

// Tab returns a snapshot of one tab.
func (c *Controller) Tab(key string) (TabSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, ok := c.registry.Get(key)
	if !ok {
		return TabSummary{}, false
	}
	return summarize(key, tab, key == c.registry.Active()), true
}

func summarize(key string, tab SessionTab, active bool) TabSummary {
	switch t := tab.(type) {
	case *ShellTab:
		return TabSummary{
			Key:          key,
			Kind:         TabShell,
			ConnectionID: t.ConnectionID,
			SessionID:    t.SessionID,
			Title:        t.Title,
			State:        t.State,
			ExitCode:     t.ExitCode,
			Active:       active,
		}
	case *DesktopTab:
		return TabSummary{
			Key:          key,
			Kind:         TabDesktop,
			ConnectionID: t.ConnectionID,
			SessionID:    t.SessionID,
			Title:        t.Title,
			State:        t.State,
			Diagnostic:   t.Diagnostic,
			Active:       active,
		}
	}
	return TabSummary{Key: key}
}

// ActivateTab moves the active marker. Unknown keys are ignored.
func (c *Controller) ActivateTab(key string) bool {
	c.mu.Lock()
	ok := c.registry.SetActive(key)
	c.mu.Unlock()
	if ok {
		c.changed(key, "active")
	}
	return ok
}

// ActiveKey returns the active tab's key, or empty.
func (c *Controller) ActiveKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Active()
}

func (c *Controller) resolveConnection(ctx context.Context, connectionID string) (*store.Connection, error) {
	conn, err := c.store.Connections.Resolve(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection: %w", err)
	}
	if conn == nil {
		return nil, protocol.Errorf(protocol.CodeNotFound, "session.open", connectionID,
			"connection %q not found", connectionID)
	}
	return conn, nil
}

// changed publishes the tab change on the bus and pokes the observer.
func (c *Controller) changed(key, reason string) {
	c.bus.PublishTabChange(key, reason)
	c.observer.Notify("tabs")
}
