// Package rdpx implements the remote-desktop backend by delegating each
// session to an external RDP client process. The client binary comes from
// the [portico.desktop] config section; the backend tracks the process,
// publishes lifecycle phases on the event bus, and reports the exit.
//
// The external client owns its own window. Bounds and visibility changes
// are therefore tracked per session for diagnostics rather than applied to
// a foreign window.
package rdpx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/store"
)

// Backend implements protocol.DesktopBackend.
type Backend struct {
	logger *logging.Logger
	bus    *events.EventBus
	store  *store.Store
	cfg    *config.Config

	mu       sync.Mutex
	sessions map[string]*desktopSession
}

type desktopSession struct {
	id         string
	connection *store.Connection
	cmd        *exec.Cmd

	mu      sync.Mutex
	bounds  protocol.Viewport
	visible bool
}

// NewBackend wires the desktop backend.
func NewBackend(bus *events.EventBus, st *store.Store, cfg *config.Config) *Backend {
	return &Backend{
		logger:   logging.NewLogger("rdp", bus),
		bus:      bus,
		store:    st,
		cfg:      cfg,
		sessions: make(map[string]*desktopSession),
	}
}

// OpenDesktop resolves the connection, launches the configured client, and
// returns the backend-allocated session id. Connecting and connected phases
// are published once the process is up; the monitor goroutine reports the
// terminal phase and the exit when the process ends.
func (b *Backend) OpenDesktop(ctx context.Context, connectionID string, viewport protocol.Viewport) (string, error) {
	if viewport.Empty() {
		return "", protocol.Errorf(protocol.CodeInternal, "rdp.open", connectionID, "viewport has zero extent")
	}

	conn, err := b.resolveConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}

	clientPath := b.cfg.Desktop.ClientPath
	if clientPath == "" {
		return "", protocol.Errorf(protocol.CodeNotFound, "rdp.open", connectionID,
			"no desktop client configured; set client_path in [portico.desktop]")
	}
	resolved, err := exec.LookPath(clientPath)
	if err != nil {
		return "", protocol.WrapError(protocol.CodeNotFound, "rdp.open", clientPath, err)
	}

	id := uuid.NewString()
	cmd := exec.Command(resolved, b.clientArgs(conn, viewport)...)

	ds := &desktopSession{
		id:         id,
		connection: conn,
		cmd:        cmd,
		bounds:     viewport,
		visible:    true,
	}

	if err := cmd.Start(); err != nil {
		return "", protocol.WrapError(protocol.CodeInternal, "rdp.open", clientPath, err)
	}

	b.mu.Lock()
	b.sessions[id] = ds
	b.mu.Unlock()

	b.bus.PublishDesktopLifecycle(&events.DesktopLifecycleEvent{SessionID: id, Phase: events.DesktopConnecting})
	b.bus.PublishDesktopLifecycle(&events.DesktopLifecycleEvent{SessionID: id, Phase: events.DesktopConnected})

	go b.monitor(ds)

	b.logger.Info().
		Str("session", id).
		Str("host", conn.Host).
		Int("pid", cmd.Process.Pid).
		Msg("Desktop session launched")
	return id, nil
}

// clientArgs builds the argument list in the freerdp convention, which the
// default unix clients accept; site-specific flags come from config and are
// appended last so they can override.
func (b *Backend) clientArgs(conn *store.Connection, viewport protocol.Viewport) []string {
	// A geometry saved on the connection wins over the caller's viewport.
	width, height := viewport.Width, viewport.Height
	if conn.DesktopWidth > 0 && conn.DesktopHeight > 0 {
		width, height = int(conn.DesktopWidth), int(conn.DesktopHeight)
	}
	args := []string{
		"/v:" + conn.Host + ":" + strconv.Itoa(conn.Port),
		fmt.Sprintf("/size:%dx%d", width, height),
	}
	if conn.Username != "" {
		args = append(args, "/u:"+conn.Username)
	}
	if conn.Domain != "" {
		args = append(args, "/d:"+conn.Domain)
	}
	return append(args, b.cfg.DesktopClientArgs()...)
}

// monitor waits for the client process and publishes the terminal lifecycle
// phase followed by the exit event.
func (b *Backend) monitor(ds *desktopSession) {
	err := ds.cmd.Wait()
	code := exitCode(err)

	b.mu.Lock()
	delete(b.sessions, ds.id)
	b.mu.Unlock()

	if code == 0 {
		b.bus.PublishDesktopLifecycle(&events.DesktopLifecycleEvent{
			SessionID: ds.id,
			Phase:     events.DesktopDisconnected,
			Reason:    0,
		})
	} else {
		b.bus.PublishDesktopLifecycle(&events.DesktopLifecycleEvent{
			SessionID: ds.id,
			Phase:     events.DesktopFatalError,
			Code:      code,
		})
	}

	detail := ""
	if code != 0 {
		detail = fmt.Sprintf("client exited with code %d", code)
	}
	b.bus.PublishDesktopExit(ds.id, detail)
	b.logger.Info().Str("session", ds.id).Int("code", code).Msg("Desktop session ended")
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// CloseDesktop terminates the client process. The exit event still fires
// from the monitor goroutine. Closing an already removed session is not an
// error.
func (b *Backend) CloseDesktop(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	ds, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return terminate(ds.cmd)
}

// SetBounds records the desired surface rectangle for the session.
func (b *Backend) SetBounds(ctx context.Context, sessionID string, viewport protocol.Viewport) error {
	ds, err := b.lookup(sessionID, "rdp.set_bounds")
	if err != nil {
		return err
	}
	ds.mu.Lock()
	ds.bounds = viewport
	ds.mu.Unlock()
	b.logger.Debug().Str("session", sessionID).
		Int("w", viewport.Width).Int("h", viewport.Height).
		Msg("Desktop bounds updated")
	return nil
}

// Show records that the session's surface should be visible.
func (b *Backend) Show(ctx context.Context, sessionID string) error {
	return b.setVisible(sessionID, "rdp.show", true)
}

// Hide records that the session's surface should be hidden.
func (b *Backend) Hide(ctx context.Context, sessionID string) error {
	return b.setVisible(sessionID, "rdp.hide", false)
}

func (b *Backend) setVisible(sessionID, op string, visible bool) error {
	ds, err := b.lookup(sessionID, op)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	ds.visible = visible
	ds.mu.Unlock()
	return nil
}

func (b *Backend) lookup(sessionID, op string) (*desktopSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ds, ok := b.sessions[sessionID]
	if !ok {
		return nil, protocol.Errorf(protocol.CodeSessionClosed, op, sessionID, "session %s is not open", sessionID)
	}
	return ds, nil
}

func (b *Backend) resolveConnection(ctx context.Context, connectionID string) (*store.Connection, error) {
	conn, err := b.store.Connections.Resolve(ctx, connectionID)
	if err != nil {
		return nil, protocol.WrapError(protocol.CodeInternal, "rdp.resolve", connectionID, err)
	}
	if conn == nil {
		return nil, protocol.Errorf(protocol.CodeNotFound, "rdp.resolve", connectionID, "connection %q not found", connectionID)
	}
	if conn.Protocol != store.ProtocolRDP {
		return nil, protocol.Errorf(protocol.CodeInvalidName, "rdp.resolve", connectionID,
			"connection %q is %s, not %s", conn.Name, conn.Protocol, store.ProtocolRDP)
	}
	return conn, nil
}
