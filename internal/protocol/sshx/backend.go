// Package sshx implements the shell and transfer backends over SSH: a
// PTY-backed interactive channel per session and SFTP sub-sessions on the
// same client connection. Session output, exit, and transfer progress are
// published on the event bus; callers subscribe before opening using the
// session-id hint.
package sshx

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/store"
)

// PasswordPrompt supplies a password when key and agent auth are exhausted.
// Returning an error aborts authentication.
type PasswordPrompt func(connection *store.Connection) (string, error)

// Backend implements protocol.ShellBackend and protocol.TransferBackend.
type Backend struct {
	logger   *logging.Logger
	bus      *events.EventBus
	store    *store.Store
	cfg      *config.Config
	prompt   PasswordPrompt
	hostKeys *hostKeyPolicy

	mu       sync.Mutex
	sessions map[string]*shellSession
}

type shellSession struct {
	id         string
	connection *store.Connection
	client     *ssh.Client
	session    *ssh.Session
	stdin      io.WriteCloser

	exitOnce sync.Once

	mu        sync.Mutex
	transfers map[string]*transferSession
	closed    bool
}

// NewBackend wires the SSH backend. prompt may be nil, in which case
// password authentication is unavailable.
func NewBackend(bus *events.EventBus, st *store.Store, cfg *config.Config, prompt PasswordPrompt) *Backend {
	return &Backend{
		logger:   logging.NewLogger("ssh", bus),
		bus:      bus,
		store:    st,
		cfg:      cfg,
		prompt:   prompt,
		hostKeys: newHostKeyPolicy(st),
		sessions: make(map[string]*shellSession),
	}
}

// OpenShell resolves the connection, dials, authenticates, and starts an
// interactive shell on a PTY with the given geometry. The returned id is
// sessionHint when supplied so callers can subscribe for output and exit
// before the open call. A changed host key fails with a
// *protocol.HostKeyMismatchError carrying the pending-decision token.
func (b *Backend) OpenShell(ctx context.Context, connectionID string, size protocol.TerminalSize, sessionHint string) (string, error) {
	conn, err := b.resolveConnection(ctx, connectionID, store.ProtocolSSH)
	if err != nil {
		return "", err
	}

	sessionID := sessionHint
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	client, err := b.dial(ctx, conn)
	if err != nil {
		return "", err
	}

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return "", protocol.WrapError(protocol.CodeInternal, "ssh.open", conn.Host, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", int(size.Rows), int(size.Cols), modes); err != nil {
		sess.Close()
		client.Close()
		return "", protocol.WrapError(protocol.CodeInternal, "ssh.pty", conn.Host, err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return "", protocol.WrapError(protocol.CodeInternal, "ssh.stdin", conn.Host, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return "", protocol.WrapError(protocol.CodeInternal, "ssh.stdout", conn.Host, err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return "", protocol.WrapError(protocol.CodeInternal, "ssh.stderr", conn.Host, err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return "", protocol.WrapError(protocol.CodeInternal, "ssh.shell", conn.Host, err)
	}

	ss := &shellSession{
		id:         sessionID,
		connection: conn,
		client:     client,
		session:    sess,
		stdin:      stdin,
		transfers:  make(map[string]*transferSession),
	}

	b.mu.Lock()
	b.sessions[sessionID] = ss
	b.mu.Unlock()

	go b.pump(ss, stdout)
	go b.pump(ss, stderr)
	go b.waitForExit(ss)

	b.logger.Info().
		Str("session", sessionID).
		Str("host", net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))).
		Msg("Shell session opened")
	return sessionID, nil
}

// dial connects and authenticates. Host key verification goes through the
// pinning policy; on a mismatch the policy records a pending decision and
// the typed error is returned in place of the opaque handshake failure.
func (b *Backend) dial(ctx context.Context, conn *store.Connection) (*ssh.Client, error) {
	addr := net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))

	verdict := b.hostKeys.begin(conn.Host, conn.Port, conn.AcceptNewHostKey)
	clientConfig := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            b.authMethods(conn),
		HostKeyCallback: verdict.callback(),
		Timeout:         constants.DialTimeout,
	}

	dialer := net.Dialer{Timeout: constants.DialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, protocol.WrapError(protocol.CodeUnreachable, "ssh.dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		netConn.Close()
		// The ssh package flattens callback errors into the handshake
		// error string, so the mismatch is recovered from the policy.
		if mismatch := verdict.mismatch(); mismatch != nil {
			return nil, mismatch
		}
		return nil, protocol.WrapError(protocol.CodeInternal, "ssh.handshake", addr, err)
	}
	if verdict.didRepin() {
		b.logger.Warn().Str("host", addr).Msg("Host key changed and was re-pinned")
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// pump copies session output to the bus until the stream ends.
func (b *Backend) pump(ss *shellSession, r io.Reader) {
	buf := make([]byte, constants.TransferBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			b.bus.PublishShellOutput(ss.id, data)
		}
		if err != nil {
			return
		}
	}
}

// waitForExit blocks on the remote shell and publishes the exit exactly
// once, whether the shell ended remotely or was closed locally.
func (b *Backend) waitForExit(ss *shellSession) {
	err := ss.session.Wait()
	code := exitCode(err)

	ss.exitOnce.Do(func() {
		b.removeSession(ss)
		b.bus.PublishShellExit(ss.id, code)
		b.logger.Info().Str("session", ss.id).Int("code", code).Msg("Shell session exited")
	})
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}

// Write sends keystrokes to the session's stdin.
func (b *Backend) Write(ctx context.Context, sessionID string, data []byte) error {
	ss, err := b.lookup(sessionID, "ssh.write")
	if err != nil {
		return err
	}
	if _, err := ss.stdin.Write(data); err != nil {
		return protocol.WrapError(protocol.CodeSessionClosed, "ssh.write", sessionID, err)
	}
	return nil
}

// Resize adjusts the remote PTY geometry.
func (b *Backend) Resize(ctx context.Context, sessionID string, size protocol.TerminalSize) error {
	ss, err := b.lookup(sessionID, "ssh.resize")
	if err != nil {
		return err
	}
	if err := ss.session.WindowChange(int(size.Rows), int(size.Cols)); err != nil {
		return protocol.WrapError(protocol.CodeSessionClosed, "ssh.resize", sessionID, err)
	}
	return nil
}

// CloseShell tears the session down: transfer sub-sessions first, then the
// shell channel and the client connection. The exit event still fires, from
// the Wait goroutine observing the closed channel. Closing an already
// removed session is not an error.
func (b *Backend) CloseShell(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	ss, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	ss.closeTransfers()
	ss.session.Close()
	ss.client.Close()
	return nil
}

// AcceptHostKey pins the presented key recorded under the pending mismatch
// token, so the next OpenShell for the endpoint succeeds.
func (b *Backend) AcceptHostKey(ctx context.Context, connectionID, token string) error {
	return b.hostKeys.accept(ctx, token)
}

// OpenTransfer starts an SFTP sub-session on a connected shell session.
func (b *Backend) OpenTransfer(ctx context.Context, shellSessionID string) (protocol.TransferSession, error) {
	ss, err := b.lookup(shellSessionID, "sftp.open")
	if err != nil {
		return nil, err
	}
	ts, err := newTransferSession(b, ss)
	if err != nil {
		return nil, err
	}
	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		ts.closeQuietly()
		return nil, protocol.Errorf(protocol.CodeSessionClosed, "sftp.open", shellSessionID, "session %s is closed", shellSessionID)
	}
	ss.transfers[ts.id] = ts
	ss.mu.Unlock()
	return ts, nil
}

func (b *Backend) lookup(sessionID, op string) (*shellSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ss, ok := b.sessions[sessionID]
	if !ok {
		return nil, protocol.Errorf(protocol.CodeSessionClosed, op, sessionID, "session %s is not open", sessionID)
	}
	return ss, nil
}

func (b *Backend) removeSession(ss *shellSession) {
	b.mu.Lock()
	delete(b.sessions, ss.id)
	b.mu.Unlock()
	ss.closeTransfers()
	ss.client.Close()
}

func (b *Backend) resolveConnection(ctx context.Context, connectionID, wantProtocol string) (*store.Connection, error) {
	conn, err := b.store.Connections.Resolve(ctx, connectionID)
	if err != nil {
		return nil, protocol.WrapError(protocol.CodeInternal, "ssh.resolve", connectionID, err)
	}
	if conn == nil {
		return nil, protocol.Errorf(protocol.CodeNotFound, "ssh.resolve", connectionID, "connection %q not found", connectionID)
	}
	if conn.Protocol != wantProtocol {
		return nil, protocol.Errorf(protocol.CodeInvalidName, "ssh.resolve", connectionID,
			"connection %q is %s, not %s", conn.Name, conn.Protocol, wantProtocol)
	}
	return conn, nil
}

func (ss *shellSession) closeTransfers() {
	ss.mu.Lock()
	transfers := make([]*transferSession, 0, len(ss.transfers))
	for _, ts := range ss.transfers {
		transfers = append(transfers, ts)
	}
	ss.transfers = make(map[string]*transferSession)
	ss.closed = true
	ss.mu.Unlock()
	for _, ts := range transfers {
		ts.closeQuietly()
	}
}

func (ss *shellSession) dropTransfer(id string) {
	ss.mu.Lock()
	delete(ss.transfers, id)
	ss.mu.Unlock()
}
