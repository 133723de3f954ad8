// Package session owns the session tabs: the registry that holds them and
// the controller that opens, transitions, and closes them against the shell
// and desktop backends.
package session

// TabKind discriminates the session tab variants.
type TabKind string

const (
	TabShell   TabKind = "shell"
	TabDesktop TabKind = "desktop"
)

// TabState is a tab's connection state. Shell tabs move through connecting,
// connected, and exited; desktop tabs through connecting, connected, and
// error.
type TabState string

const (
	StateConnecting TabState = "connecting"
	StateConnected  TabState = "connected"
	StateExited     TabState = "exited"
	StateError      TabState = "error"
)

// SessionTab is the closed set of tab variants held by the Registry. The
// concrete types are ShellTab and DesktopTab; code acting on a tab switches
// over the concrete type rather than sharing mutable embedded state.
type SessionTab interface {
	Kind() TabKind
	sealed()
}

// ShellTab is an interactive shell session tab. The session id doubles as
// the registry key: it is allocated before the open call and passed to the
// backend as the id hint.
type ShellTab struct {
	ConnectionID string
	SessionID    string
	Title        string
	State        TabState
	ExitCode     *int

	teardown []func()
}

func (*ShellTab) Kind() TabKind { return TabShell }
func (*ShellTab) sealed()       {}

// DesktopTab is a remote-desktop session tab. SessionID is empty until the
// backend confirms the session, at which point the provisional registry key
// is renamed to it. Diagnostic records why a tab entered the error state.
type DesktopTab struct {
	ConnectionID string
	SessionID    string
	Title        string
	State        TabState
	Diagnostic   string

	teardown []func()
}

func (*DesktopTab) Kind() TabKind { return TabDesktop }
func (*DesktopTab) sealed()       {}

func addTeardown(tab SessionTab, fn func()) {
	switch t := tab.(type) {
	case *ShellTab:
		t.teardown = append(t.teardown, fn)
	case *DesktopTab:
		t.teardown = append(t.teardown, fn)
	}
}

func takeTeardown(tab SessionTab) []func() {
	switch t := tab.(type) {
	case *ShellTab:
		fns := t.teardown
		t.teardown = nil
		return fns
	case *DesktopTab:
		fns := t.teardown
		t.teardown = nil
		return fns
	}
	return nil
}

// runTeardown runs the actions in reverse registration order. Teardown is
// best-effort; actions do not return errors.
func runTeardown(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
