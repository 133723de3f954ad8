// Package protocol defines the contract between the orchestration layer and
// the session backends: request/response operations plus typed events on the
// bus. Implementations live in sshx (shell + transfer) and rdpx (desktop).
package protocol

import (
	"context"
	"time"
)

// TerminalSize is the geometry of a shell session's terminal.
type TerminalSize struct {
	Cols uint16
	Rows uint16
}

// Viewport is a rectangle in logical (CSS) pixels. Backends that position a
// native surface expect physical pixels; Scale converts using the host
// window's device pixel ratio.
type Viewport struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Scale converts the viewport to physical pixels. Width and height are
// clamped to at least one pixel so a degenerate rectangle never reaches the
// backend.
func (v Viewport) Scale(factor float64) Viewport {
	scale := func(value int) int {
		scaled := int(float64(value)*factor + 0.5)
		return scaled
	}
	w := v.Width
	if w < 1 {
		w = 1
	}
	h := v.Height
	if h < 1 {
		h = 1
	}
	return Viewport{
		X:      scale(v.X),
		Y:      scale(v.Y),
		Width:  max(scale(w), 1),
		Height: max(scale(h), 1),
	}
}

// Empty reports whether the viewport has no visible extent.
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// EntryKind classifies a directory entry.
type EntryKind string

const (
	KindFile  EntryKind = "file"
	KindDir   EntryKind = "dir"
	KindOther EntryKind = "other"
)

// FileEntry describes one file or directory in a listing. Size is nil for
// anything that is not a regular file; Owner and Permissions are nil when the
// backend does not report them (the local pane on Windows, for example).
type FileEntry struct {
	Name        string
	Path        string
	Kind        EntryKind
	Size        *int64
	ModifiedAt  *time.Time
	Owner       *string
	Permissions *uint32
	Hidden      bool
}

// DirListing is the result of a list operation. CWD is the backend-resolved
// absolute directory, which may differ from the requested path (symlinks,
// relative segments).
type DirListing struct {
	CWD     string
	Entries []FileEntry
}

// ShellBackend opens and drives interactive shell sessions. Output and exit
// events are published on the event bus keyed by session id; callers are
// expected to subscribe before opening so no early output is lost.
// sessionHint, when non-empty, is the id the session will be known by; it
// lets the caller register listeners for the id ahead of the open call.
type ShellBackend interface {
	OpenShell(ctx context.Context, connectionID string, size TerminalSize, sessionHint string) (string, error)
	Write(ctx context.Context, sessionID string, data []byte) error
	Resize(ctx context.Context, sessionID string, size TerminalSize) error
	CloseShell(ctx context.Context, sessionID string) error

	// AcceptHostKey re-pins the host key recorded in the pending mismatch
	// identified by token, allowing a subsequent OpenShell to succeed.
	AcceptHostKey(ctx context.Context, connectionID, token string) error
}

// DesktopBackend opens and positions remote-desktop sessions. The session id
// is allocated by the backend; lifecycle and exit events are published on the
// bus once the id is known.
type DesktopBackend interface {
	OpenDesktop(ctx context.Context, connectionID string, viewport Viewport) (string, error)
	CloseDesktop(ctx context.Context, sessionID string) error
	SetBounds(ctx context.Context, sessionID string, viewport Viewport) error
	Show(ctx context.Context, sessionID string) error
	Hide(ctx context.Context, sessionID string) error
}

// TransferBackend opens transfer sub-sessions on top of a connected shell
// session.
type TransferBackend interface {
	OpenTransfer(ctx context.Context, shellSessionID string) (TransferSession, error)
}

// TransferSession is one transfer sub-session. Upload and Download publish
// per-file progress events (start/progress/complete/error) on the bus keyed
// by the sub-session id. Close releases the sub-session; closing twice is
// not an error.
type TransferSession interface {
	ID() string
	InitialDir() string

	List(ctx context.Context, path string) (*DirListing, error)
	MakeFile(ctx context.Context, path string) error
	MakeDir(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Delete(ctx context.Context, path string, recursive bool) error
	Upload(ctx context.Context, localPath, remotePath string, overwrite bool) error
	Download(ctx context.Context, remotePath, localPath string, overwrite bool) error

	Close(ctx context.Context) error
}

// LocalFS is the local-pane counterpart of a transfer session.
type LocalFS interface {
	// DefaultRoot is the directory the local pane starts in.
	DefaultRoot() (string, error)

	List(ctx context.Context, path string) (*DirListing, error)
	Stat(ctx context.Context, path string) (*FileEntry, error)
	MakeFile(ctx context.Context, path string) error
	MakeDir(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Delete(ctx context.Context, path string, recursive bool) error
}
