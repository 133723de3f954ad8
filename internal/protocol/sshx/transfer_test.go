package sshx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/protocol"
)

type fakeFileInfo struct {
	name string
	size int64
	mode fs.FileMode
	sys  any
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeFileInfo) ModTime() time.Time { return time.Unix(1700000000, 0) }
func (f fakeFileInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeFileInfo) Sys() any           { return f.sys }

func TestRemoteEntryFile(t *testing.T) {
	info := fakeFileInfo{
		name: "notes.txt",
		size: 1234,
		mode: 0o644,
		sys:  &sftp.FileStat{UID: 1000, Mode: 0o644},
	}
	entry := remoteEntry("/home/alice", os.FileInfo(info))

	if entry.Name != "notes.txt" {
		t.Errorf("Name = %q, want %q", entry.Name, "notes.txt")
	}
	if entry.Path != "/home/alice/notes.txt" {
		t.Errorf("Path = %q, want %q", entry.Path, "/home/alice/notes.txt")
	}
	if entry.Kind != protocol.KindFile {
		t.Errorf("Kind = %q, want %q", entry.Kind, protocol.KindFile)
	}
	if entry.Size == nil || *entry.Size != 1234 {
		t.Errorf("Size = %v, want 1234", entry.Size)
	}
	if entry.Owner == nil || *entry.Owner != "1000" {
		t.Errorf("Owner = %v, want 1000", entry.Owner)
	}
	if entry.Hidden {
		t.Error("notes.txt should not be hidden")
	}
	if entry.ModifiedAt == nil {
		t.Error("ModifiedAt is nil")
	}
}

func TestRemoteEntryDirectory(t *testing.T) {
	info := fakeFileInfo{name: ".config", mode: fs.ModeDir | 0o755}
	entry := remoteEntry("/home/alice", os.FileInfo(info))

	if entry.Kind != protocol.KindDir {
		t.Errorf("Kind = %q, want %q", entry.Kind, protocol.KindDir)
	}
	if entry.Size != nil {
		t.Errorf("directory Size = %v, want nil", entry.Size)
	}
	if !entry.Hidden {
		t.Error(".config should be hidden")
	}
}

func TestRemoteEntrySpecialFile(t *testing.T) {
	info := fakeFileInfo{name: "sock", mode: fs.ModeSocket}
	entry := remoteEntry("/tmp", os.FileInfo(info))

	if entry.Kind != protocol.KindOther {
		t.Errorf("Kind = %q, want %q", entry.Kind, protocol.KindOther)
	}
	if entry.Size != nil {
		t.Errorf("special file Size = %v, want nil", entry.Size)
	}
}

func TestMapSFTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.ErrorCode
	}{
		{"no such file", sftp.ErrSshFxNoSuchFile, protocol.CodeNotFound},
		{"wrapped no such file", fmt.Errorf("stat: %w", sftp.ErrSshFxNoSuchFile), protocol.CodeNotFound},
		{"permission denied", sftp.ErrSshFxPermissionDenied, protocol.CodePermission},
		{"connection lost", sftp.ErrSshFxConnectionLost, protocol.CodeSessionClosed},
		{"no connection", sftp.ErrSshFxNoConnection, protocol.CodeSessionClosed},
		{"eof", io.EOF, protocol.CodeSessionClosed},
		{"unexpected eof", io.ErrUnexpectedEOF, protocol.CodeSessionClosed},
		{"local not exist", os.ErrNotExist, protocol.CodeNotFound},
		{"other", errors.New("boom"), protocol.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.CodeOf(mapSFTPError("sftp.test", "/p", tt.err))
			if got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}

	if mapSFTPError("sftp.test", "/p", nil) != nil {
		t.Error("nil error should map to nil")
	}
}

func TestMapLocalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.ErrorCode
	}{
		{"not exist", os.ErrNotExist, protocol.CodeNotFound},
		{"exist", os.ErrExist, protocol.CodeAlreadyExists},
		{"permission", os.ErrPermission, protocol.CodePermission},
		{"other", errors.New("boom"), protocol.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.CodeOf(mapLocalError("sftp.test", "/p", tt.err))
			if got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("exitCode(nil) = %d, want 0", got)
	}
	if got := exitCode(&ssh.ExitMissingError{}); got != -1 {
		t.Errorf("exitCode(ExitMissingError) = %d, want -1", got)
	}
	if got := exitCode(errors.New("closed")); got != -1 {
		t.Errorf("exitCode(generic) = %d, want -1", got)
	}
}

func TestProgressTrackerThrottles(t *testing.T) {
	bus := events.NewEventBus(16)
	ch := bus.Subscribe(events.EventTransferProgress)
	ts := &transferSession{id: "sub1", backend: &Backend{bus: bus}}
	total := int64(100)
	tracker := ts.newTracker(events.DirectionUpload, "/l", "/r", &total)

	// Inside the throttle window nothing is published.
	tracker.add(10)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event inside throttle window: %+v", e)
	default:
	}

	// Once the window has passed the next add publishes the running count.
	tracker.lastEmit = time.Now().Add(-time.Second)
	tracker.add(5)
	select {
	case e := <-ch:
		progress, ok := e.(*events.TransferProgressEvent)
		if !ok {
			t.Fatalf("event type = %T, want *TransferProgressEvent", e)
		}
		if progress.Phase != events.PhaseProgress {
			t.Errorf("Phase = %q, want %q", progress.Phase, events.PhaseProgress)
		}
		if progress.Bytes != 15 {
			t.Errorf("Bytes = %d, want 15", progress.Bytes)
		}
		if progress.SubSessionID != "sub1" {
			t.Errorf("SubSessionID = %q, want %q", progress.SubSessionID, "sub1")
		}
	default:
		t.Fatal("expected a progress event after the throttle window")
	}

	if tracker.count() != 15 {
		t.Errorf("count() = %d, want 15", tracker.count())
	}
}
