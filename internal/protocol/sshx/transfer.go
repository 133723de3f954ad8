package sshx

import (
	"bufio"
	"context"
	"io"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/sftp"

	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/protocol"
)

// transferSession is one SFTP sub-session riding a shell session's client
// connection.
type transferSession struct {
	id         string
	backend    *Backend
	parent     *shellSession
	client     *sftp.Client
	initialDir string

	closeOnce sync.Once
}

func newTransferSession(b *Backend, ss *shellSession) (*transferSession, error) {
	opts := []sftp.ClientOption{
		sftp.UseConcurrentReads(true),
		sftp.UseConcurrentWrites(true),
	}
	client, err := sftp.NewClient(ss.client, opts...)
	if err != nil {
		return nil, mapSFTPError("sftp.open", ss.id, err)
	}

	wd, err := client.Getwd()
	if err != nil {
		client.Close()
		return nil, mapSFTPError("sftp.getwd", ss.id, err)
	}

	return &transferSession{
		id:         uuid.NewString(),
		backend:    b,
		parent:     ss,
		client:     client,
		initialDir: wd,
	}, nil
}

func (ts *transferSession) ID() string         { return ts.id }
func (ts *transferSession) InitialDir() string { return ts.initialDir }

// List returns the entries of dir with the canonicalized directory path.
func (ts *transferSession) List(ctx context.Context, dir string) (*protocol.DirListing, error) {
	if dir == "" {
		dir = "."
	}
	resolved, err := ts.client.RealPath(dir)
	if err != nil {
		return nil, mapSFTPError("sftp.list", dir, err)
	}
	infos, err := ts.client.ReadDir(resolved)
	if err != nil {
		return nil, mapSFTPError("sftp.list", resolved, err)
	}

	entries := make([]protocol.FileEntry, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries = append(entries, remoteEntry(resolved, info))
	}
	return &protocol.DirListing{CWD: resolved, Entries: entries}, nil
}

func remoteEntry(dir string, info os.FileInfo) protocol.FileEntry {
	name := info.Name()
	entry := protocol.FileEntry{
		Name:   name,
		Path:   path.Join(dir, name),
		Hidden: len(name) > 0 && name[0] == '.' && name != "." && name != "..",
	}
	switch {
	case info.IsDir():
		entry.Kind = protocol.KindDir
	case info.Mode().IsRegular():
		entry.Kind = protocol.KindFile
		size := info.Size()
		entry.Size = &size
	default:
		entry.Kind = protocol.KindOther
	}
	mod := info.ModTime()
	entry.ModifiedAt = &mod

	if stat, ok := info.Sys().(*sftp.FileStat); ok {
		owner := strconv.FormatUint(uint64(stat.UID), 10)
		entry.Owner = &owner
		mode := stat.Mode
		entry.Permissions = &mode
	}
	return entry
}

// MakeFile creates an empty remote file, failing if it already exists.
func (ts *transferSession) MakeFile(ctx context.Context, p string) error {
	f, err := ts.client.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		return ts.mapMutationError("sftp.new_file", p, err)
	}
	return f.Close()
}

// MakeDir creates a single remote directory level.
func (ts *transferSession) MakeDir(ctx context.Context, p string) error {
	if err := ts.client.Mkdir(p); err != nil {
		return ts.mapMutationError("sftp.new_folder", p, err)
	}
	return nil
}

// mapMutationError refines the generic SFTP failure status: servers speaking
// protocol version 3 report "Failure" for exists-collisions, so a stat probe
// distinguishes already_exists from the rest.
func (ts *transferSession) mapMutationError(op, p string, err error) error {
	if _, statErr := ts.client.Lstat(p); statErr == nil {
		return protocol.WrapError(protocol.CodeAlreadyExists, op, p, err)
	}
	return mapSFTPError(op, p, err)
}

func (ts *transferSession) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ts.client.Rename(oldPath, newPath); err != nil {
		return ts.mapMutationError("sftp.rename", newPath, err)
	}
	return nil
}

// Delete removes a remote file, or a directory tree when recursive is set.
func (ts *transferSession) Delete(ctx context.Context, p string, recursive bool) error {
	info, err := ts.client.Lstat(p)
	if err != nil {
		return mapSFTPError("sftp.delete", p, err)
	}
	if !info.IsDir() {
		if err := ts.client.Remove(p); err != nil {
			return mapSFTPError("sftp.delete", p, err)
		}
		return nil
	}
	if !recursive {
		if err := ts.client.RemoveDirectory(p); err != nil {
			return mapSFTPError("sftp.delete", p, err)
		}
		return nil
	}
	return ts.removeTree(ctx, p)
}

func (ts *transferSession) removeTree(ctx context.Context, dir string) error {
	infos, err := ts.client.ReadDir(dir)
	if err != nil {
		return mapSFTPError("sftp.delete", dir, err)
	}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		child := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := ts.removeTree(ctx, child); err != nil {
				return err
			}
			continue
		}
		if err := ts.client.Remove(child); err != nil {
			return mapSFTPError("sftp.delete", child, err)
		}
	}
	if err := ts.client.RemoveDirectory(dir); err != nil {
		return mapSFTPError("sftp.delete", dir, err)
	}
	return nil
}

// Upload copies a local file to the remote path, publishing start, throttled
// progress, and a terminal complete or error phase on the bus.
func (ts *transferSession) Upload(ctx context.Context, localPath, remotePath string, overwrite bool) error {
	local, err := os.Open(localPath)
	if err != nil {
		return ts.failTransfer(events.DirectionUpload, localPath, remotePath, nil,
			mapLocalError("sftp.upload", localPath, err))
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return ts.failTransfer(events.DirectionUpload, localPath, remotePath, nil,
			mapLocalError("sftp.upload", localPath, err))
	}
	total := info.Size()

	if !overwrite {
		if _, err := ts.client.Lstat(remotePath); err == nil {
			return ts.failTransfer(events.DirectionUpload, localPath, remotePath, &total,
				protocol.Errorf(protocol.CodeAlreadyExists, "sftp.upload", remotePath, "remote file exists"))
		}
	}

	remote, err := ts.client.Create(remotePath)
	if err != nil {
		return ts.failTransfer(events.DirectionUpload, localPath, remotePath, &total,
			mapSFTPError("sftp.upload", remotePath, err))
	}
	defer remote.Close()

	ts.emit(events.PhaseStart, events.DirectionUpload, localPath, remotePath, 0, &total, nil)

	tracker := ts.newTracker(events.DirectionUpload, localPath, remotePath, &total)
	buf := make([]byte, constants.TransferBufferSize)
	if _, err := io.CopyBuffer(remote, newTrackedReader(ctx, local, tracker), buf); err != nil {
		return ts.failTransfer(events.DirectionUpload, localPath, remotePath, &total,
			mapSFTPError("sftp.upload", remotePath, err))
	}

	ts.emit(events.PhaseComplete, events.DirectionUpload, localPath, remotePath, tracker.count(), &total, nil)
	return nil
}

// Download copies a remote file to the local path. The local file is created
// exclusively unless overwrite is set, and a partial file is removed when
// the copy fails.
func (ts *transferSession) Download(ctx context.Context, remotePath, localPath string, overwrite bool) error {
	remote, err := ts.client.Open(remotePath)
	if err != nil {
		return ts.failTransfer(events.DirectionDownload, localPath, remotePath, nil,
			mapSFTPError("sftp.download", remotePath, err))
	}
	defer remote.Close()

	info, err := remote.Stat()
	if err != nil {
		return ts.failTransfer(events.DirectionDownload, localPath, remotePath, nil,
			mapSFTPError("sftp.download", remotePath, err))
	}
	total := info.Size()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	local, err := os.OpenFile(localPath, flags, 0o644)
	if err != nil {
		return ts.failTransfer(events.DirectionDownload, localPath, remotePath, &total,
			mapLocalError("sftp.download", localPath, err))
	}

	ts.emit(events.PhaseStart, events.DirectionDownload, localPath, remotePath, 0, &total, nil)

	tracker := ts.newTracker(events.DirectionDownload, localPath, remotePath, &total)
	writer := bufio.NewWriterSize(local, constants.TransferBufferSize)
	buf := make([]byte, constants.TransferBufferSize)
	_, copyErr := io.CopyBuffer(newTrackedWriter(ctx, writer, tracker), remote, buf)
	if copyErr == nil {
		copyErr = writer.Flush()
	}
	if closeErr := local.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(localPath)
		return ts.failTransfer(events.DirectionDownload, localPath, remotePath, &total,
			mapSFTPError("sftp.download", remotePath, copyErr))
	}

	ts.emit(events.PhaseComplete, events.DirectionDownload, localPath, remotePath, tracker.count(), &total, nil)
	return nil
}

// Close releases the sub-session. Safe to call more than once.
func (ts *transferSession) Close(ctx context.Context) error {
	var err error
	ts.closeOnce.Do(func() {
		ts.parent.dropTransfer(ts.id)
		err = ts.client.Close()
	})
	return err
}

func (ts *transferSession) closeQuietly() {
	ts.closeOnce.Do(func() {
		ts.client.Close()
	})
}

// failTransfer publishes the error phase and returns the error.
func (ts *transferSession) failTransfer(direction events.TransferDirection, localPath, remotePath string, total *int64, err error) error {
	ts.emit(events.PhaseError, direction, localPath, remotePath, 0, total, err)
	return err
}

func (ts *transferSession) emit(phase events.TransferPhase, direction events.TransferDirection, localPath, remotePath string, bytes int64, total *int64, err error) {
	ts.backend.bus.PublishTransferProgress(ts.id, direction, phase, localPath, remotePath, bytes, total, err)
}
