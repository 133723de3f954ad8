// Package localfs implements the local side of the dual-pane browser:
// listing, stat, and the file operations the remote pane gets from SFTP,
// with the same structured error codes so callers branch identically on
// either side.
package localfs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/validation"
)

// Service implements protocol.LocalFS against the host filesystem.
type Service struct {
	includeHidden bool
}

// NewService returns a local filesystem service. Hidden entries (dot files)
// are included in listings; the pane layer decides whether to show them.
func NewService() *Service {
	return &Service{includeHidden: true}
}

// DefaultRoot returns the directory the local pane starts in: the user's
// Desktop when present, else the home directory, else the process working
// directory.
func (s *Service) DefaultRoot() (string, error) {
	if home, err := os.UserHomeDir(); err == nil {
		desktop := filepath.Join(home, "Desktop")
		if info, err := os.Stat(desktop); err == nil && info.IsDir() {
			return desktop, nil
		}
		return home, nil
	}
	return os.Getwd()
}

// List returns the entries of dir. The resolved absolute path is reported as
// CWD so relative input normalizes the pane location. Entries the process
// cannot stat are skipped rather than failing the whole listing.
func (s *Service) List(ctx context.Context, dir string) (*protocol.DirListing, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, mapFSError("local.list", dir, err)
	}
	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, mapFSError("local.list", abs, err)
	}

	entries := make([]protocol.FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if !s.includeHidden && IsHiddenName(name) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, s.entryFromInfo(filepath.Join(abs, name), info))
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return &protocol.DirListing{CWD: abs, Entries: entries}, nil
}

// Stat returns the entry for a single path.
func (s *Service) Stat(ctx context.Context, path string) (*protocol.FileEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, mapFSError("local.stat", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, mapFSError("local.stat", abs, err)
	}
	entry := s.entryFromInfo(abs, info)
	return &entry, nil
}

// MakeFile creates an empty file, creating parent directories as needed. An
// existing file at the path is an already_exists error, never truncated.
func (s *Service) MakeFile(ctx context.Context, path string) error {
	if err := validateTargetName(filepath.Base(path)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return mapFSError("local.new_file", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return mapFSError("local.new_file", path, err)
	}
	return f.Close()
}

// MakeDir creates a single directory level. The parent must exist.
func (s *Service) MakeDir(ctx context.Context, path string) error {
	if err := validateTargetName(filepath.Base(path)); err != nil {
		return err
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return mapFSError("local.new_folder", path, err)
	}
	return nil
}

// Rename moves oldPath to newPath.
func (s *Service) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := validateTargetName(filepath.Base(newPath)); err != nil {
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return mapFSError("local.rename", oldPath, err)
	}
	return nil
}

// Delete removes a file, or a directory when recursive is set. A non-empty
// directory without recursive fails.
func (s *Service) Delete(ctx context.Context, path string, recursive bool) error {
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return mapFSError("local.delete", path, err)
	}
	return nil
}

func (s *Service) entryFromInfo(path string, info os.FileInfo) protocol.FileEntry {
	entry := protocol.FileEntry{
		Name:   info.Name(),
		Path:   path,
		Hidden: IsHiddenName(info.Name()),
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
	fillOwnership(path, &entry)
	return entry
}

// IsHidden reports whether the file or directory at path is hidden under the
// leading-dot convention. The special entries "." and ".." are not hidden.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName is IsHidden for a bare name.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}

// validateTargetName rejects names no pane operation should ever produce.
func validateTargetName(name string) error {
	if err := validation.ValidateEntryName(name); err != nil {
		return protocol.Errorf(protocol.CodeInvalidName, "local.name", name, "%v", err)
	}
	return nil
}

// mapFSError converts an os error to a coded protocol error.
func mapFSError(op, path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return protocol.WrapError(protocol.CodeNotFound, op, path, err)
	case os.IsExist(err):
		return protocol.WrapError(protocol.CodeAlreadyExists, op, path, err)
	case os.IsPermission(err):
		return protocol.WrapError(protocol.CodePermission, op, path, err)
	default:
		return protocol.WrapError(protocol.CodeInternal, op, path, err)
	}
}
