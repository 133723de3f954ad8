package localfs

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Walk limit errors. A batch that trips either cap is aborted before any
// transfer starts.
var (
	ErrMaxDepthExceeded = errors.New("directory tree exceeds maximum depth")
	ErrMaxItemsExceeded = errors.New("directory tree exceeds maximum item count")
)

// WalkOptions configures Walk and WalkCollect.
type WalkOptions struct {
	// IncludeHidden includes dot files and dot directories in the walk.
	IncludeHidden bool

	// SkipHiddenDirs skips descending into hidden directories entirely.
	// Only meaningful when IncludeHidden is false.
	SkipHiddenDirs bool

	// MaxDepth limits nesting below the root; 0 means unlimited.
	MaxDepth int

	// MaxItems limits the total number of visited entries; 0 means
	// unlimited.
	MaxItems int
}

// WalkEntry is one visited file or directory. Rel is the path relative to
// the walk root in slash form, ready for joining onto a remote directory.
type WalkEntry struct {
	Path    string
	Rel     string
	Name    string
	Size    int64
	IsDir   bool
	Regular bool
	Depth   int
}

// WalkFunc is the callback for Walk. Returning filepath.SkipDir skips a
// directory's contents; any other error stops the walk.
type WalkFunc func(entry WalkEntry) error

// Walk traverses root depth-first, directories before their contents. The
// root itself is not visited. Unreadable entries are skipped.
func Walk(ctx context.Context, root string, opts WalkOptions, fn WalkFunc) error {
	visited := 0
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			if d.IsDir() && opts.SkipHiddenDirs {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			return ErrMaxDepthExceeded
		}
		visited++
		if opts.MaxItems > 0 && visited > opts.MaxItems {
			return ErrMaxItemsExceeded
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}

		entry := WalkEntry{
			Path:    path,
			Rel:     rel,
			Name:    name,
			IsDir:   d.IsDir(),
			Regular: info.Mode().IsRegular(),
			Depth:   depth,
		}
		if entry.Regular {
			entry.Size = info.Size()
		}
		return fn(entry)
	})
}

// CollectResult is the flattened view of a directory tree: directories in
// visit order (parents before children) and regular files, with the summed
// file bytes for progress totals and space preflight.
type CollectResult struct {
	Directories []WalkEntry
	Files       []WalkEntry
	TotalBytes  int64
}

// WalkCollect walks root and gathers every directory and regular file.
// Non-regular files (sockets, devices, symlinks) are ignored.
func WalkCollect(ctx context.Context, root string, opts WalkOptions) (*CollectResult, error) {
	result := &CollectResult{}
	err := Walk(ctx, root, opts, func(entry WalkEntry) error {
		if entry.IsDir {
			result.Directories = append(result.Directories, entry)
			return nil
		}
		if !entry.Regular {
			return nil
		}
		result.Files = append(result.Files, entry)
		result.TotalBytes += entry.Size
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
