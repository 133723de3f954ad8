package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// FolderRepo reads and writes connection-tree folders.
type FolderRepo struct {
	db *sql.DB
}

func (r *FolderRepo) Create(ctx context.Context, f *Folder) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = nowUTC()
	}
	f.UpdatedAt = f.CreatedAt

	_, err := r.db.ExecContext(ctx, `
INSERT INTO folders (id, parent_id, name, position, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, f.ID, nullable(f.ParentID), f.Name, f.Position,
		formatTimestamp(f.CreatedAt), formatTimestamp(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create folder %q: %w", f.Name, err)
	}
	return nil
}

// Get returns the folder with the given id, or nil when absent.
func (r *FolderRepo) Get(ctx context.Context, id string) (*Folder, error) {
	return r.one(ctx, `WHERE id = ?`, id)
}

// GetByName returns the first folder with the given name under parentID
// (empty parentID means a root folder), or nil when absent.
func (r *FolderRepo) GetByName(ctx context.Context, parentID, name string) (*Folder, error) {
	if parentID == "" {
		return r.one(ctx, `WHERE parent_id IS NULL AND name = ?`, name)
	}
	return r.one(ctx, `WHERE parent_id = ? AND name = ?`, parentID, name)
}

func (r *FolderRepo) one(ctx context.Context, where string, args ...any) (*Folder, error) {
	f, err := scanFolder(r.db.QueryRowContext(ctx, `
SELECT id, parent_id, name, position, created_at, updated_at FROM folders `+where, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return f, nil
}

func scanFolder(row interface{ Scan(...any) error }) (*Folder, error) {
	var f Folder
	var parentID sql.NullString
	var createdAtRaw, updatedAtRaw string

	err := row.Scan(&f.ID, &parentID, &f.Name, &f.Position, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		return nil, err
	}

	f.ParentID = parentID.String
	if f.CreatedAt, err = parseTimestamp(createdAtRaw); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTimestamp(updatedAtRaw); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FolderRepo) List(ctx context.Context) ([]*Folder, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, parent_id, name, position, created_at, updated_at
FROM folders
ORDER BY position, name COLLATE NOCASE
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	folders := []*Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating folders: %w", err)
	}
	return folders, nil
}

func (r *FolderRepo) Update(ctx context.Context, f *Folder) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := r.checkNoCycle(ctx, f.ID, f.ParentID); err != nil {
		return err
	}
	f.UpdatedAt = nowUTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE folders
SET parent_id = ?, name = ?, position = ?, updated_at = ?
WHERE id = ?
`, nullable(f.ParentID), f.Name, f.Position, formatTimestamp(f.UpdatedAt), f.ID)
	if err != nil {
		return fmt.Errorf("failed to update folder %q: %w", f.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for folder %q: %w", f.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("folder %q not found", f.ID)
	}
	return nil
}

// checkNoCycle walks up from the proposed parent and rejects the move when
// the folder would become its own ancestor.
func (r *FolderRepo) checkNoCycle(ctx context.Context, id, parentID string) error {
	for parentID != "" {
		if parentID == id {
			return fmt.Errorf("folder %q cannot be moved under its own subtree", id)
		}
		parent, err := r.Get(ctx, parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("parent folder %q not found", parentID)
		}
		parentID = parent.ParentID
	}
	return nil
}

// Delete removes the folder. Subfolders go with it and contained
// connections move to the root, per the schema's delete rules.
func (r *FolderRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder %q: %w", id, err)
	}
	return nil
}
