package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConnectionRepo reads and writes saved connections.
type ConnectionRepo struct {
	db *sql.DB
}

func (r *ConnectionRepo) Create(ctx context.Context, conn *Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = nowUTC()
	}
	conn.UpdatedAt = conn.CreatedAt

	_, err := r.db.ExecContext(ctx, `
INSERT INTO connections (id, folder_id, position, name, protocol, host, port, username, identity_file,
	accept_new_host_key, domain, desktop_width, desktop_height, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, conn.ID, nullable(conn.FolderID), conn.Position, conn.Name, conn.Protocol, conn.Host, conn.Port,
		conn.Username, conn.IdentityFile, conn.AcceptNewHostKey, conn.Domain,
		conn.DesktopWidth, conn.DesktopHeight,
		formatTimestamp(conn.CreatedAt), formatTimestamp(conn.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create connection %q: %w", conn.Name, err)
	}
	return nil
}

// Get returns the connection with the given id, or nil when absent.
func (r *ConnectionRepo) Get(ctx context.Context, id string) (*Connection, error) {
	return r.one(ctx, `WHERE id = ?`, id)
}

// GetByName returns the connection with the given name, or nil when absent.
func (r *ConnectionRepo) GetByName(ctx context.Context, name string) (*Connection, error) {
	return r.one(ctx, `WHERE name = ?`, name)
}

// Resolve looks a connection up by id first, then by name. CLI commands
// accept either form.
func (r *ConnectionRepo) Resolve(ctx context.Context, ref string) (*Connection, error) {
	conn, err := r.Get(ctx, ref)
	if err != nil || conn != nil {
		return conn, err
	}
	return r.GetByName(ctx, ref)
}

const connectionColumns = `id, folder_id, position, name, protocol, host, port, username, identity_file,
	accept_new_host_key, domain, desktop_width, desktop_height, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*Connection, error) {
	var c Connection
	var folderID sql.NullString
	var createdAtRaw, updatedAtRaw string

	err := row.Scan(&c.ID, &folderID, &c.Position, &c.Name, &c.Protocol, &c.Host, &c.Port,
		&c.Username, &c.IdentityFile, &c.AcceptNewHostKey, &c.Domain,
		&c.DesktopWidth, &c.DesktopHeight, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		return nil, err
	}

	c.FolderID = folderID.String
	if c.CreatedAt, err = parseTimestamp(createdAtRaw); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTimestamp(updatedAtRaw); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionRepo) one(ctx context.Context, where string, arg any) (*Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections `+where, arg)
	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepo) List(ctx context.Context, filter ConnectionFilter) ([]*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections`
	args := []any{}
	where := []string{}

	if filter.Protocol != "" {
		where = append(where, "protocol = ?")
		args = append(args, filter.Protocol)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name COLLATE NOCASE"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	connections := []*Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating connections: %w", err)
	}
	return connections, nil
}

func (r *ConnectionRepo) Update(ctx context.Context, conn *Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	conn.UpdatedAt = nowUTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE connections
SET folder_id = ?, position = ?, name = ?, protocol = ?, host = ?, port = ?, username = ?,
	identity_file = ?, accept_new_host_key = ?, domain = ?, desktop_width = ?, desktop_height = ?,
	updated_at = ?
WHERE id = ?
`, nullable(conn.FolderID), conn.Position, conn.Name, conn.Protocol, conn.Host, conn.Port,
		conn.Username, conn.IdentityFile, conn.AcceptNewHostKey, conn.Domain,
		conn.DesktopWidth, conn.DesktopHeight,
		formatTimestamp(conn.UpdatedAt), conn.ID)
	if err != nil {
		return fmt.Errorf("failed to update connection %q: %w", conn.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for connection %q: %w", conn.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("connection %q not found", conn.ID)
	}
	return nil
}

func (r *ConnectionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection %q: %w", id, err)
	}
	return nil
}
