package store

import (
	"context"
	"database/sql"
	"fmt"
)

// HostKeyRepo reads and writes pinned host keys. One key is pinned per
// (host, port); Pin replaces any previous key for that endpoint, so
// accepting a changed key and first-contact pinning go through the same
// path.
type HostKeyRepo struct {
	db *sql.DB
}

// Get returns the pinned key for host:port, or nil when none is pinned.
func (r *HostKeyRepo) Get(ctx context.Context, host string, port int) (*HostKey, error) {
	var hk HostKey
	var firstSeenRaw, updatedRaw string

	err := r.db.QueryRowContext(ctx, `
SELECT host, port, key_type, fingerprint, public_key, first_seen_at, updated_at
FROM host_keys
WHERE host = ? AND port = ?
`, host, port).Scan(&hk.Host, &hk.Port, &hk.KeyType, &hk.Fingerprint, &hk.PublicKey, &firstSeenRaw, &updatedRaw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get host key for %s:%d: %w", host, port, err)
	}

	if hk.FirstSeenAt, err = parseTimestamp(firstSeenRaw); err != nil {
		return nil, err
	}
	if hk.UpdatedAt, err = parseTimestamp(updatedRaw); err != nil {
		return nil, err
	}
	return &hk, nil
}

// Pin stores or replaces the key for hk.Host:hk.Port. first_seen_at is
// preserved across replacements.
func (r *HostKeyRepo) Pin(ctx context.Context, hk *HostKey) error {
	if hk.Host == "" {
		return fmt.Errorf("host key host cannot be empty")
	}
	now := nowUTC()
	if hk.FirstSeenAt.IsZero() {
		hk.FirstSeenAt = now
	}
	hk.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO host_keys (host, port, key_type, fingerprint, public_key, first_seen_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(host, port) DO UPDATE SET
	key_type = excluded.key_type,
	fingerprint = excluded.fingerprint,
	public_key = excluded.public_key,
	updated_at = excluded.updated_at
`, hk.Host, hk.Port, hk.KeyType, hk.Fingerprint, hk.PublicKey, formatTimestamp(hk.FirstSeenAt), formatTimestamp(hk.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to pin host key for %s:%d: %w", hk.Host, hk.Port, err)
	}
	return nil
}

// Forget removes the pinned key for host:port. Removing an unpinned
// endpoint is not an error.
func (r *HostKeyRepo) Forget(ctx context.Context, host string, port int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM host_keys WHERE host = ? AND port = ?`, host, port)
	if err != nil {
		return fmt.Errorf("failed to forget host key for %s:%d: %w", host, port, err)
	}
	return nil
}

// List returns all pinned keys ordered by host then port.
func (r *HostKeyRepo) List(ctx context.Context) ([]*HostKey, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT host, port, key_type, fingerprint, public_key, first_seen_at, updated_at
FROM host_keys
ORDER BY host, port
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list host keys: %w", err)
	}
	defer rows.Close()

	keys := []*HostKey{}
	for rows.Next() {
		var hk HostKey
		var firstSeenRaw, updatedRaw string
		if err := rows.Scan(&hk.Host, &hk.Port, &hk.KeyType, &hk.Fingerprint, &hk.PublicKey, &firstSeenRaw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("failed to scan host key: %w", err)
		}
		if hk.FirstSeenAt, err = parseTimestamp(firstSeenRaw); err != nil {
			return nil, err
		}
		if hk.UpdatedAt, err = parseTimestamp(updatedRaw); err != nil {
			return nil, err
		}
		keys = append(keys, &hk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating host keys: %w", err)
	}
	return keys, nil
}
