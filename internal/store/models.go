package store

import (
	"fmt"
	"time"
)

// Connection protocols.
const (
	ProtocolSSH = "ssh"
	ProtocolRDP = "rdp"
)

// Default ports per protocol.
const (
	DefaultSSHPort = 22
	DefaultRDPPort = 3389
)

// Connection is one saved remote endpoint.
type Connection struct {
	ID string `json:"id"`

	// FolderID places the connection under a folder; empty means root.
	FolderID string `json:"folder_id,omitempty"`

	// Position orders siblings within a folder; ties fall back to name.
	Position int `json:"position"`

	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`

	// IdentityFile is the SSH private key path; empty means the default
	// resolution order applies. Ignored for RDP connections.
	IdentityFile string `json:"identity_file,omitempty"`

	// AcceptNewHostKey re-pins a changed host key instead of failing the
	// session. Leave false to refuse changed keys until accepted.
	AcceptNewHostKey bool `json:"accept_new_host_key,omitempty"`

	// Domain is the Windows logon domain for RDP connections.
	Domain string `json:"domain,omitempty"`

	// DesktopWidth and DesktopHeight override the remote desktop geometry
	// for RDP connections. Zero means the caller's viewport decides.
	DesktopWidth  uint16 `json:"desktop_width,omitempty"`
	DesktopHeight uint16 `json:"desktop_height,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the connection record before it is written.
func (c *Connection) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connection name cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("connection host cannot be empty")
	}
	switch c.Protocol {
	case ProtocolSSH, ProtocolRDP:
	default:
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// Folder groups connections in the tree; folders nest through ParentID.
type Folder struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the folder record before it is written.
func (f *Folder) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("folder name cannot be empty")
	}
	return nil
}

// HostKey is a pinned SSH host key, keyed by host and port.
type HostKey struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	KeyType     string    `json:"key_type"`
	Fingerprint string    `json:"fingerprint"`
	PublicKey   []byte    `json:"-"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConnectionFilter narrows List results.
type ConnectionFilter struct {
	Protocol string
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// nullable maps the empty string to NULL for optional foreign keys.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}
