package cli

import (
	"context"
	"testing"

	"github.com/portico-labs/portico/internal/store"
)

// TestProbeCmd tests the probe command structure
func TestProbeCmd(t *testing.T) {
	cmd := newProbeCmd()
	if cmd == nil {
		t.Fatal("newProbeCmd() returned nil")
	}

	if cmd.Use != "probe <connection|host[:port]>" {
		t.Errorf("Expected Use='probe <connection|host[:port]>', got '%s'", cmd.Use)
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestResolveEndpointLiteral tests host[:port] parsing for unknown refs.
func TestResolveEndpointLiteral(t *testing.T) {
	useTempStore(t)

	tests := []struct {
		ref      string
		wantHost string
		wantPort int
	}{
		{"example.com", "example.com", 22},
		{"example.com:2222", "example.com", 2222},
		{"[::1]:2022", "::1", 2022},
		{"::1", "::1", 22},
	}
	for _, tt := range tests {
		host, port, err := resolveEndpoint(tt.ref)
		if err != nil {
			t.Errorf("resolveEndpoint(%q) failed: %v", tt.ref, err)
			continue
		}
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("resolveEndpoint(%q) = %s:%d, want %s:%d", tt.ref, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

// TestResolveEndpointBadPort tests the port validation.
func TestResolveEndpointBadPort(t *testing.T) {
	useTempStore(t)

	if _, _, err := resolveEndpoint("example.com:70000"); err == nil {
		t.Error("out-of-range port should fail")
	}
}

// TestResolveEndpointSavedConnection prefers the stored endpoint.
func TestResolveEndpointSavedConnection(t *testing.T) {
	path := useTempStore(t)

	st, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	conn := &store.Connection{Name: "devbox", Protocol: store.ProtocolSSH, Host: "10.0.0.5", Port: 2200}
	if err := st.Connections.Create(context.Background(), conn); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	st.Close()

	host, port, err := resolveEndpoint("devbox")
	if err != nil {
		t.Fatalf("resolveEndpoint failed: %v", err)
	}
	if host != "10.0.0.5" || port != 2200 {
		t.Errorf("resolveEndpoint(devbox) = %s:%d, want 10.0.0.5:2200", host, port)
	}
}
