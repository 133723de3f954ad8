package cli

import (
	"context"
	"testing"

	"github.com/portico-labs/portico/internal/store"
)

// TestHostkeysList tests the 'hostkeys list' command structure
func TestHostkeysList(t *testing.T) {
	cmd := newHostkeysListCmd()
	if cmd == nil {
		t.Fatal("newHostkeysListCmd() returned nil")
	}

	if cmd.Use != "list" {
		t.Errorf("Expected Use='list', got '%s'", cmd.Use)
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestHostkeysForgetRoundTrip pins a key directly and forgets it through
// the command.
func TestHostkeysForgetRoundTrip(t *testing.T) {
	path := useTempStore(t)

	st, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	hk := &store.HostKey{
		Host:        "devbox.example.com",
		Port:        22,
		KeyType:     "ssh-ed25519",
		Fingerprint: "SHA256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		PublicKey:   []byte{1, 2, 3},
	}
	if err := st.HostKeys.Pin(context.Background(), hk); err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	st.Close()

	forget := newHostkeysForgetCmd()
	forget.SetArgs([]string{"devbox.example.com"})
	if err := forget.Execute(); err != nil {
		t.Fatalf("forget failed: %v", err)
	}

	st, err = store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer st.Close()

	got, err := st.HostKeys.Get(context.Background(), "devbox.example.com", 22)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("host key still pinned after forget")
	}
}

// TestHostkeysForgetUnpinned is a no-op, not an error.
func TestHostkeysForgetUnpinned(t *testing.T) {
	useTempStore(t)

	forget := newHostkeysForgetCmd()
	forget.SetArgs([]string{"ghost.example.com", "2222"})
	if err := forget.Execute(); err != nil {
		t.Errorf("forgetting an unpinned endpoint should not fail: %v", err)
	}
}

// TestHostkeysForgetBadPort rejects a malformed port argument.
func TestHostkeysForgetBadPort(t *testing.T) {
	useTempStore(t)

	forget := newHostkeysForgetCmd()
	forget.SilenceUsage = true
	forget.SilenceErrors = true
	forget.SetArgs([]string{"devbox.example.com", "eighty"})
	if err := forget.Execute(); err == nil {
		t.Error("non-numeric port should fail")
	}
}
