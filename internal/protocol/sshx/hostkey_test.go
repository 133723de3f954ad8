package sshx

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey() error: %v", err)
	}
	return key
}

func TestHostKeyPinsOnFirstUse(t *testing.T) {
	st := newTestStore(t)
	policy := newHostKeyPolicy(st)
	key := newTestKey(t)

	verdict := policy.begin("server1", 22, false)
	if err := verdict.callback()("server1:22", nil, key); err != nil {
		t.Fatalf("first contact error: %v", err)
	}

	stored, err := st.HostKeys.Get(context.Background(), "server1", 22)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored == nil {
		t.Fatal("expected key to be pinned on first contact")
	}
	if stored.Fingerprint != ssh.FingerprintSHA256(key) {
		t.Errorf("Fingerprint = %q, want %q", stored.Fingerprint, ssh.FingerprintSHA256(key))
	}
	if verdict.mismatch() != nil {
		t.Error("first contact should not record a mismatch")
	}
}

func TestHostKeyMatchingKeyPasses(t *testing.T) {
	st := newTestStore(t)
	policy := newHostKeyPolicy(st)
	key := newTestKey(t)

	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, key); err != nil {
		t.Fatalf("first contact error: %v", err)
	}
	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, key); err != nil {
		t.Errorf("matching key error: %v", err)
	}
}

func TestHostKeyMismatchRecordsPendingDecision(t *testing.T) {
	st := newTestStore(t)
	policy := newHostKeyPolicy(st)
	original := newTestKey(t)
	changed := newTestKey(t)

	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, original); err != nil {
		t.Fatalf("first contact error: %v", err)
	}

	verdict := policy.begin("server1", 22, false)
	err := verdict.callback()("server1:22", nil, changed)
	if !errors.Is(err, errKeyMismatch) {
		t.Fatalf("changed key error = %v, want errKeyMismatch", err)
	}

	mismatch := verdict.mismatch()
	if mismatch == nil {
		t.Fatal("expected a recorded mismatch")
	}
	if mismatch.Token == "" {
		t.Error("mismatch token is empty")
	}
	if mismatch.Host != "server1" || mismatch.Port != 22 {
		t.Errorf("mismatch endpoint = %s:%d, want server1:22", mismatch.Host, mismatch.Port)
	}
	if mismatch.StoredFingerprint != ssh.FingerprintSHA256(original) {
		t.Errorf("StoredFingerprint = %q, want %q", mismatch.StoredFingerprint, ssh.FingerprintSHA256(original))
	}
	if mismatch.PresentedFingerprint != ssh.FingerprintSHA256(changed) {
		t.Errorf("PresentedFingerprint = %q, want %q", mismatch.PresentedFingerprint, ssh.FingerprintSHA256(changed))
	}

	// The pinned key must be untouched until the user decides.
	stored, err := st.HostKeys.Get(context.Background(), "server1", 22)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Fingerprint != ssh.FingerprintSHA256(original) {
		t.Error("mismatch must not replace the pinned key")
	}
}

func TestHostKeyAcceptRepinsAndConsumesToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	policy := newHostKeyPolicy(st)
	original := newTestKey(t)
	changed := newTestKey(t)

	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, original); err != nil {
		t.Fatalf("first contact error: %v", err)
	}
	verdict := policy.begin("server1", 22, false)
	verdict.callback()("server1:22", nil, changed)
	token := verdict.mismatch().Token

	if err := policy.accept(ctx, token); err != nil {
		t.Fatalf("accept() error: %v", err)
	}

	stored, err := st.HostKeys.Get(ctx, "server1", 22)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Fingerprint != ssh.FingerprintSHA256(changed) {
		t.Errorf("Fingerprint after accept = %q, want %q", stored.Fingerprint, ssh.FingerprintSHA256(changed))
	}

	// Retry with the new key now passes.
	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, changed); err != nil {
		t.Errorf("retry after accept error: %v", err)
	}

	// The token is single-use.
	err = policy.accept(ctx, token)
	if protocol.CodeOf(err) != protocol.CodeNotFound {
		t.Errorf("second accept code = %q, want %q", protocol.CodeOf(err), protocol.CodeNotFound)
	}
}

func TestHostKeyAcceptNewRepinsWithoutFailing(t *testing.T) {
	st := newTestStore(t)
	policy := newHostKeyPolicy(st)
	original := newTestKey(t)
	changed := newTestKey(t)

	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, original); err != nil {
		t.Fatalf("first contact error: %v", err)
	}

	verdict := policy.begin("server1", 22, true)
	if err := verdict.callback()("server1:22", nil, changed); err != nil {
		t.Fatalf("accept-new changed key error: %v", err)
	}
	if !verdict.didRepin() {
		t.Error("didRepin() = false, want true")
	}
	if verdict.mismatch() != nil {
		t.Error("accept-new should not record a mismatch")
	}

	stored, err := st.HostKeys.Get(context.Background(), "server1", 22)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Fingerprint != ssh.FingerprintSHA256(changed) {
		t.Errorf("Fingerprint = %q, want the re-pinned key %q", stored.Fingerprint, ssh.FingerprintSHA256(changed))
	}

	// Strict contact with the re-pinned key now passes.
	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, changed); err != nil {
		t.Errorf("contact after re-pin error: %v", err)
	}
}

func TestHostKeyAcceptUnknownToken(t *testing.T) {
	policy := newHostKeyPolicy(newTestStore(t))
	err := policy.accept(context.Background(), "no-such-token")
	if protocol.CodeOf(err) != protocol.CodeNotFound {
		t.Errorf("accept code = %q, want %q", protocol.CodeOf(err), protocol.CodeNotFound)
	}
}

func TestHostKeyDifferentPortsAreIndependent(t *testing.T) {
	st := newTestStore(t)
	policy := newHostKeyPolicy(st)
	key22 := newTestKey(t)
	key2222 := newTestKey(t)

	if err := policy.begin("server1", 22, false).callback()("server1:22", nil, key22); err != nil {
		t.Fatalf("port 22 first contact error: %v", err)
	}
	if err := policy.begin("server1", 2222, false).callback()("server1:2222", nil, key2222); err != nil {
		t.Errorf("port 2222 first contact error: %v", err)
	}
}
