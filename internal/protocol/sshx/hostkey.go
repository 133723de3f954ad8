package sshx

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/store"
)

// errKeyMismatch aborts the handshake from inside the host key callback. The
// caller never sees it; the typed mismatch is recovered from the verdict.
var errKeyMismatch = errors.New("host key mismatch")

// pendingKey is a presented-but-unpinned key awaiting the user's decision.
type pendingKey struct {
	host      string
	port      int
	keyType   string
	publicKey []byte
}

// hostKeyPolicy implements trust-on-first-use pinning against the store.
// Unknown endpoints are pinned on first contact. A changed key fails the
// handshake and records the presented key under a one-shot token; accept
// re-pins it and the retry succeeds.
type hostKeyPolicy struct {
	store *store.Store

	mu      sync.Mutex
	pending map[string]*pendingKey // token -> presented key
}

func newHostKeyPolicy(st *store.Store) *hostKeyPolicy {
	return &hostKeyPolicy{
		store:   st,
		pending: make(map[string]*pendingKey),
	}
}

// hostKeyVerdict carries one dial attempt's outcome out of the callback,
// since the ssh package does not preserve callback error types.
type hostKeyVerdict struct {
	policy    *hostKeyPolicy
	host      string
	port      int
	acceptNew bool

	mu       sync.Mutex
	hit      *protocol.HostKeyMismatchError
	repinned bool
}

// begin starts a verdict for one dial. acceptNew re-pins a changed key
// instead of failing the handshake; repinned() reports when that happened.
func (p *hostKeyPolicy) begin(host string, port int, acceptNew bool) *hostKeyVerdict {
	return &hostKeyVerdict{policy: p, host: host, port: port, acceptNew: acceptNew}
}

func (v *hostKeyVerdict) callback() ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return v.policy.check(v, key)
	}
}

// mismatch returns the typed error recorded during the handshake, if any.
func (v *hostKeyVerdict) mismatch() *protocol.HostKeyMismatchError {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hit
}

// didRepin reports whether a changed key was accepted and re-pinned during
// the handshake.
func (v *hostKeyVerdict) didRepin() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.repinned
}

func (p *hostKeyPolicy) check(v *hostKeyVerdict, presented ssh.PublicKey) error {
	ctx := context.Background()
	stored, err := p.store.HostKeys.Get(ctx, v.host, v.port)
	if err != nil {
		return err
	}

	marshaled := presented.Marshal()

	if stored == nil {
		return p.store.HostKeys.Pin(ctx, &store.HostKey{
			Host:        v.host,
			Port:        v.port,
			KeyType:     presented.Type(),
			Fingerprint: ssh.FingerprintSHA256(presented),
			PublicKey:   marshaled,
		})
	}

	if stored.KeyType == presented.Type() && bytes.Equal(stored.PublicKey, marshaled) {
		return nil
	}

	if v.acceptNew {
		if err := p.store.HostKeys.Pin(ctx, &store.HostKey{
			Host:        v.host,
			Port:        v.port,
			KeyType:     presented.Type(),
			Fingerprint: ssh.FingerprintSHA256(presented),
			PublicKey:   marshaled,
		}); err != nil {
			return err
		}
		v.mu.Lock()
		v.repinned = true
		v.mu.Unlock()
		return nil
	}

	token := uuid.NewString()
	p.mu.Lock()
	p.pending[token] = &pendingKey{
		host:      v.host,
		port:      v.port,
		keyType:   presented.Type(),
		publicKey: marshaled,
	}
	p.mu.Unlock()

	v.mu.Lock()
	v.hit = &protocol.HostKeyMismatchError{
		Token:                token,
		Host:                 v.host,
		Port:                 v.port,
		StoredKeyType:        stored.KeyType,
		StoredFingerprint:    stored.Fingerprint,
		PresentedKeyType:     presented.Type(),
		PresentedFingerprint: ssh.FingerprintSHA256(presented),
	}
	v.mu.Unlock()

	return errKeyMismatch
}

// accept consumes a pending token and pins the presented key it recorded.
// The token is single-use; a second accept fails with not_found.
func (p *hostKeyPolicy) accept(ctx context.Context, token string) error {
	p.mu.Lock()
	pk, ok := p.pending[token]
	if ok {
		delete(p.pending, token)
	}
	p.mu.Unlock()

	if !ok {
		return protocol.Errorf(protocol.CodeNotFound, "ssh.hostkey_accept", token,
			"no pending host key decision for token %s", token)
	}

	key, err := ssh.ParsePublicKey(pk.publicKey)
	if err != nil {
		return protocol.WrapError(protocol.CodeInternal, "ssh.hostkey_accept", pk.host, err)
	}
	return p.store.HostKeys.Pin(ctx, &store.HostKey{
		Host:        pk.host,
		Port:        pk.port,
		KeyType:     pk.keyType,
		Fingerprint: ssh.FingerprintSHA256(key),
		PublicKey:   pk.publicKey,
	})
}
