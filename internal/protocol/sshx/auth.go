package sshx

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/store"
)

// authMethods builds the authentication chain for a connection, in order:
// the resolved identity file, the SSH agent, then an interactive password
// (and keyboard-interactive answered the same way) when a prompt is wired.
func (b *Backend) authMethods(conn *store.Connection) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if keyPath := config.ResolveIdentityFile("", conn.IdentityFile); keyPath != "" {
		if am, err := publicKeyAuth(keyPath); err == nil {
			methods = append(methods, am)
		} else {
			b.logger.Debug().Str("key", keyPath).Err(err).Msg("Skipping identity file")
		}
	}

	if am, err := agentAuth(); err == nil {
		methods = append(methods, am)
	}

	if b.prompt != nil {
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return b.prompt(conn)
		}))
		methods = append(methods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answer, err := b.prompt(conn)
					if err != nil {
						return nil, err
					}
					answers[i] = answer
				}
				return answers, nil
			}))
	}

	return methods
}

// publicKeyAuth loads an unencrypted private key file. Passphrase-protected
// keys are expected to come through the agent.
func publicKeyAuth(path string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// agentAuth connects to the SSH agent named by SSH_AUTH_SOCK.
func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, os.ErrNotExist
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}
