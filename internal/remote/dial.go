package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rss-r/deploy/internal/domain/deploy"
)

// Options describes how to reach and authenticate against the host.
type Options struct {
	// Address is host:port.
	Address string
	// User is the SSH login name.
	User string
	// PrivateKeyFile is an optional private key, possibly encrypted.
	PrivateKeyFile string
	// Passphrase decrypts PrivateKeyFile.
	Passphrase string
	// PromptPassphrase is asked when the key is encrypted and Passphrase is empty.
	PromptPassphrase func(keyPath string) (string, error)
	// KnownHostsFile verifies the host key unless InsecureIgnoreHostKey is set.
	KnownHostsFile string
	// InsecureIgnoreHostKey accepts any host key.
	InsecureIgnoreHostKey bool
	// Timeout bounds the TCP connect and the SSH handshake.
	Timeout time.Duration
}

var (
	errNoAuthMethods   = errors.New("no authentication method available: configure a private key or run an SSH agent")
	errNoKnownHosts    = errors.New("known_hosts file not found and host key verification is enabled")
	errAddressRequired = errors.New("address must be provided")
)

// Dial connects to the host, authenticates and opens an SFTP session.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, errAddressRequired
	}

	client := new(Client)

	auths, err := client.authMethods(opts)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}

	dialer := net.Dialer{Timeout: opts.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to %s: %w: %w", opts.Address, deploy.ErrConnection, err)
	}

	if opts.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, opts.Address, cfg)
	if err != nil {
		_ = conn.Close()
		_ = client.Close()

		return nil, classifyHandshakeError(opts.Address, err)
	}

	_ = conn.SetDeadline(time.Time{})

	client.ssh = ssh.NewClient(sshConn, chans, reqs)

	client.sftp, err = sftp.NewClient(client.ssh)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("start sftp session on %s: %w: %w", opts.Address, deploy.ErrConnection, err)
	}

	return client, nil
}

// authMethods collects key and agent authentication. The agent connection is
// kept on c so Close releases it.
func (c *Client) authMethods(opts Options) ([]ssh.AuthMethod, error) {
	var auths []ssh.AuthMethod

	if opts.PrivateKeyFile != "" {
		signer, err := LoadSigner(opts.PrivateKeyFile, opts.Passphrase)
		if errors.Is(err, ErrPassphraseRequired) && opts.PromptPassphrase != nil {
			var passphrase string

			passphrase, err = opts.PromptPassphrase(opts.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("read passphrase: %w", err)
			}

			signer, err = LoadSigner(opts.PrivateKeyFile, passphrase)
		}

		if err != nil {
			return nil, fmt.Errorf("load key: %w: %w", deploy.ErrAuth, err)
		}

		auths = append(auths, ssh.PublicKeys(signer))
	}

	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		if conn, err := net.Dial("unix", socket); err == nil {
			c.agentConn = conn
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(auths) == 0 {
		return nil, fmt.Errorf("%w: %w", deploy.ErrAuth, errNoAuthMethods)
	}

	return auths, nil
}

func hostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		//nolint:gosec // Explicitly requested by the operator.
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if _, err := os.Stat(opts.KnownHostsFile); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.KnownHostsFile, errNoKnownHosts)
	}

	callback, err := knownhosts.New(opts.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}

	return callback, nil
}

// classifyHandshakeError separates rejected credentials from other handshake failures.
func classifyHandshakeError(address string, err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("log in to %s: %w: %w", address, deploy.ErrAuth, err)
	}

	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return fmt.Errorf("verify host key of %s: %w: %w", address, deploy.ErrConnection, err)
	}

	return fmt.Errorf("ssh handshake with %s: %w: %w", address, deploy.ErrConnection, err)
}
