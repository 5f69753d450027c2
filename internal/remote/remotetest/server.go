// Package remotetest runs an in-process SSH server with an SFTP subsystem for
// tests. SFTP requests operate on the real local filesystem, so tests point
// their remote directories at t.TempDir paths.
package remotetest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecFunc handles an exec request and returns its output and exit status.
type ExecFunc func(command string) (output string, status uint32)

// Server is a test SSH server accepting a single public key.
type Server struct {
	// Addr is the listen address, host:port.
	Addr string

	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	commands []string
	exec     ExecFunc

	wg sync.WaitGroup
}

var errUnauthorized = errors.New("unauthorized key")

// NewServer starts a server that accepts authorized and stops it on test cleanup.
func NewServer(t testing.TB, authorized ssh.PublicKey) *Server {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}

	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	authorizedBytes := authorized.Marshal()

	//nolint:exhaustruct // Only public key auth is needed.
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorizedBytes) {
				return nil, nil
			}

			return nil, errUnauthorized
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Addr:     listener.Addr().String(),
		listener: listener,
		config:   config,
		hostKey:  hostSigner.PublicKey(),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)

	go s.serve()

	t.Cleanup(s.Close)

	return s
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey
}

// SetExec replaces the exec handler. The default succeeds silently.
func (s *Server) SetExec(fn ExecFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exec = fn
}

// Commands returns every exec request received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	defer func() {
		_ = conn.Close()

		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	_, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}

	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only sessions are supported")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		sessions.Add(1)

		go func() {
			defer sessions.Done()
			s.handleSession(channel, requests)
		}()
	}

	sessions.Wait()
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() {
		_ = channel.Close()
	}()

	for req := range requests {
		var payload struct{ Value string }

		switch req.Type {
		case "subsystem":
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Value != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}

			_ = req.Reply(true, nil)

			go ssh.DiscardRequests(requests)

			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}

			_ = server.Serve()
			_ = server.Close()

			return
		case "exec":
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}

			_ = req.Reply(true, nil)

			go ssh.DiscardRequests(requests)

			output, status := s.runExec(payload.Value)

			_, _ = channel.Write([]byte(output))
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(&struct{ Status uint32 }{status}))

			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *Server) runExec(command string) (string, uint32) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	exec := s.exec
	s.mu.Unlock()

	if exec == nil {
		return "", 0
	}

	return exec(command)
}

// WriteKey writes a new ed25519 private key in OpenSSH format to dir,
// encrypted when passphrase is not empty, and returns its path and public key.
func WriteKey(t testing.TB, dir, passphrase string) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "rss-r-deploy test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "rss-r-deploy test", []byte(passphrase))
	}

	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}

	path := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	return path, sshPub
}

// WriteKnownHosts writes a known_hosts file trusting the server's host key.
func (s *Server) WriteKnownHosts(t testing.TB, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "known_hosts")
	line := knownHostsLine(s.Addr, s.hostKey)

	if err := os.WriteFile(path, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}

	return path
}
