package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"

	"github.com/pkg/sftp"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
)

// Client is an authenticated connection to the deployment host.
type Client struct {
	// ssh carries command sessions and the SFTP subsystem.
	ssh *ssh.Client
	// sftp serves every file operation.
	sftp *sftp.Client
	// agentConn is the SSH agent socket, when one was used.
	agentConn net.Conn
}

// Stat returns file information for p.
func (c *Client) Stat(p string) (fs.FileInfo, error) {
	return c.sftp.Stat(p)
}

// ReadDir lists the entries of the directory p.
func (c *Client) ReadDir(p string) ([]fs.FileInfo, error) {
	return c.sftp.ReadDir(p)
}

// MkdirAll creates p and any missing parents.
func (c *Client) MkdirAll(p string) error {
	return c.sftp.MkdirAll(p)
}

// Open opens p for reading.
func (c *Client) Open(p string) (io.ReadCloser, error) {
	return c.sftp.Open(p)
}

// Create creates or truncates p for writing.
func (c *Client) Create(p string) (io.WriteCloser, error) {
	return c.sftp.Create(p)
}

// Chmod sets the permission bits of p.
func (c *Client) Chmod(p string, mode fs.FileMode) error {
	return c.sftp.Chmod(p, mode)
}

// Rename moves oldPath to newPath, replacing newPath if it exists.
func (c *Client) Rename(oldPath, newPath string) error {
	return c.sftp.PosixRename(oldPath, newPath)
}

// Remove deletes the file p.
func (c *Client) Remove(p string) error {
	return c.sftp.Remove(p)
}

// RemoveDirectory deletes the empty directory p.
func (c *Client) RemoveDirectory(p string) error {
	return c.sftp.RemoveDirectory(p)
}

// Run executes command in a new session and returns its combined output.
// Cancelling ctx closes the session.
func (c *Client) Run(ctx context.Context, command string) ([]byte, error) {
	session, err := c.ssh.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	defer func() {
		_ = session.Close()
	}()

	type result struct {
		output []byte
		err    error
	}

	done := make(chan result, 1)

	go func() {
		output, err := session.CombinedOutput(command)
		done <- result{output: output, err: err}
	}()

	var r result

	select {
	case <-ctx.Done():
		_ = session.Close()
		r = <-done

		return r.output, ctx.Err()
	case r = <-done:
	}

	if r.err != nil {
		return r.output, fmt.Errorf("run %q: %w: %s", command, r.err, strings.TrimSpace(string(r.output)))
	}

	return r.output, nil
}

// Close releases the SFTP session, the SSH connection and the agent socket.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	var err error

	if c.sftp != nil {
		err = multierr.Append(err, c.sftp.Close())
	}

	if c.ssh != nil {
		err = multierr.Append(err, c.ssh.Close())
	}

	if c.agentConn != nil {
		err = multierr.Append(err, c.agentConn.Close())
	}

	return err
}
