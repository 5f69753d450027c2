package deployer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// dirHost is a Host backed by the local filesystem. Remote paths are used as
// local paths, so tests point the remote directories at t.TempDir.
type dirHost struct {
	mu sync.Mutex
	// mutations counts every call that changes the filesystem.
	mutations int
	// commands records Run calls in order.
	commands []string
	// runErr is returned from Run when set.
	runErr error
	// closed is set by Close.
	closed bool
}

func (h *dirHost) mutate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.mutations++
}

func (h *dirHost) Stat(p string) (fs.FileInfo, error) {
	return os.Stat(p)
}

func (h *dirHost) ReadDir(p string) ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}

	infos := make([]fs.FileInfo, 0, len(entries))

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}

		infos = append(infos, info)
	}

	return infos, nil
}

func (h *dirHost) MkdirAll(p string) error {
	h.mutate()
	return os.MkdirAll(p, 0o755)
}

func (h *dirHost) Open(p string) (io.ReadCloser, error) {
	return os.Open(filepath.Clean(p))
}

func (h *dirHost) Create(p string) (io.WriteCloser, error) {
	h.mutate()
	return os.Create(filepath.Clean(p))
}

func (h *dirHost) Chmod(p string, mode fs.FileMode) error {
	h.mutate()
	return os.Chmod(p, mode)
}

func (h *dirHost) Rename(oldPath, newPath string) error {
	h.mutate()
	return os.Rename(oldPath, newPath)
}

func (h *dirHost) Remove(p string) error {
	h.mutate()
	return os.Remove(p)
}

func (h *dirHost) RemoveDirectory(p string) error {
	h.mutate()
	return os.Remove(p)
}

func (h *dirHost) Run(_ context.Context, command string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = append(h.commands, command)

	return nil, h.runErr
}

func (h *dirHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	return nil
}

func (h *dirHost) snapshot() (int, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.mutations, append([]string(nil), h.commands...)
}
