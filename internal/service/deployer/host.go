package deployer

import (
	"context"
	"io"
	"io/fs"

	"github.com/rss-r/deploy/internal/remote"
)

// Host is the remote filesystem and shell the deployer works against.
type Host interface {
	Stat(p string) (fs.FileInfo, error)
	ReadDir(p string) ([]fs.FileInfo, error)
	MkdirAll(p string) error
	Open(p string) (io.ReadCloser, error)
	Create(p string) (io.WriteCloser, error)
	Chmod(p string, mode fs.FileMode) error
	Rename(oldPath, newPath string) error
	Remove(p string) error
	RemoveDirectory(p string) error
	Run(ctx context.Context, command string) ([]byte, error)
	Close() error
}

// DialFunc connects to the host described by opts.
type DialFunc func(ctx context.Context, opts remote.Options) (Host, error)

var _ Host = (*remote.Client)(nil)

// dialRemote is the production DialFunc.
func dialRemote(ctx context.Context, opts remote.Options) (Host, error) {
	client, err := remote.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}

	return client, nil
}
