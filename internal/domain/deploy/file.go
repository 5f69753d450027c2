package deploy

import (
	"io"
	"io/fs"
)

// Opener yields the local content of a File.
type Opener func() (io.ReadCloser, error)

// File is a single local file to be placed under the remote root.
type File struct {
	// RelativePath is the slash-separated path below the remote root.
	RelativePath string
	// Mode holds the permission bits applied on the remote host.
	Mode fs.FileMode
	// Size is the content length in bytes.
	Size int64
	// Checksum is the digest of the content.
	Checksum []byte

	open Opener
}

// NewFile creates a File whose content is read through open.
func NewFile(relativePath string, mode fs.FileMode, size int64, checksum []byte, open Opener) *File {
	return &File{
		RelativePath: relativePath,
		Mode:         mode.Perm(),
		Size:         size,
		Checksum:     checksum,
		open:         open,
	}
}

// Open returns a reader over the local content.
func (f *File) Open() (io.ReadCloser, error) {
	return f.open()
}

// WithPath returns a copy of f placed at relativePath.
func (f *File) WithPath(relativePath string) *File {
	cloned := *f
	cloned.RelativePath = relativePath

	return &cloned
}

// WithMode returns a copy of f with the given permission bits.
func (f *File) WithMode(mode fs.FileMode) *File {
	cloned := *f
	cloned.Mode = mode.Perm()

	return &cloned
}
