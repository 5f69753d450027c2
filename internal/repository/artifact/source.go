package artifact

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rss-r/deploy/internal/domain/deploy"
)

// defaultFileMode is used for archive entries that carry no permission bits.
const defaultFileMode fs.FileMode = 0o644

var errEmptyBuildOutput = errors.New("build output contains no files")

// Load reads the build output at root, a directory or a .zip archive.
func Load(root string) (*deploy.FileSet, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("build output %s: %w", root, deploy.ErrLocalArtifactMissing)
		}

		return nil, fmt.Errorf("stat build output: %w", err)
	}

	var set *deploy.FileSet

	switch {
	case info.IsDir():
		set, err = loadDirectory(root)
	case strings.EqualFold(filepath.Ext(root), ".zip"):
		set, err = loadArchive(root)
	default:
		return nil, fmt.Errorf("build output %s must be a directory or a .zip archive", root)
	}

	if err != nil {
		return nil, err
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("%s: %w: %w", root, errEmptyBuildOutput, deploy.ErrLocalArtifactMissing)
	}

	return set, nil
}

// LoadFile reads a single local file that will be stored at relativePath.
func LoadFile(localPath, relativePath string) (*deploy.File, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", localPath, deploy.ErrLocalArtifactMissing)
		}

		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file: %w", localPath, deploy.ErrLocalArtifactMissing)
	}

	return diskFile(localPath, relativePath, info)
}

func loadDirectory(root string) (*deploy.FileSet, error) {
	set := deploy.NewFileSet()

	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		file, err := diskFile(p, filepath.ToSlash(rel), info)
		if err != nil {
			return err
		}

		set.Add(file)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk build output: %w", err)
	}

	return set, nil
}

func diskFile(localPath, relativePath string, info fs.FileInfo) (*deploy.File, error) {
	open := func() (io.ReadCloser, error) {
		return os.Open(filepath.Clean(localPath))
	}

	r, err := open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}

	defer func() {
		_ = r.Close()
	}()

	checksum, err := Checksum(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", localPath, err)
	}

	return deploy.NewFile(relativePath, info.Mode(), info.Size(), checksum, open), nil
}

// loadArchive reads every regular entry of a zip archive into memory.
// Build outputs are small, so the archive is closed before returning.
func loadArchive(archivePath string) (*deploy.FileSet, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	set := deploy.NewFileSet()

	for _, entry := range reader.File {
		if !entry.Mode().IsRegular() {
			continue
		}

		name := path.Clean(strings.ReplaceAll(entry.Name, "\\", "/"))
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("archive entry %q escapes the build output", entry.Name)
		}

		body, err := readEntry(entry)
		if err != nil {
			return nil, err
		}

		checksum, err := Checksum(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		mode := entry.Mode().Perm()
		if mode == 0 {
			mode = defaultFileMode
		}

		set.Add(deploy.NewFile(name, mode, int64(len(body)), checksum, func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}))
	}

	return set, nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	r, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = r.Close()
	}()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive entry %s: %w", entry.Name, err)
	}

	return body, nil
}
