package deployer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/google/uuid"

	"github.com/rss-r/deploy/internal/domain/deploy"
	"github.com/rss-r/deploy/internal/logger"
	"github.com/rss-r/deploy/internal/repository/artifact"
)

// Summary records what a synchronisation changed, or would change in a dry run.
type Summary struct {
	// Uploaded lists relative paths whose remote copy was replaced.
	Uploaded []string
	// Removed lists relative paths deleted by pruning. Directories end in "/".
	Removed []string
	// Unchanged counts files already identical on the host.
	Unchanged int
}

// Changed reports whether the remote directory was modified.
func (s *Summary) Changed() bool {
	return len(s.Uploaded) > 0 || len(s.Removed) > 0
}

var errDirectoryInTheWay = errors.New("a directory exists where a file is expected")

// syncer makes the remote side of a Plan match the local files.
type syncer struct {
	host    Host
	plan    *deploy.Plan
	dryRun  bool
	summary Summary
}

func newSyncer(host Host, plan *deploy.Plan, dryRun bool) *syncer {
	return &syncer{
		host:   host,
		plan:   plan,
		dryRun: dryRun,
	}
}

// run uploads changed files in Plan order, then prunes the Plan's prune directories.
func (s *syncer) run(ctx context.Context) (*Summary, error) {
	for _, file := range s.plan.Files.Files() {
		if err := ctx.Err(); err != nil {
			return &s.summary, err
		}

		if err := s.syncFile(ctx, file); err != nil {
			return &s.summary, fmt.Errorf("%s: %w", file.RelativePath, err)
		}
	}

	keepDirs := make(map[string]struct{})
	for _, dir := range s.plan.Files.Directories() {
		keepDirs[dir] = struct{}{}
	}

	for _, dir := range s.plan.PruneDirs {
		if err := s.prune(ctx, s.plan.RemotePath(dir), keepDirs); err != nil {
			return &s.summary, fmt.Errorf("prune %s: %w", s.plan.RemotePath(dir), err)
		}
	}

	return &s.summary, nil
}

func (s *syncer) syncFile(ctx context.Context, file *deploy.File) error {
	remotePath := s.plan.RemotePath(file.RelativePath)

	unchanged, err := s.isUnchanged(file, remotePath)
	if err != nil {
		return err
	}

	if unchanged {
		s.summary.Unchanged++
		logger.DebugKV(ctx, "File is up to date", "file", file.RelativePath)

		return nil
	}

	s.summary.Uploaded = append(s.summary.Uploaded, file.RelativePath)

	if s.dryRun {
		logger.InfoKV(ctx, "Would upload file", "file", file.RelativePath, "size", file.Size)
		return nil
	}

	logger.InfoKV(ctx, "Uploading file", "file", file.RelativePath, "size", file.Size)

	return s.upload(file, remotePath)
}

// isUnchanged compares size, permission bits and checksum of the remote copy.
func (s *syncer) isUnchanged(file *deploy.File, remotePath string) (bool, error) {
	info, err := s.host.Stat(remotePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat %s: %w", remotePath, err)
	}

	if info.IsDir() {
		return false, fmt.Errorf("%s: %w", remotePath, errDirectoryInTheWay)
	}

	if info.Size() != file.Size || info.Mode().Perm() != file.Mode.Perm() {
		return false, nil
	}

	r, err := s.host.Open(remotePath)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", remotePath, err)
	}

	defer func() {
		_ = r.Close()
	}()

	checksum, err := artifact.Checksum(r)
	if err != nil {
		return false, fmt.Errorf("checksum %s: %w", remotePath, err)
	}

	return bytes.Equal(checksum, file.Checksum), nil
}

// upload writes file next to remotePath under a temporary name and renames it
// into place, so readers never observe a partially written file.
func (s *syncer) upload(file *deploy.File, remotePath string) error {
	dir := path.Dir(remotePath)
	if err := s.host.MkdirAll(dir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp := path.Join(dir, fmt.Sprintf(".%s.%s.tmp", path.Base(remotePath), uuid.NewString()))

	if err := s.write(file, tmp); err != nil {
		_ = s.host.Remove(tmp)
		return err
	}

	if err := s.host.Chmod(tmp, file.Mode); err != nil {
		_ = s.host.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}

	if err := s.host.Rename(tmp, remotePath); err != nil {
		_ = s.host.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	return nil
}

func (s *syncer) write(file *deploy.File, remotePath string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := s.host.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", remotePath, err)
	}

	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("write %s: %w", remotePath, err)
	}

	if err = dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", remotePath, err)
	}

	return nil
}

// prune removes entries below dir that are neither Plan files nor ancestors of one.
func (s *syncer) prune(ctx context.Context, dir string, keepDirs map[string]struct{}) error {
	entries, err := s.host.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return err
		}

		full := path.Join(dir, entry.Name())

		rel, ok := s.plan.Relative(full)
		if !ok {
			continue
		}

		if entry.IsDir() {
			if _, keep := keepDirs[rel]; keep {
				if err = s.prune(ctx, full, keepDirs); err != nil {
					return err
				}

				continue
			}

			if err = s.removeEntry(ctx, full, rel+"/", true); err != nil {
				return err
			}

			continue
		}

		if _, keep := s.plan.Files.Lookup(rel); keep {
			continue
		}

		if err = s.removeEntry(ctx, full, rel, false); err != nil {
			return err
		}
	}

	return nil
}

func (s *syncer) removeEntry(ctx context.Context, remotePath, rel string, isDir bool) error {
	s.summary.Removed = append(s.summary.Removed, rel)

	if s.dryRun {
		logger.InfoKV(ctx, "Would remove stale entry", "path", rel)
		return nil
	}

	logger.InfoKV(ctx, "Removing stale entry", "path", rel)

	if !isDir {
		return s.host.Remove(remotePath)
	}

	return s.removeTree(remotePath)
}

func (s *syncer) removeTree(dir string) error {
	entries, err := s.host.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	for _, entry := range entries {
		full := path.Join(dir, entry.Name())

		if entry.IsDir() {
			err = s.removeTree(full)
		} else {
			err = s.host.Remove(full)
		}

		if err != nil {
			return fmt.Errorf("remove %s: %w", full, err)
		}
	}

	return s.host.RemoveDirectory(dir)
}
