package deploy

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ExecutableMode is the permission set given to the deployed executable.
const ExecutableMode = 0o755

// Layout names the well-known entries of a build output.
type Layout struct {
	// Executable is the path of the program inside the build output.
	Executable string
	// StaticDir is the directory holding the static assets.
	StaticDir string
	// ConfigFileName is the remote name of the test configuration file.
	ConfigFileName string
}

// Plan is a fully resolved deployment.
type Plan struct {
	// Target is the kind of deployment.
	Target Target
	// Root is the absolute remote directory the files are placed under.
	Root string
	// Files lists what is synchronised.
	Files *FileSet
	// PruneDirs are directories relative to Root inside which remote entries
	// missing from Files are deleted. An empty string means Root itself.
	PruneDirs []string
}

var (
	errRootRequired     = errors.New("remote directory must be provided")
	errRootNotAbsolute  = errors.New("remote directory must be absolute")
	errUnknownTarget    = errors.New("unknown deployment target")
	errLayoutIncomplete = errors.New("executable and static directory names must be provided")
)

// Select builds the Plan for target from the local build output.
// testConfig is optional and only used by test deployments.
func Select(target Target, root string, output *FileSet, layout Layout, testConfig *File) (*Plan, error) {
	if root == "" {
		return nil, fmt.Errorf("%s: %w", target, errRootRequired)
	}

	if !path.IsAbs(root) {
		return nil, fmt.Errorf("%s directory %q: %w", target, root, errRootNotAbsolute)
	}

	layout.Executable = cleanRelative(layout.Executable)
	layout.StaticDir = cleanRelative(layout.StaticDir)

	if layout.Executable == "" || layout.StaticDir == "" {
		return nil, errLayoutIncomplete
	}

	executable, ok := output.Lookup(layout.Executable)
	if !ok {
		return nil, fmt.Errorf("executable %s: %w", layout.Executable, ErrLocalArtifactMissing)
	}

	executable = executable.WithMode(ExecutableMode)

	plan := &Plan{
		Target: target,
		Root:   path.Clean(root),
	}

	switch target {
	case TargetTest:
		files := NewFileSet(output.Files()...)
		files.Add(executable)

		if testConfig != nil && layout.ConfigFileName != "" {
			files.Add(testConfig.WithPath(cleanRelative(layout.ConfigFileName)))
		}

		plan.Files = files
		plan.PruneDirs = []string{""}
	case TargetProduction:
		static := output.Under(layout.StaticDir)
		if len(static) == 0 {
			return nil, fmt.Errorf("static directory %s: %w", layout.StaticDir, ErrLocalArtifactMissing)
		}

		plan.Files = NewFileSet(append([]*File{executable}, static...)...)
		plan.PruneDirs = []string{layout.StaticDir}
	default:
		return nil, fmt.Errorf("%d: %w", target, errUnknownTarget)
	}

	return plan, nil
}

// RemotePath returns the absolute remote path of relativePath.
func (p *Plan) RemotePath(relativePath string) string {
	if relativePath == "" {
		return p.Root
	}

	return path.Join(p.Root, relativePath)
}

// Relative maps an absolute remote path back below Root.
// The second result is false for paths outside Root.
func (p *Plan) Relative(remotePath string) (string, bool) {
	remotePath = path.Clean(remotePath)
	if remotePath == p.Root {
		return "", true
	}

	prefix := strings.TrimSuffix(p.Root, "/") + "/"
	if !strings.HasPrefix(remotePath, prefix) {
		return "", false
	}

	return strings.TrimPrefix(remotePath, prefix), true
}

func cleanRelative(p string) string {
	p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")

	return p
}
