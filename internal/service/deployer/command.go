package deployer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rss-r/deploy/internal/config"
	"github.com/rss-r/deploy/internal/domain/deploy"
	"github.com/rss-r/deploy/internal/logger"
	"github.com/rss-r/deploy/internal/remote"
	"github.com/rss-r/deploy/internal/repository/artifact"
)

var errRemoteRootNotDirectory = errors.New("remote path is not a directory")

// Options are inputs accepted by the deployer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Target selects the test or the production directory.
	Target deploy.Target
	// DryRun reports what would change without touching the host.
	DryRun bool
	// Passphrase decrypts an encrypted private key.
	Passphrase string
	// Dial connects to the host. Defaults to an SSH/SFTP connection.
	Dial DialFunc
	// Prompt asks for a missing key passphrase. Defaults to a terminal prompt.
	Prompt func(keyPath string) (string, error)
}

// runner holds the state of a single deployment.
type runner struct {
	opts *Options
	cfg  *config.Config
	plan *deploy.Plan
	host Host
}

// Run executes the deployment lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "rss-r-deploy")

	if opts == nil {
		opts = new(Options)
	}

	r := &runner{opts: opts}

	if err := r.run(ctx); err != nil {
		if !errors.Is(err, config.ErrDefaultCreated) {
			logger.ErrorKV(ctx, "Deployment failed", "error", err)
		}

		return err
	}

	return nil
}

func (r *runner) run(ctx context.Context) error {
	if err := r.loadConfig(ctx); err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "target", r.opts.Target.String())

	actor, err := deploy.DetectActor()
	if err != nil {
		logger.DebugKV(ctx, "Could not detect local user", "error", err)
	}

	ctx = logger.WithKV(ctx, "actor", actor.String())

	warnIfAlreadyRunning(ctx)

	if err = r.resolvePlan(ctx); err != nil {
		return err
	}

	if err = r.connect(ctx); err != nil {
		return err
	}

	defer func() {
		if closeErr := r.host.Close(); closeErr != nil {
			logger.DebugKV(ctx, "Closing connection failed", "error", closeErr)
		}
	}()

	if err = r.ensureRoot(); err != nil {
		return err
	}

	summary, err := newSyncer(r.host, r.plan, r.opts.DryRun).run(ctx)
	if err != nil {
		return fmt.Errorf("synchronise %s: %w", r.plan.Root, err)
	}

	if r.plan.Target == deploy.TargetProduction {
		if err = r.finishProduction(ctx, summary); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Deployment completed",
		"directory", r.plan.Root,
		"uploaded", len(summary.Uploaded),
		"removed", len(summary.Removed),
		"unchanged", summary.Unchanged,
		"dry_run", r.opts.DryRun)

	return nil
}

// loadConfig reads the settings, creating a default file when none exists.
// Loaded settings are saved back so newly introduced keys appear in the file.
func (r *runner) loadConfig(ctx context.Context) error {
	configPath := r.opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}

	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		if err = config.WriteDefault(configPath); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Created a default settings file, fill it in and run again", "path", configPath)

		return config.ErrDefaultCreated
	}

	if err != nil {
		return fmt.Errorf("load settings %s: %w", configPath, err)
	}

	if err = config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("save settings %s: %w", configPath, err)
	}

	r.cfg = cfg

	return nil
}

// resolvePlan reads and checksums every local file before anything remote happens.
func (r *runner) resolvePlan(ctx context.Context) error {
	root, err := r.cfg.TargetDirectory(r.opts.Target)
	if err != nil {
		return err
	}

	output, err := artifact.Load(r.cfg.BuildOutput)
	if err != nil {
		return err
	}

	var testConfig *deploy.File

	if r.opts.Target == deploy.TargetTest && r.cfg.TestConfigFile != "" {
		testConfig, err = artifact.LoadFile(r.cfg.TestConfigFile, r.cfg.ConfigFileName)
		if err != nil {
			return err
		}
	}

	plan, err := deploy.Select(r.opts.Target, root, output, r.cfg.Layout(), testConfig)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Resolved deployment plan", "directory", plan.Root, "files", plan.Files.Len())

	r.plan = plan

	return nil
}

func (r *runner) connect(ctx context.Context) error {
	dial := r.opts.Dial
	if dial == nil {
		dial = dialRemote
	}

	prompt := r.opts.Prompt
	if prompt == nil {
		prompt = promptPassphrase
	}

	logger.InfoKV(ctx, "Connecting", "address", r.cfg.Address(), "user", r.cfg.Username)

	host, err := dial(ctx, remote.Options{
		Address:               r.cfg.Address(),
		User:                  r.cfg.Username,
		PrivateKeyFile:        r.cfg.PrivateKeyFile,
		Passphrase:            r.opts.Passphrase,
		PromptPassphrase:      prompt,
		KnownHostsFile:        r.cfg.KnownHostsFile,
		InsecureIgnoreHostKey: r.cfg.InsecureIgnoreHostKey,
		Timeout:               r.cfg.Timeout,
	})
	if err != nil {
		return err
	}

	r.host = host

	return nil
}

func (r *runner) ensureRoot() error {
	info, err := r.host.Stat(r.plan.Root)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.plan.Root, deploy.ErrPathNotFound, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w: %w", r.plan.Root, deploy.ErrPathNotFound, errRemoteRootNotDirectory)
	}

	return nil
}

// finishProduction hands the files to the service user and restarts the service.
func (r *runner) finishProduction(ctx context.Context, summary *Summary) error {
	if r.opts.DryRun {
		return nil
	}

	if user := r.cfg.ProductionUser; user != "" {
		layout := r.cfg.Layout()
		command := fmt.Sprintf("chown -R %s %s %s",
			remote.ShellQuote(user+":"+user),
			remote.ShellQuote(r.plan.RemotePath(layout.Executable)),
			remote.ShellQuote(r.plan.RemotePath(layout.StaticDir)))

		if err := r.runCommand(ctx, command); err != nil {
			return err
		}
	}

	if r.cfg.ProductionRestartCommand == "" {
		return nil
	}

	if !summary.Changed() {
		logger.Info(ctx, "Nothing changed, skipping restart")
		return nil
	}

	return r.runCommand(ctx, r.cfg.ProductionRestartCommand)
}

func (r *runner) runCommand(ctx context.Context, command string) error {
	logger.InfoKV(ctx, "Running remote command", "command", command)

	output, err := r.host.Run(ctx, command)
	if err != nil {
		return fmt.Errorf("remote command failed: %w", err)
	}

	if len(output) > 0 {
		logger.DebugKV(ctx, "Remote command output", "command", command, "output", string(output))
	}

	return nil
}
