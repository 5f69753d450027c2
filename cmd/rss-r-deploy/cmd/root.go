package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rss-r/deploy/internal/config"
	"github.com/rss-r/deploy/internal/domain/deploy"
	"github.com/rss-r/deploy/internal/logger"
	"github.com/rss-r/deploy/internal/service/deployer"
	"github.com/rss-r/deploy/internal/version"
)

// envPrefix prefixes every environment override, e.g. RSS_R_DEPLOY_PRODUCTION.
const envPrefix = "RSS_R_DEPLOY"

const (
	keyConfig     = "config"
	keyProduction = "production"
	keyDryRun     = "dry-run"
	keyLogLevel   = "log-level"
	keyPassphrase = "passphrase"
)

var (
	// settings merges flags with RSS_R_DEPLOY_* environment variables.
	settings = viper.New()

	// rootCmd represents the base command for deploying rss_r.
	rootCmd = &cobra.Command{
		Use:   "rss-r-deploy",
		Short: "Deploy the rss_r build output to a Raspberry Pi over SSH.",
		Long: `Copies the rss_r executable and its static assets to the target host.

Without --production the whole build output replaces the contents of the test
directory. With --production only the executable and the static directory are
replaced in the production directory; the configuration there is left as is.

A default settings file is written when none exists.
The private key passphrase may be supplied through RSS_R_DEPLOY_PASSPHRASE.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(settings.GetString(keyLogLevel))
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return deployer.Run(ctx, optionsFrom(settings))
		},
	}
)

// Execute runs the rss-r-deploy CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	registerFlags(rootCmd)

	cobra.OnInitialize(func() {
		if err := bindEnvironment(settings, rootCmd); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	})
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP(keyConfig, "c", config.DefaultConfigFilename, "path to configuration file")
	flags.BoolP(keyProduction, "p", false, "deploy to the production directory instead of the test directory")
	flags.Bool(keyDryRun, false, "report what would change without modifying the target")
	flags.String(keyLogLevel, "info", "log level: debug, info, warn or error")
}

// bindEnvironment lets RSS_R_DEPLOY_* variables override flag defaults.
// Flags given on the command line still win.
func bindEnvironment(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, key := range []string{keyConfig, keyProduction, keyDryRun, keyLogLevel} {
		if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(key)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	// The passphrase is never accepted as a flag so it stays out of shell history.
	if err := v.BindEnv(keyPassphrase); err != nil {
		return fmt.Errorf("bind %s: %w", keyPassphrase, err)
	}

	return nil
}

func optionsFrom(v *viper.Viper) *deployer.Options {
	return &deployer.Options{
		ConfigPath: v.GetString(keyConfig),
		Target:     deploy.TargetFromFlag(v.GetBool(keyProduction)),
		DryRun:     v.GetBool(keyDryRun),
		Passphrase: v.GetString(keyPassphrase),
	}
}

func applyLogLevel(name string) error {
	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}

	logger.SetLevel(level)

	return nil
}
