package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rss-r/deploy/internal/domain/deploy"
)

// Config holds everything needed to reach the Raspberry Pi and lay out a deployment.
type Config struct {
	// TargetHost is the host the rss_r program is deployed to, either hostname or IP.
	TargetHost string `yaml:"target_host"`
	// TargetPort is the SSH port of TargetHost.
	TargetPort int `yaml:"target_port"`
	// Username to log in as on the target.
	Username string `yaml:"username"`
	// PrivateKeyFile is the SSH private key used to log in. It may be encrypted.
	PrivateKeyFile string `yaml:"private_key_file"`
	// KnownHostsFile is consulted to verify the host key.
	KnownHostsFile string `yaml:"known_hosts_file"`
	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool `yaml:"insecure_ignore_host_key"`
	// Timeout bounds the TCP connect and SSH handshake.
	Timeout time.Duration `yaml:"timeout"`

	// BuildOutput is the local directory or zip file holding the built
	// executable and its static directory.
	BuildOutput string `yaml:"build_output"`
	// ExecutableName is the executable's path inside BuildOutput.
	ExecutableName string `yaml:"executable_name"`
	// StaticDirectory is the static asset directory inside BuildOutput.
	StaticDirectory string `yaml:"static_directory"`

	// TestDirectory is where test deployments go. Its contents are replaced
	// by the build output on every test deployment.
	TestDirectory string `yaml:"test_directory"`
	// TestConfigFile is a local file that becomes ConfigFileName in the test directory.
	TestConfigFile string `yaml:"test_config_file"`
	// ConfigFileName is the name the application reads its configuration from.
	ConfigFileName string `yaml:"config_file_name"`

	// ProductionDirectory holds the production executable and static folder.
	ProductionDirectory string `yaml:"production_directory"`
	// ProductionUser owns uploaded production files, as in `chown name:name file`.
	ProductionUser string `yaml:"production_user"`
	// ProductionRestartCommand is run on the target after production files changed.
	ProductionRestartCommand string `yaml:"production_restart_command"`
}

const (
	// DefaultConfigFilename is the settings file looked up in the working directory.
	DefaultConfigFilename = "deploy_config.yaml"

	// DefaultPort is the standard SSH port.
	DefaultPort = 22

	// DefaultTimeout bounds connection setup.
	DefaultTimeout = 15 * time.Second

	// DefaultExecutableName is the name of the deployed program.
	DefaultExecutableName = "rss_r"

	// DefaultStaticDirectory holds the web front-end resources.
	DefaultStaticDirectory = "static"

	// DefaultConfigFileName is the application's configuration file.
	DefaultConfigFileName = "app_config.ron"

	// DefaultFilePermissions is the file permission for settings files.
	DefaultFilePermissions = 0o600
)

var (
	// ErrDefaultCreated is returned after a default settings file was written
	// because none existed. Nothing has been deployed.
	ErrDefaultCreated = errors.New("default settings file created")

	errConfigIsNotSet      = errors.New("configuration is not set")
	errTargetHostRequired  = errors.New("target host must be provided")
	errUsernameRequired    = errors.New("username must be provided")
	errBuildOutputRequired = errors.New("build output must be provided")
	errDirectoryRequired   = errors.New("target directory must be provided")
	errDirectoryNotAbs     = errors.New("target directory must be an absolute path")
	errInvalidPort         = errors.New("target port must be between 1 and 65535")
)

// Default returns settings with every optional value populated.
func Default() *Config {
	cfg := new(Config)
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file yields an error matching os.ErrNotExist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save validates cfg and writes it to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	return write(path, cfg)
}

// WriteDefault writes Default to path without validation, for the operator to fill in.
func WriteDefault(path string) error {
	return write(path, Default())
}

// Validate checks required fields and fills in defaults for optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if cfg.TargetHost == "" {
		return errTargetHostRequired
	}

	if cfg.Username == "" {
		return errUsernameRequired
	}

	if cfg.TargetPort <= 0 || cfg.TargetPort > 65535 {
		return fmt.Errorf("%d: %w", cfg.TargetPort, errInvalidPort)
	}

	if _, _, err := net.SplitHostPort(cfg.Address()); err != nil {
		return fmt.Errorf("invalid target address: %w", err)
	}

	if cfg.PrivateKeyFile != "" {
		if _, err := os.Stat(cfg.PrivateKeyFile); err != nil {
			return fmt.Errorf("private key file %s: %w", cfg.PrivateKeyFile, err)
		}
	}

	if cfg.BuildOutput == "" {
		return errBuildOutputRequired
	}

	return nil
}

// Address returns host:port for dialing.
func (c *Config) Address() string {
	return net.JoinHostPort(c.TargetHost, strconv.Itoa(c.TargetPort))
}

// TargetDirectory returns the remote directory for target, ensuring it is set and absolute.
func (c *Config) TargetDirectory(target deploy.Target) (string, error) {
	var dir string

	switch target {
	case deploy.TargetProduction:
		dir = c.ProductionDirectory
	default:
		dir = c.TestDirectory
	}

	if dir == "" {
		return "", fmt.Errorf("%s: %w", target, errDirectoryRequired)
	}

	if !path.IsAbs(dir) {
		return "", fmt.Errorf("%s directory %q: %w", target, dir, errDirectoryNotAbs)
	}

	return path.Clean(dir), nil
}

// Layout returns the build output layout described by the settings.
func (c *Config) Layout() deploy.Layout {
	return deploy.Layout{
		Executable:     c.ExecutableName,
		StaticDir:      c.StaticDirectory,
		ConfigFileName: c.ConfigFileName,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.TargetPort == 0 {
		cfg.TargetPort = DefaultPort
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.KnownHostsFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.KnownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
		}
	}

	if cfg.ExecutableName == "" {
		cfg.ExecutableName = DefaultExecutableName
	}

	if cfg.StaticDirectory == "" {
		cfg.StaticDirectory = DefaultStaticDirectory
	}

	if cfg.ConfigFileName == "" {
		cfg.ConfigFileName = DefaultConfigFileName
	}
}

func write(path string, cfg *Config) error {
	if path == "" {
		path = DefaultConfigFilename
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}
