package integration

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rss-r/deploy/internal/config"
	"github.com/rss-r/deploy/internal/domain/deploy"
	"github.com/rss-r/deploy/internal/remote/remotetest"
	"github.com/rss-r/deploy/internal/service/deployer"
)

const restartCommand = "sudo systemctl restart rss_r"

// environment is a running SSH server, a build output and a settings file.
type environment struct {
	server     *remotetest.Server
	dir        string
	build      string
	testDir    string
	prodDir    string
	configPath string
	keyPath    string
}

func writeFile(t *testing.T, root, rel, body string, mode os.FileMode) {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), mode))
	require.NoError(t, os.Chmod(p, mode))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

// newEnvironment starts a server trusting a fresh key encrypted with passphrase.
func newEnvironment(t *testing.T, passphrase string, tweak func(cfg *config.Config)) *environment {
	t.Helper()

	// Keep a developer's agent out of the authentication path.
	t.Setenv("SSH_AUTH_SOCK", "")

	dir := t.TempDir()
	keyPath, authorized := remotetest.WriteKey(t, dir, passphrase)

	env := &environment{
		server:     remotetest.NewServer(t, authorized),
		dir:        dir,
		build:      filepath.Join(dir, "build"),
		testDir:    filepath.Join(dir, "remote", "rss_r_test"),
		prodDir:    filepath.Join(dir, "remote", "rss_r"),
		configPath: filepath.Join(dir, config.DefaultConfigFilename),
		keyPath:    keyPath,
	}

	writeFile(t, env.build, "rss_r", "0123456789", 0o755)
	writeFile(t, env.build, "static/app.js", "console.log(1)", 0o644)
	writeFile(t, env.build, "static/index.html", "<html></html>", 0o644)
	require.NoError(t, os.MkdirAll(env.testDir, 0o755))
	require.NoError(t, os.MkdirAll(env.prodDir, 0o755))

	host, port := splitAddr(t, env.server.Addr)

	cfg := &config.Config{
		TargetHost:          host,
		TargetPort:          port,
		Username:            "pi",
		PrivateKeyFile:      keyPath,
		KnownHostsFile:      env.server.WriteKnownHosts(t, dir),
		Timeout:             5 * time.Second,
		BuildOutput:         env.build,
		TestDirectory:       env.testDir,
		ProductionDirectory: env.prodDir,
	}

	if tweak != nil {
		tweak(cfg)
	}

	require.NoError(t, config.Save(env.configPath, cfg))

	return env
}

func (e *environment) run(t *testing.T, target deploy.Target, passphrase string) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return deployer.Run(ctx, &deployer.Options{
		ConfigPath: e.configPath,
		Target:     target,
		Passphrase: passphrase,
		Prompt: func(string) (string, error) {
			t.Fatalf("unexpected passphrase prompt")
			return "", nil
		},
	})
}

// TestDeploy_ProductionOverSSH deploys executable and static files and keeps the remote configuration.
func TestDeploy_ProductionOverSSH(t *testing.T) {
	env := newEnvironment(t, "correct horse", func(cfg *config.Config) {
		cfg.ProductionUser = "rss"
		cfg.ProductionRestartCommand = restartCommand
	})

	writeFile(t, env.prodDir, "config.toml", "port = 8080\n", 0o600)
	writeFile(t, env.prodDir, "rss_r", "old build", 0o755)
	writeFile(t, env.prodDir, "static/stale.js", "stale", 0o644)

	require.NoError(t, env.run(t, deploy.TargetProduction, "correct horse"))

	require.Equal(t, "0123456789", readFile(t, env.prodDir, "rss_r"))
	require.Equal(t, "console.log(1)", readFile(t, env.prodDir, "static/app.js"))
	require.Equal(t, "<html></html>", readFile(t, env.prodDir, "static/index.html"))
	require.Equal(t, "port = 8080\n", readFile(t, env.prodDir, "config.toml"))
	require.NoFileExists(t, filepath.Join(env.prodDir, "static", "stale.js"))

	info, err := os.Stat(filepath.Join(env.prodDir, "rss_r"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(deploy.ExecutableMode), info.Mode().Perm())

	commands := env.server.Commands()
	require.Len(t, commands, 2)
	require.Contains(t, commands[0], "chown -R rss:rss")
	require.Equal(t, restartCommand, commands[1])

	// A second identical run changes nothing, so the service is not restarted.
	before, err := os.Stat(filepath.Join(env.prodDir, "rss_r"))
	require.NoError(t, err)

	require.NoError(t, env.run(t, deploy.TargetProduction, "correct horse"))

	after, err := os.Stat(filepath.Join(env.prodDir, "rss_r"))
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
	require.True(t, os.SameFile(before, after), "executable must not be replaced again")

	commands = env.server.Commands()
	require.Len(t, commands, 3)
	require.Contains(t, commands[2], "chown -R rss:rss")
}

// TestDeploy_TestFromArchive mirrors a zipped build output into the test directory.
func TestDeploy_TestFromArchive(t *testing.T) {
	testConfig := filepath.Join(t.TempDir(), "test_config.ron")
	require.NoError(t, os.WriteFile(testConfig, []byte("(port: 9090)"), 0o600))

	env := newEnvironment(t, "", func(cfg *config.Config) {
		cfg.TestConfigFile = testConfig
	})

	archive := filepath.Join(env.dir, "rss_r.zip")
	writeArchive(t, archive, map[string]string{
		"rss_r":         "0123456789",
		"static/app.js": "console.log(2)",
	})

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)

	cfg.BuildOutput = archive
	require.NoError(t, config.Save(env.configPath, cfg))

	writeFile(t, env.testDir, "old/leftover.txt", "x", 0o644)

	require.NoError(t, env.run(t, deploy.TargetTest, ""))

	require.Equal(t, "0123456789", readFile(t, env.testDir, "rss_r"))
	require.Equal(t, "console.log(2)", readFile(t, env.testDir, "static/app.js"))
	require.Equal(t, "(port: 9090)", readFile(t, env.testDir, config.DefaultConfigFileName))
	require.NoDirExists(t, filepath.Join(env.testDir, "old"))
	require.Empty(t, env.server.Commands())
}

// TestDeploy_Failures maps connection problems onto the error taxonomy without touching the host.
func TestDeploy_Failures(t *testing.T) {
	t.Run("wrong key", func(t *testing.T) {
		env := newEnvironment(t, "", nil)

		otherKey, _ := remotetest.WriteKey(t, t.TempDir(), "")

		cfg, err := config.Load(env.configPath)
		require.NoError(t, err)

		cfg.PrivateKeyFile = otherKey
		require.NoError(t, config.Save(env.configPath, cfg))

		err = env.run(t, deploy.TargetProduction, "")
		require.ErrorIs(t, err, deploy.ErrAuth)
		require.NoFileExists(t, filepath.Join(env.prodDir, "rss_r"))
	})

	t.Run("server gone", func(t *testing.T) {
		env := newEnvironment(t, "", nil)
		env.server.Close()

		err := env.run(t, deploy.TargetProduction, "")
		require.ErrorIs(t, err, deploy.ErrConnection)
	})

	t.Run("missing remote directory", func(t *testing.T) {
		env := newEnvironment(t, "", nil)
		require.NoError(t, os.RemoveAll(env.prodDir))

		err := env.run(t, deploy.TargetProduction, "")
		require.ErrorIs(t, err, deploy.ErrPathNotFound)
		require.NoDirExists(t, env.prodDir)
	})

	t.Run("missing executable", func(t *testing.T) {
		env := newEnvironment(t, "", nil)
		require.NoError(t, os.Remove(filepath.Join(env.build, "rss_r")))

		err := env.run(t, deploy.TargetTest, "")
		require.ErrorIs(t, err, deploy.ErrLocalArtifactMissing)
		require.Empty(t, env.server.Commands())

		entries, err := os.ReadDir(env.testDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)

	for name, body := range files {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}

		mode := os.FileMode(0o644)
		if name == "rss_r" {
			mode = 0o755
		}

		header.SetMode(mode)

		w, err := zw.CreateHeader(header)
		require.NoError(t, err)

		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
