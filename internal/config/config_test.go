package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/detconsole/internal/config"
)

// isolate points the detconsole home at a temp dir and clears the
// environment variables the loader reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	for _, name := range []string{
		config.EnvMaster, config.EnvProxyURL, config.EnvUser, config.EnvTestUser,
		config.EnvDev, config.EnvLogLevel, config.EnvLogFormat, config.EnvProjectDir,
		config.EnvCertFile, config.EnvTimeoutSecs,
		"DETCONSOLE_STORAGE_TTL_SECONDS", "DETCONSOLE_STORAGE_ENABLED", "DETCONSOLE_STORAGE_DIR",
	} {
		t.Setenv(name, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMasterURL, cfg.Master.URL)
	assert.Equal(t, filepath.Join(home, "config.yaml"), cfg.ConfigPath())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Storage.Enabled)
	assert.False(t, cfg.Dev)
	require.NoError(t, cfg.Validate())

	dir, err := cfg.StorageDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "storage"), dir)
}

func TestLoadFileAndEnv(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, "config.yaml"), `
master:
  url: https://det.example.com
  timeout_seconds: 5
logging:
  level: warn
console:
  refresh_seconds: 3
  login_path: /det/login
  logout_path: /det/logout
`)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://det.example.com", cfg.Master.URL)
	assert.Equal(t, 5, int(cfg.RequestTimeout().Seconds()))
	assert.Equal(t, "/det/login", cfg.Console.LoginPath)
	assert.Equal(t, config.DefaultIterations, cfg.Probe.Iterations, "absent sections keep defaults")

	t.Run("proxy url is a fallback", func(t *testing.T) {
		t.Setenv(config.EnvProxyURL, "http://proxy:8080")
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "http://proxy:8080", cfg.Master.URL)

		t.Setenv(config.EnvMaster, "http://master:8080")
		cfg, err = config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "http://master:8080", cfg.Master.URL)
	})

	t.Run("user", func(t *testing.T) {
		t.Setenv(config.EnvTestUser, "pw-user")
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "pw-user", cfg.Master.User)

		t.Setenv(config.EnvUser, "det-user")
		cfg, err = config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "det-user", cfg.Master.User)
	})

	t.Run("dev mode", func(t *testing.T) {
		t.Setenv(config.EnvDev, "true")
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.True(t, cfg.Dev)
		assert.Equal(t, "debug", cfg.Logging.Level)

		t.Setenv(config.EnvLogLevel, "error")
		cfg, err = config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Logging.Level, "explicit level wins over IS_DEV")
	})

	t.Run("LoadFile ignores the environment", func(t *testing.T) {
		t.Setenv(config.EnvMaster, "http://master:8080")
		cfg, err := config.LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, "https://det.example.com", cfg.Master.URL)
	})
}

func TestLoadInvalidYAML(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, "config.yaml"), "master: [unclosed")

	_, err := config.Load("")
	require.Error(t, err)

	cfg := config.New()
	assert.Equal(t, config.DefaultMasterURL, cfg.Master.URL, "New falls back to defaults")
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)

	cfg := config.Default()
	cfg.SetConfigPath(filepath.Join(t.TempDir(), "nested", "config.yaml"))
	cfg.Master.URL = "https://saved"
	require.NoError(t, cfg.Save())

	loaded, err := config.Load(cfg.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "https://saved", loaded.Master.URL)
}

func TestGetSetList(t *testing.T) {
	isolate(t)
	cfg := config.Default()

	v, err := cfg.Get("master.url")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMasterURL, v)

	_, err = cfg.Get("master.nope")
	require.ErrorIs(t, err, config.ErrUnknownKey)

	require.NoError(t, cfg.Set("probe.iterations", "25"))
	assert.Equal(t, 25, cfg.Probe.Iterations)

	require.NoError(t, cfg.Set("master.min_version", "0.26.0"))
	assert.Equal(t, "0.26.0", cfg.Master.MinVersion)

	require.ErrorIs(t, cfg.Set("bogus.key", "1"), config.ErrUnknownKey)
	require.Error(t, cfg.Set("probe.iterations", "many"), "type mismatch is rejected")
	assert.Equal(t, 25, cfg.Probe.Iterations)

	pairs, err := cfg.List()
	require.NoError(t, err)
	assert.Contains(t, pairs, "probe.iterations=25")
	assert.Contains(t, pairs, "master.url="+config.DefaultMasterURL)
	assert.IsIncreasing(t, pairs)

	assert.Contains(t, config.Keys(), "logging.file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"no url", func(c *config.Config) { c.Master.URL = "" }, "master.url"},
		{"bad min version", func(c *config.Config) { c.Master.MinVersion = "latest" }, "master.min_version"},
		{"bad ttl", func(c *config.Config) { c.Storage.TTLSeconds = 1 }, "storage.ttl_seconds"},
		{"bad probe", func(c *config.Config) { c.Probe.Concurrency = 0 }, "probe.iterations"},
		{"bad path", func(c *config.Config) { c.Console.LoginPath = "login" }, "console.login_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestShallowMergeYAML(t *testing.T) {
	isolate(t)
	target := config.Default()
	target.Master.User = "admin"

	overlay := filepath.Join(t.TempDir(), "overlay.yaml")
	writeFile(t, overlay, `
master:
  url: https://project-master
unknown_section:
  x: 1
`)
	require.NoError(t, config.ShallowMergeYAML(target, overlay))
	assert.Equal(t, "https://project-master", target.Master.URL)
	assert.Empty(t, target.Master.User, "sections are replaced whole")
	assert.Equal(t, "info", target.Logging.Level)

	require.Error(t, config.ShallowMergeYAML(nil, overlay))
	require.Error(t, config.ShallowMergeYAML(target, filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestProjectDir(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".detconsole", "config.yaml"), "probe:\n  iterations: 3\n  concurrency: 1\n  p95_threshold_ms: 50\n")
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o700))

	ctx := context.Background()
	dir := config.ResolveProjectDir(ctx, "", sub)
	assert.Equal(t, filepath.Join(root, ".detconsole"), dir)

	cfg := config.NewWithProjectDir(ctx, dir)
	assert.Equal(t, 3, cfg.Probe.Iterations)

	flagDir := t.TempDir()
	assert.Equal(t, filepath.Join(flagDir, ".detconsole"), config.ResolveProjectDir(ctx, flagDir, sub))

	t.Setenv(config.EnvProjectDir, flagDir)
	assert.Equal(t, filepath.Join(flagDir, ".detconsole"), config.ResolveProjectDir(ctx, "", sub))

	t.Run("no project", func(t *testing.T) {
		t.Setenv(config.EnvProjectDir, "")
		assert.Empty(t, config.ResolveProjectDir(ctx, "", t.TempDir()))
	})
}

func TestEnsureGitignore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".detconsole")

	created, err := config.EnsureGitignore(dir)
	require.NoError(t, err)
	assert.True(t, created)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, config.GitignoreContent(), string(data))

	created, err = config.EnsureGitignore(dir)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestGlobalConfig(t *testing.T) {
	isolate(t)
	config.ResetGlobalConfigForTest()
	t.Cleanup(config.ResetGlobalConfigForTest)

	cfg := config.GetGlobalConfig()
	require.NotNil(t, cfg)
	assert.Same(t, cfg, config.GetGlobalConfig())
	assert.Equal(t, config.DefaultMasterURL, config.GetMasterURL())

	custom := config.Default()
	custom.Logging.Level = "warn"
	custom.Logging.File = filepath.Join(t.TempDir(), "logs", "detconsole.log")
	config.SetGlobalConfig(custom)
	assert.Equal(t, "warn", config.GetLogLevel())
	assert.Equal(t, custom.Logging.File, config.GetLogFile())
	require.NoError(t, config.EnsureLogDir())
	assert.DirExists(t, filepath.Dir(custom.Logging.File))

	lc := config.GetLoggingConfig()
	assert.Equal(t, "file", lc.ToLoggingConfig().Output)
}
