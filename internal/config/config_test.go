package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/scout/internal/config"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := config.Defaults()
	cfg.Discovery.BatchSize = 5
	cfg.Discovery.Networks = []string{"btc", "eth"}
	cfg.Discovery.RetryMaxDelay = 30 * time.Second
	cfg.Backend.URLs["btc"] = "http://localhost:9130"
	cfg.Device.Derivations = []string{"legacy"}

	require.NoError(t, config.Save(cfg, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, loaded.Discovery.BatchSize)
	assert.Equal(t, []string{"btc", "eth"}, loaded.Discovery.Networks)
	assert.Equal(t, 30*time.Second, loaded.Discovery.RetryMaxDelay)
	assert.Equal(t, "http://localhost:9130", loaded.BackendURL("btc"))
	assert.Equal(t, []string{"legacy"}, loaded.Device.Derivations)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discovery:\n  testnets: true\n  retry_base_delay: 250ms\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Discovery.Testnets)
	assert.Equal(t, 250*time.Millisecond, cfg.Discovery.RetryBaseDelay)
	assert.Equal(t, config.DefaultBatchSize, cfg.Discovery.BatchSize)
	assert.Equal(t, config.DefaultMaxFailedRounds, cfg.Discovery.MaxFailedRounds)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/.scout", cfg.Home)
	assert.Equal(t, 2, cfg.Discovery.BatchSize)
	assert.False(t, cfg.Discovery.Testnets)
	assert.True(t, cfg.Device.Encrypted)
	assert.Equal(t, "https://btc1.trezor.io", cfg.BackendURL("btc"))
	assert.Equal(t, "error", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestDefaults_BackendURLsAreCopied(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Backend.URLs["btc"] = "changed"
	assert.Equal(t, "https://btc1.trezor.io", config.Defaults().BackendURL("btc"))
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, scouterr.ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discovery: [unclosed"), 0o600))

	_, err := config.Load(path)
	require.ErrorIs(t, err, scouterr.ErrConfigInvalid)
}

func TestSave_CreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")

	require.NoError(t, config.Save(config.Defaults(), path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"zero batch", func(c *config.Config) { c.Discovery.BatchSize = 0 }, "discovery.batch_size"},
		{"zero failed rounds", func(c *config.Config) { c.Discovery.MaxFailedRounds = 0 }, "discovery.max_failed_rounds"},
		{"max below base", func(c *config.Config) { c.Discovery.RetryMaxDelay = time.Millisecond }, "discovery.retry_max_delay"},
		{"negative session ttl", func(c *config.Config) { c.Device.SessionTTL = -time.Second }, "device.session_ttl"},
		{"zero rate", func(c *config.Config) { c.Backend.RatePerSecond = 0 }, "backend.rate_per_second"},
		{"zero burst", func(c *config.Config) { c.Backend.Burst = 0 }, "backend.burst"},
		{"unknown derivation", func(c *config.Config) { c.Device.Derivations = []string{"icarus"} }, "device.derivations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, scouterr.ErrConfigInvalid)
			var se *scouterr.ScoutError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.key, se.Details["key"])
		})
	}
}

func TestAccountsPath(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Storage.AccountsFile = "/var/lib/scout/accounts.json"
	assert.Equal(t, "/var/lib/scout/accounts.json", cfg.AccountsPath())

	cfg.Storage.AccountsFile = ""
	cfg.Home = "/tmp/scout"
	assert.Equal(t, filepath.Join("/tmp/scout", "accounts.json"), cfg.AccountsPath())
}

func TestHomeRelativePaths(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Home = "/tmp/scout"
	assert.Equal(t, filepath.Join("/tmp/scout", "mnemonic.age"), cfg.MnemonicPath())
	assert.Equal(t, filepath.Join("/tmp/scout", "scout.log"), cfg.LogPath())
	assert.Equal(t, filepath.Join("/tmp/scout", "sessions"), cfg.SessionsPath())

	cfg.Device.MnemonicFile = "/secure/phrase.age"
	assert.Equal(t, "/secure/phrase.age", cfg.MnemonicPath())
}

func TestConfigPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("/home/user/.scout", "config.yaml"), config.Path("/home/user/.scout"))
}

func TestExpandHome(t *testing.T) {
	t.Parallel()

	p, err := config.ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", p)

	p, err = config.ExpandHome("~/x.log")
	require.NoError(t, err)
	assert.NotContains(t, p, "~")
}

func TestApplyEnvironment(t *testing.T) {
	// Cannot run in parallel because we modify environment variables

	t.Run("home and log level", func(t *testing.T) {
		cfg := config.Defaults()
		t.Setenv(config.EnvHome, "/custom/home")
		t.Setenv(config.EnvLogLevel, "DEBUG")
		config.ApplyEnvironment(cfg)

		assert.Equal(t, "/custom/home", cfg.Home)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("testnets and batch size", func(t *testing.T) {
		cfg := config.Defaults()
		t.Setenv(config.EnvTestnets, "yes")
		t.Setenv(config.EnvBatchSize, "4")
		config.ApplyEnvironment(cfg)

		assert.True(t, cfg.Discovery.Testnets)
		assert.Equal(t, 4, cfg.Discovery.BatchSize)
	})

	t.Run("invalid batch size ignored", func(t *testing.T) {
		cfg := config.Defaults()
		t.Setenv(config.EnvBatchSize, "-1")
		config.ApplyEnvironment(cfg)

		assert.Equal(t, config.DefaultBatchSize, cfg.Discovery.BatchSize)
	})

	t.Run("network list", func(t *testing.T) {
		cfg := config.Defaults()
		t.Setenv(config.EnvNetworks, " BTC, ,eth ")
		config.ApplyEnvironment(cfg)

		assert.Equal(t, []string{"btc", "eth"}, cfg.Discovery.Networks)
	})

	t.Run("backend override", func(t *testing.T) {
		cfg := config.Defaults()
		t.Setenv(config.EnvBackendPrefix+"LTC", " http://localhost:9134/ ")
		config.ApplyEnvironment(cfg)

		assert.Equal(t, "http://localhost:9134", cfg.BackendURL("ltc"))
	})

	t.Run("verbose values", func(t *testing.T) {
		for _, v := range []string{"1", "true", "on", "YES"} {
			cfg := config.Defaults()
			t.Setenv(config.EnvVerbose, v)
			config.ApplyEnvironment(cfg)
			assert.True(t, cfg.Output.Verbose, "value %q", v)
		}
	})
}
