// Package config provides configuration management for scout.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/scout/internal/fileutil"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `json:"version" yaml:"version"`
	Home      string          `json:"home" yaml:"home"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Device    DeviceConfig    `json:"device" yaml:"device"`
	Backend   BackendConfig   `json:"backend" yaml:"backend"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// DiscoveryConfig defines account discovery settings.
type DiscoveryConfig struct {
	// BatchSize is the number of account indices probed per round.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxFailedRounds is how many consecutive rounds may fail entirely
	// before a network scan is aborted.
	MaxFailedRounds int `json:"max_failed_rounds" yaml:"max_failed_rounds"`

	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`

	// Testnets enables scanning of test networks.
	Testnets bool `json:"testnets" yaml:"testnets"`

	// Networks restricts discovery to these symbols. Empty means all.
	Networks []string `json:"networks,omitempty" yaml:"networks,omitempty"`
}

// DeviceConfig defines the software device settings.
type DeviceConfig struct {
	// MnemonicFile holds the recovery phrase, optionally age-encrypted.
	// Empty means mnemonic.age under the home directory.
	MnemonicFile string `json:"mnemonic_file" yaml:"mnemonic_file"`

	// Encrypted marks MnemonicFile as age (scrypt) encrypted.
	Encrypted bool `json:"encrypted" yaml:"encrypted"`

	// Derivations lists optional derivations the device declares support for
	// (e.g. "legacy", "ledger").
	Derivations []string `json:"derivations,omitempty" yaml:"derivations,omitempty"`

	// SessionTTL is how long 'device unlock' keeps the phrase cached.
	SessionTTL time.Duration `json:"session_ttl" yaml:"session_ttl"`
}

// BackendConfig defines account-info backend settings.
type BackendConfig struct {
	// URLs maps a network symbol to a Blockbook base URL.
	URLs map[string]string `json:"urls" yaml:"urls"`

	RatePerSecond float64       `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int           `json:"burst" yaml:"burst"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// StorageConfig defines where discovered accounts are persisted.
// An empty AccountsFile means accounts.json under the home directory.
type StorageConfig struct {
	AccountsFile string `json:"accounts_file" yaml:"accounts_file"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Verbose       bool   `json:"verbose" yaml:"verbose"`
}

// LoggingConfig defines logging settings.
// An empty File means scout.log under the home directory.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, scouterr.WithCause(scouterr.ErrConfigNotFound, err)
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, scouterr.WithCause(scouterr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteFile(path, data, 0o600, 0o750)
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	switch {
	case c.Discovery.BatchSize <= 0:
		return invalid("discovery.batch_size", fmt.Sprintf("%d", c.Discovery.BatchSize))
	case c.Discovery.MaxFailedRounds <= 0:
		return invalid("discovery.max_failed_rounds", fmt.Sprintf("%d", c.Discovery.MaxFailedRounds))
	case c.Discovery.RetryBaseDelay < 0 || c.Discovery.RetryMaxDelay < c.Discovery.RetryBaseDelay:
		return invalid("discovery.retry_max_delay", c.Discovery.RetryMaxDelay.String())
	case c.Device.SessionTTL < 0:
		return invalid("device.session_ttl", c.Device.SessionTTL.String())
	case c.Backend.RatePerSecond <= 0:
		return invalid("backend.rate_per_second", fmt.Sprintf("%g", c.Backend.RatePerSecond))
	case c.Backend.Burst <= 0:
		return invalid("backend.burst", fmt.Sprintf("%d", c.Backend.Burst))
	}
	for _, d := range c.Device.Derivations {
		if d != "legacy" && d != "ledger" {
			return invalid("device.derivations", d)
		}
	}
	return nil
}

func invalid(key, value string) error {
	return scouterr.WithDetails(scouterr.ErrConfigInvalid, map[string]string{"key": key, "value": value})
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// AccountsPath returns the resolved accounts store path.
func (c *Config) AccountsPath() string {
	return c.resolve(c.Storage.AccountsFile, "accounts.json")
}

// MnemonicPath returns the resolved recovery phrase path.
func (c *Config) MnemonicPath() string {
	return c.resolve(c.Device.MnemonicFile, "mnemonic.age")
}

// SessionsPath returns the directory holding unlock session files.
func (c *Config) SessionsPath() string {
	return c.resolve("", "sessions")
}

// LogPath returns the resolved log file path.
func (c *Config) LogPath() string {
	return c.resolve(c.Logging.File, "scout.log")
}

// resolve expands path, or places name under the home directory when path
// is empty.
func (c *Config) resolve(path, name string) string {
	if path != "" {
		if p, err := ExpandHome(path); err == nil {
			return p
		}
	}
	home, err := ExpandHome(c.Home)
	if err != nil {
		home = c.Home
	}
	return filepath.Join(home, name)
}

// BackendURL returns the backend URL for a network symbol.
func (c *Config) BackendURL(symbol string) string {
	return c.Backend.URLs[symbol]
}

// DefaultHome returns the default scout home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scout"
	}
	return filepath.Join(home, ".scout")
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}
