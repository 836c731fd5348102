package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome         = "SCOUT_HOME"
	EnvOutputFormat = "SCOUT_OUTPUT_FORMAT"
	EnvVerbose      = "SCOUT_VERBOSE"
	EnvLogLevel     = "SCOUT_LOG_LEVEL"
	EnvTestnets     = "SCOUT_TESTNETS"
	EnvBatchSize    = "SCOUT_BATCH_SIZE"
	EnvNetworks     = "SCOUT_NETWORKS"
	EnvMnemonicFile = "SCOUT_MNEMONIC_FILE"

	// EnvBackendPrefix is followed by an upper-case symbol,
	// e.g. SCOUT_BACKEND_BTC=https://btc.example.com.
	EnvBackendPrefix = "SCOUT_BACKEND_"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvTestnets); v != "" {
		cfg.Discovery.Testnets = parseBool(v)
	}

	if v := os.Getenv(EnvBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Discovery.BatchSize = n
		}
	}

	if v := os.Getenv(EnvNetworks); v != "" {
		cfg.Discovery.Networks = splitList(v)
	}

	if v := os.Getenv(EnvMnemonicFile); v != "" {
		cfg.Device.MnemonicFile = v
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvBackendPrefix) || value == "" {
			continue
		}
		symbol := strings.ToLower(strings.TrimPrefix(key, EnvBackendPrefix))
		if cfg.Backend.URLs == nil {
			cfg.Backend.URLs = make(map[string]string)
		}
		cfg.Backend.URLs[symbol] = strings.TrimRight(strings.TrimSpace(value), "/")
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
