package config

import "time"

// Discovery defaults.
const (
	DefaultBatchSize       = 2
	DefaultMaxFailedRounds = 3
	DefaultRetryBaseDelay  = time.Second
	DefaultRetryMaxDelay   = 8 * time.Second

	// DefaultSessionTTL bounds how long an unlocked phrase stays cached.
	DefaultSessionTTL = 15 * time.Minute
)

// DefaultBackendURLs are public Blockbook instances per network symbol.
//
//nolint:gochecknoglobals // Configuration default, copied into Defaults()
var DefaultBackendURLs = map[string]string{
	"btc":  "https://btc1.trezor.io",
	"ltc":  "https://ltc1.trezor.io",
	"doge": "https://doge1.trezor.io",
	"eth":  "https://eth1.trezor.io",
	"etc":  "https://etc1.trezor.io",
	"test": "https://tbtc1.trezor.io",
	"tsep": "https://sepolia1.trezor.io",
}

// Defaults returns the default configuration.
func Defaults() *Config {
	urls := make(map[string]string, len(DefaultBackendURLs))
	for k, v := range DefaultBackendURLs {
		urls[k] = v
	}

	return &Config{
		Version: 1,
		Home:    "~/.scout",
		Discovery: DiscoveryConfig{
			BatchSize:       DefaultBatchSize,
			MaxFailedRounds: DefaultMaxFailedRounds,
			RetryBaseDelay:  DefaultRetryBaseDelay,
			RetryMaxDelay:   DefaultRetryMaxDelay,
			Testnets:        false,
		},
		Device: DeviceConfig{
			Encrypted:  true,
			SessionTTL: DefaultSessionTTL,
		},
		Backend: BackendConfig{
			URLs:          urls,
			RatePerSecond: 5,
			Burst:         10,
			Timeout:       30 * time.Second,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
		},
	}
}
