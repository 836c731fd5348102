// Package discovery finds the accounts a signing device has used.
//
// A Coordinator starts one session per device and launches a Scanner per
// network. Each scanner probes account indexes in small batches: it skips
// indexes already persisted, asks the device for descriptors while holding
// the device gate, then queries the backend for each descriptor in turn.
// The first empty account ends the network. The session is removed once
// every network has finished.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/backend"
	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/network"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Default scanning parameters.
const (
	// DefaultBatchSize is the number of account indexes probed per round.
	DefaultBatchSize = config.DefaultBatchSize

	// DefaultMaxFailedRounds is how many consecutive rounds in which every
	// account-info query failed are tolerated before a network is aborted.
	DefaultMaxFailedRounds = config.DefaultMaxFailedRounds

	// accountInfoDetails is the detail level requested for every account.
	accountInfoDetails = backend.DetailsTxs
)

// AccountStore persists discovered accounts.
type AccountStore interface {
	IsAccountAlreadyDiscovered(deviceState, symbol, path string) bool
	// CreateAccount reports false when the account already existed.
	CreateAccount(ctx context.Context, deviceState string, acct account.Account) (bool, error)
	CountByNetwork(deviceState string) map[string]int
}

// AccountInfoProvider returns the on-chain state of one descriptor.
type AccountInfoProvider interface {
	GetAccountInfo(ctx context.Context, req backend.AccountInfoRequest) (*backend.AccountInfo, error)
}

// Options configures discovery.
type Options struct {
	// BatchSize is the number of account indexes probed per round.
	BatchSize int

	// MaxFailedRounds bounds consecutive rounds where no account-info query
	// succeeded.
	MaxFailedRounds int

	// RetryBaseDelay and RetryMaxDelay bound the backoff after a failed round.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Networks restricts discovery to these symbols. Empty means all.
	Networks []string

	// Progress receives per-round updates. Optional.
	Progress ProgressCallback
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		BatchSize:       DefaultBatchSize,
		MaxFailedRounds: DefaultMaxFailedRounds,
		RetryBaseDelay:  config.DefaultRetryBaseDelay,
		RetryMaxDelay:   config.DefaultRetryMaxDelay,
	}
}

// OptionsFromConfig builds options from the discovery section of cfg.
func OptionsFromConfig(cfg *config.Config) *Options {
	return &Options{
		BatchSize:       cfg.Discovery.BatchSize,
		MaxFailedRounds: cfg.Discovery.MaxFailedRounds,
		RetryBaseDelay:  cfg.Discovery.RetryBaseDelay,
		RetryMaxDelay:   cfg.Discovery.RetryMaxDelay,
		Networks:        cfg.Discovery.Networks,
	}
}

// Validate checks that the options are usable.
func (o *Options) Validate() error {
	if o.BatchSize <= 0 {
		return scouterr.WithDetails(scouterr.ErrInvalidInput, map[string]string{"batch_size": fmt.Sprintf("%d", o.BatchSize)})
	}
	if o.MaxFailedRounds <= 0 {
		return scouterr.WithDetails(scouterr.ErrInvalidInput, map[string]string{"max_failed_rounds": fmt.Sprintf("%d", o.MaxFailedRounds)})
	}
	return nil
}

// Item is one account probe.
type Item struct {
	Symbol         string
	Path           string
	AccountType    network.AccountType
	NetworkType    network.Type
	DerivationType network.DerivationType
	Testnet        bool

	// BatchIndex is the position within the round's batch.
	BatchIndex int

	// Index is the absolute account index substituted into the path.
	Index int
}

func (it Item) request() device.DescriptorRequest {
	return device.DescriptorRequest{
		Symbol:                it.Symbol,
		Path:                  it.Path,
		NetworkType:           it.NetworkType,
		AccountType:           it.AccountType,
		DerivationType:        it.DerivationType,
		Testnet:               it.Testnet,
		SuppressBackupWarning: true,
	}
}

// AccountDescriptor is an Item resolved to its descriptor.
type AccountDescriptor struct {
	Item
	Descriptor string
}

// newAccount materializes a discovered account from its descriptor and the
// backend's view of it.
func newAccount(d AccountDescriptor, info *backend.AccountInfo) account.Account {
	return account.Account{
		Symbol:       d.Symbol,
		AccountType:  d.AccountType,
		NetworkType:  d.NetworkType,
		Path:         d.Path,
		Index:        d.Index,
		Descriptor:   d.Descriptor,
		Balance:      info.Balance,
		TxCount:      info.TxCount,
		Transactions: info.Transactions,
	}
}

// ProgressUpdate reports scanner activity.
type ProgressUpdate struct {
	DeviceState string
	Network     string
	Round       int
	State       State

	// AccountsCreated counts accounts created for this network so far.
	AccountsCreated int

	Message string
}

// ProgressCallback is called during scanning to report progress.
type ProgressCallback func(ProgressUpdate)
