package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mrz1836/scout/internal/backend"
	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/metrics"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/retry"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// State is the state of one network scan.
type State string

// Scanner states. Finished, Incompatible and Aborted are terminal.
const (
	StateScanning     State = "scanning"
	StateFinished     State = "finished"
	StateIncompatible State = "incompatible"
	StateAborted      State = "aborted"
)

// Credited reports whether the state counts as a completed network.
func (s State) Credited() bool {
	return s == StateFinished || s == StateIncompatible
}

// Outcome is the terminal result of scanning one network.
type Outcome struct {
	Network network.Network `json:"network"`
	State   State           `json:"state"`
	Rounds  int             `json:"rounds"`
	Created int             `json:"created"`
	Err     error           `json:"-"`
}

// Scanner scans one network at a time for a device. A single Scanner may
// run many scans concurrently.
type Scanner struct {
	gate     *device.Gate
	fetcher  Fetcher
	sessions *Store
	accounts AccountStore
	info     AccountInfoProvider
	opts     *Options
	logger   *config.Logger
	metrics  *metrics.Metrics
}

// NewScanner creates a scanner. sessions may be nil, in which case scans do
// not stop when the device's session disappears.
func NewScanner(gate *device.Gate, sessions *Store, accounts AccountStore, info AccountInfoProvider, opts *Options, logger *config.Logger) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = config.NullLogger()
	}
	return &Scanner{
		gate:     gate,
		sessions: sessions,
		accounts: accounts,
		info:     info,
		opts:     opts,
		logger:   logger.Named("scanner"),
		metrics:  metrics.Global,
	}
}

// roundResult summarizes the account-info queries of one round.
type roundResult struct {
	queried int
	failed  int
	created int
	empty   bool
}

// Scan probes n for the device until an empty account is found or the scan
// cannot continue. available lists the optional derivations the device
// supports.
//
//nolint:gocognit // Round state machine
func (s *Scanner) Scan(ctx context.Context, deviceState string, n network.Network, available []network.AccountType) Outcome {
	out := Outcome{Network: n, State: StateScanning}
	name := n.Key()

	if n.RequiresDerivation() && !slices.Contains(available, n.AccountType) {
		s.logger.Debug("%s: derivation not available on device, skipping", name)
		return s.finish(deviceState, out, StateIncompatible, nil)
	}

	failedRounds := 0
	for round := 1; ; round++ {
		out.Rounds = round

		if ctx.Err() != nil {
			return s.finish(deviceState, out, StateAborted, scouterr.WithCause(scouterr.ErrScanCanceled, ctx.Err()))
		}
		if s.sessions != nil && !s.sessions.Exists(deviceState) {
			return s.finish(deviceState, out, StateAborted, scouterr.WithCause(scouterr.ErrScanCanceled, errSessionGone))
		}

		items := s.candidates(deviceState, n, round)
		if len(items) == 0 {
			s.metrics.RecordRound(true)
			s.report(deviceState, out, "all accounts of round already discovered")
			continue
		}
		s.metrics.RecordRound(false)

		descs, err := device.WithAccess(ctx, s.gate, deviceState, func(ctx context.Context, dev device.Device) ([]AccountDescriptor, error) {
			return s.fetcher.Fetch(ctx, dev, items)
		})
		if err != nil {
			if ctx.Err() != nil {
				err = scouterr.WithCause(scouterr.ErrScanCanceled, err)
			}
			return s.finish(deviceState, out, StateAborted, err)
		}
		if len(descs) == 0 {
			return s.finish(deviceState, out, StateFinished, nil)
		}

		res, err := s.queryRound(ctx, deviceState, descs)
		out.Created += res.created
		if err != nil {
			return s.finish(deviceState, out, StateAborted, err)
		}
		if res.empty {
			return s.finish(deviceState, out, StateFinished, nil)
		}
		s.report(deviceState, out, fmt.Sprintf("round %d: %d created, %d failed", round, res.created, res.failed))

		if res.queried > 0 && res.failed == res.queried {
			failedRounds++
			if failedRounds >= s.opts.MaxFailedRounds {
				return s.finish(deviceState, out, StateAborted, scouterr.WithDetails(scouterr.ErrBackendUnavailable, map[string]string{
					"network": name,
					"rounds":  fmt.Sprintf("%d", failedRounds),
				}))
			}
			delay := retry.Delay(failedRounds-1, s.opts.RetryBaseDelay, s.opts.RetryMaxDelay)
			s.logger.Debug("%s: round %d failed entirely, retrying in %s", name, round, delay)
			if err := retry.Sleep(ctx, delay); err != nil {
				return s.finish(deviceState, out, StateAborted, scouterr.WithCause(scouterr.ErrScanCanceled, err))
			}
			continue
		}
		failedRounds = 0
	}
}

var errSessionGone = errors.New("discovery session removed")

// candidates builds the round's items, skipping accounts already persisted.
func (s *Scanner) candidates(deviceState string, n network.Network, round int) []Item {
	first := (round - 1) * s.opts.BatchSize
	accountType := n.AccountType
	if accountType == "" {
		accountType = network.AccountNormal
	}

	items := make([]Item, 0, s.opts.BatchSize)
	for i := 0; i < s.opts.BatchSize; i++ {
		path := n.Path(first + i)
		if s.accounts.IsAccountAlreadyDiscovered(deviceState, n.Symbol, path) {
			continue
		}
		items = append(items, Item{
			Symbol:         n.Symbol,
			Path:           path,
			AccountType:    accountType,
			NetworkType:    n.Type,
			DerivationType: n.DerivationType(),
			Testnet:        n.Testnet,
			BatchIndex:     i,
			Index:          first + i,
		})
	}
	return items
}

// queryRound requests account info for each descriptor, one at a time.
// Failed queries are skipped. The first empty account stops the round. An
// error is returned only when a discovered account cannot be persisted.
func (s *Scanner) queryRound(ctx context.Context, deviceState string, descs []AccountDescriptor) (roundResult, error) {
	var res roundResult
	for _, d := range descs {
		res.queried++
		info, err := s.info.GetAccountInfo(ctx, backend.AccountInfoRequest{
			Symbol:             d.Symbol,
			Descriptor:         d.Descriptor,
			UseEmptyPassphrase: true,
			Details:            accountInfoDetails,
		})
		if err != nil || info == nil {
			res.failed++
			s.metrics.RecordTransientFailure()
			s.logger.Debug("%s %s: account info unavailable: %v", d.Symbol, d.Path, err)
			continue
		}

		if info.Empty {
			res.empty = true
			return res, nil
		}

		created, err := s.accounts.CreateAccount(ctx, deviceState, newAccount(d, info))
		if err != nil {
			return res, fmt.Errorf("creating account %s %s: %w", d.Symbol, d.Path, err)
		}
		if created {
			res.created++
			s.metrics.RecordAccountCreated()
		}
	}
	return res, nil
}

func (s *Scanner) finish(deviceState string, out Outcome, state State, err error) Outcome {
	out.State = state
	out.Err = err

	s.metrics.RecordNetworkDone(state == StateAborted)
	if err != nil {
		s.logger.Error("%s: scan aborted after %d rounds: %v", out.Network.Key(), out.Rounds, err)
	} else {
		s.logger.Debug("%s: %s after %d rounds, %d accounts", out.Network.Key(), state, out.Rounds, out.Created)
	}
	s.report(deviceState, out, string(state))
	return out
}

func (s *Scanner) report(deviceState string, out Outcome, msg string) {
	if s.opts.Progress == nil {
		return
	}
	s.opts.Progress(ProgressUpdate{
		DeviceState:     deviceState,
		Network:         out.Network.Key(),
		Round:           out.Rounds,
		State:           out.State,
		AccountsCreated: out.Created,
		Message:         msg,
	})
}
