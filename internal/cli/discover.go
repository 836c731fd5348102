package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/api"
	"github.com/mrz1836/scout/internal/backend"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/discovery"
	"github.com/mrz1836/scout/internal/metrics"
	"github.com/mrz1836/scout/internal/output"
	"github.com/mrz1836/scout/internal/telemetry"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	discoverTestnets  bool
	discoverNetworks  []string
	discoverBatchSize int
	discoverListen    string
	discoverTimeout   time.Duration
)

// discoverCmd runs account discovery on the device.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover used accounts on every supported network",
	Long: `Scan every supported network for accounts with on-chain history.

Each network is probed in batches of account indexes until the first empty
account, which ends the scan of that network. Used accounts are saved to the
accounts file; empty ones are not. Accounts found by an
earlier run are skipped, so an interrupted or stalled discovery can simply be
started again.

With --listen a read-only status API (sessions, accounts and Prometheus
metrics) is served while discovery runs.

Example:
  scout discover
  scout discover --networks btc,eth --batch-size 5
  scout discover --testnets --listen 127.0.0.1:9780`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDiscover(cmd, GetCmdContext(cmd))
	},
}

// NetworkResult is the per-network line of a discovery report.
type NetworkResult struct {
	Network string `json:"network"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Rounds  int    `json:"rounds"`
	Created int    `json:"created"`
	Error   string `json:"error,omitempty"`
}

// DiscoverResponse is the result of a discovery run.
type DiscoverResponse struct {
	DeviceState    string          `json:"device_state"`
	Status         string          `json:"status"`
	Duration       string          `json:"duration"`
	Networks       []NetworkResult `json:"networks"`
	Accounts       map[string]int  `json:"accounts"`
	FailedNetworks []string        `json:"failed_networks"`
}

func runDiscover(cmd *cobra.Command, cc *CommandContext) error {
	opts := discovery.OptionsFromConfig(cc.Cfg)
	testnets := cc.Cfg.Discovery.Testnets
	if cmd.Flags().Changed("testnets") {
		testnets = discoverTestnets
	}
	if cmd.Flags().Changed("networks") {
		opts.Networks = discoverNetworks
	}
	if cmd.Flags().Changed("batch-size") {
		opts.BatchSize = discoverBatchSize
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := cc.Catalog.Validate(opts.Networks); err != nil {
		return err
	}

	dev, err := loadDevice(cmd, cc)
	if err != nil {
		return err
	}

	store, err := account.Open(cc.Cfg.AccountsPath())
	if err != nil {
		return err
	}

	info := cc.Backend
	if info == nil {
		info = backend.FromConfig(cc.Cfg, cc.Log)
	}

	ctx, cancel := contextWithTimeout(cmd, discoverTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts.Progress = progressPrinter(cc)

	registry := device.NewRegistry()
	registry.Connect(dev)
	gate := device.NewGate(registry, cc.Log)
	events := &telemetry.Recorder{}

	coord := discovery.NewCoordinator(discovery.Deps{
		Devices:   registry,
		Gate:      gate,
		Catalog:   cc.Catalog,
		Accounts:  store,
		Backend:   info,
		Telemetry: telemetry.Multi{telemetry.NewLogSink(cc.Log), events},
		Options:   opts,
		Logger:    cc.Log,
	})
	registry.OnDisconnect(coord.DeviceDisconnected)

	var serveWG sync.WaitGroup
	if discoverListen != "" {
		gatherer, regErr := metrics.NewRegistry(metrics.Global)
		if regErr != nil {
			return regErr
		}
		srv := api.NewServer(coord.Sessions(), store, gatherer, cc.Log).
			WithDevices(registry, gate).
			WithEvents(events)
		serveWG.Add(1)
		go func() {
			defer serveWG.Done()
			if serveErr := srv.ListenAndServe(ctx, discoverListen); serveErr != nil {
				cc.Msg.Warnf("status API stopped: %v", serveErr)
			}
		}()
		cc.Msg.Infof("Status API listening on http://%s", discoverListen)
	}
	defer serveWG.Wait()
	defer cancel()

	started := time.Now()
	run, err := coord.Start(ctx, dev.State(), testnets)
	if err != nil {
		return err
	}
	if run == nil {
		return scouterr.WithDetails(scouterr.ErrDeviceNotFound, map[string]string{"device": dev.State()})
	}
	cc.Msg.Infof("Discovering accounts for %s", dev.State())

	if err := run.Wait(ctx); err != nil {
		registry.Disconnect(dev.State())
		<-run.Done()
		return scouterr.WithCause(scouterr.ErrScanCanceled, err)
	}

	response := buildDiscoverResponse(run, store.CountByNetwork(dev.State()), time.Since(started))
	if err := cc.Fmt.Emit(response, func(w io.Writer) error {
		return outputDiscoverText(w, response)
	}); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if run.Status() == discovery.StatusStalled {
		return scouterr.WithSuggestion(
			scouterr.WithDetails(scouterr.ErrBackendUnavailable, map[string]string{
				"failed_networks": strings.Join(response.FailedNetworks, ","),
			}),
			"run 'scout discover' again to resume; found accounts are kept",
		)
	}
	return nil
}

// progressPrinter reports round progress when verbose output is on.
func progressPrinter(cc *CommandContext) discovery.ProgressCallback {
	if !cc.Cfg.Output.Verbose {
		return nil
	}
	var mu sync.Mutex
	return func(u discovery.ProgressUpdate) {
		mu.Lock()
		defer mu.Unlock()
		line := fmt.Sprintf("%-16s round %-3d %s", u.Network, u.Round, output.Colorize(string(u.State), string(u.State)))
		if u.Message != "" {
			line += "  " + u.Message
		}
		cc.Msg.Infof("%s", line)
	}
}

func buildDiscoverResponse(run *discovery.Run, counts map[string]int, elapsed time.Duration) DiscoverResponse {
	response := DiscoverResponse{
		DeviceState:    run.DeviceState,
		Status:         string(run.Status()),
		Duration:       elapsed.Round(time.Millisecond).String(),
		Networks:       []NetworkResult{},
		Accounts:       counts,
		FailedNetworks: []string{},
	}
	for _, o := range run.Results() {
		r := NetworkResult{
			Network: o.Network.Key(),
			Name:    o.Network.Name,
			State:   string(o.State),
			Rounds:  o.Rounds,
			Created: o.Created,
		}
		if o.Err != nil && !errors.Is(o.Err, context.Canceled) {
			r.Error = o.Err.Error()
		}
		if o.State == discovery.StateAborted {
			response.FailedNetworks = append(response.FailedNetworks, r.Network)
		}
		response.Networks = append(response.Networks, r)
	}
	return response
}

func outputDiscoverText(w io.Writer, response DiscoverResponse) error {
	// State is the last column so color codes do not skew the widths.
	t := output.NewTable("NETWORK", "ROUNDS", "NEW", "STATE").AlignRight(1, 2)
	for _, n := range response.Networks {
		t.AddRow(n.Network, strconv.Itoa(n.Rounds), strconv.Itoa(n.Created), output.Colorize(n.State, n.State))
	}
	if err := t.Render(w); err != nil {
		return err
	}

	outln(w)
	symbols := make([]string, 0, len(response.Accounts))
	for s := range response.Accounts {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	total := 0
	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		total += response.Accounts[s]
		parts = append(parts, fmt.Sprintf("%s %d", strings.ToUpper(s), response.Accounts[s]))
	}
	out(w, "Device:   %s\n", response.DeviceState)
	out(w, "Status:   %s (%s)\n", output.Colorize(response.Status, response.Status), response.Duration)
	out(w, "Accounts: %d", total)
	if len(parts) > 0 {
		out(w, " (%s)", strings.Join(parts, ", "))
	}
	outln(w)
	if len(response.FailedNetworks) > 0 {
		out(w, "Failed:   %s\n", strings.Join(response.FailedNetworks, ", "))
	}
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	discoverCmd.Flags().BoolVar(&discoverTestnets, "testnets", false, "include test networks")
	discoverCmd.Flags().StringSliceVar(&discoverNetworks, "networks", nil, "only scan these symbols (comma separated)")
	discoverCmd.Flags().IntVar(&discoverBatchSize, "batch-size", 0, "account indexes probed per round")
	discoverCmd.Flags().StringVar(&discoverListen, "listen", "", "serve the status API on this address while scanning")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "abort discovery after this long (0 = no limit)")
	discoverCmd.Flags().BoolVar(&devicePassphrase, "passphrase", false, "prompt for a BIP39 passphrase")

	rootCmd.AddCommand(discoverCmd)
}
