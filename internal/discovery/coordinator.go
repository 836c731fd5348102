package discovery

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/metrics"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/telemetry"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Devices   device.Lookup
	Gate      *device.Gate
	Catalog   *network.Catalog
	Accounts  AccountStore
	Backend   AccountInfoProvider
	Telemetry telemetry.Sink
	Sessions  *Store
	Options   *Options
	Logger    *config.Logger
}

// Coordinator owns discovery sessions: it creates one per device, runs a
// scanner per network, and removes the session when every network is done.
type Coordinator struct {
	devices   device.Lookup
	gate      *device.Gate
	catalog   *network.Catalog
	accounts  AccountStore
	telemetry telemetry.Sink
	sessions  *Store
	scanner   *Scanner
	opts      *Options
	logger    *config.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu     sync.Mutex
	active map[string]*Run
}

// NewCoordinator creates a coordinator. Missing optional deps get defaults:
// the built-in catalog, a fresh session store, a no-op telemetry sink.
func NewCoordinator(deps Deps) *Coordinator {
	if deps.Options == nil {
		deps.Options = DefaultOptions()
	}
	if deps.Logger == nil {
		deps.Logger = config.NullLogger()
	}
	if deps.Catalog == nil {
		deps.Catalog = network.DefaultCatalog()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewStore()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop{}
	}
	if deps.Gate == nil {
		deps.Gate = device.NewGate(deps.Devices, deps.Logger)
	}

	return &Coordinator{
		devices:   deps.Devices,
		gate:      deps.Gate,
		catalog:   deps.Catalog,
		accounts:  deps.Accounts,
		telemetry: deps.Telemetry,
		sessions:  deps.Sessions,
		scanner:   NewScanner(deps.Gate, deps.Sessions, deps.Accounts, deps.Backend, deps.Options, deps.Logger),
		opts:      deps.Options,
		logger:    deps.Logger.Named("discovery"),
		metrics:   metrics.Global,
		now:       time.Now,
		active:    make(map[string]*Run),
	}
}

// Sessions returns the session store.
func (c *Coordinator) Sessions() *Store {
	return c.sessions
}

// Start begins discovery on the device. It returns (nil, nil) when no
// device is connected under deviceState, and ErrDiscoveryInProgress while a
// previous run for the device still has scanners working. A stalled
// session left by an earlier run is replaced.
//
// Scanners run until they finish or ctx is done; the returned Run tracks them.
func (c *Coordinator) Start(ctx context.Context, deviceState string, testnets bool) (*Run, error) {
	if _, ok := c.devices.Device(deviceState); !ok {
		c.logger.Debug("start: no device %s", deviceState)
		return nil, nil //nolint:nilnil // absent device is a no-op
	}
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}

	run, err := c.reserve(deviceState)
	if err != nil {
		return nil, err
	}

	type capabilities struct {
		derivations []network.AccountType
		networks    []network.Network
	}
	caps, err := device.WithAccess(ctx, c.gate, deviceState, func(ctx context.Context, dev device.Device) (capabilities, error) {
		derivations, err := dev.AvailableDerivations(ctx)
		if err != nil {
			return capabilities{}, err
		}
		var networks []network.Network
		for _, n := range c.catalog.Filter(testnets, c.opts.Networks) {
			if dev.Supports(n) {
				networks = append(networks, n)
			}
		}
		return capabilities{derivations: derivations, networks: networks}, nil
	})
	if err != nil {
		c.release(run)
		return nil, err
	}

	if c.sessions.Remove(deviceState) {
		c.logger.Info("replacing stalled session for %s", deviceState)
	}
	session := Session{
		DeviceState:          deviceState,
		Status:               StatusRunning,
		Total:                len(caps.networks),
		Failed:               []string{},
		Networks:             caps.networks,
		AvailableDerivations: caps.derivations,
		StartedAt:            c.now(),
	}
	if err := c.sessions.Create(session); err != nil {
		c.release(run)
		return nil, err
	}
	c.metrics.RecordSessionStarted()
	c.logger.Info("discovery started on %s: %d networks", deviceState, session.Total)

	if session.Total == 0 {
		c.complete(deviceState, session)
		run.status = StatusCompleted
		c.release(run)
		return run, nil
	}

	run.wg.Add(len(caps.networks))
	for i, n := range caps.networks {
		go func() {
			defer run.wg.Done()
			out := c.scanner.Scan(ctx, deviceState, n, caps.derivations)
			run.record(i, out)
			if out.State.Credited() {
				c.onNetworkFinished(deviceState, run)
			} else {
				c.onNetworkAborted(deviceState, n, run)
			}
		}()
	}
	go func() {
		run.wg.Wait()
		c.release(run)
	}()

	return run, nil
}

// reserve registers a pending run for the device, failing if one is active.
func (c *Coordinator) reserve(deviceState string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.active[deviceState]; busy {
		return nil, scouterr.WithDetails(scouterr.ErrDiscoveryInProgress, map[string]string{"device": deviceState})
	}
	run := newRun(deviceState)
	c.active[deviceState] = run
	return run, nil
}

// release marks run as done and frees the device for a new Start.
func (c *Coordinator) release(run *Run) {
	c.mu.Lock()
	if c.active[run.DeviceState] == run {
		delete(c.active, run.DeviceState)
	}
	c.mu.Unlock()
	run.close()
}

// onNetworkFinished credits one network and completes the session when
// every network is accounted for.
func (c *Coordinator) onNetworkFinished(deviceState string, run *Run) {
	var done bool
	session, ok := c.sessions.Update(deviceState, func(s *Session) {
		if s.Loaded < s.Total {
			s.Loaded++
		}
		done = s.Loaded >= s.Total
	})
	if !ok || !done {
		return
	}
	c.complete(deviceState, session)
	run.setStatus(StatusCompleted)
}

// onNetworkAborted records the failure and leaves the session stalled.
// The run stalls even when the session is already gone.
func (c *Coordinator) onNetworkAborted(deviceState string, n network.Network, run *Run) {
	c.sessions.Update(deviceState, func(s *Session) {
		s.Failed = append(s.Failed, n.Key())
		s.Status = StatusStalled
	})
	run.setStatus(StatusStalled)
}

// complete removes the session and emits the completion event.
func (c *Coordinator) complete(deviceState string, session Session) {
	if !c.sessions.Remove(deviceState) {
		return
	}
	c.metrics.RecordSessionCompleted()

	duration := c.now().Sub(session.StartedAt)
	counts := map[string]int{}
	if c.accounts != nil {
		counts = c.accounts.CountByNetwork(deviceState)
	}
	c.telemetry.Report(telemetry.NewDiscoveryEvent(deviceState, counts, duration))
	c.logger.Info("discovery completed on %s in %s", deviceState, duration.Round(time.Millisecond))
}

// DeviceDisconnected drops the device's session. Scanners still running
// stop at their next round.
func (c *Coordinator) DeviceDisconnected(deviceState string) {
	if c.sessions.Remove(deviceState) {
		c.logger.Info("device %s disconnected, session removed", deviceState)
	}
}

// Snapshot returns the progress of the device's session.
func (c *Coordinator) Snapshot(deviceState string) (Snapshot, bool) {
	return c.sessions.Snapshot(deviceState)
}

// Run tracks the scanners launched by one Start.
type Run struct {
	DeviceState string

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu       sync.Mutex
	status   Status
	outcomes map[int]Outcome
}

func newRun(deviceState string) *Run {
	return &Run{
		DeviceState: deviceState,
		done:        make(chan struct{}),
		status:      StatusRunning,
		outcomes:    make(map[int]Outcome),
	}
}

func (r *Run) record(i int, out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[i] = out
}

// setStatus moves the run to a terminal status; stalled is sticky.
func (r *Run) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusStalled {
		r.status = s
	}
}

func (r *Run) close() {
	r.once.Do(func() { close(r.done) })
}

// Done is closed once every scanner of the run has returned.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run is done or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns running until the session completes or stalls.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Results returns the outcome of each scanned network, in catalog order.
func (r *Run) Results() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]int, 0, len(r.outcomes))
	for k := range r.outcomes {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Outcome, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.outcomes[k])
	}
	return out
}
