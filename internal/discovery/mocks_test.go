package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/backend"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/telemetry"
)

const testDevice = "dev-1"

var errBackendDown = errors.New("backend down")

// fakeDevice returns "symbol|path" descriptors and counts device calls.
type fakeDevice struct {
	state       string
	derivations []network.AccountType
	unsupported map[string]bool

	// descriptors overrides the default descriptor generation.
	descriptors func(reqs []device.DescriptorRequest) ([]string, error)

	mu       sync.Mutex
	calls    int
	requests [][]device.DescriptorRequest
	active   atomic.Int32
	overlap  atomic.Bool
}

func newFakeDevice(state string) *fakeDevice {
	return &fakeDevice{state: state, unsupported: map[string]bool{}}
}

func (d *fakeDevice) State() string { return d.state }

func (d *fakeDevice) Supports(n network.Network) bool { return !d.unsupported[n.Symbol] }

func (d *fakeDevice) AvailableDerivations(context.Context) ([]network.AccountType, error) {
	return d.derivations, nil
}

func (d *fakeDevice) Descriptors(_ context.Context, reqs []device.DescriptorRequest) ([]string, error) {
	if d.active.Add(1) > 1 {
		d.overlap.Store(true)
	}
	defer d.active.Add(-1)

	d.mu.Lock()
	d.calls++
	d.requests = append(d.requests, reqs)
	d.mu.Unlock()

	if d.descriptors != nil {
		return d.descriptors(reqs)
	}
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = descriptorFor(r.Symbol, r.Path)
	}
	return out, nil
}

func (d *fakeDevice) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDevice) requestedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var paths []string
	for _, batch := range d.requests {
		for _, r := range batch {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

func descriptorFor(symbol, path string) string {
	return symbol + "|" + path
}

// fakeBackend answers account-info queries from a per-descriptor table.
// Descriptors not in the table are empty.
type fakeBackend struct {
	mu       sync.Mutex
	used     map[string]bool
	failing  map[string]bool
	failAll  bool
	queries  []backend.AccountInfoRequest
	onQuery  func(req backend.AccountInfoRequest)
	infoFunc func(req backend.AccountInfoRequest) (*backend.AccountInfo, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{used: map[string]bool{}, failing: map[string]bool{}}
}

// markUsed records the account at path as having history.
func (b *fakeBackend) markUsed(symbol string, paths ...string) *fakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		b.used[descriptorFor(symbol, p)] = true
	}
	return b
}

func (b *fakeBackend) markFailing(symbol string, paths ...string) *fakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		b.failing[descriptorFor(symbol, p)] = true
	}
	return b
}

func (b *fakeBackend) GetAccountInfo(_ context.Context, req backend.AccountInfoRequest) (*backend.AccountInfo, error) {
	b.mu.Lock()
	b.queries = append(b.queries, req)
	onQuery, infoFunc := b.onQuery, b.infoFunc
	failing := b.failAll || b.failing[req.Descriptor]
	used := b.used[req.Descriptor]
	b.mu.Unlock()

	if onQuery != nil {
		onQuery(req)
	}
	if infoFunc != nil {
		return infoFunc(req)
	}
	if failing {
		return nil, errBackendDown
	}
	if used {
		return &backend.AccountInfo{Descriptor: req.Descriptor, Balance: "1000", TxCount: 2, Transactions: []string{"tx1", "tx2"}}, nil
	}
	return &backend.AccountInfo{Descriptor: req.Descriptor, Balance: "0", Empty: true}, nil
}

func (b *fakeBackend) queryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queries)
}

func (b *fakeBackend) allQueries() []backend.AccountInfoRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.AccountInfoRequest(nil), b.queries...)
}

// memAccounts is an in-memory AccountStore.
type memAccounts struct {
	mu        sync.Mutex
	accounts  map[string]account.Account
	createErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]account.Account{}}
}

func memKey(deviceState, symbol, path string) string {
	return strings.Join([]string{deviceState, symbol, path}, ":")
}

func (m *memAccounts) seed(deviceState, symbol string, paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		m.accounts[memKey(deviceState, symbol, p)] = account.Account{DeviceState: deviceState, Symbol: symbol, Path: p}
	}
}

func (m *memAccounts) IsAccountAlreadyDiscovered(deviceState, symbol, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[memKey(deviceState, symbol, path)]
	return ok
}

func (m *memAccounts) CreateAccount(_ context.Context, deviceState string, acct account.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	k := memKey(deviceState, acct.Symbol, acct.Path)
	if _, exists := m.accounts[k]; exists {
		return false, nil
	}
	acct.DeviceState = deviceState
	m.accounts[k] = acct
	return true, nil
}

func (m *memAccounts) CountByNetwork(deviceState string) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, a := range m.accounts {
		if a.DeviceState == deviceState {
			counts[a.Symbol]++
		}
	}
	return counts
}

func (m *memAccounts) list(deviceState, symbol string) []account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []account.Account
	for _, a := range m.accounts {
		if a.DeviceState == deviceState && a.Symbol == symbol {
			out = append(out, a)
		}
	}
	return out
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// Test networks.
var (
	btcSegwit = network.Network{Symbol: "btc", Name: "Bitcoin", Type: network.TypeBitcoin, AccountType: network.AccountNormal, PathTemplate: "m/84'/0'/i'"}
	btcLegacy = network.Network{Symbol: "btc", Name: "Bitcoin", Type: network.TypeBitcoin, AccountType: network.AccountLegacy, PathTemplate: "m/44'/0'/i'"}
	ltc       = network.Network{Symbol: "ltc", Name: "Litecoin", Type: network.TypeBitcoin, AccountType: network.AccountNormal, PathTemplate: "m/84'/2'/i'"}
	eth       = network.Network{Symbol: "eth", Name: "Ethereum", Type: network.TypeEthereum, AccountType: network.AccountNormal, PathTemplate: "m/44'/60'/0'/0/i"}
	adaNormal = network.Network{Symbol: "ada", Name: "Cardano", Type: network.TypeCardano, AccountType: network.AccountNormal, PathTemplate: "m/1852'/1815'/i'"}
	adaLegacy = network.Network{Symbol: "ada", Name: "Cardano", Type: network.TypeCardano, AccountType: network.AccountLegacy, PathTemplate: "m/1852'/1815'/i'"}
)

func paths(n network.Network, indexes ...int) []string {
	out := make([]string, len(indexes))
	for i, idx := range indexes {
		out[i] = n.Path(idx)
	}
	return out
}

// testOptions disables backoff so failing rounds retry immediately.
func testOptions() *Options {
	return &Options{BatchSize: DefaultBatchSize, MaxFailedRounds: DefaultMaxFailedRounds}
}

// harness wires a coordinator over fakes.
type harness struct {
	registry  *device.Registry
	device    *fakeDevice
	gate      *device.Gate
	accounts  *memAccounts
	backend   *fakeBackend
	events    *telemetry.Recorder
	sessions  *Store
	coord     *Coordinator
}

func newHarness(networks ...network.Network) *harness {
	h := &harness{
		registry:  device.NewRegistry(),
		device:    newFakeDevice(testDevice),
		accounts:  newMemAccounts(),
		backend:   newFakeBackend(),
		events:    &telemetry.Recorder{},
		sessions:  NewStore(),
	}
	h.registry.Connect(h.device)
	h.gate = device.NewGate(h.registry, nil)
	h.coord = NewCoordinator(Deps{
		Devices:   h.registry,
		Gate:      h.gate,
		Catalog:   network.NewCatalog(networks),
		Accounts:  h.accounts,
		Backend:   h.backend,
		Telemetry: h.events,
		Sessions:  h.sessions,
		Options:   testOptions(),
	})
	return h
}

func (h *harness) scanner() *Scanner {
	return NewScanner(h.gate, h.sessions, h.accounts, h.backend, testOptions(), nil)
}
