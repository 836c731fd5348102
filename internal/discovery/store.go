package discovery

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/scout/internal/network"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Status is the state of a discovery session.
type Status string

// Session statuses.
const (
	// StatusRunning means networks are still being scanned.
	StatusRunning Status = "running"

	// StatusStalled means at least one network was aborted, so the session
	// can no longer complete without a new Start.
	StatusStalled Status = "stalled"

	// StatusCompleted is reported by a Run whose session reached
	// loaded == total. Completed sessions are removed from the Store.
	StatusCompleted Status = "completed"
)

// Session is the progress record of discovery on one device.
type Session struct {
	DeviceState string `json:"device_state"`
	AuthConfirm bool   `json:"auth_confirm"`
	Index       int    `json:"index"`
	Status      Status `json:"status"`

	// Total is the number of networks to scan; Loaded how many finished.
	Total      int `json:"total"`
	Loaded     int `json:"loaded"`
	BundleSize int `json:"bundle_size"`

	// Failed lists the keys of aborted networks.
	Failed []string `json:"failed"`

	Networks             []network.Network     `json:"networks"`
	AvailableDerivations []network.AccountType `json:"available_derivations"`

	StartedAt time.Time `json:"started_at"`
}

func (s *Session) clone() Session {
	out := *s
	out.Failed = slices.Clone(s.Failed)
	out.Networks = slices.Clone(s.Networks)
	out.AvailableDerivations = slices.Clone(s.AvailableDerivations)
	return out
}

// Snapshot is the read-only progress view of a session.
type Snapshot struct {
	Status         Status   `json:"status"`
	Total          int      `json:"total"`
	Loaded         int      `json:"loaded"`
	FailedNetworks []string `json:"failed_networks"`
}

// SessionListener is notified after a session changes. removed is true when
// the session was deleted. Listeners may read the store but must not modify it.
type SessionListener func(s Session, removed bool)

// Store holds at most one session per device. It is safe for concurrent use.
// Listeners see changes in the order they were applied.
type Store struct {
	// notifyMu is held from mutation through notification and is always
	// taken before mu.
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []SessionListener
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create adds a session. It fails with ErrDiscoveryInProgress when the
// device already has one.
func (st *Store) Create(s Session) error {
	st.notifyMu.Lock()
	defer st.notifyMu.Unlock()

	st.mu.Lock()
	if _, exists := st.sessions[s.DeviceState]; exists {
		st.mu.Unlock()
		return scouterr.WithDetails(scouterr.ErrDiscoveryInProgress, map[string]string{"device": s.DeviceState})
	}
	stored := s.clone()
	st.sessions[s.DeviceState] = &stored
	snap, listeners := stored.clone(), st.listeners
	st.mu.Unlock()

	notify(listeners, snap, false)
	return nil
}

// Get returns a copy of the device's session.
func (st *Store) Get(deviceState string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[deviceState]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Exists reports whether the device has a session.
func (st *Store) Exists(deviceState string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, ok := st.sessions[deviceState]
	return ok
}

// Update applies fn to the device's session under the store lock and
// returns the updated copy. It returns false if there is no session.
func (st *Store) Update(deviceState string, fn func(*Session)) (Session, bool) {
	st.notifyMu.Lock()
	defer st.notifyMu.Unlock()

	st.mu.Lock()
	s, ok := st.sessions[deviceState]
	if !ok {
		st.mu.Unlock()
		return Session{}, false
	}
	fn(s)
	snap, listeners := s.clone(), st.listeners
	st.mu.Unlock()

	notify(listeners, snap, false)
	return snap, true
}

// Remove deletes the device's session. It returns false if there was none.
func (st *Store) Remove(deviceState string) bool {
	st.notifyMu.Lock()
	defer st.notifyMu.Unlock()

	st.mu.Lock()
	s, ok := st.sessions[deviceState]
	if !ok {
		st.mu.Unlock()
		return false
	}
	delete(st.sessions, deviceState)
	snap, listeners := s.clone(), st.listeners
	st.mu.Unlock()

	notify(listeners, snap, true)
	return true
}

// List returns copies of every session ordered by device state.
func (st *Store) List() []Session {
	st.mu.RLock()
	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.clone())
	}
	st.mu.RUnlock()

	slices.SortFunc(out, func(a, b Session) int { return strings.Compare(a.DeviceState, b.DeviceState) })
	return out
}

// Snapshot returns the progress view of the device's session.
func (st *Store) Snapshot(deviceState string) (Snapshot, bool) {
	s, ok := st.Get(deviceState)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Status:         s.Status,
		Total:          s.Total,
		Loaded:         s.Loaded,
		FailedNetworks: s.Failed,
	}, true
}

// OnChange registers fn to receive every create, update and remove.
func (st *Store) OnChange(fn SessionListener) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.listeners = append(st.listeners, fn)
}

func notify(listeners []SessionListener, s Session, removed bool) {
	for _, fn := range listeners {
		fn(s, removed)
	}
}
