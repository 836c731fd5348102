package device

import (
	"sort"
	"sync"
)

// Registry tracks connected devices by device state.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]Device
	listeners []func(state string)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device)}
}

// Connect registers d under its state, replacing any previous device with
// the same state.
func (r *Registry) Connect(d Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.State()] = d
}

// Disconnect removes the device and notifies disconnect listeners.
// Returns false if no device was registered under state.
func (r *Registry) Disconnect(state string) bool {
	r.mu.Lock()
	_, ok := r.devices[state]
	delete(r.devices, state)
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()

	if !ok {
		return false
	}
	for _, fn := range listeners {
		fn(state)
	}
	return true
}

// Device returns the device registered under state.
func (r *Registry) Device(state string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[state]
	return d, ok
}

// States returns the states of all connected devices, sorted.
func (r *Registry) States() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]string, 0, len(r.devices))
	for s := range r.devices {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// OnDisconnect registers fn to be called after a device is disconnected.
func (r *Registry) OnDisconnect(fn func(state string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}
