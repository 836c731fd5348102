// Package metrics provides application-level metrics collection.
// This is a lightweight metrics foundation using atomic counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds discovery metrics using atomic counters for thread safety.
type Metrics struct {
	// Device gate metrics
	gateAcquisitions atomic.Int64
	gateDenials      atomic.Int64
	gateHeldNanos    atomic.Int64

	// Scanner metrics
	roundsTotal      atomic.Int64
	roundsSkipped    atomic.Int64
	accountsCreated  atomic.Int64
	transientFails   atomic.Int64
	networksFinished atomic.Int64
	networksAborted  atomic.Int64

	// Backend metrics
	backendCallsTotal   atomic.Int64
	backendErrorsTotal  atomic.Int64
	backendLatencyNanos atomic.Int64

	// Session metrics
	sessionsStarted   atomic.Int64
	sessionsCompleted atomic.Int64
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordGateAccess records one pass through the device access gate.
// A non-nil err counts as a denial.
func (m *Metrics) RecordGateAccess(held time.Duration, err error) {
	m.gateAcquisitions.Add(1)
	m.gateHeldNanos.Add(held.Nanoseconds())
	if err != nil {
		m.gateDenials.Add(1)
	}
}

// RecordRound records a scanner round. skipped marks a round that needed no
// device access because every candidate was already discovered.
func (m *Metrics) RecordRound(skipped bool) {
	m.roundsTotal.Add(1)
	if skipped {
		m.roundsSkipped.Add(1)
	}
}

// RecordAccountCreated records a newly persisted account.
func (m *Metrics) RecordAccountCreated() {
	m.accountsCreated.Add(1)
}

// RecordTransientFailure records an account-info query that did not succeed.
func (m *Metrics) RecordTransientFailure() {
	m.transientFails.Add(1)
}

// RecordNetworkDone records a network scan reaching a terminal state.
func (m *Metrics) RecordNetworkDone(aborted bool) {
	if aborted {
		m.networksAborted.Add(1)
		return
	}
	m.networksFinished.Add(1)
}

// RecordBackendCall records a backend request with its duration and outcome.
func (m *Metrics) RecordBackendCall(duration time.Duration, err error) {
	m.backendCallsTotal.Add(1)
	m.backendLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.backendErrorsTotal.Add(1)
	}
}

// RecordSessionStarted records a new discovery session.
func (m *Metrics) RecordSessionStarted() {
	m.sessionsStarted.Add(1)
}

// RecordSessionCompleted records a session reaching loaded == total.
func (m *Metrics) RecordSessionCompleted() {
	m.sessionsCompleted.Add(1)
}

// Snapshot returns a point-in-time copy of all metrics.
type Snapshot struct {
	GateAcquisitions    int64 `json:"gate_acquisitions"`
	GateDenials         int64 `json:"gate_denials"`
	GateHeldNanos       int64 `json:"gate_held_nanos"`
	RoundsTotal         int64 `json:"rounds_total"`
	RoundsSkipped       int64 `json:"rounds_skipped"`
	AccountsCreated     int64 `json:"accounts_created"`
	TransientFailures   int64 `json:"transient_failures"`
	NetworksFinished    int64 `json:"networks_finished"`
	NetworksAborted     int64 `json:"networks_aborted"`
	BackendCallsTotal   int64 `json:"backend_calls_total"`
	BackendErrorsTotal  int64 `json:"backend_errors_total"`
	BackendLatencyNanos int64 `json:"backend_latency_nanos"`
	SessionsStarted     int64 `json:"sessions_started"`
	SessionsCompleted   int64 `json:"sessions_completed"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GateAcquisitions:    m.gateAcquisitions.Load(),
		GateDenials:         m.gateDenials.Load(),
		GateHeldNanos:       m.gateHeldNanos.Load(),
		RoundsTotal:         m.roundsTotal.Load(),
		RoundsSkipped:       m.roundsSkipped.Load(),
		AccountsCreated:     m.accountsCreated.Load(),
		TransientFailures:   m.transientFails.Load(),
		NetworksFinished:    m.networksFinished.Load(),
		NetworksAborted:     m.networksAborted.Load(),
		BackendCallsTotal:   m.backendCallsTotal.Load(),
		BackendErrorsTotal:  m.backendErrorsTotal.Load(),
		BackendLatencyNanos: m.backendLatencyNanos.Load(),
		SessionsStarted:     m.sessionsStarted.Load(),
		SessionsCompleted:   m.sessionsCompleted.Load(),
	}
}

// BackendLatencyAvgMs returns the average backend latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) BackendLatencyAvgMs() float64 {
	calls := m.backendCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.backendLatencyNanos.Load()) / float64(calls) / 1e6
}

// GateDenialRate returns the share of gate passes that were denied (0-100).
func (m *Metrics) GateDenialRate() float64 {
	total := m.gateAcquisitions.Load()
	if total == 0 {
		return 0
	}
	return float64(m.gateDenials.Load()) / float64(total) * 100
}

// Reset resets all metrics to zero.
// Useful for testing.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.gateAcquisitions, &m.gateDenials, &m.gateHeldNanos,
		&m.roundsTotal, &m.roundsSkipped, &m.accountsCreated, &m.transientFails,
		&m.networksFinished, &m.networksAborted,
		&m.backendCallsTotal, &m.backendErrorsTotal, &m.backendLatencyNanos,
		&m.sessionsStarted, &m.sessionsCompleted,
	} {
		c.Store(0)
	}
}
