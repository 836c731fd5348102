package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scout"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) float64
}

func counter(subsystem, name, help string, value func(Snapshot) float64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil),
		value: value,
	}
}

// Collector exposes a Metrics instance to Prometheus. Values are read from a
// fresh Snapshot on every scrape.
type Collector struct {
	m        *Metrics
	counters []counterDesc
}

// NewCollector creates a collector for m.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		m: m,
		counters: []counterDesc{
			counter("gate", "acquisitions_total", "Passes through the device access gate.",
				func(s Snapshot) float64 { return float64(s.GateAcquisitions) }),
			counter("gate", "denials_total", "Gate passes that ended in access denied.",
				func(s Snapshot) float64 { return float64(s.GateDenials) }),
			counter("gate", "held_seconds_total", "Time the device gate was held.",
				func(s Snapshot) float64 { return float64(s.GateHeldNanos) / 1e9 }),
			counter("scanner", "rounds_total", "Scanner rounds, including skipped ones.",
				func(s Snapshot) float64 { return float64(s.RoundsTotal) }),
			counter("scanner", "rounds_skipped_total", "Rounds whose accounts were all known.",
				func(s Snapshot) float64 { return float64(s.RoundsSkipped) }),
			counter("scanner", "accounts_created_total", "Accounts persisted by discovery.",
				func(s Snapshot) float64 { return float64(s.AccountsCreated) }),
			counter("scanner", "transient_failures_total", "Account-info queries that failed.",
				func(s Snapshot) float64 { return float64(s.TransientFailures) }),
			counter("scanner", "networks_finished_total", "Networks that finished or were incompatible.",
				func(s Snapshot) float64 { return float64(s.NetworksFinished) }),
			counter("scanner", "networks_aborted_total", "Networks whose scan was aborted.",
				func(s Snapshot) float64 { return float64(s.NetworksAborted) }),
			counter("backend", "calls_total", "Account-info backend requests.",
				func(s Snapshot) float64 { return float64(s.BackendCallsTotal) }),
			counter("backend", "errors_total", "Account-info backend requests that failed.",
				func(s Snapshot) float64 { return float64(s.BackendErrorsTotal) }),
			counter("backend", "latency_seconds_total", "Cumulative backend request latency.",
				func(s Snapshot) float64 { return float64(s.BackendLatencyNanos) / 1e9 }),
			counter("session", "started_total", "Discovery sessions started.",
				func(s Snapshot) float64 { return float64(s.SessionsStarted) }),
			counter("session", "completed_total", "Discovery sessions that completed.",
				func(s Snapshot) float64 { return float64(s.SessionsCompleted) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, cd.value(snap))
	}
}

// NewRegistry returns a registry holding a collector for m.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(m)); err != nil {
		return nil, err
	}
	return reg, nil
}
