// Package telemetry receives aggregate usage events emitted when a discovery
// session completes.
package telemetry

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mrz1836/scout/internal/config"
)

// EventDiscoveryCompleted is the name of the event sent once per finished
// discovery session.
const EventDiscoveryCompleted = "accounts/discovery"

// Event is one telemetry record. Payload holds the per-network account
// counts plus "loadDuration" in milliseconds.
type Event struct {
	Name        string         `json:"name"`
	DeviceState string         `json:"device_state"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]int `json:"payload"`
}

// NewDiscoveryEvent builds the completion event from per-network account
// counts and the total session duration.
func NewDiscoveryEvent(deviceState string, counts map[string]int, duration time.Duration) Event {
	payload := make(map[string]int, len(counts)+1)
	for symbol, n := range counts {
		payload[symbol] = n
	}
	payload["loadDuration"] = int(duration.Milliseconds())

	return Event{
		Name:        EventDiscoveryCompleted,
		DeviceState: deviceState,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// Sink receives events. Report must not block for long.
type Sink interface {
	Report(e Event)
}

// Nop discards events.
type Nop struct{}

// Report implements Sink.
func (Nop) Report(Event) {}

// LogSink writes events to a logger at info level.
type LogSink struct {
	logger *config.Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger *config.Logger) *LogSink {
	return &LogSink{logger: logger.Named("telemetry")}
}

// Report implements Sink.
func (s *LogSink) Report(e Event) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		s.logger.Error("encoding %s event: %v", e.Name, err)
		return
	}
	s.logger.Info("%s device=%s %s", e.Name, e.DeviceState, data)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Sink.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Multi fans an event out to several sinks.
type Multi []Sink

// Report implements Sink.
func (m Multi) Report(e Event) {
	for _, s := range m {
		s.Report(e)
	}
}

// Networks returns the network symbols in the payload, sorted.
func (e Event) Networks() []string {
	out := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		if k != "loadDuration" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
