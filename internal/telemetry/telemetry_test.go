package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/scout/internal/config"
)

func TestNewDiscoveryEvent(t *testing.T) {
	t.Parallel()

	counts := map[string]int{"btc": 3, "eth": 1}
	e := NewDiscoveryEvent("dev", counts, 1500*time.Millisecond)

	assert.Equal(t, EventDiscoveryCompleted, e.Name)
	assert.Equal(t, "dev", e.DeviceState)
	assert.Equal(t, map[string]int{"btc": 3, "eth": 1, "loadDuration": 1500}, e.Payload)
	assert.Equal(t, []string{"btc", "eth"}, e.Networks())

	counts["btc"] = 99
	assert.Equal(t, 3, e.Payload["btc"], "payload is a copy")
}

func TestRecorderAndMulti(t *testing.T) {
	t.Parallel()

	a, b := &Recorder{}, &Recorder{}
	sink := Multi{a, b, Nop{}}
	sink.Report(Event{Name: "one"})
	sink.Report(Event{Name: "two"})

	require.Len(t, a.Events(), 2)
	require.Len(t, b.Events(), 2)
	assert.Equal(t, "two", a.Events()[1].Name)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelInfo, &buf)
	NewLogSink(logger).Report(NewDiscoveryEvent("dev", map[string]int{"btc": 2}, time.Second))

	line := buf.String()
	assert.Contains(t, line, "[INFO] telemetry: accounts/discovery device=dev")
	assert.True(t, strings.Contains(line, `"btc":2`) && strings.Contains(line, `"loadDuration":1000`), line)
}
