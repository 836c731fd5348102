package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	scouterr "github.com/mrz1836/scout/pkg/errors"
)

func TestMetrics_RecordGateAccess(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordGateAccess(10*time.Millisecond, nil)
	m.RecordGateAccess(5*time.Millisecond, scouterr.ErrAccessDenied)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.GateAcquisitions)
	assert.Equal(t, int64(1), snap.GateDenials)
	assert.Equal(t, (15 * time.Millisecond).Nanoseconds(), snap.GateHeldNanos)
	assert.InDelta(t, 50.0, m.GateDenialRate(), 0.001)
}

func TestMetrics_Rounds(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordRound(false)
	m.RecordRound(true)
	m.RecordRound(false)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.RoundsTotal)
	assert.Equal(t, int64(1), snap.RoundsSkipped)
}

func TestMetrics_NetworkDone(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordNetworkDone(false)
	m.RecordNetworkDone(false)
	m.RecordNetworkDone(true)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.NetworksFinished)
	assert.Equal(t, int64(1), snap.NetworksAborted)
}

func TestMetrics_BackendLatency(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	assert.InDelta(t, 0.0, m.BackendLatencyAvgMs(), 0.001)

	m.RecordBackendCall(100*time.Millisecond, nil)
	m.RecordBackendCall(300*time.Millisecond, scouterr.ErrNetworkError)

	assert.InDelta(t, 200.0, m.BackendLatencyAvgMs(), 0.001)
	assert.Equal(t, int64(1), m.Snapshot().BackendErrorsTotal)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordAccountCreated()
	m.RecordTransientFailure()
	m.RecordSessionStarted()
	m.RecordSessionCompleted()
	m.RecordGateAccess(time.Millisecond, nil)

	m.Reset()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_Concurrent(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordAccountCreated()
			m.RecordRound(false)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap.AccountsCreated)
	assert.Equal(t, int64(50), snap.RoundsTotal)
}
