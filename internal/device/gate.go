package device

import (
	"context"
	"fmt"
	"time"

	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/metrics"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Lookup resolves a device state to a connected device.
type Lookup interface {
	Device(state string) (Device, bool)
}

// Gate grants exclusive access to the device. Only one operation runs at a
// time, across every device state and every caller.
type Gate struct {
	sem     chan struct{}
	devices Lookup
	logger  *config.Logger
	metrics *metrics.Metrics
}

// NewGate creates a gate over the devices known to lookup.
// A nil logger discards output.
func NewGate(lookup Lookup, logger *config.Logger) *Gate {
	if logger == nil {
		logger = config.NullLogger()
	}
	return &Gate{
		sem:     make(chan struct{}, 1),
		devices: lookup,
		logger:  logger.Named("gate"),
		metrics: metrics.Global,
	}
}

// Busy reports whether an operation currently holds the gate.
func (g *Gate) Busy() bool {
	return len(g.sem) > 0
}

// WithAccess runs op with exclusive access to the device registered under
// state and returns its result.
//
// It returns ErrAccessDenied when the context ends before access is granted,
// when no device is connected under state, or when op panics. Errors returned
// by op are passed through unchanged. The gate is released on every path.
func WithAccess[T any](ctx context.Context, g *Gate, state string, op func(context.Context, Device) (T, error)) (result T, err error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return result, scouterr.WithCause(scouterr.ErrAccessDenied, ctx.Err())
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = scouterr.WithCause(scouterr.ErrAccessDenied, fmt.Errorf("device operation panicked: %v", r))
			g.logger.Error("device %s: operation panicked: %v", state, r)
		}
		<-g.sem
		g.metrics.RecordGateAccess(time.Since(start), err)
	}()

	if cerr := ctx.Err(); cerr != nil {
		return result, scouterr.WithCause(scouterr.ErrAccessDenied, cerr)
	}

	dev, ok := g.devices.Device(state)
	if !ok {
		g.logger.Debug("device %s: not connected", state)
		return result, scouterr.WithDetails(scouterr.ErrAccessDenied, map[string]string{"device": state})
	}

	return op(ctx, dev)
}
