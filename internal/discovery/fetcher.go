package discovery

import (
	"context"
	"fmt"

	"github.com/mrz1836/scout/internal/device"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Fetcher resolves a batch of items to descriptors with one device call.
// It must only be called while holding the device gate.
type Fetcher struct{}

// Fetch returns one descriptor per item, in item order. A device failure or
// a result of the wrong length fails the whole batch.
func (Fetcher) Fetch(ctx context.Context, dev device.Device, items []Item) ([]AccountDescriptor, error) {
	if len(items) == 0 {
		return nil, nil
	}

	reqs := make([]device.DescriptorRequest, len(items))
	for i, it := range items {
		reqs[i] = it.request()
	}

	descs, err := dev.Descriptors(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("fetching descriptors: %w", err)
	}
	if len(descs) != len(items) {
		return nil, scouterr.WithDetails(scouterr.ErrDescriptorMismatch, map[string]string{
			"requested": fmt.Sprintf("%d", len(items)),
			"returned":  fmt.Sprintf("%d", len(descs)),
		})
	}

	out := make([]AccountDescriptor, len(items))
	for i, it := range items {
		if descs[i] == "" {
			return nil, scouterr.WithDetails(scouterr.ErrDescriptorMismatch, map[string]string{"path": it.Path})
		}
		out[i] = AccountDescriptor{Item: it, Descriptor: descs[i]}
	}
	return out, nil
}
