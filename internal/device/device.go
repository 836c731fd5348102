// Package device models the physical signing device scout discovers accounts
// on, and the access gate that serializes every operation against it.
package device

import (
	"context"

	"github.com/mrz1836/scout/internal/network"
)

// DescriptorRequest asks the device for the descriptor of one account.
type DescriptorRequest struct {
	Symbol         string
	Path           string
	NetworkType    network.Type
	AccountType    network.AccountType
	DerivationType network.DerivationType
	Testnet        bool

	// SuppressBackupWarning keeps the device from prompting about an
	// unfinished backup while it is being probed.
	SuppressBackupWarning bool
}

// Device is a connected signing device.
//
// Implementations are not required to be safe for concurrent use; callers
// reach a Device only through Gate.
type Device interface {
	// State is the identity of the device session (wallet + passphrase).
	State() string

	// Supports reports whether the device can produce descriptors for n.
	Supports(n network.Network) bool

	// AvailableDerivations returns the optional account types the firmware
	// supports (e.g. legacy, ledger Cardano derivations).
	AvailableDerivations(ctx context.Context) ([]network.AccountType, error)

	// Descriptors resolves every request to a descriptor (xpub or address),
	// in request order.
	Descriptors(ctx context.Context, reqs []DescriptorRequest) ([]string, error)
}
