// Package soft implements a software signing device backed by a BIP39
// mnemonic. It produces the same descriptors a hardware wallet would for
// bitcoin-like and ethereum-like networks.
package soft

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/secret"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Extended public key version bytes (SLIP-132).
var (
	versionXpub = []byte{0x04, 0x88, 0xb2, 0x1e}
	versionYpub = []byte{0x04, 0x9d, 0x7c, 0xb2}
	versionZpub = []byte{0x04, 0xb2, 0x47, 0x46}
	versionTpub = []byte{0x04, 0x35, 0x87, 0xcf}
	versionUpub = []byte{0x04, 0x4a, 0x52, 0x62}
	versionVpub = []byte{0x04, 0x5f, 0x1c, 0xf6}
)

// BIP43 purposes with a dedicated descriptor format. Anything else,
// including 44', is serialized as a plain xpub.
const (
	purposeSegwit  = 49
	purposeNative  = 84
	purposeTaproot = 86
)

// Device is a software signing device.
type Device struct {
	state       string
	master      *bip32.Key
	fingerprint string
	derivations []network.AccountType
}

var _ device.Device = (*Device)(nil)

// New derives a device from mnemonic and BIP39 passphrase. derivations lists
// the optional account types the device reports as available.
func New(mnemonic, passphrase string, derivations []network.AccountType) (*Device, error) {
	normalized := NormalizeMnemonic(mnemonic)
	if err := ValidateMnemonic(normalized); err != nil {
		return nil, err
	}

	raw := bip39.NewSeed(normalized, passphrase)
	seed := secret.FromSlice(raw)
	secret.Zero(raw)
	defer seed.Destroy()

	master, err := bip32.NewMasterKey(seed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	fp := hex.EncodeToString(hash160(master.PublicKey().Key)[:4])
	return &Device{
		state:       "soft-" + fp,
		master:      master,
		fingerprint: fp,
		derivations: slices.Clone(derivations),
	}, nil
}

// State returns the device state, derived from the master key fingerprint.
// Different passphrases yield different states.
func (d *Device) State() string {
	return d.state
}

// Fingerprint returns the hex master key fingerprint.
func (d *Device) Fingerprint() string {
	return d.fingerprint
}

// Supports reports whether the device can describe accounts on n.
func (d *Device) Supports(n network.Network) bool {
	return n.Type == network.TypeBitcoin || n.Type == network.TypeEthereum
}

// AvailableDerivations returns the configured optional derivations.
func (d *Device) AvailableDerivations(ctx context.Context) ([]network.AccountType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(d.derivations), nil
}

// Descriptors derives one descriptor per request. Bitcoin-like networks
// yield an account xpub (SLIP-132 prefixed, or a tr() descriptor for
// taproot); ethereum-like networks yield an EIP-55 address. Any failure
// fails the whole call.
func (d *Device) Descriptors(ctx context.Context, reqs []device.DescriptorRequest) ([]string, error) {
	out := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		desc, err := d.descriptor(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Symbol, req.Path, err)
		}
		out = append(out, desc)
	}
	return out, nil
}

func (d *Device) descriptor(req device.DescriptorRequest) (string, error) {
	indexes, err := ParsePath(req.Path)
	if err != nil {
		return "", err
	}

	key, err := d.derive(indexes)
	if err != nil {
		return "", err
	}

	switch req.NetworkType {
	case network.TypeBitcoin:
		return d.bitcoinDescriptor(key, indexes, req.Testnet)
	case network.TypeEthereum:
		return ethereumAddress(key)
	default:
		return "", scouterr.WithDetails(scouterr.ErrNotSupported, map[string]string{"network": req.Symbol})
	}
}

func (d *Device) derive(indexes []uint32) (*bip32.Key, error) {
	key := d.master
	for _, idx := range indexes {
		child, err := key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("deriving child %d: %w", idx, err)
		}
		key = child
	}
	return key, nil
}

func (d *Device) bitcoinDescriptor(key *bip32.Key, indexes []uint32, testnet bool) (string, error) {
	purpose := indexes[0] &^ bip32.FirstHardenedChild
	if len(indexes) > 1 && indexes[1]&^bip32.FirstHardenedChild == 1 {
		testnet = true
	}

	pub := key.PublicKey()
	pub.Version = xpubVersion(purpose, testnet)
	encoded := pub.B58Serialize()
	if encoded == "" {
		return "", fmt.Errorf("serializing extended key: %w", bip32.ErrInvalidPublicKey)
	}

	if purpose == purposeTaproot {
		origin := d.fingerprint + strings.TrimPrefix(FormatPath(indexes), "m")
		return fmt.Sprintf("tr([%s]%s/<0;1>/*)", origin, encoded), nil
	}
	return encoded, nil
}

func xpubVersion(purpose uint32, testnet bool) []byte {
	switch purpose {
	case purposeSegwit:
		if testnet {
			return versionUpub
		}
		return versionYpub
	case purposeNative:
		if testnet {
			return versionVpub
		}
		return versionZpub
	default:
		if testnet {
			return versionTpub
		}
		return versionXpub
	}
}

func ethereumAddress(key *bip32.Key) (string, error) {
	pub, err := ethcrypto.DecompressPubkey(key.PublicKey().Key)
	if err != nil {
		return "", fmt.Errorf("decompressing public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}
