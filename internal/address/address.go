// Package address derives receive addresses from discovered account
// descriptors, so a watch-only view can be shown without the device.
package address

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/network"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// Chain selects the external (receive) or internal (change) branch.
type Chain uint32

// Address chains.
const (
	External Chain = 0
	Internal Chain = 1
)

// params maps the bitcoin-family symbols we can encode addresses for.
//
//nolint:gochecknoglobals // Read-only lookup table
var params = map[string]*chaincfg.Params{
	"btc":  &chaincfg.MainNetParams,
	"test": &chaincfg.TestNet3Params,
}

// Derive returns the address at chain/index of a discovered account.
// Ethereum-type accounts are single addresses and are returned as is.
func Derive(acct account.Account, chain Chain, index uint32) (string, error) {
	switch acct.NetworkType {
	case network.TypeEthereum:
		return acct.Descriptor, nil
	case network.TypeBitcoin:
		return deriveBitcoin(acct, chain, index)
	default:
		return "", unsupported(acct)
	}
}

// Receive returns the first n external addresses of the account.
func Receive(acct account.Account, n int) ([]string, error) {
	if acct.NetworkType == network.TypeEthereum {
		return []string{acct.Descriptor}, nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		addr, err := Derive(acct, External, uint32(i)) //nolint:gosec // G115: i is small and non-negative
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func deriveBitcoin(acct account.Account, chain Chain, index uint32) (string, error) {
	net, ok := params[acct.Symbol]
	if !ok {
		return "", unsupported(acct)
	}

	xpub := ExtendedKey(acct.Descriptor)
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", scouterr.WithCause(scouterr.ErrDescriptorMismatch, err)
	}
	if key, err = key.Derive(uint32(chain)); err != nil {
		return "", fmt.Errorf("deriving chain %d: %w", chain, err)
	}
	if key, err = key.Derive(index); err != nil {
		return "", fmt.Errorf("deriving index %d: %w", index, err)
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return "", err
	}
	pkHash := btcutil.Hash160(pub.SerializeCompressed())

	var addr btcutil.Address
	switch acct.AccountType {
	case network.AccountLegacy:
		addr, err = btcutil.NewAddressPubKeyHash(pkHash, net)
	case network.AccountSegwit:
		var wpkh *btcutil.AddressWitnessPubKeyHash
		if wpkh, err = btcutil.NewAddressWitnessPubKeyHash(pkHash, net); err != nil {
			break
		}
		var script []byte
		if script, err = txscript.PayToAddrScript(wpkh); err != nil {
			break
		}
		addr, err = btcutil.NewAddressScriptHash(script, net)
	case network.AccountTaproot:
		tweaked := txscript.ComputeTaprootKeyNoScript(pub)
		addr, err = btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), net)
	default:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(pkHash, net)
	}
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// ExtendedKey extracts the extended public key from a descriptor such as
// "tr([73c5da0a/86'/0'/0']xpub.../<0;1>/*)". A bare key is returned as is.
func ExtendedKey(descriptor string) string {
	s := descriptor
	if i := strings.LastIndex(s, "]"); i >= 0 {
		s = s[i+1:]
	} else if i := strings.LastIndex(s, "("); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, "/)"); i >= 0 {
		s = s[:i]
	}
	return s
}

func unsupported(acct account.Account) error {
	return scouterr.WithDetails(scouterr.ErrNotSupported, map[string]string{
		"symbol":       acct.Symbol,
		"account_type": string(acct.AccountType),
	})
}
