// Package network describes the blockchain networks scout can discover
// accounts on. Each entry pairs a network symbol with one account variant and
// the derivation path template used to enumerate its accounts.
package network

import (
	"strconv"
	"strings"
)

// Type groups networks that share descriptor and account semantics.
type Type string

// Network types.
const (
	TypeBitcoin  Type = "bitcoin"
	TypeEthereum Type = "ethereum"
	TypeCardano  Type = "cardano"
	TypeRipple   Type = "ripple"
)

// AccountType is the account variant of a network (script type or
// derivation scheme).
type AccountType string

// Account types.
const (
	AccountNormal  AccountType = "normal"
	AccountSegwit  AccountType = "segwit"
	AccountLegacy  AccountType = "legacy"
	AccountTaproot AccountType = "taproot"
	AccountLedger  AccountType = "ledger"
)

// DerivationType identifies the Cardano master-key derivation scheme.
type DerivationType int

// Cardano derivation types, numbered as the device expects them.
const (
	DerivationLedger       DerivationType = 0
	DerivationIcarus       DerivationType = 1
	DerivationIcarusTrezor DerivationType = 2
)

// indexPlaceholder is replaced by the account index in a path template.
const indexPlaceholder = "i"

// Network is a single discoverable (symbol, account type) pair.
type Network struct {
	// Symbol is the short network symbol (e.g. "btc").
	Symbol string `json:"symbol" yaml:"symbol"`

	// Name is the human-readable network name.
	Name string `json:"name" yaml:"name"`

	// Type is the network family.
	Type Type `json:"type" yaml:"type"`

	// AccountType is the account variant scanned for this entry.
	AccountType AccountType `json:"account_type" yaml:"account_type"`

	// PathTemplate is the BIP32 path with "i" standing for the account index,
	// e.g. "m/84'/0'/i'".
	PathTemplate string `json:"path_template" yaml:"path_template"`

	// Testnet marks test networks, only scanned when testnets are enabled.
	Testnet bool `json:"testnet,omitempty" yaml:"testnet,omitempty"`
}

// Path returns the derivation path for the account at index.
func (n Network) Path(index int) string {
	return strings.Replace(n.PathTemplate, indexPlaceholder, strconv.Itoa(index), 1)
}

// Key uniquely identifies the entry within a catalog.
func (n Network) Key() string {
	return n.Symbol + "/" + string(n.accountType())
}

// RequiresDerivation reports whether the entry needs an optional derivation
// that the device must declare support for before it can be scanned.
func (n Network) RequiresDerivation() bool {
	if n.Type != TypeCardano {
		return false
	}
	return n.AccountType == AccountLegacy || n.AccountType == AccountLedger
}

// DerivationType returns the Cardano derivation type for the account type.
func (n Network) DerivationType() DerivationType {
	return DerivationTypeFor(n.accountType())
}

// accountType defaults an empty account type to normal.
func (n Network) accountType() AccountType {
	if n.AccountType == "" {
		return AccountNormal
	}
	return n.AccountType
}

// DerivationTypeFor maps an account type to its Cardano derivation type.
func DerivationTypeFor(t AccountType) DerivationType {
	switch t {
	case AccountLegacy:
		return DerivationIcarus
	case AccountLedger:
		return DerivationLedger
	case AccountNormal, AccountSegwit, AccountTaproot:
		return DerivationIcarusTrezor
	default:
		return DerivationIcarusTrezor
	}
}

// ValidTemplate reports whether a path template is usable for discovery.
func ValidTemplate(template string) bool {
	if !strings.HasPrefix(template, "m/") {
		return false
	}
	return strings.Count(template, indexPlaceholder) == 1
}
