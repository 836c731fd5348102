package network

import (
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"

	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// maxSuggestionDistance bounds how far a typo may be from a known symbol.
const maxSuggestionDistance = 2

// Catalog is an ordered list of discoverable networks.
// Order matters: scanners are launched in catalog order.
type Catalog struct {
	networks []Network
}

// NewCatalog creates a catalog from the given networks, keeping their order.
func NewCatalog(networks []Network) *Catalog {
	return &Catalog{networks: slices.Clone(networks)}
}

// DefaultCatalog returns the built-in network list.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultNetworks())
}

// DefaultNetworks returns the networks supported out of the box.
func DefaultNetworks() []Network {
	return []Network{
		{Symbol: "btc", Name: "Bitcoin", Type: TypeBitcoin, AccountType: AccountNormal, PathTemplate: "m/84'/0'/i'"},
		{Symbol: "btc", Name: "Bitcoin", Type: TypeBitcoin, AccountType: AccountTaproot, PathTemplate: "m/86'/0'/i'"},
		{Symbol: "btc", Name: "Bitcoin", Type: TypeBitcoin, AccountType: AccountSegwit, PathTemplate: "m/49'/0'/i'"},
		{Symbol: "btc", Name: "Bitcoin", Type: TypeBitcoin, AccountType: AccountLegacy, PathTemplate: "m/44'/0'/i'"},
		{Symbol: "ltc", Name: "Litecoin", Type: TypeBitcoin, AccountType: AccountNormal, PathTemplate: "m/84'/2'/i'"},
		{Symbol: "ltc", Name: "Litecoin", Type: TypeBitcoin, AccountType: AccountSegwit, PathTemplate: "m/49'/2'/i'"},
		{Symbol: "ltc", Name: "Litecoin", Type: TypeBitcoin, AccountType: AccountLegacy, PathTemplate: "m/44'/2'/i'"},
		{Symbol: "doge", Name: "Dogecoin", Type: TypeBitcoin, AccountType: AccountNormal, PathTemplate: "m/44'/3'/i'"},
		{Symbol: "eth", Name: "Ethereum", Type: TypeEthereum, AccountType: AccountNormal, PathTemplate: "m/44'/60'/0'/0/i"},
		{Symbol: "etc", Name: "Ethereum Classic", Type: TypeEthereum, AccountType: AccountNormal, PathTemplate: "m/44'/61'/0'/0/i"},
		{Symbol: "ada", Name: "Cardano", Type: TypeCardano, AccountType: AccountNormal, PathTemplate: "m/1852'/1815'/i'"},
		{Symbol: "ada", Name: "Cardano", Type: TypeCardano, AccountType: AccountLegacy, PathTemplate: "m/1852'/1815'/i'"},
		{Symbol: "ada", Name: "Cardano", Type: TypeCardano, AccountType: AccountLedger, PathTemplate: "m/1852'/1815'/i'"},
		{Symbol: "xrp", Name: "XRP", Type: TypeRipple, AccountType: AccountNormal, PathTemplate: "m/44'/144'/i'/0/0"},
		{Symbol: "test", Name: "Bitcoin Testnet", Type: TypeBitcoin, AccountType: AccountNormal, PathTemplate: "m/84'/1'/i'", Testnet: true},
		{Symbol: "test", Name: "Bitcoin Testnet", Type: TypeBitcoin, AccountType: AccountTaproot, PathTemplate: "m/86'/1'/i'", Testnet: true},
		{Symbol: "tsep", Name: "Ethereum Sepolia", Type: TypeEthereum, AccountType: AccountNormal, PathTemplate: "m/44'/1'/0'/0/i", Testnet: true},
	}
}

// All returns every network in catalog order.
func (c *Catalog) All() []Network {
	return slices.Clone(c.networks)
}

// Filter returns the networks to scan. Testnets are dropped unless
// testnets is true. When enabled is non-empty only those symbols are kept.
func (c *Catalog) Filter(testnets bool, enabled []string) []Network {
	out := make([]Network, 0, len(c.networks))
	for _, n := range c.networks {
		if n.Testnet && !testnets {
			continue
		}
		if len(enabled) > 0 && !containsFold(enabled, n.Symbol) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// BySymbol returns every account variant registered for symbol.
// Unknown symbols produce ErrUnknownNetwork with a suggestion when a close
// match exists.
func (c *Catalog) BySymbol(symbol string) ([]Network, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))

	var out []Network
	for _, n := range c.networks {
		if n.Symbol == symbol {
			out = append(out, n)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	err := scouterr.WithDetails(scouterr.ErrUnknownNetwork, map[string]string{"symbol": symbol})
	if suggestion := c.suggest(symbol); suggestion != "" {
		err = scouterr.WithSuggestion(err, "did you mean '"+suggestion+"'?")
	}
	return nil, err
}

// Validate checks every requested symbol exists in the catalog.
func (c *Catalog) Validate(symbols []string) error {
	for _, s := range symbols {
		if _, err := c.BySymbol(s); err != nil {
			return err
		}
	}
	return nil
}

// Symbols returns the distinct symbols in catalog order.
func (c *Catalog) Symbols() []string {
	var out []string
	for _, n := range c.networks {
		if !slices.Contains(out, n.Symbol) {
			out = append(out, n.Symbol)
		}
	}
	return out
}

// suggest returns the closest known symbol, or "" when none is close enough.
func (c *Catalog) suggest(symbol string) string {
	best := ""
	bestDistance := maxSuggestionDistance + 1
	for _, s := range c.Symbols() {
		d := levenshtein.ComputeDistance(symbol, s)
		if d < bestDistance {
			best, bestDistance = s, d
		}
	}
	return best
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
