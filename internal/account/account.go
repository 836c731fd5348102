// Package account persists the accounts found by discovery.
package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/scout/internal/network"
)

// Account is a discovered account.
type Account struct {
	DeviceState  string              `json:"device_state"`
	Symbol       string              `json:"symbol"`
	AccountType  network.AccountType `json:"account_type"`
	NetworkType  network.Type        `json:"network_type"`
	Path         string              `json:"path"`
	Index        int                 `json:"index"`
	Descriptor   string              `json:"descriptor"`
	Balance      string              `json:"balance"`
	TxCount      int                 `json:"tx_count"`
	Transactions []string            `json:"transactions,omitempty"`
	Label        string              `json:"label"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Key returns the unique identifier for this account (deviceState:symbol:path).
func (a *Account) Key() string {
	return key(a.DeviceState, a.Symbol, a.Path)
}

func key(deviceState, symbol, path string) string {
	return fmt.Sprintf("%s:%s:%s", deviceState, symbol, path)
}

// DefaultLabel returns the label given to a new account: the upper-case
// symbol, the account type unless normal, and the 1-based index.
func DefaultLabel(symbol string, accountType network.AccountType, index int) string {
	parts := []string{strings.ToUpper(symbol)}
	if accountType != "" && accountType != network.AccountNormal {
		parts = append(parts, string(accountType))
	}
	parts = append(parts, fmt.Sprintf("#%d", index+1))
	return strings.Join(parts, " ")
}
