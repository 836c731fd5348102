package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/address"
	"github.com/mrz1836/scout/internal/output"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// maxPreviewAddresses bounds --addresses.
const maxPreviewAddresses = 100

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	accountsDevice    string
	accountsSymbol    string
	accountsQR        bool
	accountsAddresses int
	accountsYes       bool
)

// accountsCmd is the parent command for discovered accounts.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect discovered accounts",
	Long:  `List, inspect, relabel and forget the accounts saved by discovery.`,
}

// accountsListCmd lists discovered accounts.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered accounts",
	Long: `List the accounts saved by discovery, optionally limited to one device or
network symbol.

Example:
  scout accounts list
  scout accounts list --symbol btc -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAccountsList(cmd, GetCmdContext(cmd))
	},
}

// accountsShowCmd shows one account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsShowCmd = &cobra.Command{
	Use:   "show <label|path>",
	Short: "Show one account",
	Long: `Show an account selected by its label (e.g. "BTC #1") or derivation path.

With --addresses N the first N receive addresses are derived from the
account's public key. With --qr the first receive address is drawn as a QR
code when writing to a terminal.

Example:
  scout accounts show "BTC #1" --addresses 5
  scout accounts show "m/84'/0'/0'" --qr`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAccountsShow(cmd, GetCmdContext(cmd), args[0])
	},
}

// accountsForgetCmd removes the accounts of a device.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget every account of a device",
	Long: `Remove the saved accounts of a device so the next discovery starts from
scratch.

Example:
  scout accounts forget --device soft-3442193e --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAccountsForget(cmd, GetCmdContext(cmd))
	},
}

// accountsRenameCmd relabels an account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsRenameCmd = &cobra.Command{
	Use:   "rename <label|path> [new-label]",
	Short: "Change an account label",
	Long: `Give an account a new label. Without a new label the default one
("<SYMBOL> #<n>") is restored.

Example:
  scout accounts rename "BTC #1" Savings
  scout accounts rename Savings`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 2 {
			label = args[1]
		}
		return runAccountsRename(cmd, GetCmdContext(cmd), args[0], label)
	},
}

// AccountView is the JSON view of an account.
type AccountView struct {
	account.Account
	Addresses []string `json:"addresses,omitempty"`
}

func runAccountsList(_ *cobra.Command, cc *CommandContext) error {
	store, err := account.Open(cc.Cfg.AccountsPath())
	if err != nil {
		return err
	}

	accounts := filterAccounts(store.List(accountsDevice), accountsSymbol)
	return cc.Fmt.Emit(accounts, func(w io.Writer) error {
		if len(accounts) == 0 {
			outln(w, "No accounts discovered yet. Run 'scout discover'.")
			return nil
		}
		t := output.NewTable("LABEL", "PATH", "BALANCE", "TXS", "DEVICE").AlignRight(2, 3)
		for _, a := range accounts {
			t.AddRow(a.Label, a.Path, a.Balance, strconv.Itoa(a.TxCount), a.DeviceState)
		}
		return t.Render(w)
	})
}

func runAccountsShow(_ *cobra.Command, cc *CommandContext, ref string) error {
	if accountsAddresses < 0 || accountsAddresses > maxPreviewAddresses {
		return scouterr.WithSuggestion(
			scouterr.WithDetails(scouterr.ErrInvalidInput, map[string]string{"addresses": strconv.Itoa(accountsAddresses)}),
			fmt.Sprintf("use a value between 0 and %d", maxPreviewAddresses),
		)
	}

	store, err := account.Open(cc.Cfg.AccountsPath())
	if err != nil {
		return err
	}

	acct, err := findAccount(filterAccounts(store.List(accountsDevice), accountsSymbol), ref)
	if err != nil {
		return err
	}

	view := AccountView{Account: acct}
	n := accountsAddresses
	if accountsQR && n == 0 {
		n = 1
	}
	if n > 0 {
		if view.Addresses, err = address.Receive(acct, n); err != nil {
			return err
		}
	}

	return cc.Fmt.Emit(view, func(w io.Writer) error {
		t := output.NewTable("", "")
		t.SetNoHeader(true)
		t.AddRow("Label:", acct.Label)
		t.AddRow("Network:", fmt.Sprintf("%s (%s)", strings.ToUpper(acct.Symbol), acct.AccountType))
		t.AddRow("Path:", acct.Path)
		t.AddRow("Descriptor:", acct.Descriptor)
		t.AddRow("Balance:", acct.Balance)
		t.AddRow("Transactions:", strconv.Itoa(acct.TxCount))
		t.AddRow("Device:", acct.DeviceState)
		t.AddRow("Discovered:", acct.CreatedAt.Format("2006-01-02 15:04:05"))
		if err := t.Render(w); err != nil {
			return err
		}

		if accountsAddresses > 0 {
			outln(w)
			outln(w, "Receive addresses:")
			for i, addr := range view.Addresses {
				out(w, "  %3d  %s\n", i, addr)
			}
		}
		if accountsQR && len(view.Addresses) > 0 {
			outln(w)
			if !output.RenderQR(w, view.Addresses[0], output.DefaultQRConfig()) {
				cc.Msg.Warnf("QR codes are only drawn on a terminal")
			}
		}
		return nil
	})
}

func runAccountsRename(_ *cobra.Command, cc *CommandContext, ref, label string) error {
	store, err := account.Open(cc.Cfg.AccountsPath())
	if err != nil {
		return err
	}

	acct, err := findAccount(filterAccounts(store.List(accountsDevice), accountsSymbol), ref)
	if err != nil {
		return err
	}
	renamed, err := store.Rename(acct.DeviceState, acct.Symbol, acct.Path, label)
	if err != nil {
		return err
	}
	cc.Log.Debug("renamed %s %s from %q to %q", renamed.Symbol, renamed.Path, acct.Label, renamed.Label)

	return cc.Fmt.Emit(renamed, func(w io.Writer) error {
		out(w, "%s is now %q\n", renamed.Path, renamed.Label)
		return nil
	})
}

func runAccountsForget(_ *cobra.Command, cc *CommandContext) error {
	if accountsDevice == "" {
		return scouterr.WithSuggestion(scouterr.ErrInvalidInput, "pass --device; see 'scout accounts list' for device states")
	}

	if !accountsYes {
		ok, err := promptConfirmFn(fmt.Sprintf("Forget every account of %s?", accountsDevice))
		if err != nil {
			return err
		}
		if !ok {
			cc.Msg.Infof("Nothing removed")
			return nil
		}
	}

	store, err := account.Open(cc.Cfg.AccountsPath())
	if err != nil {
		return err
	}
	removed, err := store.Forget(accountsDevice)
	if err != nil {
		return err
	}
	cc.Log.Info("forgot %d accounts of %s", removed, accountsDevice)

	result := struct {
		DeviceState string `json:"device_state"`
		Removed     int    `json:"removed"`
	}{accountsDevice, removed}
	return cc.Fmt.Emit(result, func(w io.Writer) error {
		out(w, "Removed %d accounts of %s\n", removed, accountsDevice)
		return nil
	})
}

func filterAccounts(accounts []account.Account, symbol string) []account.Account {
	if symbol == "" {
		return accounts
	}
	out := make([]account.Account, 0, len(accounts))
	for _, a := range accounts {
		if strings.EqualFold(a.Symbol, symbol) {
			out = append(out, a)
		}
	}
	return out
}

// findAccount matches ref against labels (case-insensitive) and paths.
// A ref matching accounts on several devices is ambiguous.
func findAccount(accounts []account.Account, ref string) (account.Account, error) {
	var matches []account.Account
	for _, a := range accounts {
		if strings.EqualFold(a.Label, ref) || a.Path == ref {
			matches = append(matches, a)
		}
	}

	switch len(matches) {
	case 0:
		return account.Account{}, scouterr.WithSuggestion(
			scouterr.WithDetails(scouterr.ErrNotFound, map[string]string{"account": ref}),
			"see 'scout accounts list'",
		)
	case 1:
		return matches[0], nil
	default:
		devices := make([]string, 0, len(matches))
		for _, m := range matches {
			devices = append(devices, m.DeviceState)
		}
		return account.Account{}, scouterr.WithSuggestion(
			scouterr.WithDetails(scouterr.ErrInvalidInput, map[string]string{"account": ref, "devices": strings.Join(devices, ",")}),
			"narrow it down with --device or --symbol",
		)
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	accountsCmd.PersistentFlags().StringVar(&accountsDevice, "device", "", "device state to limit to")
	accountsListCmd.Flags().StringVar(&accountsSymbol, "symbol", "", "network symbol to limit to")
	accountsShowCmd.Flags().StringVar(&accountsSymbol, "symbol", "", "network symbol to limit to")
	accountsShowCmd.Flags().BoolVar(&accountsQR, "qr", false, "draw the first receive address as a QR code")
	accountsShowCmd.Flags().IntVar(&accountsAddresses, "addresses", 0, "number of receive addresses to derive")
	accountsRenameCmd.Flags().StringVar(&accountsSymbol, "symbol", "", "network symbol to limit to")
	accountsForgetCmd.Flags().BoolVarP(&accountsYes, "yes", "y", false, "do not ask for confirmation")

	accountsCmd.AddCommand(accountsListCmd, accountsShowCmd, accountsRenameCmd, accountsForgetCmd)
	rootCmd.AddCommand(accountsCmd)
}
