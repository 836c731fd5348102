package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	networksTestnets bool
	networksSymbol   string
)

// networksCmd is the parent command for the network catalog.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "Show the network catalog",
	Long:  `Inspect the networks and account types scout can discover.`,
}

// networksListCmd lists catalog entries.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discoverable networks",
	Long: `List every (network, account type) pair in the catalog with its derivation
path template and whether a backend is configured for it.

Example:
  scout networks list
  scout networks list --testnets --symbol btc`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNetworksList(cmd, GetCmdContext(cmd))
	},
}

// NetworkView is the JSON view of a catalog entry.
type NetworkView struct {
	network.Network
	Key     string `json:"key"`
	Backend string `json:"backend,omitempty"`
}

func runNetworksList(_ *cobra.Command, cc *CommandContext) error {
	var networks []network.Network
	if networksSymbol != "" {
		found, err := cc.Catalog.BySymbol(networksSymbol)
		if err != nil {
			return err
		}
		for _, n := range found {
			if networksTestnets || !n.Testnet {
				networks = append(networks, n)
			}
		}
	} else {
		networks = cc.Catalog.Filter(networksTestnets, nil)
	}

	views := make([]NetworkView, 0, len(networks))
	for _, n := range networks {
		views = append(views, NetworkView{Network: n, Key: n.Key(), Backend: cc.Cfg.BackendURL(n.Symbol)})
	}

	return cc.Fmt.Emit(views, func(w io.Writer) error {
		t := output.NewTable("SYMBOL", "NAME", "ACCOUNT", "PATH", "BACKEND")
		for _, v := range views {
			name := v.Name
			if v.Testnet {
				name += " (testnet)"
			}
			backend := v.Backend
			if backend == "" {
				backend = "-"
			}
			t.AddRow(strings.ToUpper(v.Symbol), name, string(v.AccountType), v.PathTemplate, backend)
		}
		return t.Render(w)
	})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	networksListCmd.Flags().BoolVar(&networksTestnets, "testnets", false, "include test networks")
	networksListCmd.Flags().StringVar(&networksSymbol, "symbol", "", "only show this network symbol")

	networksCmd.AddCommand(networksListCmd)
	rootCmd.AddCommand(networksCmd)
}
