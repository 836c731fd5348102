package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/scout/internal/version"
)

// versionCheckTimeout bounds the release lookup.
const versionCheckTimeout = 10 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	versionCheck bool

	// newVersionChecker is replaced in tests.
	newVersionChecker = version.NewChecker
)

// versionCmd prints build information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the scout version, commit and platform. With --check the latest
release is looked up on GitHub.

Example:
  scout version
  scout version --check -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runVersion(cmd, GetCmdContext(cmd))
	},
}

func runVersion(cmd *cobra.Command, cc *CommandContext) error {
	info := version.Current()

	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, versionCheckTimeout)
		defer cancel()

		checked, err := newVersionChecker().Check(ctx, info)
		if err != nil {
			cc.Msg.Warnf("could not check for updates: %v", err)
		} else {
			info = checked
		}
	}

	return cc.Fmt.Emit(info, func(w io.Writer) error {
		outln(w, info.String())
		if info.Outdated {
			cc.Msg.Warnf("a newer release is available: %s", info.Latest)
		} else if info.Latest != "" {
			cc.Msg.Successf("up to date")
		}
		return nil
	})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
