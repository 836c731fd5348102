package cli

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/scout/internal/config"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configInitForce bool

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and create the scout configuration file.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.scout/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.

Example:
  scout config init
  scout config init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runConfigInit(cmd, GetCmdContext(cmd))
	},
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: the file, then environment
overrides, then command-line flags.

Example:
  scout config show
  scout config show -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runConfigShow(cmd, GetCmdContext(cmd))
	},
}

// configPathCmd prints the configuration file path.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := GetCmdContext(cmd)
		p := config.Path(cc.Cfg.Home)
		return cc.Fmt.Emit(map[string]string{"path": p}, func(w io.Writer) error {
			outln(w, p)
			return nil
		})
	},
}

func runConfigInit(_ *cobra.Command, cc *CommandContext) error {
	path := config.Path(cc.Cfg.Home)

	if !configInitForce {
		if _, err := os.Stat(path); err == nil {
			return scouterr.WithSuggestion(
				scouterr.WithDetails(scouterr.ErrInvalidInput, map[string]string{"path": path}),
				"use --force to overwrite",
			)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	defaults := config.Defaults()
	defaults.Home = cc.Cfg.Home
	if err := config.Save(defaults, path); err != nil {
		return err
	}
	cc.Log.Info("wrote default config to %s", path)

	return cc.Fmt.Emit(map[string]string{"path": path}, func(w io.Writer) error {
		out(w, "Configuration written to %s\n", path)
		return nil
	})
}

func runConfigShow(_ *cobra.Command, cc *CommandContext) error {
	return cc.Fmt.Emit(cc.Cfg, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cc.Cfg); err != nil {
			return err
		}
		return enc.Close()
	})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
