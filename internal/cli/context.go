package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/discovery"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/output"
	"github.com/mrz1836/scout/internal/session"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Msg     *output.Messenger
	Catalog *network.Catalog

	// Device overrides the software device loaded from the mnemonic file.
	Device device.Device

	// Backend overrides the Blockbook client built from the config.
	Backend discovery.AccountInfoProvider

	// Sessions caches unlocked phrases. Built on first use because probing
	// the OS keyring is slow.
	Sessions session.Manager
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	msg := &output.Messenger{Out: os.Stderr, Err: os.Stderr}
	if formatter != nil {
		msg.Quiet = formatter.IsJSON()
	}
	return &CommandContext{
		Cfg:     cfg,
		Log:     logger,
		Fmt:     formatter,
		Msg:     msg,
		Catalog: network.DefaultCatalog(),
	}
}

// WithDevice sets the device used by discovery.
func (c *CommandContext) WithDevice(d device.Device) *CommandContext {
	c.Device = d
	return c
}

// WithBackend sets the account-info backend.
func (c *CommandContext) WithBackend(b discovery.AccountInfoProvider) *CommandContext {
	c.Backend = b
	return c
}

// WithSessions sets the unlock session manager.
func (c *CommandContext) WithSessions(m session.Manager) *CommandContext {
	c.Sessions = m
	return c
}

// sessions returns the session manager, creating the keyring-backed one on
// first use.
func (c *CommandContext) sessions() session.Manager {
	if c.Sessions == nil {
		c.Sessions = session.NewManager(c.Cfg.SessionsPath(), nil)
	}
	return c.Sessions
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to the command, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}
