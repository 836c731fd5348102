package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/output"
	"github.com/mrz1836/scout/internal/version"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

func TestRunNetworksList(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)

	require.NoError(t, runNetworksList(env.cmd, env.cc))

	var views []NetworkView
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &views))
	require.NotEmpty(t, views)
	for _, v := range views {
		assert.False(t, v.Testnet, "%s is a testnet", v.Key)
	}
	assert.Equal(t, "btc/normal", views[0].Key)
	assert.Equal(t, config.DefaultBackendURLs["btc"], views[0].Backend)
}

func TestRunNetworksList_SymbolWithTestnets(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	networksSymbol = "TEST"
	networksTestnets = true

	require.NoError(t, runNetworksList(env.cmd, env.cc))

	var views []NetworkView
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &views))
	require.NotEmpty(t, views)
	for _, v := range views {
		assert.Equal(t, "test", v.Symbol)
		assert.True(t, v.Testnet)
	}
}

func TestRunNetworksList_UnknownSymbol(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	networksSymbol = "btx"

	err := runNetworksList(env.cmd, env.cc)
	require.ErrorIs(t, err, scouterr.ErrUnknownNetwork)
}

func TestRunNetworksList_Text(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	require.NoError(t, runNetworksList(env.cmd, env.cc))
	assert.Contains(t, env.out.String(), "SYMBOL")
	assert.Contains(t, env.out.String(), "m/84'/0'/i'")
}

func TestRunConfigInit(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)

	require.NoError(t, runConfigInit(env.cmd, env.cc))
	path := config.Path(env.cc.Cfg.Home)
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBatchSize, loaded.Discovery.BatchSize)

	err = runConfigInit(env.cmd, env.cc)
	require.ErrorIs(t, err, scouterr.ErrInvalidInput, "existing file is kept without --force")

	configInitForce = true
	require.NoError(t, runConfigInit(env.cmd, env.cc))
}

func TestRunConfigShow(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.cc.Cfg.Discovery.BatchSize = 7

	require.NoError(t, runConfigShow(env.cmd, env.cc))

	var shown config.Config
	require.NoError(t, yaml.Unmarshal(env.out.Bytes(), &shown))
	assert.Equal(t, 7, shown.Discovery.BatchSize)
	assert.Equal(t, env.cc.Cfg.Home, shown.Home)
}

func TestRunConfigShow_JSON(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)

	require.NoError(t, runConfigShow(env.cmd, env.cc))

	var shown map[string]any
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &shown))
	assert.Contains(t, shown, "discovery")
	assert.Contains(t, shown, "backend")
}

func TestRunVersion(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)

	require.NoError(t, runVersion(env.cmd, env.cc))

	var info version.Info
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.Empty(t, info.Latest)
}

func TestRunVersion_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9"}`))
	}))
	defer srv.Close()

	orig := newVersionChecker
	t.Cleanup(func() { newVersionChecker = orig })
	newVersionChecker = func() *version.Checker {
		return &version.Checker{BaseURL: srv.URL, HTTPClient: srv.Client()}
	}

	env := newTestEnv(t, output.FormatText)
	versionCheck = true

	require.NoError(t, runVersion(env.cmd, env.cc))
	assert.Contains(t, env.out.String(), "scout "+version.Version)
	assert.Contains(t, env.errOut.String(), "v9.9.9")
}

func TestRunVersion_CheckFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	orig := newVersionChecker
	t.Cleanup(func() { newVersionChecker = orig })
	newVersionChecker = func() *version.Checker {
		return &version.Checker{BaseURL: srv.URL, HTTPClient: srv.Client()}
	}

	env := newTestEnv(t, output.FormatText)
	versionCheck = true

	require.NoError(t, runVersion(env.cmd, env.cc), "a failed check only warns")
	assert.Contains(t, env.errOut.String(), "could not check for updates")
}

func TestCompletionCmd(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			buf := &bytes.Buffer{}
			completionCmd.SetOut(buf)
			t.Cleanup(func() { completionCmd.SetOut(nil) })

			require.NoError(t, completionCmd.RunE(completionCmd, []string{shell}))
			assert.Contains(t, buf.String(), "scout")
		})
	}
}

func TestEnrichParentLong(t *testing.T) {
	parent := &cobra.Command{Use: "parent", Long: "Parent command."}
	parent.AddCommand(
		&cobra.Command{Use: "alpha", Short: "First", Run: func(*cobra.Command, []string) {}},
		&cobra.Command{Use: "hidden", Short: "Hidden", Hidden: true, Run: func(*cobra.Command, []string) {}},
	)

	enrichParentLong(parent)
	enrichParentLong(parent)

	assert.Equal(t, 1, strings.Count(parent.Long, "Subcommands:"))
	assert.Contains(t, parent.Long, "alpha")
	assert.NotContains(t, parent.Long, "hidden")
}

func TestCommandTree(t *testing.T) {
	want := []string{"accounts", "completion", "config", "device", "discover", "networks", "version"}
	var got []string
	for _, c := range rootCmd.Commands() {
		if c.Name() != "help" {
			got = append(got, c.Name())
		}
	}
	assert.Subset(t, got, want)
}

func TestLoadConfig(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	home := t.TempDir()
	c, err := loadConfig(home)
	require.NoError(t, err)
	assert.Equal(t, home, c.Home, "defaults when no file exists")

	written := config.Defaults()
	written.Discovery.BatchSize = 9
	require.NoError(t, config.Save(written, config.Path(home)))

	t.Setenv(config.EnvBatchSize, "4")
	c, err = loadConfig(home)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Discovery.BatchSize, "environment overrides the file")
	assert.Equal(t, home, c.Home)
}

func TestLoadConfig_Corrupt(t *testing.T) {
	resetFlags()
	home := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(home), []byte("discovery: ["), 0o600))

	_, err := loadConfig(home)
	require.ErrorIs(t, err, scouterr.ErrConfigInvalid)
}

func TestInitGlobals(t *testing.T) {
	resetFlags()
	t.Cleanup(func() {
		resetFlags()
		cleanup()
		cfg, logger, formatter = nil, nil, nil
	})

	homeDir = t.TempDir()
	written := config.Defaults()
	written.Logging.File = filepath.Join(homeDir, "scout.log")
	require.NoError(t, config.Save(written, config.Path(homeDir)))
	outputFormat = "json"
	verbose = true

	require.NoError(t, initGlobals())
	assert.Equal(t, homeDir, cfg.Home)
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, formatter.IsJSON())
	require.NotNil(t, logger)
	logger.Debug("hello")
	assert.FileExists(t, filepath.Join(homeDir, "scout.log"))
}

func TestInitGlobals_BadFormat(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	homeDir = t.TempDir()
	outputFormat = "xml"

	require.ErrorIs(t, initGlobals(), scouterr.ErrInvalidInput)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, scouterr.ExitSuccess, ExitCode(nil))
	assert.Equal(t, scouterr.ExitDevice, ExitCode(scouterr.ErrDeviceNotFound))
	assert.Equal(t, scouterr.ExitGeneral, ExitCode(assert.AnError))
}

func TestCmdContext_Roundtrip(t *testing.T) {
	cc := NewCommandContext(config.Defaults(), config.NullLogger(), output.NewFormatter(output.FormatText, &bytes.Buffer{}))
	require.NotNil(t, cc.Catalog)
	assert.False(t, cc.Msg.Quiet)

	cmd := &cobra.Command{}
	assert.Nil(t, GetCmdContext(cmd))

	SetCmdContext(cmd, cc)
	assert.Same(t, cc, GetCmdContext(cmd))
}

func TestPromptNewPassword(t *testing.T) {
	answers := []string{testPassword, "different password"}
	orig := promptPasswordFn
	t.Cleanup(func() { promptPasswordFn = orig })
	promptPasswordFn = func(string) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}

	_, err := promptNewPassword()
	require.ErrorIs(t, err, scouterr.ErrInvalidInput, "mismatched confirmation")
}
