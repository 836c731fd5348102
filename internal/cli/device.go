package cli

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/device"
	"github.com/mrz1836/scout/internal/device/soft"
	"github.com/mrz1836/scout/internal/network"
	"github.com/mrz1836/scout/internal/output"
	"github.com/mrz1836/scout/internal/secret"
	"github.com/mrz1836/scout/internal/session"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// deviceInitWords is the number of words for mnemonic generation.
	deviceInitWords int
	// deviceInitImport reads an existing phrase instead of generating one.
	deviceInitImport bool
	// deviceInitNoEncrypt stores the phrase in plain text.
	deviceInitNoEncrypt bool
	// devicePassphrase prompts for a BIP39 passphrase when loading the device.
	devicePassphrase bool
	// deviceUnlockTTL overrides device.session_ttl.
	deviceUnlockTTL time.Duration
	// deviceLockAll ends every cached session, not just this phrase file's.
	deviceLockAll bool
)

// deviceCmd is the parent command for the software device.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage the software signing device",
	Long: `Scout derives account descriptors from a recovery phrase stored on disk,
encrypted with age by default. The phrase plus an optional BIP39 passphrase
identify the device.`,
}

// deviceInitCmd creates the recovery phrase file.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deviceInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or import the recovery phrase",
	Long: `Generate a new recovery phrase, or import an existing one with --import,
and store it at device.mnemonic_file.

The file is encrypted with a password unless --no-encrypt is given. An
existing file is never overwritten.

Example:
  scout device init --words 24
  scout device init --import`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDeviceInit(cmd, GetCmdContext(cmd))
	},
}

// deviceShowCmd shows the identity of the device.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deviceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the device state and capabilities",
	Long: `Unlock the recovery phrase and print the device state, fingerprint and
the networks it can describe.

Example:
  scout device show
  scout device show --passphrase -o json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDeviceShow(cmd, GetCmdContext(cmd))
	},
}

// deviceUnlockCmd caches the decrypted phrase.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deviceUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Cache the unlocked phrase for a while",
	Long: `Ask for the phrase password once and cache the phrase, re-encrypted with a
random key held in the OS keychain, so later commands do not prompt again
until the session expires.

Example:
  scout device unlock
  scout device unlock --ttl 1h`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDeviceUnlock(cmd, GetCmdContext(cmd))
	},
}

// deviceLockCmd ends cached sessions.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deviceLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Forget the cached phrase",
	Long: `End the unlock session for the configured phrase file, or every session
with --all.

Example:
  scout device lock
  scout device lock --all`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDeviceLock(cmd, GetCmdContext(cmd))
	},
}

// DeviceInfo is the JSON view of a device.
type DeviceInfo struct {
	State        string   `json:"state"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	MnemonicFile string   `json:"mnemonic_file"`
	Encrypted    bool     `json:"encrypted"`
	Derivations  []string `json:"derivations"`
	Networks     []string `json:"networks"`
}

func runDeviceInit(_ *cobra.Command, cc *CommandContext) error {
	path := cc.Cfg.MnemonicPath()

	var (
		mnemonic string
		err      error
	)
	if deviceInitImport {
		if mnemonic, err = promptMnemonicFn(); err != nil {
			return err
		}
		if err = soft.ValidateMnemonic(mnemonic); err != nil {
			return err
		}
		mnemonic = soft.NormalizeMnemonic(mnemonic)
	} else {
		if mnemonic, err = soft.GenerateMnemonic(deviceInitWords); err != nil {
			return scouterr.WithCause(scouterr.ErrInvalidInput, err)
		}
	}

	var password []byte
	if !deviceInitNoEncrypt {
		if password, err = promptNewPasswordFn(); err != nil {
			return err
		}
		defer secret.Zero(password)
	}

	if err = soft.SaveMnemonic(path, mnemonic, string(password)); err != nil {
		if errors.Is(err, soft.ErrMnemonicExists) {
			return scouterr.WithSuggestion(
				scouterr.WithDetails(scouterr.ErrInvalidInput, map[string]string{"mnemonic_file": path}),
				"remove the file first or point device.mnemonic_file elsewhere",
			)
		}
		return err
	}

	if cc.Cfg.Device.Encrypted == deviceInitNoEncrypt {
		cc.Cfg.Device.Encrypted = !deviceInitNoEncrypt
		if err = config.Save(cc.Cfg, config.Path(cc.Cfg.Home)); err != nil {
			return err
		}
	}
	cc.Log.Info("device phrase written to %s (encrypted=%t)", path, !deviceInitNoEncrypt)

	result := struct {
		MnemonicFile string `json:"mnemonic_file"`
		Encrypted    bool   `json:"encrypted"`
		Imported     bool   `json:"imported"`
		Mnemonic     string `json:"mnemonic,omitempty"`
	}{MnemonicFile: path, Encrypted: !deviceInitNoEncrypt, Imported: deviceInitImport}
	if !deviceInitImport {
		result.Mnemonic = mnemonic
	}

	return cc.Fmt.Emit(result, func(w io.Writer) error {
		if !deviceInitImport {
			outln(w, "Write down your recovery phrase and keep it offline:")
			outln(w)
			outln(w, "  "+mnemonic)
			outln(w)
		}
		cc.Msg.Successf("Recovery phrase saved to %s", path)
		return nil
	})
}

func runDeviceShow(cmd *cobra.Command, cc *CommandContext) error {
	dev, err := loadDevice(cmd, cc)
	if err != nil {
		return err
	}

	derivations, err := dev.AvailableDerivations(cmd.Context())
	if err != nil {
		return err
	}

	info := DeviceInfo{
		State:        dev.State(),
		MnemonicFile: cc.Cfg.MnemonicPath(),
		Encrypted:    cc.Cfg.Device.Encrypted,
		Derivations:  make([]string, 0, len(derivations)),
		Networks:     []string{},
	}
	if fp, ok := dev.(interface{ Fingerprint() string }); ok {
		info.Fingerprint = fp.Fingerprint()
	}
	for _, d := range derivations {
		info.Derivations = append(info.Derivations, string(d))
	}
	for _, n := range cc.Catalog.Filter(true, nil) {
		if dev.Supports(n) {
			info.Networks = append(info.Networks, n.Key())
		}
	}

	return cc.Fmt.Emit(info, func(w io.Writer) error {
		t := output.NewTable("", "")
		t.SetNoHeader(true)
		t.AddRow("State:", info.State)
		if info.Fingerprint != "" {
			t.AddRow("Fingerprint:", info.Fingerprint)
		}
		t.AddRow("Phrase file:", info.MnemonicFile)
		t.AddRow("Encrypted:", boolText(info.Encrypted))
		t.AddRow("Derivations:", listText(info.Derivations))
		t.AddRow("Networks:", listText(info.Networks))
		return t.Render(w)
	})
}

// SessionInfo is the JSON view of an unlock session.
type SessionInfo struct {
	PhraseFile string    `json:"phrase_file"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTL        string    `json:"ttl"`
}

func runDeviceUnlock(cmd *cobra.Command, cc *CommandContext) error {
	if !cc.Cfg.Device.Encrypted {
		return scouterr.WithSuggestion(scouterr.ErrInvalidInput, "the phrase file is not encrypted, nothing to unlock")
	}

	ttl := cc.Cfg.Device.SessionTTL
	if cmd.Flags().Changed("ttl") {
		ttl = deviceUnlockTTL
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}

	sessions := cc.sessions()
	if !sessions.Available() {
		return scouterr.WithSuggestion(
			scouterr.WithCause(scouterr.ErrNotSupported, session.ErrKeyringUnavailable),
			"no OS keychain is reachable; commands will prompt for the password instead",
		)
	}

	path := cc.Cfg.MnemonicPath()
	mnemonic, err := readPhrase(cc, path)
	if err != nil {
		return err
	}

	sess, err := sessions.Start(path, []byte(mnemonic), ttl)
	if err != nil {
		return err
	}
	cc.Log.Info("unlock session %s started, expires %s", sess.Name, sess.ExpiresAt.Format(time.RFC3339))

	info := SessionInfo{PhraseFile: path, ExpiresAt: sess.ExpiresAt, TTL: sess.TTL().Round(time.Second).String()}
	return cc.Fmt.Emit(info, func(w io.Writer) error {
		outln(w, "Unlocked "+path+" until "+sess.ExpiresAt.Local().Format(time.Kitchen))
		return nil
	})
}

func runDeviceLock(_ *cobra.Command, cc *CommandContext) error {
	sessions := cc.sessions()

	removed := 0
	if deviceLockAll {
		removed = sessions.EndAll()
	} else {
		path := cc.Cfg.MnemonicPath()
		if sessions.Has(path) {
			removed = 1
		}
		if err := sessions.End(path); err != nil {
			return err
		}
	}
	cc.Log.Debug("ended %d unlock sessions", removed)

	result := struct {
		Removed int `json:"removed"`
	}{Removed: removed}
	return cc.Fmt.Emit(result, func(w io.Writer) error {
		if removed == 0 {
			outln(w, "No active session")
			return nil
		}
		out(w, "Ended %d session(s)\n", removed)
		return nil
	})
}

// loadDevice returns the device override or unlocks the software device
// from the configured phrase file, preferring a cached unlock session.
func loadDevice(_ *cobra.Command, cc *CommandContext) (device.Device, error) {
	if cc.Device != nil {
		return cc.Device, nil
	}

	path := cc.Cfg.MnemonicPath()
	mnemonic, ok := cachedPhrase(cc, path)
	if !ok {
		var err error
		if mnemonic, err = readPhrase(cc, path); err != nil {
			return nil, err
		}
	}

	var (
		passphrase string
		err        error
	)
	if devicePassphrase {
		if passphrase, err = promptPassphraseFn(); err != nil {
			return nil, err
		}
	}

	dev, err := soft.New(mnemonic, passphrase, parseDerivations(cc.Cfg.Device.Derivations))
	if err != nil {
		return nil, err
	}
	cc.Log.Debug("device %s unlocked", dev.State())
	return dev, nil
}

// readPhrase reads the phrase file, prompting for its password when it is
// encrypted.
func readPhrase(cc *CommandContext, path string) (string, error) {
	var (
		password []byte
		err      error
	)
	if cc.Cfg.Device.Encrypted {
		if _, statErr := os.Stat(path); statErr == nil {
			if password, err = promptPasswordFn("Enter phrase password: "); err != nil {
				return "", err
			}
			defer secret.Zero(password)
		}
	}

	mnemonic, err := soft.LoadMnemonic(path, cc.Cfg.Device.Encrypted, string(password))
	if err != nil {
		if scouterr.Is(err, scouterr.ErrDeviceNotFound) {
			return "", scouterr.WithSuggestion(err, "run 'scout device init' first")
		}
		return "", err
	}
	return mnemonic, nil
}

// cachedPhrase returns the phrase from an unlock session, if one is live.
func cachedPhrase(cc *CommandContext, path string) (string, bool) {
	if !cc.Cfg.Device.Encrypted {
		return "", false
	}
	sessions := cc.sessions()
	if !sessions.Available() {
		return "", false
	}

	phrase, sess, err := sessions.Get(path)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			cc.Log.Debug("unlock session unusable: %v", err)
		}
		return "", false
	}
	defer phrase.Destroy()

	cc.Log.Debug("phrase read from unlock session %s (%s left)", sess.Name, sess.TTL().Round(time.Second))
	return phrase.String(), true
}

func parseDerivations(names []string) []network.AccountType {
	out := make([]network.AccountType, 0, len(names))
	for _, n := range names {
		out = append(out, network.AccountType(strings.ToLower(n)))
	}
	return out
}

func boolText(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func listText(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	deviceInitCmd.Flags().IntVar(&deviceInitWords, "words", 24, "number of words to generate: 12 or 24")
	deviceInitCmd.Flags().BoolVar(&deviceInitImport, "import", false, "import an existing recovery phrase")
	deviceInitCmd.Flags().BoolVar(&deviceInitNoEncrypt, "no-encrypt", false, "store the phrase without encryption")

	deviceCmd.PersistentFlags().BoolVar(&devicePassphrase, "passphrase", false, "prompt for a BIP39 passphrase")

	deviceUnlockCmd.Flags().DurationVar(&deviceUnlockTTL, "ttl", 0, "session length (default device.session_ttl)")
	deviceLockCmd.Flags().BoolVar(&deviceLockAll, "all", false, "end every unlock session")

	deviceCmd.AddCommand(deviceInitCmd, deviceShowCmd, deviceUnlockCmd, deviceLockCmd)
	rootCmd.AddCommand(deviceCmd)
}
