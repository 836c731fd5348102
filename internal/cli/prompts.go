package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mrz1836/scout/internal/secret"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// minPasswordLength is the shortest accepted encryption password.
const minPasswordLength = 8

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // Swappable for tests
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptPassphraseFn  = promptPassphrase
	promptMnemonicFn    = promptMnemonic
	promptConfirmFn     = promptConfirm
)

// promptPassword prompts for a password with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

// promptNewPassword prompts for a new password with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPasswordFn("Enter encryption password: ")
	if err != nil {
		return nil, err
	}

	if len(password) < minPasswordLength {
		secret.Zero(password)
		return nil, scouterr.WithSuggestion(
			scouterr.ErrInvalidInput,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength),
		)
	}

	confirm, err := promptPasswordFn("Confirm password: ")
	if err != nil {
		secret.Zero(password)
		return nil, err
	}
	defer secret.Zero(confirm)

	if string(password) != string(confirm) {
		secret.Zero(password)
		return nil, scouterr.WithSuggestion(scouterr.ErrInvalidInput, "passwords do not match")
	}

	return password, nil
}

// promptPassphrase prompts for an optional BIP39 passphrase. Each passphrase
// opens a different set of accounts.
func promptPassphrase() (string, error) {
	outln(os.Stderr, "BIP39 passphrase (leave empty for none):")

	passphrase, err := promptPasswordFn("Enter passphrase: ")
	if err != nil {
		return "", err
	}
	defer secret.Zero(passphrase)

	return string(passphrase), nil
}

// promptMnemonic reads a recovery phrase with hidden input.
func promptMnemonic() (string, error) {
	phrase, err := promptPasswordFn("Enter recovery phrase: ")
	if err != nil {
		return "", err
	}
	defer secret.Zero(phrase)

	return string(phrase), nil
}

// promptConfirm asks a yes/no question on stderr and reads the answer from stdin.
func promptConfirm(question string) (bool, error) {
	out(os.Stderr, "%s [y/N]: ", question)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
