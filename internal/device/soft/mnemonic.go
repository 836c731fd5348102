package soft

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/scout/internal/secret"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

// maxTypoDistance bounds how far a misspelled word may be from a suggestion.
const maxTypoDistance = 2

var (
	// ErrInvalidWordCount indicates the mnemonic must be 12 or 24 words.
	ErrInvalidWordCount = errors.New("word count must be 12 or 24")

	// ErrMnemonicExists is returned when saving would overwrite a mnemonic file.
	ErrMnemonicExists = errors.New("mnemonic file already exists")

	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
)

// GenerateMnemonic creates a new BIP39 mnemonic of 12 or 24 words.
func GenerateMnemonic(wordCount int) (string, error) {
	var bitSize int
	switch wordCount {
	case 12:
		bitSize = 128
	case 24:
		bitSize = 256
	default:
		return "", ErrInvalidWordCount
	}

	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// NormalizeMnemonic lowercases the phrase, strips numbered-list prefixes and
// commas, and collapses whitespace.
func NormalizeMnemonic(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// ValidateMnemonic checks word count, word validity and checksum. An
// invalid phrase yields ErrInvalidMnemonic, with a suggestion when a word
// looks like a typo.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := strings.Fields(normalized)
	if len(words) != 12 && len(words) != 24 {
		return scouterr.WithCause(scouterr.ErrInvalidMnemonic, ErrInvalidWordCount)
	}

	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		out := scouterr.WithCause(scouterr.ErrInvalidMnemonic, err)
		for i, w := range words {
			if _, ok := bip39.GetWordIndex(w); ok {
				continue
			}
			if s := SuggestWord(w); s != "" {
				return scouterr.WithSuggestion(out, fmt.Sprintf("word %d: did you mean '%s'?", i+1, s))
			}
		}
		return out
	}
	return nil
}

// SuggestWord returns the closest BIP39 word to input, or "" when nothing is
// close enough.
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.GetWordList() {
		d := levenshtein.ComputeDistance(input, word)
		if d == 0 {
			return word
		}
		if d < minDist {
			minDist, suggestion = d, word
		}
	}
	if minDist <= maxTypoDistance {
		return suggestion
	}
	return ""
}

// LoadMnemonic reads a mnemonic file. When encrypted is true the file is
// decrypted with an age scrypt identity derived from password.
func LoadMnemonic(path string, encrypted bool, password string) (string, error) {
	// #nosec G304 -- mnemonic path comes from config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", scouterr.WithDetails(scouterr.ErrDeviceNotFound, map[string]string{"mnemonic_file": path})
		}
		return "", fmt.Errorf("reading mnemonic file: %w", err)
	}

	if encrypted {
		data, err = secret.Decrypt(data, password)
		if err != nil {
			return "", scouterr.WithCause(scouterr.ErrDecryptionFailed, err)
		}
	}

	mnemonic := NormalizeMnemonic(string(data))
	if err := ValidateMnemonic(mnemonic); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// SaveMnemonic writes mnemonic to path, age-encrypted when password is not
// empty. It refuses to overwrite an existing file.
func SaveMnemonic(path, mnemonic, password string) error {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return err
	}

	data := []byte(NormalizeMnemonic(mnemonic) + "\n")
	if password != "" {
		var err error
		if data, err = secret.Encrypt(data, password); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	// #nosec G304 -- mnemonic path comes from config
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrMnemonicExists
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
