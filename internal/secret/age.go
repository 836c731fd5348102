// Package secret holds the encryption and memory hygiene helpers used for
// recovery phrases and cached unlock sessions.
package secret

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"filippo.io/age"
)

// defaultWorkFactor is the scrypt work factor age uses for new files.
const defaultWorkFactor = 18

//nolint:gochecknoglobals // Tests lower the work factor to keep scrypt fast
var workFactor atomic.Int32

// SetScryptWorkFactor sets the log2 scrypt work factor for new ciphertexts.
// Values outside 1..30 restore the default. Decryption accepts any factor
// up to the age maximum.
func SetScryptWorkFactor(logN int) {
	if logN < 1 || logN > 30 {
		logN = 0
	}
	workFactor.Store(int32(logN)) //nolint:gosec // bounded above
}

// Encrypt encrypts plaintext using age with a password-based recipient.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if logN := int(workFactor.Load()); logN > 0 {
		recipient.SetWorkFactor(logN)
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt decrypts ciphertext using age with a password-based identity.
func Decrypt(ciphertext []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

// DecryptSecure decrypts ciphertext straight into locked memory. The
// intermediate plaintext is zeroed before returning.
func DecryptSecure(ciphertext []byte, password string) (*Bytes, error) {
	plaintext, err := Decrypt(ciphertext, password)
	if err != nil {
		return nil, err
	}
	defer Zero(plaintext)

	return FromSlice(plaintext), nil
}
