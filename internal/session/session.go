// Package session caches an unlocked recovery phrase between commands.
// After one password prompt the phrase is re-encrypted with a random key
// kept in the OS keychain, so later commands can open the device without
// asking again until the session expires.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"time"

	"github.com/mrz1836/scout/internal/secret"
)

// Session limits.
const (
	// DefaultTTL is the default session duration.
	DefaultTTL = 15 * time.Minute

	// MaxTTL is the longest allowed session.
	MaxTTL = 8 * time.Hour

	// MinTTL is the shortest allowed session.
	MinTTL = time.Minute

	// ServiceName is the keyring service name for scout sessions.
	ServiceName = "scout-session"
)

// Session errors.
var (
	// ErrSessionNotFound indicates no session exists for the phrase file.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrKeyringUnavailable indicates the OS keyring is not available.
	ErrKeyringUnavailable = errors.New("keyring unavailable")

	// ErrSessionCorrupted indicates the session file is corrupted.
	ErrSessionCorrupted = errors.New("session corrupted")

	// ErrInvalidName indicates a session name with unsafe characters.
	ErrInvalidName = errors.New("invalid session name")
)

// Session describes an active unlock session.
type Session struct {
	Name       string    `json:"name"`
	PhraseFile string    `json:"phrase_file"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsValid returns true if the session has not expired.
func (s *Session) IsValid() bool {
	return time.Now().Before(s.ExpiresAt)
}

// TTL returns the remaining lifetime, or 0 once expired.
func (s *Session) TTL() time.Duration {
	remaining := time.Until(s.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Manager starts, reads and ends unlock sessions.
type Manager interface {
	// Available reports whether the keyring can hold session keys.
	Available() bool

	// Start caches phrase for phraseFile for ttl, clamped to MinTTL..MaxTTL.
	Start(phraseFile string, phrase []byte, ttl time.Duration) (*Session, error)

	// Get returns the cached phrase. The caller must Destroy it.
	Get(phraseFile string) (*secret.Bytes, *Session, error)

	// Has reports whether a live session exists for phraseFile.
	Has(phraseFile string) bool

	// End removes the session for phraseFile.
	End(phraseFile string) error

	// EndAll removes every session and returns how many were removed.
	EndAll() int

	// List returns the sessions that have not expired.
	List() ([]*Session, error)
}

// Keyring stores secrets. The OS keychain implements it in production.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// NameFor returns the session name for a phrase file. The name is stable
// for a path and safe to use as a file name.
func NameFor(phraseFile string) string {
	if abs, err := filepath.Abs(phraseFile); err == nil {
		phraseFile = abs
	}
	sum := sha256.Sum256([]byte(phraseFile))
	return "phrase-" + hex.EncodeToString(sum[:8])
}

func clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	}
	return ttl
}
