package session

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/scout/internal/fileutil"
	"github.com/mrz1836/scout/internal/secret"
)

// nameRegex limits session names to safe file name characters.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const (
	sessionFileExtension   = ".session"
	sessionFilePermissions = 0o600
	sessionDirPermissions  = 0o700

	// sessionKeyLength is the length of the random session key in bytes.
	sessionKeyLength = 32

	// probeKeyringTimeout bounds the keyring probe so a hung keyring
	// daemon cannot stall the CLI.
	probeKeyringTimeout = 3 * time.Second
)

// sessionFile is the on-disk session record.
type sessionFile struct {
	Session         *Session `json:"session"`
	EncryptedPhrase []byte   `json:"encrypted_phrase"`
}

// FileManager implements Manager with session files under basePath and
// session keys in a Keyring.
type FileManager struct {
	basePath  string
	keyring   Keyring
	available bool
	now       func() time.Time
	mu        sync.RWMutex
}

var _ Manager = (*FileManager)(nil)

// NewManager creates a session manager rooted at basePath. A nil keyring
// means the OS keychain. The keyring is probed once on creation.
func NewManager(basePath string, kr Keyring) *FileManager {
	if kr == nil {
		kr = NewOSKeyring()
	}
	m := &FileManager{
		basePath: basePath,
		keyring:  kr,
		now:      time.Now,
	}
	m.available = m.probeKeyring()
	return m
}

// Available returns true if session caching is available.
func (m *FileManager) Available() bool {
	return m.available
}

// Start caches phrase for phraseFile.
func (m *FileManager) Start(phraseFile string, phrase []byte, ttl time.Duration) (*Session, error) {
	name := NameFor(phraseFile)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.available {
		return nil, ErrKeyringUnavailable
	}

	key, err := secret.Random(sessionKeyLength)
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	defer key.Destroy()

	encrypted, err := secret.Encrypt(phrase, hex.EncodeToString(key.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("encrypting phrase: %w", err)
	}

	if err = m.keyring.Set(ServiceName, keyringUser(name), base64.StdEncoding.EncodeToString(key.Bytes())); err != nil {
		return nil, fmt.Errorf("storing session key in keyring: %w", err)
	}

	now := m.now()
	sess := &Session{
		Name:       name,
		PhraseFile: phraseFile,
		CreatedAt:  now,
		ExpiresAt:  now.Add(clampTTL(ttl)),
	}

	data, err := json.MarshalIndent(sessionFile{Session: sess, EncryptedPhrase: encrypted}, "", "  ")
	if err != nil {
		_ = m.keyring.Delete(ServiceName, keyringUser(name))
		return nil, fmt.Errorf("marshaling session: %w", err)
	}
	if err = fileutil.WriteFile(m.sessionPath(name), data, sessionFilePermissions, sessionDirPermissions); err != nil {
		_ = m.keyring.Delete(ServiceName, keyringUser(name))
		return nil, fmt.Errorf("writing session file: %w", err)
	}
	return sess, nil
}

// Get returns the cached phrase for phraseFile. Expired, orphaned or
// unreadable sessions are removed.
func (m *FileManager) Get(phraseFile string) (*secret.Bytes, *Session, error) {
	name := NameFor(phraseFile)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.available {
		return nil, nil, ErrKeyringUnavailable
	}

	sf, err := m.readLocked(name)
	if err != nil {
		if errors.Is(err, ErrSessionCorrupted) {
			_ = m.cleanupLocked(name)
		}
		return nil, nil, err
	}
	if !m.valid(sf.Session) {
		_ = m.cleanupLocked(name)
		return nil, nil, ErrSessionExpired
	}

	encodedKey, err := m.keyring.Get(ServiceName, keyringUser(name))
	if err != nil {
		_ = m.cleanupLocked(name)
		return nil, nil, ErrSessionNotFound
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		_ = m.cleanupLocked(name)
		return nil, nil, ErrSessionCorrupted
	}
	defer secret.Zero(key)

	phrase, err := secret.DecryptSecure(sf.EncryptedPhrase, hex.EncodeToString(key))
	if err != nil {
		_ = m.cleanupLocked(name)
		return nil, nil, ErrSessionCorrupted
	}
	return phrase, sf.Session, nil
}

// Has reports whether a live session exists for phraseFile without
// decrypting it.
func (m *FileManager) Has(phraseFile string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.available {
		return false
	}
	sf, err := m.readLocked(NameFor(phraseFile))
	return err == nil && m.valid(sf.Session)
}

// End removes the session for phraseFile.
func (m *FileManager) End(phraseFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupLocked(NameFor(phraseFile))
}

// EndAll removes all sessions, expired ones included.
func (m *FileManager) EndAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.namesLocked()
	if err != nil {
		return 0
	}
	count := 0
	for _, name := range names {
		if m.cleanupLocked(name) == nil {
			count++
		}
	}
	return count
}

// List returns the sessions that have not expired.
func (m *FileManager) List() ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.available {
		return nil, ErrKeyringUnavailable
	}

	names, err := m.namesLocked()
	if err != nil {
		return nil, err
	}
	var sessions []*Session
	for _, name := range names {
		sf, readErr := m.readLocked(name)
		if readErr != nil || !m.valid(sf.Session) {
			continue
		}
		sessions = append(sessions, sf.Session)
	}
	return sessions, nil
}

func (m *FileManager) valid(s *Session) bool {
	return s != nil && m.now().Before(s.ExpiresAt)
}

func (m *FileManager) readLocked(name string) (*sessionFile, error) {
	path := m.sessionPath(name)
	if path == "" {
		return nil, ErrInvalidName
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from a validated name
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil || sf.Session == nil {
		return nil, ErrSessionCorrupted
	}
	return &sf, nil
}

func (m *FileManager) namesLocked() ([]string, error) {
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionFileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), sessionFileExtension))
	}
	return names, nil
}

// cleanupLocked removes both the session file and the keyring entry.
func (m *FileManager) cleanupLocked(name string) error {
	path := m.sessionPath(name)
	if path == "" {
		return ErrInvalidName
	}

	_ = m.keyring.Delete(ServiceName, keyringUser(name))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

func (m *FileManager) probeKeyring() bool {
	ch := make(chan bool, 1)
	go func() {
		ch <- m.probeKeyringSync()
	}()

	select {
	case ok := <-ch:
		return ok
	case <-time.After(probeKeyringTimeout):
		return false
	}
}

func (m *FileManager) probeKeyringSync() bool {
	const (
		probeService = "scout-probe"
		probeUser    = "probe"
		probeValue   = "ok"
	)

	if err := m.keyring.Set(probeService, probeUser, probeValue); err != nil {
		return false
	}
	val, err := m.keyring.Get(probeService, probeUser)
	if err != nil || val != probeValue {
		_ = m.keyring.Delete(probeService, probeUser)
		return false
	}
	return m.keyring.Delete(probeService, probeUser) == nil
}

func keyringUser(name string) string {
	return "phrase:" + name
}

// sessionPath returns the file for name, or "" when name is unsafe.
func (m *FileManager) sessionPath(name string) string {
	if !nameRegex.MatchString(name) {
		return ""
	}
	return filepath.Join(m.basePath, name+sessionFileExtension)
}
