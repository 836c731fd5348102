package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/scout/internal/fileutil"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

const (
	// currentVersion is the current file format version.
	currentVersion = 1

	filePermissions = 0o600
	dirPermissions  = 0o700
)

// File represents the JSON file structure (versioned).
type File struct {
	Version   int                 `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
	Accounts  map[string]*Account `json:"accounts"` // key: deviceState:symbol:path
}

// Store manages account persistence in a single JSON file.
// It is safe for concurrent use.
type Store struct {
	path string
	mu   sync.RWMutex
	data *File
	now  func() time.Time
}

// New creates a store backed by path. Nothing is read until Load is called.
func New(path string) *Store {
	return &Store{
		path: path,
		data: emptyFile(),
		now:  time.Now,
	}
}

// Open creates a store and loads it from disk.
func Open(path string) (*Store, error) {
	s := New(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func emptyFile() *File {
	return &File{
		Version:  currentVersion,
		Accounts: make(map[string]*Account),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the store from disk. A missing file yields an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- store path comes from config
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.data = emptyFile()
			return nil
		}
		return fmt.Errorf("reading accounts file: %w", err)
	}

	f := emptyFile()
	if err := json.Unmarshal(data, f); err != nil {
		return scouterr.WithCause(scouterr.ErrStoreCorrupted, err)
	}
	if f.Accounts == nil {
		f.Accounts = make(map[string]*Account)
	}
	s.data = f
	return nil
}

// IsAccountAlreadyDiscovered reports whether an account exists for the
// device at symbol and path.
func (s *Store) IsAccountAlreadyDiscovered(deviceState, symbol, path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.Accounts[key(deviceState, symbol, path)]
	return ok
}

// CreateAccount persists acct under deviceState and reports whether it was
// inserted. An account that already exists is left untouched and yields
// false. Label and CreatedAt are filled in when empty.
func (s *Store) CreateAccount(ctx context.Context, deviceState string, acct Account) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct.DeviceState = deviceState
	k := acct.Key()
	if _, exists := s.data.Accounts[k]; exists {
		return false, nil
	}

	if acct.Label == "" {
		acct.Label = DefaultLabel(acct.Symbol, acct.AccountType, acct.Index)
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = s.now().UTC()
	}

	s.data.Accounts[k] = &acct
	if err := s.saveLocked(); err != nil {
		delete(s.data.Accounts, k)
		return false, err
	}
	return true, nil
}

// CountByNetwork returns the number of accounts per symbol for the device.
func (s *Store) CountByNetwork(deviceState string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range s.data.Accounts {
		if a.DeviceState == deviceState {
			counts[a.Symbol]++
		}
	}
	return counts
}

// List returns the accounts of the device ordered by symbol, account type
// and index. An empty deviceState lists every account.
func (s *Store) List(deviceState string) []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.data.Accounts))
	for _, a := range s.data.Accounts {
		if deviceState == "" || a.DeviceState == deviceState {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DeviceState != b.DeviceState {
			return a.DeviceState < b.DeviceState
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.AccountType != b.AccountType {
			return a.AccountType < b.AccountType
		}
		return a.Index < b.Index
	})
	return out
}

// Rename sets the label of an existing account. Empty labels restore the
// default one.
func (s *Store) Rename(deviceState, symbol, path, label string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data.Accounts[key(deviceState, symbol, path)]
	if !ok {
		return Account{}, scouterr.WithDetails(scouterr.ErrNotFound, map[string]string{
			"device": deviceState, "symbol": symbol, "path": path,
		})
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultLabel(a.Symbol, a.AccountType, a.Index)
	}
	prev := a.Label
	a.Label = label
	if err := s.saveLocked(); err != nil {
		a.Label = prev
		return Account{}, err
	}
	return *a, nil
}

// Forget removes every account of the device and returns how many were removed.
func (s *Store) Forget(deviceState string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]*Account)
	for k, a := range s.data.Accounts {
		if a.DeviceState == deviceState {
			removed[k] = a
			delete(s.data.Accounts, k)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := s.saveLocked(); err != nil {
		for k, a := range removed {
			s.data.Accounts[k] = a
		}
		return 0, err
	}
	return len(removed), nil
}

// saveLocked writes the store to disk. Caller must hold the write lock.
func (s *Store) saveLocked() error {
	s.data.Version = currentVersion
	s.data.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling accounts: %w", err)
	}

	if err := fileutil.WriteFile(s.path, data, filePermissions, dirPermissions); err != nil {
		return fmt.Errorf("writing accounts file: %w", err)
	}
	return nil
}
