package session

import (
	"sync"
)

// mockKeyring is an in-memory Keyring.
type mockKeyring struct {
	mu      sync.Mutex
	store   map[string]string
	setErr  error
	failing bool
}

func newMockKeyring() *mockKeyring {
	return &mockKeyring{store: make(map[string]string)}
}

func (m *mockKeyring) Set(service, user, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrKeyringUnavailable
	}
	if m.setErr != nil {
		return m.setErr
	}
	m.store[service+":"+user] = password
	return nil
}

func (m *mockKeyring) Get(service, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", ErrKeyringUnavailable
	}
	val, ok := m.store[service+":"+user]
	if !ok {
		return "", ErrSessionNotFound
	}
	return val, nil
}

func (m *mockKeyring) Delete(service, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrKeyringUnavailable
	}
	delete(m.store, service+":"+user)
	return nil
}

func (m *mockKeyring) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}
