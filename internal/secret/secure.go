package secret

import (
	"crypto/rand"
	"io"
	"runtime"
	"sync"
)

// Bytes wraps sensitive data in memory that is mlocked when the platform
// allows it and zeroed on Destroy.
type Bytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// New allocates size bytes of secure memory.
func New(size int) *Bytes {
	b := &Bytes{data: make([]byte, size)}
	b.locked = mlock(b.data)

	runtime.SetFinalizer(b, func(s *Bytes) {
		s.Destroy()
	})
	return b
}

// FromSlice copies data into secure memory. The caller still owns data.
func FromSlice(data []byte) *Bytes {
	b := New(len(data))
	copy(b.data, data)
	return b
}

// Random returns n random bytes in secure memory.
func Random(n int) (*Bytes, error) {
	b := New(n)
	if _, err := io.ReadFull(rand.Reader, b.data); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// Bytes returns the underlying slice, or nil after Destroy.
func (b *Bytes) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// String copies the data into a string. Strings cannot be zeroed, so use
// this only at boundaries that require one.
func (b *Bytes) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Len returns the data length.
func (b *Bytes) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// IsLocked reports whether the memory is mlocked.
func (b *Bytes) IsLocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Destroy zeros and unlocks the memory. Safe to call more than once.
func (b *Bytes) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.data == nil {
		return
	}
	Zero(b.data)
	if b.locked {
		munlock(b.data)
		b.locked = false
	}
	b.data = nil
	runtime.SetFinalizer(b, nil)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// keeps the stores from being optimized away
	runtime.KeepAlive(b)
}
