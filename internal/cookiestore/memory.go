package cookiestore

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore holds the snapshot for the lifetime of the process.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// Compile-time check to ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, ErrNotFound
	}
	return bytes.Clone(m.data), nil
}

func (m *MemoryStore) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = bytes.Clone(data)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
