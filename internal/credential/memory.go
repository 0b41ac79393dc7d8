package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps the pair in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return Credential{}, ErrNotFound
	}
	return *m.cred, nil
}

func (m *MemoryStore) Set(_ context.Context, c Credential) error {
	if err := checkComplete(c); err != nil {
		return err
	}
	m.mu.Lock()
	m.cred = &c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
