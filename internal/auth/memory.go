package auth

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory token table for dev mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]string)}
}

// Put registers a token for a user.
func (m *MemoryStore) Put(token, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = userID
}

func (m *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.sessions[token]
	if !ok {
		return "", ErrNoSession
	}
	return userID, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }
