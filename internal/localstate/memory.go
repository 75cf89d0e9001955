package localstate

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and local development. It
// provides the same field-level write semantics as the durable backends
// without surviving process exit.
type Memory struct {
	mu       sync.RWMutex
	entry    CacheEntry
	hasEntry bool
	signal   Signal
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) PutCache(ctx context.Context, entry CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = entry
	m.hasEntry = true
	return nil
}

func (m *Memory) GetCache(ctx context.Context) (CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entry, m.hasEntry, nil
}

func (m *Memory) ClearCache(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = CacheEntry{}
	m.hasEntry = false
	return nil
}

func (m *Memory) ReadSignal(ctx context.Context) (Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signal, nil
}

func (m *Memory) SetAuthenticated(ctx context.Context, authenticated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal.Authenticated = authenticated
	m.signal.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetIdentity(ctx context.Context, identityKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal.IdentityKey = identityKey
	m.signal.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) RequestRefresh(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal.RefreshRequested = true
	m.signal.RefreshRequestedAt = at.UTC()
	m.signal.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ClearRefreshRequest(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal.RefreshRequested = false
	m.signal.RefreshRequestedAt = time.Time{}
	m.signal.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetResyncNeeded(ctx context.Context, needed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal.ResyncNeeded = needed
	m.signal.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Close() error { return nil }
