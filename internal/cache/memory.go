package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider used for one-shot CLI runs and
// tests where no external cache is configured.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]memoryItem)}
}

// Get returns a cached value if present and not expired.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	item, ok := p.data[key]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		p.mu.Lock()
		delete(p.data, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores a value with optional TTL (ttl <= 0 means no expiry).
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.data[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: expires}
	p.mu.Unlock()
	return nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.data, key)
	p.mu.Unlock()
	return nil
}

// Close is a no-op.
func (p *MemoryProvider) Close() error { return nil }
