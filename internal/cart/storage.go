package cart

import (
	"context"
	"errors"
	"sync"
)

// Storage keys, kept from the browser carts so existing payloads stay readable.
const (
	ServicesKey = "carritoServicios"
	ProductsKey = "carritoProductos"
)

// Storage is a per-owner key/value store holding serialized carts.
// Load returns (nil, nil) when the key is absent.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps one owner's carts in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(data))
	copy(v, data)
	m.data[key] = v
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// MemoryPool hands out one MemoryStorage per owner, for local runs without Redis.
type MemoryPool struct {
	mu      sync.Mutex
	byOwner map[string]*MemoryStorage
}

func NewMemoryPool() *MemoryPool {
	return &MemoryPool{byOwner: make(map[string]*MemoryStorage)}
}

func (p *MemoryPool) For(owner string) (Storage, error) {
	if owner == "" {
		return nil, errors.New("cart owner is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byOwner[owner]
	if !ok {
		s = NewMemoryStorage()
		p.byOwner[owner] = s
	}
	return s, nil
}
