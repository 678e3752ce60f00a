package pricing

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store keyed by resource and scope.
// Safe for concurrent use. Suitable for tests and single-node
// deployments; production multi-node setups back Store with a shared
// database instead.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]*Listing
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]*Listing)}
}

func key(resource, scope string) string {
	return resource + "\x00" + scope
}

// Put inserts or replaces a listing.
func (m *MemoryStore) Put(resource, scope string, listing Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[key(resource, scope)] = &listing
}

// Get returns a copy of the listing, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, resource, scope string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	listing, ok := m.listings[key(resource, scope)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *listing
	return &out, nil
}

// Reserve decrements remaining capacity for a listing after a
// successful settlement. Listings with unlimited capacity are left
// untouched. Returns false when the listing is missing or sold out.
func (m *MemoryStore) Reserve(resource, scope string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[key(resource, scope)]
	if !ok {
		return false
	}
	if listing.CapacityRemaining < 0 {
		return true
	}
	if listing.CapacityRemaining == 0 {
		return false
	}
	listing.CapacityRemaining--
	return true
}
