package store

import (
	"fmt"
	"sync"

	"github.com/kvasir-vcs/kvasir/pkg/object"
)

// MemoryStore is an in-memory object store with the same collaborator
// surface as Store. Used in tests and as a scratch sink for pack parsing.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[object.Hash]object.Object
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[object.Hash]object.Object)}
}

// Put stores a typed object and returns its hash.
func (m *MemoryStore) Put(t object.Type, data []byte) (object.Hash, error) {
	if !t.Concrete() {
		return object.ZeroHash, fmt.Errorf("cannot store object of type %s", t)
	}
	obj := object.New(t, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[obj.Hash]; !ok {
		m.objects[obj.Hash] = obj
	}
	return obj.Hash, nil
}

// Get retrieves an object by hash.
func (m *MemoryStore) Get(hash object.Hash) (object.Object, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[hash]
	return obj, ok, nil
}

// Has checks whether an object exists.
func (m *MemoryStore) Has(hash object.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[hash]
	return ok, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// List returns every stored object in unspecified order.
func (m *MemoryStore) List() ([]object.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects := make([]object.Object, 0, len(m.objects))
	for _, obj := range m.objects {
		objects = append(objects, obj)
	}
	return objects, nil
}
