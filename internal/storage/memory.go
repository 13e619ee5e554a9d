package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory implementation of ObjectStore. It is used in
// tests and safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// FailKeys lists keys whose upload should fail, to simulate a storage
	// outage mid-submission.
	FailKeys map[string]bool
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]memoryObject),
		FailKeys: make(map[string]bool),
	}
}

// Upload stores the object bytes in memory.
func (m *MemoryStore) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailKeys[key] {
		return fmt.Errorf("simulated upload failure for %q", key)
	}
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

// PresignGet returns a fake signed URL for a stored object.
func (m *MemoryStore) PresignGet(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object not found: %s", key)
	}
	return "https://storage.invalid/" + key + "?signed=1", nil
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Has reports whether an object exists under key.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// ContentType returns the stored content type for key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}
