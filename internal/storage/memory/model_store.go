package memory

import (
	"context"
	"sync"

	"smartcart-engine/internal/storage"
)

// ModelStore is an in-memory implementation of storage.ModelStore.
type ModelStore struct {
	mu   sync.RWMutex
	data map[string][]byte // product id -> serialized model
}

// NewModelStore creates a new in-memory model store.
func NewModelStore() *ModelStore {
	return &ModelStore{data: make(map[string][]byte)}
}

// Put stores the blob for a product, replacing any previous state.
func (s *ModelStore) Put(_ context.Context, productID string, blob []byte) error {
	if productID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.data[productID] = cp
	return nil
}

// Get retrieves the blob for a product. Returns ErrNotFound if absent.
func (s *ModelStore) Get(_ context.Context, productID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.data[productID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// Delete removes the blob for a product. Missing keys are not an error.
func (s *ModelStore) Delete(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, productID)
	return nil
}

var _ storage.ModelStore = (*ModelStore)(nil)
