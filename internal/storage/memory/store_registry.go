package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// StoreRegistry is an in-memory implementation of storage.StoreRegistry.
// The name index is guarded by a single mutex, which makes GetOrCreate
// naturally idempotent under concurrent calls.
type StoreRegistry struct {
	mu     sync.Mutex
	byID   map[string]*domain.Store
	byName map[string]string // name -> store id
}

// NewStoreRegistry creates a new in-memory store registry.
func NewStoreRegistry() *StoreRegistry {
	return &StoreRegistry{
		byID:   make(map[string]*domain.Store),
		byName: make(map[string]string),
	}
}

// GetOrCreate resolves a store by display name, creating it if absent.
func (r *StoreRegistry) GetOrCreate(_ context.Context, name string) (*domain.Store, error) {
	if name == "" {
		return nil, storage.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		cp := *r.byID[id]
		return &cp, nil
	}

	st := &domain.Store{
		ID:          uuid.NewString(),
		Name:        name,
		Active:      true,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	r.byID[st.ID] = st
	r.byName[name] = st.ID

	cp := *st
	return &cp, nil
}

// GetByID retrieves a store by its ID. Returns ErrNotFound if not exists.
func (r *StoreRegistry) GetByID(_ context.Context, storeID string) (*domain.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.byID[storeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// List retrieves all stores ordered by name ASC.
func (r *StoreRegistry) List(_ context.Context) ([]*domain.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.Store, 0, len(r.byID))
	for _, st := range r.byID {
		cp := *st
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

var _ storage.StoreRegistry = (*StoreRegistry)(nil)
