package memory

import (
	"context"
	"sort"
	"sync"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// ProductStore is an in-memory implementation of storage.ProductStore.
type ProductStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Product
	byBarcode map[string]string // barcode -> product id
}

// NewProductStore creates a new in-memory product store.
func NewProductStore() *ProductStore {
	return &ProductStore{
		byID:      make(map[string]*domain.Product),
		byBarcode: make(map[string]string),
	}
}

// Insert adds a new product. Returns ErrDuplicateKey if the barcode exists.
func (s *ProductStore) Insert(_ context.Context, p *domain.Product) error {
	if p == nil || p.ID == "" || p.Barcode == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byBarcode[p.Barcode]; exists {
		return storage.ErrDuplicateKey
	}

	s.byID[p.ID] = copyProduct(p)
	s.byBarcode[p.Barcode] = p.ID
	return nil
}

// GetByID retrieves a product by its ID. Returns ErrNotFound if not exists.
func (s *ProductStore) GetByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[productID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyProduct(p), nil
}

// GetByBarcode retrieves a product by its canonical barcode.
func (s *ProductStore) GetByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byBarcode[barcode]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyProduct(s.byID[id]), nil
}

// List retrieves all products, optionally filtered by category, ordered by ID ASC.
func (s *ProductStore) List(_ context.Context, category string) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Product
	for _, p := range s.byID {
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, copyProduct(p))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// ListStaleSince retrieves products whose last refresh is older than thresholdMs.
func (s *ProductStore) ListStaleSince(_ context.Context, thresholdMs int64) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Product
	for _, p := range s.byID {
		if p.LastRefreshMs <= thresholdMs {
			result = append(result, copyProduct(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LastRefreshMs != result[j].LastRefreshMs {
			return result[i].LastRefreshMs < result[j].LastRefreshMs
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// TouchLastRefresh advances the product's last-refresh timestamp.
func (s *ProductStore) TouchLastRefresh(_ context.Context, productID string, refreshedAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[productID]
	if !ok {
		return storage.ErrNotFound
	}
	if refreshedAtMs > p.LastRefreshMs {
		p.LastRefreshMs = refreshedAtMs
	}
	return nil
}

func copyProduct(p *domain.Product) *domain.Product {
	cp := *p
	if p.ExternalIDs != nil {
		cp.ExternalIDs = make(map[string]string, len(p.ExternalIDs))
		for k, v := range p.ExternalIDs {
			cp.ExternalIDs[k] = v
		}
	}
	return &cp
}

var _ storage.ProductStore = (*ProductStore)(nil)
