package memory

import (
	"context"
	"sort"
	"sync"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceObservation // keyed by observation id
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		data: make(map[string]*domain.PriceObservation),
	}
}

// Append adds one observation. Returns ErrDuplicateKey if the id exists.
func (s *ObservationStore) Append(_ context.Context, obs *domain.PriceObservation) error {
	if obs == nil || obs.ID == "" || obs.ProductID == "" || obs.StoreID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[obs.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[obs.ID] = copyObservation(obs)
	return nil
}

// GetByProductID retrieves all observations for a product, ordered by observed_at ASC.
func (s *ObservationStore) GetByProductID(_ context.Context, productID string) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data {
		if o.ProductID == productID {
			result = append(result, copyObservation(o))
		}
	}

	sortObservations(result)
	return result, nil
}

// GetSince retrieves observations for a product with observed_at >= sinceMs.
func (s *ObservationStore) GetSince(_ context.Context, productID string, sinceMs int64) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data {
		if o.ProductID == productID && o.ObservedAtMs >= sinceMs {
			result = append(result, copyObservation(o))
		}
	}

	sortObservations(result)
	return result, nil
}

// GetAllSince retrieves observations across all products with observed_at >= sinceMs.
func (s *ObservationStore) GetAllSince(_ context.Context, sinceMs int64) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data {
		if o.ObservedAtMs >= sinceMs {
			result = append(result, copyObservation(o))
		}
	}

	sortObservations(result)
	return result, nil
}

// sortObservations orders by (observed_at, id) for deterministic reads.
func sortObservations(obs []*domain.PriceObservation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].ObservedAtMs != obs[j].ObservedAtMs {
			return obs[i].ObservedAtMs < obs[j].ObservedAtMs
		}
		return obs[i].ID < obs[j].ID
	})
}

func copyObservation(o *domain.PriceObservation) *domain.PriceObservation {
	cp := *o
	if o.SaleEndMs != nil {
		v := *o.SaleEndMs
		cp.SaleEndMs = &v
	}
	return &cp
}

var _ storage.ObservationStore = (*ObservationStore)(nil)
