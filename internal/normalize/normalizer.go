package normalize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/idhash"
	"smartcart-engine/internal/storage"
)

const defaultCurrency = "USD"

// Normalizer turns raw source records into committed price observations.
type Normalizer struct {
	stores       storage.StoreRegistry
	observations storage.ObservationStore
	products     storage.ProductStore
	logger       *log.Logger
}

// NewNormalizer creates a normalizer over the given stores.
func NewNormalizer(stores storage.StoreRegistry, observations storage.ObservationStore, products storage.ProductStore, logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{
		stores:       stores,
		observations: observations,
		products:     products,
		logger:       logger,
	}
}

// Commit validates and persists raw records for one product. Records with
// no usable price are dropped and counted; an already-committed observation
// id is skipped without error. On success the product's last-refresh
// timestamp is advanced.
func (n *Normalizer) Commit(ctx context.Context, productID string, raws []*domain.RawObservation) ([]*domain.PriceObservation, int, error) {
	var committed []*domain.PriceObservation
	dropped := 0

	for _, raw := range raws {
		obs, err := n.normalizeOne(ctx, productID, raw)
		if err != nil {
			if isDropError(err) {
				n.logger.Printf("[normalize] dropping %s record for product %s: %v", raw.SourceName, productID, err)
				dropped++
				continue
			}
			return committed, dropped, err
		}

		err = n.observations.Append(ctx, obs)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return committed, dropped, fmt.Errorf("append observation: %w", err)
		}
		committed = append(committed, obs)
	}

	if len(committed) > 0 {
		if err := n.products.TouchLastRefresh(ctx, productID, time.Now().UnixMilli()); err != nil {
			return committed, dropped, fmt.Errorf("touch last refresh: %w", err)
		}
	}
	return committed, dropped, nil
}

// normalizeOne validates one raw record and resolves its store.
func (n *Normalizer) normalizeOne(ctx context.Context, productID string, raw *domain.RawObservation) (*domain.PriceObservation, error) {
	if raw.SourceName == "" {
		return nil, dropError{fmt.Errorf("record has no source name")}
	}

	price := raw.Price
	if price == 0 && raw.PriceText != "" {
		parsed, err := ParsePrice(raw.PriceText)
		if err != nil {
			return nil, dropError{err}
		}
		price = parsed
	}
	if price <= 0 {
		return nil, dropError{fmt.Errorf("non-positive price %v", price)}
	}

	currency := raw.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	observedAt := raw.ObservedAtMs
	if observedAt == 0 {
		observedAt = time.Now().UnixMilli()
	}

	store, err := n.stores.GetOrCreate(ctx, raw.SourceName)
	if err != nil {
		return nil, fmt.Errorf("resolve store %q: %w", raw.SourceName, err)
	}

	return &domain.PriceObservation{
		ID:           idhash.ComputeObservationID(productID, store.ID, observedAt, price),
		ProductID:    productID,
		StoreID:      store.ID,
		Price:        price,
		Currency:     currency,
		IsSale:       raw.IsSale,
		SaleEndMs:    raw.SaleEndMs,
		ObservedAtMs: observedAt,
	}, nil
}

// dropError marks a record-level validation failure. Drop errors discard
// one record; any other error aborts the commit.
type dropError struct {
	err error
}

func (e dropError) Error() string { return e.err.Error() }
func (e dropError) Unwrap() error { return e.err }

func isDropError(err error) bool {
	var de dropError
	return errors.As(err, &de)
}
