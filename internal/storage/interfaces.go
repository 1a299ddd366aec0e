package storage

import (
	"context"

	"smartcart-engine/internal/domain"
)

// ProductStore provides access to products storage.
type ProductStore interface {
	// Insert adds a new product. Returns ErrDuplicateKey if the barcode exists.
	Insert(ctx context.Context, p *domain.Product) error

	// GetByID retrieves a product by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, productID string) (*domain.Product, error)

	// GetByBarcode retrieves a product by its canonical barcode.
	GetByBarcode(ctx context.Context, barcode string) (*domain.Product, error)

	// List retrieves all products, optionally filtered by category
	// (empty category means all), ordered by product ID ASC.
	List(ctx context.Context, category string) ([]*domain.Product, error)

	// ListStaleSince retrieves products whose last refresh is older than
	// thresholdMs (inclusive of never-refreshed products), ordered by
	// last refresh ASC.
	ListStaleSince(ctx context.Context, thresholdMs int64) ([]*domain.Product, error)

	// TouchLastRefresh advances the product's last-refresh timestamp.
	// The timestamp never moves backwards.
	TouchLastRefresh(ctx context.Context, productID string, refreshedAtMs int64) error
}

// StoreRegistry provides get-or-create access to stores storage.
// GetOrCreate must be idempotent under concurrent calls: two concurrent
// resolutions of an unseen name create exactly one row.
type StoreRegistry interface {
	// GetOrCreate resolves a store by display name, creating it if absent.
	GetOrCreate(ctx context.Context, name string) (*domain.Store, error)

	// GetByID retrieves a store by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, storeID string) (*domain.Store, error)

	// List retrieves all stores ordered by name ASC.
	List(ctx context.Context) ([]*domain.Store, error)
}

// ObservationStore provides append-only access to the price observation log.
type ObservationStore interface {
	// Append adds one observation. Returns ErrDuplicateKey if the
	// observation id exists; observations are never updated in place.
	Append(ctx context.Context, obs *domain.PriceObservation) error

	// GetByProductID retrieves all observations for a product,
	// ordered by observed_at ASC.
	GetByProductID(ctx context.Context, productID string) ([]*domain.PriceObservation, error)

	// GetSince retrieves observations for a product with
	// observed_at >= sinceMs, ordered by observed_at ASC.
	GetSince(ctx context.Context, productID string, sinceMs int64) ([]*domain.PriceObservation, error)

	// GetAllSince retrieves observations across all products with
	// observed_at >= sinceMs, ordered by observed_at ASC. Used by the
	// deal ranking trailing-window scan.
	GetAllSince(ctx context.Context, sinceMs int64) ([]*domain.PriceObservation, error)
}

// ModelStore provides access to serialized forecast model state,
// one opaque blob per product.
type ModelStore interface {
	// Put stores the blob for a product, replacing any previous state.
	Put(ctx context.Context, productID string, blob []byte) error

	// Get retrieves the blob for a product. Returns ErrNotFound if absent.
	Get(ctx context.Context, productID string) ([]byte, error)

	// Delete removes the blob for a product. Missing keys are not an error.
	Delete(ctx context.Context, productID string) error
}
