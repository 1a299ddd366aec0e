package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// ObservationStore implements storage.ObservationStore using PostgreSQL.
type ObservationStore struct {
	pool *Pool
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

const observationColumns = `observation_id, product_id, store_id, price, currency, is_sale, sale_end_ms, observed_at_ms`

// Append adds one observation. Returns ErrDuplicateKey if the id exists.
func (s *ObservationStore) Append(ctx context.Context, obs *domain.PriceObservation) error {
	if obs == nil || obs.ID == "" || obs.ProductID == "" || obs.StoreID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO price_observations (
			observation_id, product_id, store_id, price, currency, is_sale, sale_end_ms, observed_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		obs.ID,
		obs.ProductID,
		obs.StoreID,
		obs.Price,
		obs.Currency,
		obs.IsSale,
		obs.SaleEndMs,
		obs.ObservedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

// GetByProductID retrieves all observations for a product, ordered by observed_at ASC.
func (s *ObservationStore) GetByProductID(ctx context.Context, productID string) ([]*domain.PriceObservation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM price_observations
		WHERE product_id = $1
		ORDER BY observed_at_ms ASC, observation_id ASC
	`

	rows, err := s.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("get observations by product: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetSince retrieves observations for a product with observed_at >= sinceMs.
func (s *ObservationStore) GetSince(ctx context.Context, productID string, sinceMs int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM price_observations
		WHERE product_id = $1 AND observed_at_ms >= $2
		ORDER BY observed_at_ms ASC, observation_id ASC
	`

	rows, err := s.pool.Query(ctx, query, productID, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("get observations since: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetAllSince retrieves observations across all products with observed_at >= sinceMs.
func (s *ObservationStore) GetAllSince(ctx context.Context, sinceMs int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM price_observations
		WHERE observed_at_ms >= $1
		ORDER BY observed_at_ms ASC, observation_id ASC
	`

	rows, err := s.pool.Query(ctx, query, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("get all observations since: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// scanObservations scans all rows into PriceObservations.
func scanObservations(rows pgx.Rows) ([]*domain.PriceObservation, error) {
	var result []*domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		err := rows.Scan(
			&o.ID,
			&o.ProductID,
			&o.StoreID,
			&o.Price,
			&o.Currency,
			&o.IsSale,
			&o.SaleEndMs,
			&o.ObservedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}
