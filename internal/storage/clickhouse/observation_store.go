package clickhouse

import (
	"context"
	"fmt"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// ObservationStore implements storage.ObservationStore using ClickHouse.
// Intended for large price-history deployments; MergeTree does not enforce
// uniqueness at insert time, so duplicates are rejected by an explicit
// existence check before insert.
type ObservationStore struct {
	conn *Conn
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(conn *Conn) *ObservationStore {
	return &ObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Append adds one observation. Returns ErrDuplicateKey if the id exists.
func (s *ObservationStore) Append(ctx context.Context, obs *domain.PriceObservation) error {
	if obs == nil || obs.ID == "" || obs.ProductID == "" || obs.StoreID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, obs.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_observations (
			observation_id, product_id, store_id, price, currency, is_sale, sale_end_ms, observed_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(
		obs.ID, obs.ProductID, obs.StoreID,
		obs.Price, obs.Currency, obs.IsSale,
		obs.SaleEndMs, uint64(obs.ObservedAtMs),
	); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByProductID retrieves all observations for a product, ordered by observed_at ASC.
func (s *ObservationStore) GetByProductID(ctx context.Context, productID string) ([]*domain.PriceObservation, error) {
	query := `
		SELECT observation_id, product_id, store_id, price, currency, is_sale, sale_end_ms, observed_at_ms
		FROM price_observations
		WHERE product_id = ?
		ORDER BY observed_at_ms ASC, observation_id ASC
	`
	return s.query(ctx, query, productID)
}

// GetSince retrieves observations for a product with observed_at >= sinceMs.
func (s *ObservationStore) GetSince(ctx context.Context, productID string, sinceMs int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT observation_id, product_id, store_id, price, currency, is_sale, sale_end_ms, observed_at_ms
		FROM price_observations
		WHERE product_id = ? AND observed_at_ms >= ?
		ORDER BY observed_at_ms ASC, observation_id ASC
	`
	return s.query(ctx, query, productID, uint64(sinceMs))
}

// GetAllSince retrieves observations across all products with observed_at >= sinceMs.
func (s *ObservationStore) GetAllSince(ctx context.Context, sinceMs int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT observation_id, product_id, store_id, price, currency, is_sale, sale_end_ms, observed_at_ms
		FROM price_observations
		WHERE observed_at_ms >= ?
		ORDER BY observed_at_ms ASC, observation_id ASC
	`
	return s.query(ctx, query, uint64(sinceMs))
}

func (s *ObservationStore) query(ctx context.Context, query string, args ...any) ([]*domain.PriceObservation, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		var observedAt uint64
		err := rows.Scan(
			&o.ID, &o.ProductID, &o.StoreID,
			&o.Price, &o.Currency, &o.IsSale,
			&o.SaleEndMs, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.ObservedAtMs = int64(observedAt)
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}

func (s *ObservationStore) exists(ctx context.Context, observationID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM price_observations WHERE observation_id = ?`,
		observationID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
