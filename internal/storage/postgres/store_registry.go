package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// StoreRegistry implements storage.StoreRegistry using PostgreSQL.
// Concurrent GetOrCreate calls are serialized by the unique constraint on
// the name column: a losing writer rereads the winner's row.
type StoreRegistry struct {
	pool *Pool
}

// NewStoreRegistry creates a new StoreRegistry.
func NewStoreRegistry(pool *Pool) *StoreRegistry {
	return &StoreRegistry{pool: pool}
}

// Compile-time interface check.
var _ storage.StoreRegistry = (*StoreRegistry)(nil)

// GetOrCreate resolves a store by display name, creating it if absent.
func (r *StoreRegistry) GetOrCreate(ctx context.Context, name string) (*domain.Store, error) {
	if name == "" {
		return nil, storage.ErrInvalidInput
	}

	// Fast path: the name usually exists already.
	st, err := r.getByName(ctx, name)
	if err == nil {
		return st, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	query := `
		INSERT INTO stores (store_id, name, active, created_at_ms)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (name) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query, uuid.NewString(), name, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert store: %w", err)
	}

	// Reread regardless of whether this call or a concurrent one won the
	// insert race; exactly one row exists for the name either way.
	return r.getByName(ctx, name)
}

// GetByID retrieves a store by its ID. Returns ErrNotFound if not exists.
func (r *StoreRegistry) GetByID(ctx context.Context, storeID string) (*domain.Store, error) {
	query := `
		SELECT store_id, name, active, created_at_ms
		FROM stores
		WHERE store_id = $1
	`

	var st domain.Store
	err := r.pool.QueryRow(ctx, query, storeID).Scan(&st.ID, &st.Name, &st.Active, &st.CreatedAtMs)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get store by id: %w", err)
	}
	return &st, nil
}

// List retrieves all stores ordered by name ASC.
func (r *StoreRegistry) List(ctx context.Context) ([]*domain.Store, error) {
	query := `
		SELECT store_id, name, active, created_at_ms
		FROM stores
		ORDER BY name ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var result []*domain.Store
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Active, &st.CreatedAtMs); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		result = append(result, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return result, nil
}

func (r *StoreRegistry) getByName(ctx context.Context, name string) (*domain.Store, error) {
	query := `
		SELECT store_id, name, active, created_at_ms
		FROM stores
		WHERE name = $1
	`

	var st domain.Store
	err := r.pool.QueryRow(ctx, query, name).Scan(&st.ID, &st.Name, &st.Active, &st.CreatedAtMs)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get store by name: %w", err)
	}
	return &st, nil
}
