package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// ProductStore implements storage.ProductStore using PostgreSQL.
type ProductStore struct {
	pool *Pool
}

// NewProductStore creates a new ProductStore.
func NewProductStore(pool *Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProductStore = (*ProductStore)(nil)

// Insert adds a new product. Returns ErrDuplicateKey if the barcode exists.
func (s *ProductStore) Insert(ctx context.Context, p *domain.Product) error {
	if p == nil || p.ID == "" || p.Barcode == "" {
		return storage.ErrInvalidInput
	}

	extIDs, err := json.Marshal(p.ExternalIDs)
	if err != nil {
		return fmt.Errorf("marshal external ids: %w", err)
	}

	query := `
		INSERT INTO products (
			product_id, name, brand, category, barcode, external_ids, last_refresh_ms, created_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Brand,
		p.Category,
		p.Barcode,
		extIDs,
		p.LastRefreshMs,
		p.CreatedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID. Returns ErrNotFound if not exists.
func (s *ProductStore) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	query := `
		SELECT product_id, name, brand, category, barcode, external_ids, last_refresh_ms, created_at_ms
		FROM products
		WHERE product_id = $1
	`

	row := s.pool.QueryRow(ctx, query, productID)
	p, err := scanProduct(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// GetByBarcode retrieves a product by its canonical barcode.
func (s *ProductStore) GetByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	query := `
		SELECT product_id, name, brand, category, barcode, external_ids, last_refresh_ms, created_at_ms
		FROM products
		WHERE barcode = $1
	`

	row := s.pool.QueryRow(ctx, query, barcode)
	p, err := scanProduct(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get product by barcode: %w", err)
	}
	return p, nil
}

// List retrieves all products, optionally filtered by category, ordered by ID ASC.
func (s *ProductStore) List(ctx context.Context, category string) ([]*domain.Product, error) {
	query := `
		SELECT product_id, name, brand, category, barcode, external_ids, last_refresh_ms, created_at_ms
		FROM products
		WHERE ($1 = '' OR category = $1)
		ORDER BY product_id ASC
	`

	rows, err := s.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// ListStaleSince retrieves products whose last refresh is older than thresholdMs.
func (s *ProductStore) ListStaleSince(ctx context.Context, thresholdMs int64) ([]*domain.Product, error) {
	query := `
		SELECT product_id, name, brand, category, barcode, external_ids, last_refresh_ms, created_at_ms
		FROM products
		WHERE last_refresh_ms <= $1
		ORDER BY last_refresh_ms ASC, product_id ASC
	`

	rows, err := s.pool.Query(ctx, query, thresholdMs)
	if err != nil {
		return nil, fmt.Errorf("list stale products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// TouchLastRefresh advances the product's last-refresh timestamp.
func (s *ProductStore) TouchLastRefresh(ctx context.Context, productID string, refreshedAtMs int64) error {
	query := `
		UPDATE products
		SET last_refresh_ms = GREATEST(last_refresh_ms, $2)
		WHERE product_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, productID, refreshedAtMs)
	if err != nil {
		return fmt.Errorf("touch last refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanProduct scans a single row into a Product.
func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	var extIDs []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Brand,
		&p.Category,
		&p.Barcode,
		&extIDs,
		&p.LastRefreshMs,
		&p.CreatedAtMs,
	)
	if err != nil {
		return nil, err
	}

	if len(extIDs) > 0 {
		if err := json.Unmarshal(extIDs, &p.ExternalIDs); err != nil {
			return nil, fmt.Errorf("unmarshal external ids: %w", err)
		}
	}
	return &p, nil
}

// scanProducts scans all rows into Products.
func scanProducts(rows pgx.Rows) ([]*domain.Product, error) {
	var result []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}
