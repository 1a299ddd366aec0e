// Package pebble provides an embedded, file-backed ModelStore so trained
// forecast models survive process restarts without an external database.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"smartcart-engine/internal/storage"
)

// ModelStore implements storage.ModelStore using PebbleDB.
// Blobs are stored under the key "model/<product_id>".
type ModelStore struct {
	db *pebble.DB
}

// NewModelStore opens (or creates) a pebble database at dir.
func NewModelStore(dir string) (*ModelStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &ModelStore{db: db}, nil
}

// Close closes the underlying database.
func (s *ModelStore) Close() error {
	return s.db.Close()
}

// Compile-time interface check.
var _ storage.ModelStore = (*ModelStore)(nil)

func modelKey(productID string) []byte {
	return []byte("model/" + productID)
}

// Put stores the blob for a product, replacing any previous state.
func (s *ModelStore) Put(_ context.Context, productID string, blob []byte) error {
	if productID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.db.Set(modelKey(productID), blob, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Get retrieves the blob for a product. Returns ErrNotFound if absent.
func (s *ModelStore) Get(_ context.Context, productID string) ([]byte, error) {
	v, closer, err := s.db.Get(modelKey(productID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Delete removes the blob for a product. Missing keys are not an error.
func (s *ModelStore) Delete(_ context.Context, productID string) error {
	if err := s.db.Delete(modelKey(productID), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}
