// Package engine wires source fan-out, normalization, forecasting and
// deal ranking into the operations the transport layer serves. Flow for a
// refresh: fan-out -> normalize -> commit -> observation log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"smartcart-engine/internal/aggregate"
	"smartcart-engine/internal/deals"
	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/forecast"
	"smartcart-engine/internal/normalize"
	"smartcart-engine/internal/observability"
	"smartcart-engine/internal/scheduler"
	"smartcart-engine/internal/storage"
)

// DefaultStaleAfter is how old a product's last refresh may be before the
// refresh loop picks it up.
const DefaultStaleAfter = 6 * time.Hour

// Engine is the aggregation and forecasting facade.
type Engine struct {
	products     storage.ProductStore
	stores       storage.StoreRegistry
	observations storage.ObservationStore

	coordinator *aggregate.Coordinator
	normalizer  *normalize.Normalizer
	forecasts   *forecast.Manager
	deals       *deals.Engine

	staleAfter time.Duration
	logger     *log.Logger
}

// Options contains the collaborators for creating an Engine.
type Options struct {
	Products     storage.ProductStore
	Stores       storage.StoreRegistry
	Observations storage.ObservationStore

	Coordinator *aggregate.Coordinator
	Normalizer  *normalize.Normalizer
	Forecasts   *forecast.Manager
	Deals       *deals.Engine

	// StaleAfter is the refresh-loop staleness threshold. Default 6h.
	StaleAfter time.Duration

	Logger *log.Logger
}

// New creates the engine facade.
func New(opts Options) *Engine {
	staleAfter := opts.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		products:     opts.Products,
		stores:       opts.Stores,
		observations: opts.Observations,
		coordinator:  opts.Coordinator,
		normalizer:   opts.Normalizer,
		forecasts:    opts.Forecasts,
		deals:        opts.Deals,
		staleAfter:   staleAfter,
		logger:       logger,
	}
}

// AggregateNow runs one aggregation pass for a product: concurrent source
// fan-out, then a per-source-result normalization commit. Partial results
// are the normal case; only storage failures abort the pass.
func (e *Engine) AggregateNow(ctx context.Context, productID string) (*domain.AggregationResult, error) {
	start := time.Now()

	product, err := e.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}

	fanout := e.coordinator.FetchPrices(ctx, product)

	result := &domain.AggregationResult{
		ProductID: productID,
		Failures:  fanout.Failures,
	}
	for _, f := range fanout.Failures {
		observability.RecordSourceFailure(f.Source, string(f.Reason))
		e.logger.Printf("[engine] source %s failed for product %s: %s (%s)", f.Source, productID, f.Reason, f.Detail)
	}

	// commits are per source result so cancellation between sources never
	// half-writes one source's set
	for _, sr := range fanout.Results {
		committed, dropped, err := e.normalizer.Commit(ctx, productID, sr.Observations)
		if err != nil {
			return nil, fmt.Errorf("commit %s observations: %w", sr.Source, err)
		}
		result.Observations = append(result.Observations, committed...)
		result.Dropped += dropped
	}

	observability.RecordCommit(len(result.Observations), result.Dropped)
	observability.RecordAggregationPass(time.Since(start).Seconds())
	return result, nil
}

// Predict returns one forecast per day 1..daysAhead.
func (e *Engine) Predict(ctx context.Context, productID string, daysAhead int) ([]*domain.Forecast, error) {
	forecasts, err := e.forecasts.Predict(ctx, productID, daysAhead)
	observability.RecordPrediction(errors.Is(err, forecast.ErrInsufficientData))
	return forecasts, err
}

// RankDeals returns the top window discounts, optionally category filtered.
func (e *Engine) RankDeals(ctx context.Context, category string, limit int) ([]*domain.Deal, error) {
	observability.RecordDealQuery()
	return e.deals.RankDeals(ctx, category, limit)
}

// CurrentPrices returns the latest price per store for a product.
func (e *Engine) CurrentPrices(ctx context.Context, productID string) ([]domain.StorePrice, error) {
	return e.deals.CurrentPrices(ctx, productID)
}

// CompareStores builds cross-store comparisons for the given products.
func (e *Engine) CompareStores(ctx context.Context, productIDs []string) ([]*domain.ProductComparison, error) {
	return e.deals.CompareStores(ctx, productIDs)
}

// PriceTrend summarizes a product's recent price movement.
func (e *Engine) PriceTrend(ctx context.Context, productID string) (*domain.PriceTrend, error) {
	return e.deals.PriceTrend(ctx, productID)
}

// PriceHistory returns the committed observation log for a product,
// optionally bounded to observations at or after sinceMs.
func (e *Engine) PriceHistory(ctx context.Context, productID string, sinceMs int64) ([]*domain.PriceObservation, error) {
	if sinceMs > 0 {
		return e.observations.GetSince(ctx, productID, sinceMs)
	}
	return e.observations.GetByProductID(ctx, productID)
}

// SearchAll fans a catalog query out to every source, registers products
// found by barcode and commits their observations. Records without a
// barcode have no cross-source identity and are dropped.
func (e *Engine) SearchAll(ctx context.Context, query string) ([]*domain.Product, []domain.SourceFailure, error) {
	fanout := e.coordinator.Search(ctx, query)
	for _, f := range fanout.Failures {
		observability.RecordSourceFailure(f.Source, string(f.Reason))
	}

	seen := make(map[string]*domain.Product)
	var products []*domain.Product

	for _, sr := range fanout.Results {
		for _, raw := range sr.Observations {
			if raw.Barcode == "" {
				continue
			}

			product, err := e.resolveProduct(ctx, raw)
			if err != nil {
				return nil, nil, err
			}
			if _, ok := seen[product.ID]; !ok {
				seen[product.ID] = product
				products = append(products, product)
			}

			if _, _, err := e.normalizer.Commit(ctx, product.ID, []*domain.RawObservation{raw}); err != nil {
				return nil, nil, fmt.Errorf("commit search observation: %w", err)
			}
		}
	}
	return products, fanout.Failures, nil
}

// RefreshStale aggregates every product whose last refresh is older than
// the staleness threshold. One product's failure is logged and skipped;
// cancellation stops the pass between products.
func (e *Engine) RefreshStale(ctx context.Context) (int, error) {
	threshold := time.Now().Add(-e.staleAfter).UnixMilli()
	stale, err := e.products.ListStaleSince(ctx, threshold)
	if err != nil {
		observability.RecordRefreshPass("error", 0)
		return 0, fmt.Errorf("list stale products: %w", err)
	}

	refreshed := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := e.AggregateNow(ctx, p.ID); err != nil {
			e.logger.Printf("[engine] refresh of product %s failed: %v", p.ID, err)
			continue
		}
		refreshed++
	}

	observability.RecordRefreshPass("ok", refreshed)
	observability.SetLastSuccessfulRefresh(float64(time.Now().Unix()))
	return refreshed, nil
}

// RunRefreshLoop drives periodic RefreshStale passes until ctx is
// cancelled.
func (e *Engine) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	scheduler.Run(ctx, e.RefreshStale, scheduler.Config{
		Interval: interval,
		Logger:   e.logger,
	})
}

// resolveProduct finds a product by barcode or registers it, surviving a
// concurrent insert of the same barcode.
func (e *Engine) resolveProduct(ctx context.Context, raw *domain.RawObservation) (*domain.Product, error) {
	product, err := e.products.GetByBarcode(ctx, raw.Barcode)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load product by barcode: %w", err)
	}

	p := &domain.Product{
		ID:          uuid.NewString(),
		Name:        raw.ProductName,
		Brand:       raw.Brand,
		Category:    raw.Category,
		Barcode:     raw.Barcode,
		ExternalIDs: map[string]string{raw.SourceName: raw.ExternalID},
		CreatedAtMs: time.Now().UnixMilli(),
	}
	err = e.products.Insert(ctx, p)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return e.products.GetByBarcode(ctx, raw.Barcode)
	}
	if err != nil {
		return nil, fmt.Errorf("register product: %w", err)
	}
	return p, nil
}
