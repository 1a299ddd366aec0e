// Package deals ranks discounts and serves cross-store price views over
// the committed observation log.
package deals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/storage"
)

// DefaultWindow is the trailing window for deal ranking and trends.
const DefaultWindow = 7 * 24 * time.Hour

// Engine computes deal rankings and comparison views.
type Engine struct {
	products     storage.ProductStore
	stores       storage.StoreRegistry
	observations storage.ObservationStore
	window       time.Duration
	now          func() time.Time
}

// Options contains configuration for creating an Engine.
type Options struct {
	Products     storage.ProductStore
	Stores       storage.StoreRegistry
	Observations storage.ObservationStore

	// Window is the trailing window for averages. Default 7 days.
	Window time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewEngine creates a deal ranking engine.
func NewEngine(opts Options) *Engine {
	window := opts.Window
	if window == 0 {
		window = DefaultWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		products:     opts.Products,
		stores:       opts.Stores,
		observations: opts.Observations,
		window:       window,
		now:          now,
	}
}

// RankDeals returns the top discounts in the trailing window, optionally
// filtered by category. A (product, store) pair needs at least two window
// observations to rank: a single observation has no trailing average to
// discount against, and conflating it with a true 0% deal would mis-rank
// it. Pairs currently at or above their average are not deals and are
// excluded rather than ranked with non-positive discounts.
func (e *Engine) RankDeals(ctx context.Context, category string, limit int) ([]*domain.Deal, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	cutoff := e.now().Add(-e.window).UnixMilli()
	obs, err := e.observations.GetAllSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load window observations: %w", err)
	}

	products, err := e.productIndex(ctx, category)
	if err != nil {
		return nil, err
	}
	storeNames, err := e.storeNames(ctx)
	if err != nil {
		return nil, err
	}

	type pairKey struct {
		productID string
		storeID   string
	}
	grouped := make(map[pairKey][]*domain.PriceObservation)
	for _, o := range obs {
		if _, ok := products[o.ProductID]; !ok {
			continue
		}
		k := pairKey{productID: o.ProductID, storeID: o.StoreID}
		grouped[k] = append(grouped[k], o)
	}

	var deals []*domain.Deal
	for k, pairObs := range grouped {
		if len(pairObs) < 2 {
			continue
		}

		sum := 0.0
		for _, o := range pairObs {
			sum += o.Price
		}
		avg := sum / float64(len(pairObs))
		current := pairObs[len(pairObs)-1]

		discount := (avg - current.Price) / avg * 100
		if discount <= 0 {
			continue
		}

		deals = append(deals, &domain.Deal{
			ProductID:    k.productID,
			ProductName:  products[k.productID].Name,
			StoreID:      k.storeID,
			StoreName:    storeNames[k.storeID],
			CurrentPrice: current.Price,
			AveragePrice: avg,
			DiscountPct:  discount,
			Savings:      avg - current.Price,
			IsSale:       current.IsSale,
			SaleEndMs:    current.SaleEndMs,
		})
	}

	sort.Slice(deals, func(i, j int) bool {
		if deals[i].DiscountPct != deals[j].DiscountPct {
			return deals[i].DiscountPct > deals[j].DiscountPct
		}
		si, sj := math.Abs(deals[i].Savings), math.Abs(deals[j].Savings)
		if si != sj {
			return si > sj
		}
		if deals[i].ProductID != deals[j].ProductID {
			return deals[i].ProductID < deals[j].ProductID
		}
		return deals[i].StoreID < deals[j].StoreID
	})

	if len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

// CurrentPrices returns the latest observation per store for a product,
// cheapest first.
func (e *Engine) CurrentPrices(ctx context.Context, productID string) ([]domain.StorePrice, error) {
	obs, err := e.observations.GetByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, nil
	}

	storeNames, err := e.storeNames(ctx)
	if err != nil {
		return nil, err
	}

	// observations arrive observed_at ASC, so the last write per store wins
	latest := make(map[string]*domain.PriceObservation)
	for _, o := range obs {
		latest[o.StoreID] = o
	}

	out := make([]domain.StorePrice, 0, len(latest))
	for storeID, o := range latest {
		out = append(out, domain.StorePrice{
			StoreID:      storeID,
			StoreName:    storeNames[storeID],
			Price:        o.Price,
			Currency:     o.Currency,
			IsSale:       o.IsSale,
			SaleEndMs:    o.SaleEndMs,
			ObservedAtMs: o.ObservedAtMs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].StoreName < out[j].StoreName
	})
	return out, nil
}

// CompareStores builds a per-product cross-store comparison. Products with
// no observations are skipped, not errors.
func (e *Engine) CompareStores(ctx context.Context, productIDs []string) ([]*domain.ProductComparison, error) {
	var out []*domain.ProductComparison
	for _, productID := range productIDs {
		product, err := e.products.GetByID(ctx, productID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load product %s: %w", productID, err)
		}

		prices, err := e.CurrentPrices(ctx, productID)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			continue
		}

		lowest := prices[0]
		diff := make(map[string]float64, len(prices))
		for _, p := range prices {
			diff[p.StoreName] = p.Price - lowest.Price
		}

		out = append(out, &domain.ProductComparison{
			ProductID:   productID,
			ProductName: product.Name,
			Prices:      prices,
			Lowest:      lowest,
			DiffFromLow: diff,
		})
	}
	return out, nil
}

// PriceTrend summarizes a product's price movement over the trailing
// window. Returns ErrNotFound when the window holds no observations.
func (e *Engine) PriceTrend(ctx context.Context, productID string) (*domain.PriceTrend, error) {
	cutoff := e.now().Add(-e.window).UnixMilli()
	obs, err := e.observations.GetSince(ctx, productID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, storage.ErrNotFound
	}

	trend := &domain.PriceTrend{
		ProductID:    productID,
		MinPrice:     obs[0].Price,
		MaxPrice:     obs[0].Price,
		BestTimeMs:   obs[0].ObservedAtMs,
		Observations: len(obs),
	}

	sum := 0.0
	sales := 0
	for _, o := range obs {
		sum += o.Price
		if o.IsSale {
			sales++
		}
		if o.Price < trend.MinPrice {
			trend.MinPrice = o.Price
			trend.BestTimeMs = o.ObservedAtMs
		}
		if o.Price > trend.MaxPrice {
			trend.MaxPrice = o.Price
		}
	}
	trend.AvgPrice = sum / float64(len(obs))
	trend.SaleFrequency = float64(sales) / float64(len(obs))
	return trend, nil
}

// productIndex loads products keyed by id, optionally category filtered.
func (e *Engine) productIndex(ctx context.Context, category string) (map[string]*domain.Product, error) {
	products, err := e.products.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (e *Engine) storeNames(ctx context.Context) (map[string]string, error) {
	stores, err := e.stores.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	out := make(map[string]string, len(stores))
	for _, s := range stores {
		out[s.ID] = s.Name
	}
	return out, nil
}
