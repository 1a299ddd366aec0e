package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartcart-engine/internal/aggregate"
	"smartcart-engine/internal/deals"
	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/forecast"
	"smartcart-engine/internal/normalize"
	"smartcart-engine/internal/source"
	"smartcart-engine/internal/storage/memory"
)

type fixture struct {
	engine       *Engine
	products     *memory.ProductStore
	stores       *memory.StoreRegistry
	observations *memory.ObservationStore
	models       *memory.ModelStore
}

// newFixture wires an engine over memory stores and walmart-shaped test
// servers, one per handler.
func newFixture(t *testing.T, handlers map[string]http.HandlerFunc, sourceTimeout time.Duration) *fixture {
	t.Helper()

	var configs []domain.SourceConfig
	for _, name := range sortedNames(handlers) {
		srv := httptest.NewServer(handlers[name])
		t.Cleanup(srv.Close)
		configs = append(configs, domain.SourceConfig{
			Name:    name,
			Kind:    domain.SourceKindAPI,
			Shape:   "walmart",
			BaseURL: srv.URL,
		})
	}

	registry, err := source.NewRegistry(configs, source.RegistryOptions{
		HTTP: source.NewHTTPClient(source.WithMaxRetries(0)),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	quiet := log.New(io.Discard, "", 0)
	f := &fixture{
		products:     memory.NewProductStore(),
		stores:       memory.NewStoreRegistry(),
		observations: memory.NewObservationStore(),
		models:       memory.NewModelStore(),
	}

	f.engine = New(Options{
		Products:     f.products,
		Stores:       f.stores,
		Observations: f.observations,
		Coordinator: aggregate.NewCoordinator(aggregate.Options{
			Registry:      registry,
			SourceTimeout: sourceTimeout,
			Logger:        quiet,
		}),
		Normalizer: normalize.NewNormalizer(f.stores, f.observations, f.products, quiet),
		Forecasts: forecast.NewManager(forecast.ManagerOptions{
			Observations: f.observations,
			Models:       f.models,
			Logger:       quiet,
		}),
		Deals: deals.NewEngine(deals.Options{
			Products:     f.products,
			Stores:       f.stores,
			Observations: f.observations,
		}),
		Logger: quiet,
	})
	return f
}

func sortedNames(m map[string]http.HandlerFunc) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	return names
}

func (f *fixture) addProduct(t *testing.T, sources ...string) string {
	t.Helper()

	ids := make(map[string]string, len(sources))
	for _, s := range sources {
		ids[s] = "ext-" + s
	}
	p := &domain.Product{
		ID:          "p-1",
		Name:        "Whole Milk",
		Category:    "dairy",
		Barcode:     "0001111041700",
		ExternalIDs: ids,
	}
	if err := f.products.Insert(context.Background(), p); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return p.ID
}

func priceBody(price string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"price": {"amount": `+price+`, "currency": "USD"}}`)
	}
}

func TestAggregateNow(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"walmart": priceBody("3.98"),
		"kroger":  priceBody("4.29"),
	}, 0)
	productID := f.addProduct(t, "walmart", "kroger")
	ctx := context.Background()

	result, err := f.engine.AggregateNow(ctx, productID)
	if err != nil {
		t.Fatalf("AggregateNow: %v", err)
	}

	if len(result.Observations) != 2 {
		t.Fatalf("got %d observations, want 2", len(result.Observations))
	}
	if len(result.Failures) != 0 || result.Dropped != 0 {
		t.Errorf("failures = %d dropped = %d, want 0", len(result.Failures), result.Dropped)
	}

	stored, _ := f.observations.GetByProductID(ctx, productID)
	if len(stored) != 2 {
		t.Errorf("stored %d observations, want 2", len(stored))
	}

	product, _ := f.products.GetByID(ctx, productID)
	if product.LastRefreshMs == 0 {
		t.Error("last refresh not advanced")
	}
}

func TestAggregateNowTimeoutScenario(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	f := newFixture(t, map[string]http.HandlerFunc{
		"source-a": priceBody("3.98"),
		"source-b": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
		"source-c": priceBody("4.29"),
	}, 100*time.Millisecond)
	productID := f.addProduct(t, "source-a", "source-b", "source-c")
	ctx := context.Background()

	result, err := f.engine.AggregateNow(ctx, productID)
	if err != nil {
		t.Fatalf("AggregateNow: %v", err)
	}

	if len(result.Observations) != 2 {
		t.Errorf("got %d observations, want 2", len(result.Observations))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(result.Failures))
	}
	if result.Failures[0].Source != "source-b" || result.Failures[0].Reason != domain.FailureTimeout {
		t.Errorf("failure = %+v, want source-b timeout", result.Failures[0])
	}

	stores, _ := f.stores.List(ctx)
	if len(stores) > 2 {
		t.Errorf("registered %d stores, want at most 2 (failed source creates none)", len(stores))
	}
}

func TestAggregateNowUnknownProduct(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{"walmart": priceBody("3.98")}, 0)
	if _, err := f.engine.AggregateNow(context.Background(), "p-missing"); err == nil {
		t.Fatal("expected error for unknown product")
	}
}

func TestAggregateNowTimestampsMonotonic(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{"walmart": priceBody("3.98")}, 0)
	productID := f.addProduct(t, "walmart")
	ctx := context.Background()

	first, err := f.engine.AggregateNow(ctx, productID)
	if err != nil {
		t.Fatalf("first AggregateNow: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	second, err := f.engine.AggregateNow(ctx, productID)
	if err != nil {
		t.Fatalf("second AggregateNow: %v", err)
	}

	if len(first.Observations) != 1 || len(second.Observations) != 1 {
		t.Fatalf("observations = %d, %d", len(first.Observations), len(second.Observations))
	}
	if second.Observations[0].ObservedAtMs <= first.Observations[0].ObservedAtMs {
		t.Errorf("second pass timestamp %d not after first %d",
			second.Observations[0].ObservedAtMs, first.Observations[0].ObservedAtMs)
	}
}

func TestSearchAllRegistersProducts(t *testing.T) {
	searchBody := `{"items": [
		{"itemId": "w-1", "name": "Whole Milk", "brand": "Great Value", "category": "dairy",
		 "upc": "0001111041700", "price": {"amount": 3.98, "currency": "USD"}},
		{"itemId": "w-2", "name": "No Barcode Brand Milk", "price": {"amount": 2.98, "currency": "USD"}}
	]}`
	f := newFixture(t, map[string]http.HandlerFunc{
		"walmart": func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, searchBody) },
	}, 0)
	ctx := context.Background()

	products, failures, err := f.engine.SearchAll(ctx, "milk")
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("failures = %+v", failures)
	}
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1 (barcode-less record dropped)", len(products))
	}

	p := products[0]
	if p.Barcode != "0001111041700" || p.Name != "Whole Milk" {
		t.Errorf("product = %+v", p)
	}
	if p.ExternalIDs["walmart"] != "w-1" {
		t.Errorf("ExternalIDs = %v", p.ExternalIDs)
	}

	obs, _ := f.observations.GetByProductID(ctx, p.ID)
	if len(obs) != 1 {
		t.Errorf("committed %d observations, want 1", len(obs))
	}

	// a second search resolves the same product, not a duplicate
	again, _, err := f.engine.SearchAll(ctx, "milk")
	if err != nil {
		t.Fatalf("second SearchAll: %v", err)
	}
	if len(again) != 1 || again[0].ID != p.ID {
		t.Errorf("second search = %+v, want same product", again)
	}
}

func TestRefreshStale(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{"walmart": priceBody("3.98")}, 0)
	productID := f.addProduct(t, "walmart")
	ctx := context.Background()

	refreshed, err := f.engine.RefreshStale(ctx)
	if err != nil {
		t.Fatalf("RefreshStale: %v", err)
	}
	if refreshed != 1 {
		t.Fatalf("refreshed %d products, want 1", refreshed)
	}

	// freshly refreshed products are skipped on the next pass
	refreshed, err = f.engine.RefreshStale(ctx)
	if err != nil {
		t.Fatalf("second RefreshStale: %v", err)
	}
	if refreshed != 0 {
		t.Errorf("refreshed %d products, want 0", refreshed)
	}

	obs, _ := f.observations.GetByProductID(ctx, productID)
	if len(obs) != 1 {
		t.Errorf("stored %d observations, want 1", len(obs))
	}
}

func TestRefreshStaleCancelled(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{"walmart": priceBody("3.98")}, 0)
	f.addProduct(t, "walmart")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.RefreshStale(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPredictThroughFacade(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{"walmart": priceBody("3.98")}, 0)
	productID := f.addProduct(t, "walmart")
	ctx := context.Background()

	// too little history
	_, err := f.engine.Predict(ctx, productID, 7)
	if !errors.Is(err, forecast.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}

	// seed three weeks of history directly
	start := time.Now().Add(-21 * 24 * time.Hour).UnixMilli()
	for i := 0; i < 21; i++ {
		err := f.observations.Append(ctx, &domain.PriceObservation{
			ID:           "seed-" + string(rune('a'+i)),
			ProductID:    productID,
			StoreID:      "s-1",
			Price:        5.00 + 0.10*float64(i%7),
			Currency:     "USD",
			ObservedAtMs: start + int64(i)*24*int64(time.Hour/time.Millisecond),
		})
		if err != nil {
			t.Fatalf("seed observation %d: %v", i, err)
		}
	}

	forecasts, err := f.engine.Predict(ctx, productID, 7)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(forecasts) != 7 {
		t.Fatalf("got %d forecasts, want 7", len(forecasts))
	}
}

func TestRankDealsThroughFacade(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{"walmart": priceBody("3.98")}, 0)
	productID := f.addProduct(t, "walmart")
	ctx := context.Background()

	store, err := f.stores.GetOrCreate(ctx, "walmart")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	now := time.Now().UnixMilli()
	day := int64(24 * time.Hour / time.Millisecond)
	for i, price := range []float64{5.00, 5.00, 4.00} {
		err := f.observations.Append(ctx, &domain.PriceObservation{
			ID:           "deal-" + string(rune('a'+i)),
			ProductID:    productID,
			StoreID:      store.ID,
			Price:        price,
			Currency:     "USD",
			ObservedAtMs: now - (3-int64(i))*day,
		})
		if err != nil {
			t.Fatalf("seed observation: %v", err)
		}
	}

	ranked, err := f.engine.RankDeals(ctx, "dairy", 10)
	if err != nil {
		t.Fatalf("RankDeals: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d deals, want 1", len(ranked))
	}
	if ranked[0].CurrentPrice != 4.00 {
		t.Errorf("CurrentPrice = %v, want 4.00", ranked[0].CurrentPrice)
	}
}
