// Command aggregate runs a single aggregation pass for one product and
// prints the collected prices, drops and per-source failures.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"smartcart-engine/internal/aggregate"
	"smartcart-engine/internal/deals"
	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/engine"
	"smartcart-engine/internal/forecast"
	"smartcart-engine/internal/normalize"
	"smartcart-engine/internal/source"
	"smartcart-engine/internal/storage"
	"smartcart-engine/internal/storage/memory"
	pgstore "smartcart-engine/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	sourcesPath := flag.String("sources", os.Getenv("SOURCES_CONFIG"), "Path to source config JSON file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	productID := flag.String("product", "", "Product ID to aggregate")
	query := flag.String("search", "", "Catalog query to fan out instead of a single product")
	sourceTimeout := flag.Duration("source-timeout", 10*time.Second, "Per-source call timeout")
	flag.Parse()

	if *sourcesPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --sources is required")
		os.Exit(1)
	}
	if (*productID == "") == (*query == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --product or --search is required")
		os.Exit(1)
	}
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	ctx := context.Background()

	configs, err := loadSources(*sourcesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading source config: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry, err := source.NewRegistry(configs, source.RegistryOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building source registry: %v\n", err)
		os.Exit(1)
	}

	products := pgstore.NewProductStore(pool)
	stores := pgstore.NewStoreRegistry(pool)
	observations := pgstore.NewObservationStore(pool)
	logger := log.New(os.Stderr, "[aggregate] ", log.LstdFlags)

	eng := engine.New(engine.Options{
		Products:     products,
		Stores:       stores,
		Observations: observations,
		Coordinator: aggregate.NewCoordinator(aggregate.Options{
			Registry:      registry,
			SourceTimeout: *sourceTimeout,
			Logger:        logger,
		}),
		Normalizer: normalize.NewNormalizer(stores, observations, products, logger),
		Forecasts: forecast.NewManager(forecast.ManagerOptions{
			Observations: observations,
			Models:       memory.NewModelStore(),
			Logger:       logger,
		}),
		Deals: deals.NewEngine(deals.Options{
			Products:     products,
			Stores:       stores,
			Observations: observations,
		}),
		Logger: logger,
	})

	if *query != "" {
		runSearch(ctx, eng, *query)
		return
	}
	runAggregate(ctx, eng, stores, *productID)
}

// loadSources reads and validates the source configuration file.
func loadSources(path string) ([]domain.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var configs []domain.SourceConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("%s: no sources configured", path)
	}
	return configs, nil
}

func runAggregate(ctx context.Context, eng *engine.Engine, stores storage.StoreRegistry, productID string) {
	result, err := eng.AggregateNow(ctx, productID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error aggregating product %s: %v\n", productID, err)
		os.Exit(1)
	}

	fmt.Printf("Product %s: %d observations committed, %d records dropped, %d sources failed\n",
		productID, len(result.Observations), result.Dropped, len(result.Failures))

	for _, obs := range result.Observations {
		name := obs.StoreID
		if store, err := stores.GetByID(ctx, obs.StoreID); err == nil {
			name = store.Name
		}
		sale := ""
		if obs.IsSale {
			sale = " (sale)"
		}
		fmt.Printf("  %-20s %8.2f %s%s\n", name, obs.Price, obs.Currency, sale)
	}
	for _, f := range result.Failures {
		fmt.Printf("  %-20s FAILED: %s (%s)\n", f.Source, f.Reason, f.Detail)
	}

	if len(result.Observations) == 0 {
		os.Exit(1)
	}
}

func runSearch(ctx context.Context, eng *engine.Engine, query string) {
	products, failures, err := eng.SearchAll(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching %q: %v\n", query, err)
		os.Exit(1)
	}

	fmt.Printf("Query %q: %d products registered, %d sources failed\n", query, len(products), len(failures))
	for _, p := range products {
		fmt.Printf("  %-36s %-30s barcode=%s\n", p.ID, p.Name, p.Barcode)
	}
	for _, f := range failures {
		fmt.Printf("  %-20s FAILED: %s (%s)\n", f.Source, f.Reason, f.Detail)
	}
}
