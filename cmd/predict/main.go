// Command predict loads or trains the forecast model for one product and
// prints the predicted prices alongside the current per-store view.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"smartcart-engine/internal/deals"
	"smartcart-engine/internal/forecast"
	"smartcart-engine/internal/storage"
	"smartcart-engine/internal/storage/memory"
	pebblestore "smartcart-engine/internal/storage/pebble"
	pgstore "smartcart-engine/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	modelDir := flag.String("model-dir", os.Getenv("MODEL_DIR"), "Directory for persisted forecast models (in-memory if empty)")
	productID := flag.String("product", "", "Product ID to forecast")
	days := flag.Int("days", 7, "Days ahead to forecast")
	retrain := flag.Bool("retrain", false, "Force a retrain before predicting")
	flag.Parse()

	if *productID == "" {
		fmt.Fprintln(os.Stderr, "Error: --product is required")
		os.Exit(1)
	}
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}
	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --days must be positive")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var models storage.ModelStore
	if *modelDir != "" {
		store, err := pebblestore.NewModelStore(*modelDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening model store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		models = store
	} else {
		models = memory.NewModelStore()
	}

	observations := pgstore.NewObservationStore(pool)
	manager := forecast.NewManager(forecast.ManagerOptions{
		Observations: observations,
		Models:       models,
		Logger:       log.New(os.Stderr, "[forecast] ", log.LstdFlags),
	})

	if *retrain {
		if err := manager.Retrain(ctx, *productID); err != nil {
			fmt.Fprintf(os.Stderr, "Error retraining: %v\n", err)
			os.Exit(1)
		}
	}

	forecasts, err := manager.Predict(ctx, *productID, *days)
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			fmt.Fprintf(os.Stderr, "Not enough price history to train a model for %s (need at least %d observations)\n",
				*productID, forecast.MinTrainingPoints)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error predicting: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Forecast for product %s:\n", *productID)
	for _, f := range forecasts {
		date := time.UnixMilli(f.DateMs).UTC().Format("2006-01-02")
		fmt.Printf("  day %2d  %s  %8.2f  confidence %.2f\n", f.Day, date, f.PredictedPrice, f.Confidence)
	}

	printCurrentPrices(ctx, pool, *productID)
}

// printCurrentPrices shows the latest per-store prices for context next to
// the forecast. Missing history is not an error here.
func printCurrentPrices(ctx context.Context, pool *pgstore.Pool, productID string) {
	dealsEngine := deals.NewEngine(deals.Options{
		Products:     pgstore.NewProductStore(pool),
		Stores:       pgstore.NewStoreRegistry(pool),
		Observations: pgstore.NewObservationStore(pool),
	})

	prices, err := dealsEngine.CurrentPrices(ctx, productID)
	if err != nil || len(prices) == 0 {
		return
	}

	fmt.Println("Current prices:")
	for _, p := range prices {
		sale := ""
		if p.IsSale {
			sale = " (sale)"
		}
		fmt.Printf("  %-20s %8.2f %s%s\n", p.StoreName, p.Price, p.Currency, sale)
	}
}
