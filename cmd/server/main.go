// Package main provides the unified price engine service:
// - Refresh loop (scheduled): stale products re-aggregated across sources
// - HTTP API: aggregation, price views, forecasts, deal ranking
// - Observability: Prometheus metrics, health and status endpoints
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smartcart-engine/internal/aggregate"
	"smartcart-engine/internal/deals"
	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/engine"
	"smartcart-engine/internal/forecast"
	"smartcart-engine/internal/normalize"
	"smartcart-engine/internal/observability"
	"smartcart-engine/internal/source"
	"smartcart-engine/internal/storage"
	chstore "smartcart-engine/internal/storage/clickhouse"
	"smartcart-engine/internal/storage/memory"
	"smartcart-engine/internal/storage/migrations"
	pebblestore "smartcart-engine/internal/storage/pebble"
	pgstore "smartcart-engine/internal/storage/postgres"
)

// Server holds the wired engine and request-serving state.
type Server struct {
	engine          *engine.Engine
	refreshInterval time.Duration
	logger          *log.Logger
	startedAt       time.Time
}

// allStores holds the storage implementations behind the engine.
type allStores struct {
	products     storage.ProductStore
	stores       storage.StoreRegistry
	observations storage.ObservationStore
	models       storage.ModelStore
}

func main() {
	// .env values become env-var defaults for the flags below
	_ = godotenv.Load()

	sourcesPath := flag.String("sources", os.Getenv("SOURCES_CONFIG"), "Path to source config JSON file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the observation log (optional)")
	modelDir := flag.String("model-dir", os.Getenv("MODEL_DIR"), "Directory for persisted forecast models (in-memory if empty)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	refreshInterval := flag.Duration("refresh-interval", time.Hour, "Stale product refresh interval")
	staleAfter := flag.Duration("stale-after", engine.DefaultStaleAfter, "Age after which a product's prices are considered stale")
	sourceTimeout := flag.Duration("source-timeout", 10*time.Second, "Per-source call timeout")
	maxConcurrent := flag.Int("max-concurrent", 8, "Maximum concurrent source calls per aggregation pass")
	retrainInterval := flag.Duration("retrain-interval", forecast.DefaultRetrainInterval, "Forecast model freshness window")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *sourcesPath == "" {
		logger.Fatal("--sources is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	configs, err := loadSources(*sourcesPath)
	if err != nil {
		logger.Fatalf("Failed to load source config: %v", err)
	}
	logger.Printf("Configured sources: %s", sourceNames(configs))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *modelDir, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	registry, err := source.NewRegistry(configs, source.RegistryOptions{
		OnParseSkip: observability.RecordParseSkips,
	})
	if err != nil {
		logger.Fatalf("Failed to build source registry: %v", err)
	}

	eng := engine.New(engine.Options{
		Products:     stores.products,
		Stores:       stores.stores,
		Observations: stores.observations,
		Coordinator: aggregate.NewCoordinator(aggregate.Options{
			Registry:      registry,
			SourceTimeout: *sourceTimeout,
			MaxConcurrent: *maxConcurrent,
			Logger:        log.New(os.Stdout, "[aggregate] ", log.LstdFlags),
		}),
		Normalizer: normalize.NewNormalizer(stores.stores, stores.observations, stores.products,
			log.New(os.Stdout, "[normalize] ", log.LstdFlags)),
		Forecasts: forecast.NewManager(forecast.ManagerOptions{
			Observations:    stores.observations,
			Models:          stores.models,
			RetrainInterval: *retrainInterval,
			Logger:          log.New(os.Stdout, "[forecast] ", log.LstdFlags),
		}),
		Deals: deals.NewEngine(deals.Options{
			Products:     stores.products,
			Stores:       stores.stores,
			Observations: stores.observations,
		}),
		StaleAfter: *staleAfter,
		Logger:     logger,
	})

	server := &Server{
		engine:          eng,
		refreshInterval: *refreshInterval,
		logger:          logger,
		startedAt:       time.Now(),
	}

	go func() {
		logger.Printf("Starting refresh loop (interval: %v)...", *refreshInterval)
		eng.RunRefreshLoop(ctx, *refreshInterval)
	}()

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}
	go func() {
		logger.Printf("Starting HTTP server on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown error: %v", err)
	}

	logger.Println("Shutdown complete")
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
	for _, cfg := range configs {
		if !cfg.Kind.IsValid() {
			return nil, fmt.Errorf("source %q: unknown kind %q", cfg.Name, cfg.Kind)
		}
	}
	return configs, nil
}

func sourceNames(configs []domain.SourceConfig) string {
	names := make([]string, len(configs))
	for i, cfg := range configs {
		names[i] = cfg.Name
	}
	return strings.Join(names, ", ")
}

// createStores creates the storage backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN, modelDir string, useMemory bool) (*allStores, func(), error) {
	stores := &allStores{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if modelDir != "" {
		models, err := pebblestore.NewModelStore(modelDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open model store: %w", err)
		}
		closers = append(closers, func() { models.Close() })
		stores.models = models
	} else {
		stores.models = memory.NewModelStore()
	}

	if useMemory {
		stores.products = memory.NewProductStore()
		stores.stores = memory.NewStoreRegistry()
		stores.observations = memory.NewObservationStore()
		return stores, cleanup, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	closers = append(closers, pool.Close)

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	stores.products = pgstore.NewProductStore(pool)
	stores.stores = pgstore.NewStoreRegistry(pool)
	stores.observations = pgstore.NewObservationStore(pool)

	// the observation log can live in ClickHouse instead when histories
	// outgrow the relational store
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.observations = chstore.NewObservationStore(conn)
	}

	return stores, cleanup, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/deals", s.handleDeals)
	mux.HandleFunc("GET /api/compare", s.handleCompare)
	mux.HandleFunc("POST /api/products/{id}/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/products/{id}/prices", s.handlePrices)
	mux.HandleFunc("GET /api/products/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/products/{id}/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/products/{id}/trend", s.handleTrend)

	return mux
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status: "running",
		Uptime: time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	products, failures, err := s.engine.SearchAll(r.Context(), query)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"failures": failures,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.AggregateNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.engine.CurrentPrices(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var sinceMs int64
	if raw := r.URL.Query().Get("since_ms"); raw != "" {
		var err error
		sinceMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since_ms must be an integer")
			return
		}
	}

	history, err := s.engine.PriceHistory(r.Context(), r.PathValue("id"), sinceMs)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		var err error
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 || days > 30 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 30")
			return
		}
	}

	forecasts, err := s.engine.Predict(r.Context(), r.PathValue("id"), days)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecasts)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := s.engine.PriceTrend(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
	}

	ranked, err := s.engine.RankDeals(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	comparisons, err := s.engine.CompareStores(r.Context(), ids)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparisons)
}

// serveError maps engine errors to HTTP status codes.
func (s *Server) serveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, forecast.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Printf("Request error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
