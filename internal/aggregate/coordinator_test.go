package aggregate

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/source"
)

// sourcesFromHandlers builds one walmart-shaped api source per handler.
func sourcesFromHandlers(t *testing.T, handlers map[string]http.HandlerFunc) *source.Registry {
	t.Helper()

	var configs []domain.SourceConfig
	for _, name := range sortedKeys(handlers) {
		srv := httptest.NewServer(handlers[name])
		t.Cleanup(srv.Close)
		configs = append(configs, domain.SourceConfig{
			Name:    name,
			Kind:    domain.SourceKindAPI,
			Shape:   "walmart",
			BaseURL: srv.URL,
		})
	}

	r, err := source.NewRegistry(configs, source.RegistryOptions{
		HTTP: source.NewHTTPClient(source.WithMaxRetries(0)),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func sortedKeys(m map[string]http.HandlerFunc) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func priceHandler(price float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"price": {"amount": `+formatFloat(price)+`, "currency": "USD"}}`)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func testProduct(sources ...string) *domain.Product {
	ids := make(map[string]string, len(sources))
	for _, s := range sources {
		ids[s] = "ext-" + s
	}
	return &domain.Product{ID: "p-1", Name: "Milk", Barcode: "", ExternalIDs: ids}
}

func TestFetchPricesAllSucceed(t *testing.T) {
	registry := sourcesFromHandlers(t, map[string]http.HandlerFunc{
		"walmart": priceHandler(3.98),
		"kroger":  priceHandler(4.29),
	})

	c := NewCoordinator(Options{Registry: registry})
	result := c.FetchPrices(context.Background(), testProduct("walmart", "kroger"))

	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	if len(result.Failures) != 0 {
		t.Fatalf("got %d failures, want 0: %+v", len(result.Failures), result.Failures)
	}
	for _, r := range result.Results {
		if len(r.Observations) != 1 {
			t.Errorf("source %s produced %d observations, want 1", r.Source, len(r.Observations))
		}
	}
}

func TestFetchPricesPartialFailure(t *testing.T) {
	registry := sourcesFromHandlers(t, map[string]http.HandlerFunc{
		"walmart": priceHandler(3.98),
		"kroger": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
		"target": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `not json at all`)
		},
	})

	c := NewCoordinator(Options{Registry: registry})
	result := c.FetchPrices(context.Background(), testProduct("walmart", "kroger", "target"))

	if len(result.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(result.Results))
	}
	if result.Results[0].Source != "walmart" {
		t.Errorf("surviving source = %q, want walmart", result.Results[0].Source)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(result.Failures))
	}

	reasons := map[string]domain.FailureReason{}
	for _, f := range result.Failures {
		reasons[f.Source] = f.Reason
	}
	if reasons["kroger"] != domain.FailureStatus {
		t.Errorf("kroger reason = %v, want status", reasons["kroger"])
	}
	if reasons["target"] != domain.FailureParse {
		t.Errorf("target reason = %v, want parse", reasons["target"])
	}
}

func TestFetchPricesEverySourceAccountedFor(t *testing.T) {
	registry := sourcesFromHandlers(t, map[string]http.HandlerFunc{
		"a": priceHandler(1.00),
		"b": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"c": priceHandler(1.00),
		"d": func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, `{`) },
	})

	c := NewCoordinator(Options{Registry: registry})
	result := c.FetchPrices(context.Background(), testProduct("a", "b", "c", "d"))

	if got := len(result.Results) + len(result.Failures); got != 4 {
		t.Errorf("results + failures = %d, want 4", got)
	}
}

func TestFetchPricesSkipsUnknownSources(t *testing.T) {
	registry := sourcesFromHandlers(t, map[string]http.HandlerFunc{
		"walmart": priceHandler(3.98),
		"kroger":  priceHandler(4.29),
	})

	c := NewCoordinator(Options{Registry: registry})
	result := c.FetchPrices(context.Background(), testProduct("walmart"))

	if got := len(result.Results) + len(result.Failures); got != 1 {
		t.Errorf("results + failures = %d, want 1 (kroger has no id)", got)
	}
}

func TestFetchPricesTimeoutIsolation(t *testing.T) {
	released := make(chan struct{})
	t.Cleanup(func() { close(released) })

	registry := sourcesFromHandlers(t, map[string]http.HandlerFunc{
		"fast": priceHandler(3.98),
		"slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-released:
			case <-r.Context().Done():
			}
		},
	})

	c := NewCoordinator(Options{
		Registry:      registry,
		SourceTimeout: 100 * time.Millisecond,
		Logger:        log.New(io.Discard, "", 0),
	})

	start := time.Now()
	result := c.FetchPrices(context.Background(), testProduct("fast", "slow"))
	elapsed := time.Since(start)

	if len(result.Results) != 1 || result.Results[0].Source != "fast" {
		t.Fatalf("results = %+v, want fast only", result.Results)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v, want slow only", result.Failures)
	}
	if result.Failures[0].Reason != domain.FailureTimeout {
		t.Errorf("reason = %v, want timeout", result.Failures[0].Reason)
	}
	if elapsed > 2*time.Second {
		t.Errorf("fan-out took %v, slow source should not block", elapsed)
	}
}

func TestFetchPricesRunsConcurrently(t *testing.T) {
	const delay = 150 * time.Millisecond

	handlers := map[string]http.HandlerFunc{}
	for _, name := range []string{"a", "b", "c", "d"} {
		handlers[name] = func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(delay)
			io.WriteString(w, `{"price": {"amount": 1.00, "currency": "USD"}}`)
		}
	}
	registry := sourcesFromHandlers(t, handlers)

	c := NewCoordinator(Options{Registry: registry})

	start := time.Now()
	result := c.FetchPrices(context.Background(), testProduct("a", "b", "c", "d"))
	elapsed := time.Since(start)

	if len(result.Results) != 4 {
		t.Fatalf("got %d results, want 4", len(result.Results))
	}
	if elapsed >= 4*delay {
		t.Errorf("fan-out took %v, sources did not run in parallel", elapsed)
	}
}

func TestFanoutPanicIsolation(t *testing.T) {
	c := NewCoordinator(Options{
		Registry: emptyRegistry(t),
		Logger:   log.New(io.Discard, "", 0),
	})

	result := c.fanout(context.Background(), []string{"boom", "ok"}, func(ctx context.Context, i int) ([]*domain.RawObservation, error) {
		if i == 0 {
			panic("source fault")
		}
		return []*domain.RawObservation{{SourceName: "ok", Price: 1}}, nil
	})

	if len(result.Results) != 1 || result.Results[0].Source != "ok" {
		t.Fatalf("results = %+v", result.Results)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %+v", result.Failures)
	}
	f := result.Failures[0]
	if f.Source != "boom" || f.Reason != domain.FailurePanic {
		t.Errorf("failure = %+v, want panic from boom", f)
	}
	if f.Detail != "source fault" {
		t.Errorf("Detail = %q", f.Detail)
	}
}

func TestFanoutCancelledContext(t *testing.T) {
	c := NewCoordinator(Options{Registry: emptyRegistry(t), MaxConcurrent: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	result := c.fanout(ctx, []string{"a", "b"}, func(callCtx context.Context, i int) ([]*domain.RawObservation, error) {
		calls.Add(1)
		return nil, callCtx.Err()
	})

	if got := len(result.Results) + len(result.Failures); got != 2 {
		t.Errorf("results + failures = %d, want 2", got)
	}
	if len(result.Results) != 0 {
		t.Errorf("cancelled fan-out should produce no results, got %+v", result.Results)
	}
	for _, f := range result.Failures {
		if f.Reason != domain.FailureCancelled {
			t.Errorf("source %s Reason = %q, want %q", f.Source, f.Reason, domain.FailureCancelled)
		}
	}
}

func TestSearchFanout(t *testing.T) {
	searchBody := `{"items": [{"itemId": "w-1", "name": "Milk", "price": {"amount": 3.98, "currency": "USD"}}]}`
	registry := sourcesFromHandlers(t, map[string]http.HandlerFunc{
		"walmart": func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, searchBody) },
		"kroger":  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
	})

	c := NewCoordinator(Options{Registry: registry})
	result := c.Search(context.Background(), "milk")

	if len(result.Results) != 1 || len(result.Failures) != 1 {
		t.Fatalf("results = %d failures = %d, want 1 and 1", len(result.Results), len(result.Failures))
	}
	if result.Results[0].Source != "walmart" || len(result.Results[0].Observations) != 1 {
		t.Errorf("result = %+v", result.Results[0])
	}
}

func emptyRegistry(t *testing.T) *source.Registry {
	t.Helper()
	r, err := source.NewRegistry(nil, source.RegistryOptions{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}
