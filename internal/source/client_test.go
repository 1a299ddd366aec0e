package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"smartcart-engine/internal/domain"
)

func apiConfig(name, shape, baseURL string) domain.SourceConfig {
	return domain.SourceConfig{
		Name:       name,
		Kind:       domain.SourceKindAPI,
		Shape:      shape,
		BaseURL:    baseURL,
		Credential: "test-token",
	}
}

func TestNewRegistry(t *testing.T) {
	configs := []domain.SourceConfig{
		apiConfig("walmart", "walmart", "http://example.test"),
		apiConfig("kroger", "kroger", "http://example.test"),
		{Name: "corner-store", Kind: domain.SourceKindScrape, BaseURL: "http://example.test"},
		{Name: "quote-feed", Kind: domain.SourceKindFeed, BaseURL: "ws://example.test/quotes"},
	}

	r, err := NewRegistry(configs, RegistryOptions{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	all := r.All()
	if len(all) != 4 {
		t.Fatalf("All() returned %d clients, want 4", len(all))
	}
	for i, cfg := range configs {
		if all[i].Name() != cfg.Name {
			t.Errorf("client %d = %q, want %q (config order)", i, all[i].Name(), cfg.Name)
		}
	}

	c, ok := r.Get("kroger")
	if !ok || c.Name() != "kroger" {
		t.Errorf("Get(kroger) = %v, %v", c, ok)
	}
	if _, ok := r.Get("aldi"); ok {
		t.Error("Get for unknown name should report missing")
	}
}

func TestNewRegistryRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		configs []domain.SourceConfig
	}{
		{"missing name", []domain.SourceConfig{{Kind: domain.SourceKindAPI, Shape: "walmart"}}},
		{"duplicate name", []domain.SourceConfig{
			apiConfig("walmart", "walmart", "http://a"),
			apiConfig("walmart", "walmart", "http://b"),
		}},
		{"unknown kind", []domain.SourceConfig{{Name: "x", Kind: "carrier-pigeon"}}},
		{"unknown shape", []domain.SourceConfig{apiConfig("x", "costco", "http://a")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.configs, RegistryOptions{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAPIClientSearch(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		if r.URL.Path != "/items/search" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"items": [
			{"itemId": "w-1", "name": "Milk", "price": {"amount": 3.98, "currency": "USD"}},
			{"itemId": "w-2", "name": "Broken"}
		]}`))
	}))
	defer srv.Close()

	var skips atomic.Int64
	r, err := NewRegistry(
		[]domain.SourceConfig{apiConfig("walmart", "walmart", srv.URL)},
		RegistryOptions{OnParseSkip: func(source string, count int) {
			skips.Add(int64(count))
		}},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	c, _ := r.Get("walmart")
	obs, err := c.Search(context.Background(), "milk")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotQuery != "milk" {
		t.Errorf("query = %q, want milk", gotQuery)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if obs[0].SourceName != "walmart" {
		t.Errorf("SourceName = %q, want walmart", obs[0].SourceName)
	}
	if obs[0].ObservedAtMs == 0 {
		t.Error("ObservedAtMs not stamped")
	}
	if skips.Load() != 1 {
		t.Errorf("skip callback count = %d, want 1", skips.Load())
	}
}

func TestAPIClientGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/w-1/price" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"price": {"amount": 4.15, "currency": "USD", "isSale": true}}`))
	}))
	defer srv.Close()

	r, err := NewRegistry(
		[]domain.SourceConfig{apiConfig("walmart", "walmart", srv.URL)},
		RegistryOptions{},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	c, _ := r.Get("walmart")
	o, err := c.GetPrice(context.Background(), "w-1")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if o.ExternalID != "w-1" {
		t.Errorf("ExternalID = %q, want w-1", o.ExternalID)
	}
	if o.Price != 4.15 || !o.IsSale {
		t.Errorf("price = %v sale = %v", o.Price, o.IsSale)
	}
	if o.SourceName != "walmart" {
		t.Errorf("SourceName = %q", o.SourceName)
	}
}

func TestAPIClientParseErrorOnGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	r, _ := NewRegistry(
		[]domain.SourceConfig{apiConfig("walmart", "walmart", srv.URL)},
		RegistryOptions{},
	)
	c, _ := r.Get("walmart")

	_, err := c.Search(context.Background(), "milk")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if ClassifyError(err) != domain.FailureParse {
		t.Errorf("ClassifyError = %v, want parse", ClassifyError(err))
	}
}
