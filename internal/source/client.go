// Package source implements clients for external price sources: retailer
// JSON APIs, scraped storefronts and websocket price feeds. Each client
// translates product queries into raw observations and fails independently;
// a malformed entry in a response is skipped, never fatal for the response.
package source

import (
	"context"
	"fmt"

	"smartcart-engine/internal/domain"
)

// Client is the capability every source variant implements.
type Client interface {
	// Name returns the store display name this client observes prices for.
	Name() string

	// Search returns raw observations matching a free-text product query.
	Search(ctx context.Context, query string) ([]*domain.RawObservation, error)

	// GetPrice returns the current raw observation for a source-specific
	// product id.
	GetPrice(ctx context.Context, externalID string) (*domain.RawObservation, error)
}

// RegistryOptions configures client construction.
type RegistryOptions struct {
	// HTTP is the shared transport for api and scrape clients.
	// Defaults to NewHTTPClient().
	HTTP *HTTPClient

	// OnParseSkip is invoked when a client skips malformed entries,
	// for observability counters. May be nil.
	OnParseSkip func(source string, count int)
}

// Registry resolves source clients by store name. Clients are constructed
// once from configuration; adding a source is a configuration change, not
// a coordinator change.
type Registry struct {
	clients map[string]Client
	order   []string
}

// NewRegistry builds one client per configured source.
func NewRegistry(configs []domain.SourceConfig, opts RegistryOptions) (*Registry, error) {
	if opts.HTTP == nil {
		opts.HTTP = NewHTTPClient()
	}

	r := &Registry{clients: make(map[string]Client, len(configs))}
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("source config missing name")
		}
		if _, exists := r.clients[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate source name %q", cfg.Name)
		}

		var c Client
		switch cfg.Kind {
		case domain.SourceKindAPI:
			shape, err := shapeFor(cfg.Shape)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", cfg.Name, err)
			}
			c = &apiClient{
				name:       cfg.Name,
				baseURL:    cfg.BaseURL,
				credential: cfg.Credential,
				shape:      shape,
				http:       opts.HTTP,
				onSkip:     opts.OnParseSkip,
			}
		case domain.SourceKindScrape:
			c = &scrapeClient{
				name:    cfg.Name,
				baseURL: cfg.BaseURL,
				http:    opts.HTTP,
				onSkip:  opts.OnParseSkip,
			}
		case domain.SourceKindFeed:
			c = &feedClient{
				name:       cfg.Name,
				endpoint:   cfg.BaseURL,
				credential: cfg.Credential,
			}
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", cfg.Name, cfg.Kind)
		}

		r.clients[cfg.Name] = c
		r.order = append(r.order, cfg.Name)
	}
	return r, nil
}

// Get resolves a client by store name.
func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// All returns all clients in configuration order.
func (r *Registry) All() []Client {
	out := make([]Client, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.clients[name])
	}
	return out
}
