package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"smartcart-engine/internal/domain"
)

// apiClient speaks a retailer JSON API. The endpoint paths, query parameter
// names and response parsing differ per retailer; those differences live in
// the shape, everything else is shared.
type apiClient struct {
	name       string
	baseURL    string
	credential string
	shape      shape
	http       *HTTPClient
	onSkip     func(source string, count int)
}

// shape captures one retailer's endpoint and payload conventions.
type shape interface {
	searchURL(baseURL, query string) (string, url.Values)
	priceURL(baseURL, externalID string) string
	parseSearch(data []byte) (obs []*domain.RawObservation, skipped int, err error)
	parsePrice(data []byte) (*domain.RawObservation, error)
}

func shapeFor(name string) (shape, error) {
	switch name {
	case "walmart":
		return walmartShape{}, nil
	case "kroger":
		return krogerShape{}, nil
	case "target":
		return targetShape{}, nil
	default:
		return nil, &ParseError{Source: name, Err: errUnknownShape}
	}
}

var errUnknownShape = jsonError("unknown api shape")

type jsonError string

func (e jsonError) Error() string { return string(e) }

func (c *apiClient) Name() string { return c.name }

func (c *apiClient) header() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if c.credential != "" {
		h.Set("Authorization", "Bearer "+c.credential)
	}
	return h
}

// Search queries the retailer catalog.
func (c *apiClient) Search(ctx context.Context, query string) ([]*domain.RawObservation, error) {
	u, params := c.shape.searchURL(c.baseURL, query)
	body, err := c.http.Get(ctx, u, params, c.header())
	if err != nil {
		return nil, err
	}

	obs, skipped, err := c.shape.parseSearch(body)
	if err != nil {
		return nil, &ParseError{Source: c.name, Err: err}
	}
	if skipped > 0 && c.onSkip != nil {
		c.onSkip(c.name, skipped)
	}

	now := time.Now().UnixMilli()
	for _, o := range obs {
		o.SourceName = c.name
		o.ObservedAtMs = now
	}
	return obs, nil
}

// GetPrice fetches the current price for one catalog item.
func (c *apiClient) GetPrice(ctx context.Context, externalID string) (*domain.RawObservation, error) {
	body, err := c.http.Get(ctx, c.shape.priceURL(c.baseURL, externalID), nil, c.header())
	if err != nil {
		return nil, err
	}

	o, err := c.shape.parsePrice(body)
	if err != nil {
		return nil, &ParseError{Source: c.name, Err: err}
	}

	o.SourceName = c.name
	o.ExternalID = externalID
	o.ObservedAtMs = time.Now().UnixMilli()
	return o, nil
}

// parseSaleEnd converts an RFC3339 sale end date to Unix ms.
// Unparseable or empty dates yield nil, not an error.
func parseSaleEnd(s string) *int64 {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// decodeItems splits a JSON array into raw entries so one malformed entry
// can be skipped without aborting the whole response.
func decodeItems(data []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
