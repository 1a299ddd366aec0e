package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"smartcart-engine/internal/domain"
)

// scrapeClient reads prices from a storefront that server-renders its
// product state as an embedded JSON blob. The blob lives in a
// <script type="application/json" id="storefront-state"> element, so
// extraction is a marker scan rather than full HTML parsing.
type scrapeClient struct {
	name    string
	baseURL string
	http    *HTTPClient
	onSkip  func(source string, count int)
}

const (
	stateMarker    = `id="storefront-state"`
	scriptOpenEnd  = ">"
	scriptCloseTag = "</script>"
)

type storefrontState struct {
	Products json.RawMessage `json:"products"`
	Product  json.RawMessage `json:"product"`
}

type storefrontProduct struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Barcode     string   `json:"barcode"`
	Price       *float64 `json:"price"`
	PriceText   string   `json:"priceText"`
	Currency    string   `json:"currency"`
	OnSale      bool     `json:"onSale"`
	SaleEndDate string   `json:"saleEndDate"`
}

func (c *scrapeClient) Name() string { return c.name }

// Search scrapes the storefront search page.
func (c *scrapeClient) Search(ctx context.Context, query string) ([]*domain.RawObservation, error) {
	body, err := c.http.Get(ctx, c.baseURL+"/search", url.Values{"q": {query}}, nil)
	if err != nil {
		return nil, err
	}

	state, err := extractState(body)
	if err != nil {
		return nil, &ParseError{Source: c.name, Err: err}
	}
	items, err := decodeItems(state.Products)
	if err != nil {
		return nil, &ParseError{Source: c.name, Err: err}
	}

	now := time.Now().UnixMilli()
	var obs []*domain.RawObservation
	skipped := 0
	for _, raw := range items {
		var p storefrontProduct
		if err := json.Unmarshal(raw, &p); err != nil || (p.Price == nil && p.PriceText == "") {
			skipped++
			continue
		}
		obs = append(obs, c.toObservation(&p, now))
	}
	if skipped > 0 && c.onSkip != nil {
		c.onSkip(c.name, skipped)
	}
	return obs, nil
}

// GetPrice scrapes one product page.
func (c *scrapeClient) GetPrice(ctx context.Context, externalID string) (*domain.RawObservation, error) {
	body, err := c.http.Get(ctx, c.baseURL+"/product/"+url.PathEscape(externalID), nil, nil)
	if err != nil {
		return nil, err
	}

	state, err := extractState(body)
	if err != nil {
		return nil, &ParseError{Source: c.name, Err: err}
	}
	var p storefrontProduct
	if err := json.Unmarshal(state.Product, &p); err != nil {
		return nil, &ParseError{Source: c.name, Err: err}
	}
	if p.Price == nil && p.PriceText == "" {
		return nil, &ParseError{Source: c.name, Err: fmt.Errorf("product %s has no price", externalID)}
	}

	o := c.toObservation(&p, time.Now().UnixMilli())
	o.ExternalID = externalID
	return o, nil
}

func (c *scrapeClient) toObservation(p *storefrontProduct, ts int64) *domain.RawObservation {
	o := &domain.RawObservation{
		SourceName:   c.name,
		ExternalID:   p.ID,
		ProductName:  p.Name,
		Brand:        p.Brand,
		Category:     p.Category,
		Barcode:      p.Barcode,
		PriceText:    p.PriceText,
		Currency:     p.Currency,
		IsSale:       p.OnSale,
		SaleEndMs:    parseSaleEnd(p.SaleEndDate),
		ObservedAtMs: ts,
	}
	if p.Price != nil {
		o.Price = *p.Price
	}
	return o
}

// extractState locates the embedded state blob in a rendered page.
func extractState(page []byte) (*storefrontState, error) {
	i := bytes.Index(page, []byte(stateMarker))
	if i < 0 {
		return nil, fmt.Errorf("storefront state not found in page")
	}
	rest := page[i:]

	open := bytes.Index(rest, []byte(scriptOpenEnd))
	if open < 0 {
		return nil, fmt.Errorf("malformed state element")
	}
	rest = rest[open+1:]

	end := bytes.Index(rest, []byte(scriptCloseTag))
	if end < 0 {
		return nil, fmt.Errorf("unterminated state element")
	}

	var state storefrontState
	if err := json.Unmarshal(bytes.TrimSpace(rest[:end]), &state); err != nil {
		return nil, fmt.Errorf("decode storefront state: %w", err)
	}
	return &state, nil
}
