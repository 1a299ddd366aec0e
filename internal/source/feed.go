package source

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"smartcart-engine/internal/domain"
)

// feedClient reads prices from a websocket quote feed. The feed answers a
// single quote request per connection; a fresh connection per call keeps
// the client stateless and lets the per-source context bound the whole
// exchange.
type feedClient struct {
	name       string
	endpoint   string
	credential string
}

const (
	feedHandshakeTimeout = 10 * time.Second
	feedExchangeTimeout  = 15 * time.Second
)

type feedQuoteRequest struct {
	Type       string `json:"type"`
	ExternalID string `json:"externalId"`
	Token      string `json:"token,omitempty"`
}

type feedQuote struct {
	Type        string   `json:"type"`
	ExternalID  string   `json:"externalId"`
	ProductName string   `json:"productName"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Barcode     string   `json:"barcode"`
	Price       *float64 `json:"price"`
	Currency    string   `json:"currency"`
	IsSale      bool     `json:"isSale"`
	SaleEndDate string   `json:"saleEndDate"`
	Error       string   `json:"error"`
}

func (c *feedClient) Name() string { return c.name }

// Search is unsupported for quote feeds; they resolve known ids only.
func (c *feedClient) Search(ctx context.Context, query string) ([]*domain.RawObservation, error) {
	return nil, nil
}

// GetPrice requests one quote over a short-lived websocket connection.
func (c *feedClient) GetPrice(ctx context.Context, externalID string) (*domain.RawObservation, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: feedHandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("feed dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(feedExchangeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	req := feedQuoteRequest{Type: "quote", ExternalID: externalID, Token: c.credential}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write quote request: %w", err)
	}

	conn.SetReadDeadline(deadline)
	var quote feedQuote
	if err := conn.ReadJSON(&quote); err != nil {
		return nil, fmt.Errorf("read quote: %w", err)
	}

	if quote.Error != "" {
		return nil, &ParseError{Source: c.name, Err: fmt.Errorf("feed error: %s", quote.Error)}
	}
	if quote.Price == nil {
		return nil, &ParseError{Source: c.name, Err: fmt.Errorf("quote for %s has no price", externalID)}
	}

	return &domain.RawObservation{
		SourceName:   c.name,
		ExternalID:   externalID,
		ProductName:  quote.ProductName,
		Brand:        quote.Brand,
		Category:     quote.Category,
		Barcode:      quote.Barcode,
		Price:        *quote.Price,
		Currency:     quote.Currency,
		IsSale:       quote.IsSale,
		SaleEndMs:    parseSaleEnd(quote.SaleEndDate),
		ObservedAtMs: time.Now().UnixMilli(),
	}, nil
}
