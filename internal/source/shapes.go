package source

import (
	"encoding/json"
	"fmt"
	"net/url"

	"smartcart-engine/internal/domain"
)

// walmartShape parses Walmart-style responses:
// search GET {base}/items/search?query=..&limit=20 -> {"items":[...]},
// price GET {base}/items/{id}/price -> {"price":{...}}.
type walmartShape struct{}

type walmartItem struct {
	Name     string       `json:"name"`
	Brand    string       `json:"brand"`
	Category string       `json:"category"`
	UPC      string       `json:"upc"`
	ItemID   string       `json:"itemId"`
	Price    walmartPrice `json:"price"`
}

type walmartPrice struct {
	Amount      *float64 `json:"amount"`
	Currency    string   `json:"currency"`
	IsSale      bool     `json:"isSale"`
	SaleEndDate string   `json:"saleEndDate"`
}

func (walmartShape) searchURL(baseURL, query string) (string, url.Values) {
	return baseURL + "/items/search", url.Values{"query": {query}, "limit": {"20"}}
}

func (walmartShape) priceURL(baseURL, externalID string) string {
	return fmt.Sprintf("%s/items/%s/price", baseURL, url.PathEscape(externalID))
}

func (walmartShape) parseSearch(data []byte) ([]*domain.RawObservation, int, error) {
	var resp struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, 0, err
	}
	items, err := decodeItems(resp.Items)
	if err != nil {
		return nil, 0, err
	}

	var obs []*domain.RawObservation
	skipped := 0
	for _, raw := range items {
		var it walmartItem
		if err := json.Unmarshal(raw, &it); err != nil || it.Price.Amount == nil {
			skipped++
			continue
		}
		obs = append(obs, &domain.RawObservation{
			ExternalID:  it.ItemID,
			ProductName: it.Name,
			Brand:       it.Brand,
			Category:    it.Category,
			Barcode:     it.UPC,
			Price:       *it.Price.Amount,
			Currency:    it.Price.Currency,
			IsSale:      it.Price.IsSale,
			SaleEndMs:   parseSaleEnd(it.Price.SaleEndDate),
		})
	}
	return obs, skipped, nil
}

func (walmartShape) parsePrice(data []byte) (*domain.RawObservation, error) {
	var resp struct {
		Price walmartPrice `json:"price"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Price.Amount == nil {
		return nil, fmt.Errorf("missing price amount")
	}
	return &domain.RawObservation{
		Price:     *resp.Price.Amount,
		Currency:  resp.Price.Currency,
		IsSale:    resp.Price.IsSale,
		SaleEndMs: parseSaleEnd(resp.Price.SaleEndDate),
	}, nil
}

// krogerShape parses Kroger-style responses:
// search GET {base}/products/search?term=..&limit=20 -> {"products":[...]},
// price GET {base}/products/{id}/price. Prices are USD; the regular price is
// reported and a present sale price marks the item as on sale.
type krogerShape struct{}

type krogerItem struct {
	Description string      `json:"description"`
	Brand       string      `json:"brand"`
	Category    string      `json:"category"`
	UPC         string      `json:"upc"`
	ProductID   string      `json:"productId"`
	Price       krogerPrice `json:"price"`
}

type krogerPrice struct {
	Regular     *float64 `json:"regular"`
	Sale        *float64 `json:"sale"`
	SaleEndDate string   `json:"saleEndDate"`
}

func (krogerShape) searchURL(baseURL, query string) (string, url.Values) {
	return baseURL + "/products/search", url.Values{"term": {query}, "limit": {"20"}}
}

func (krogerShape) priceURL(baseURL, externalID string) string {
	return fmt.Sprintf("%s/products/%s/price", baseURL, url.PathEscape(externalID))
}

func (krogerShape) parseSearch(data []byte) ([]*domain.RawObservation, int, error) {
	var resp struct {
		Products json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, 0, err
	}
	items, err := decodeItems(resp.Products)
	if err != nil {
		return nil, 0, err
	}

	var obs []*domain.RawObservation
	skipped := 0
	for _, raw := range items {
		var it krogerItem
		if err := json.Unmarshal(raw, &it); err != nil || it.Price.Regular == nil {
			skipped++
			continue
		}
		obs = append(obs, &domain.RawObservation{
			ExternalID:  it.ProductID,
			ProductName: it.Description,
			Brand:       it.Brand,
			Category:    it.Category,
			Barcode:     it.UPC,
			Price:       *it.Price.Regular,
			Currency:    "USD",
			IsSale:      it.Price.Sale != nil,
			SaleEndMs:   parseSaleEnd(it.Price.SaleEndDate),
		})
	}
	return obs, skipped, nil
}

func (krogerShape) parsePrice(data []byte) (*domain.RawObservation, error) {
	var resp struct {
		Price krogerPrice `json:"price"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Price.Regular == nil {
		return nil, fmt.Errorf("missing regular price")
	}
	return &domain.RawObservation{
		Price:     *resp.Price.Regular,
		Currency:  "USD",
		IsSale:    resp.Price.Sale != nil,
		SaleEndMs: parseSaleEnd(resp.Price.SaleEndDate),
	}, nil
}

// targetShape parses Target-style responses:
// search GET {base}/products/search?searchTerm=..&limit=20 -> {"products":[...]},
// price GET {base}/products/{id}/price.
type targetShape struct{}

type targetItem struct {
	Title     string      `json:"title"`
	Brand     string      `json:"brand"`
	Category  string      `json:"category"`
	TCIN      string      `json:"tcin"`
	ProductID string      `json:"productId"`
	Price     targetPrice `json:"price"`
}

type targetPrice struct {
	Current     *float64 `json:"current"`
	IsOnSale    bool     `json:"isOnSale"`
	SaleEndDate string   `json:"saleEndDate"`
}

func (targetShape) searchURL(baseURL, query string) (string, url.Values) {
	return baseURL + "/products/search", url.Values{"searchTerm": {query}, "limit": {"20"}}
}

func (targetShape) priceURL(baseURL, externalID string) string {
	return fmt.Sprintf("%s/products/%s/price", baseURL, url.PathEscape(externalID))
}

func (targetShape) parseSearch(data []byte) ([]*domain.RawObservation, int, error) {
	var resp struct {
		Products json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, 0, err
	}
	items, err := decodeItems(resp.Products)
	if err != nil {
		return nil, 0, err
	}

	var obs []*domain.RawObservation
	skipped := 0
	for _, raw := range items {
		var it targetItem
		if err := json.Unmarshal(raw, &it); err != nil || it.Price.Current == nil {
			skipped++
			continue
		}
		obs = append(obs, &domain.RawObservation{
			ExternalID:  it.ProductID,
			ProductName: it.Title,
			Brand:       it.Brand,
			Category:    it.Category,
			Barcode:     it.TCIN,
			Price:       *it.Price.Current,
			Currency:    "USD",
			IsSale:      it.Price.IsOnSale,
			SaleEndMs:   parseSaleEnd(it.Price.SaleEndDate),
		})
	}
	return obs, skipped, nil
}

func (targetShape) parsePrice(data []byte) (*domain.RawObservation, error) {
	var resp struct {
		Price targetPrice `json:"price"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Price.Current == nil {
		return nil, fmt.Errorf("missing current price")
	}
	return &domain.RawObservation{
		Price:     *resp.Price.Current,
		Currency:  "USD",
		IsSale:    resp.Price.IsOnSale,
		SaleEndMs: parseSaleEnd(resp.Price.SaleEndDate),
	}, nil
}
