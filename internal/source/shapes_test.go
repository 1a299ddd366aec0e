package source

import (
	"testing"
)

func TestWalmartParseSearch(t *testing.T) {
	data := []byte(`{
		"items": [
			{
				"itemId": "w-100",
				"name": "Organic Whole Milk",
				"brand": "Great Value",
				"category": "dairy",
				"upc": "0001111041700",
				"price": {"amount": 3.98, "currency": "USD", "isSale": true, "saleEndDate": "2025-11-03T00:00:00Z"}
			},
			{
				"itemId": "w-101",
				"name": "Wheat Bread",
				"price": {"amount": 2.50, "currency": "USD", "isSale": false}
			}
		]
	}`)

	obs, skipped, err := walmartShape{}.parseSearch(data)
	if err != nil {
		t.Fatalf("parseSearch: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}

	first := obs[0]
	if first.ExternalID != "w-100" {
		t.Errorf("ExternalID = %q, want w-100", first.ExternalID)
	}
	if first.ProductName != "Organic Whole Milk" {
		t.Errorf("ProductName = %q", first.ProductName)
	}
	if first.Barcode != "0001111041700" {
		t.Errorf("Barcode = %q", first.Barcode)
	}
	if first.Price != 3.98 {
		t.Errorf("Price = %v, want 3.98", first.Price)
	}
	if !first.IsSale {
		t.Error("IsSale = false, want true")
	}
	if first.SaleEndMs == nil {
		t.Fatal("SaleEndMs = nil, want set")
	}
	if obs[1].SaleEndMs != nil {
		t.Error("SaleEndMs without saleEndDate should be nil")
	}
}

func TestWalmartParseSearchSkipsMalformedEntries(t *testing.T) {
	data := []byte(`{
		"items": [
			{"itemId": "w-1", "name": "Milk", "price": {"amount": 3.98, "currency": "USD"}},
			{"itemId": "w-2", "name": "No Price"},
			{"itemId": 42}
		]
	}`)

	obs, skipped, err := walmartShape{}.parseSearch(data)
	if err != nil {
		t.Fatalf("parseSearch: %v", err)
	}
	if len(obs) != 1 {
		t.Errorf("got %d observations, want 1", len(obs))
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestWalmartParseSearchInvalidPayload(t *testing.T) {
	if _, _, err := (walmartShape{}).parseSearch([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid payload")
	}
	if _, _, err := (walmartShape{}).parseSearch([]byte(`{"items": "nope"}`)); err == nil {
		t.Error("expected error for non-array items")
	}
}

func TestKrogerParseSearch(t *testing.T) {
	data := []byte(`{
		"products": [
			{
				"productId": "k-200",
				"description": "Whole Milk Gallon",
				"brand": "Kroger",
				"category": "dairy",
				"upc": "0001111041700",
				"price": {"regular": 4.29, "sale": 3.79, "saleEndDate": "2025-11-03T00:00:00Z"}
			},
			{
				"productId": "k-201",
				"description": "Eggs Dozen",
				"price": {"regular": 2.99}
			}
		]
	}`)

	obs, skipped, err := krogerShape{}.parseSearch(data)
	if err != nil {
		t.Fatalf("parseSearch: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}

	if obs[0].Price != 4.29 {
		t.Errorf("Price = %v, want regular 4.29", obs[0].Price)
	}
	if !obs[0].IsSale {
		t.Error("sale price present should mark IsSale")
	}
	if obs[0].Currency != "USD" {
		t.Errorf("Currency = %q, want USD", obs[0].Currency)
	}
	if obs[1].IsSale {
		t.Error("no sale price should not mark IsSale")
	}
}

func TestTargetParseSearch(t *testing.T) {
	data := []byte(`{
		"products": [
			{
				"productId": "t-300",
				"title": "Milk 1 Gallon",
				"brand": "Good & Gather",
				"category": "dairy",
				"tcin": "13276135",
				"price": {"current": 3.89, "isOnSale": true}
			}
		]
	}`)

	obs, skipped, err := targetShape{}.parseSearch(data)
	if err != nil {
		t.Fatalf("parseSearch: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if obs[0].ExternalID != "t-300" {
		t.Errorf("ExternalID = %q, want t-300", obs[0].ExternalID)
	}
	if obs[0].ProductName != "Milk 1 Gallon" {
		t.Errorf("ProductName = %q", obs[0].ProductName)
	}
	if obs[0].Barcode != "13276135" {
		t.Errorf("Barcode = %q, want tcin", obs[0].Barcode)
	}
	if obs[0].Price != 3.89 || !obs[0].IsSale {
		t.Errorf("price = %v sale = %v", obs[0].Price, obs[0].IsSale)
	}
}

func TestParsePriceShapes(t *testing.T) {
	tests := []struct {
		name      string
		shape     shape
		data      string
		wantPrice float64
		wantSale  bool
	}{
		{
			name:      "walmart",
			shape:     walmartShape{},
			data:      `{"price": {"amount": 3.98, "currency": "USD", "isSale": false}}`,
			wantPrice: 3.98,
		},
		{
			name:      "kroger",
			shape:     krogerShape{},
			data:      `{"price": {"regular": 4.29, "sale": 3.79}}`,
			wantPrice: 4.29,
			wantSale:  true,
		},
		{
			name:      "target",
			shape:     targetShape{},
			data:      `{"price": {"current": 3.89, "isOnSale": true}}`,
			wantPrice: 3.89,
			wantSale:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := tt.shape.parsePrice([]byte(tt.data))
			if err != nil {
				t.Fatalf("parsePrice: %v", err)
			}
			if o.Price != tt.wantPrice {
				t.Errorf("Price = %v, want %v", o.Price, tt.wantPrice)
			}
			if o.IsSale != tt.wantSale {
				t.Errorf("IsSale = %v, want %v", o.IsSale, tt.wantSale)
			}
		})
	}
}

func TestParsePriceMissingAmount(t *testing.T) {
	shapes := []shape{walmartShape{}, krogerShape{}, targetShape{}}
	for _, s := range shapes {
		if _, err := s.parsePrice([]byte(`{"price": {}}`)); err == nil {
			t.Errorf("%T: expected error for missing price", s)
		}
	}
}

func TestShapeFor(t *testing.T) {
	for _, name := range []string{"walmart", "kroger", "target"} {
		if _, err := shapeFor(name); err != nil {
			t.Errorf("shapeFor(%q): %v", name, err)
		}
	}
	if _, err := shapeFor("costco"); err == nil {
		t.Error("expected error for unknown shape")
	}
}

func TestParseSaleEnd(t *testing.T) {
	if got := parseSaleEnd(""); got != nil {
		t.Error("empty date should yield nil")
	}
	if got := parseSaleEnd("next tuesday"); got != nil {
		t.Error("unparseable date should yield nil")
	}
	got := parseSaleEnd("2025-11-03T00:00:00Z")
	if got == nil {
		t.Fatal("valid date should yield value")
	}
	if *got != 1762128000000 {
		t.Errorf("ms = %d, want 1762128000000", *got)
	}
}
