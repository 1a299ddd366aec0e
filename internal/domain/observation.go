package domain

// RawObservation is one source-shaped price reading before normalization.
// Structured sources fill Price; scraped sources fill PriceText and leave
// parsing to the normalizer.
type RawObservation struct {
	SourceName   string // store display name of the originating source
	ExternalID   string // source-specific product id
	ProductName  string // as reported by the source, may be empty
	Brand        string
	Category     string
	Barcode      string
	Price        float64 // parsed price when the source is structured
	PriceText    string  // raw price text ("$1,299.99") when the source is textual
	Currency     string  // ISO code, defaults to USD downstream if empty
	IsSale       bool
	SaleEndMs    *int64  // Unix ms sale end, nil if not on sale or unknown
	ObservedAtMs int64   // Unix ms the source reported, informational only
}

// PriceObservation is one canonical, committed price reading.
// Corresponds to the price_observations table. Observations are append-only;
// the current price per store is the most recent observation for that store.
type PriceObservation struct {
	ID           string  // deterministic observation id
	ProductID    string  // owning product
	StoreID      string  // owning store
	Price        float64 // normalized price value
	Currency     string  // ISO currency code
	IsSale       bool    // sale flag from the source
	SaleEndMs    *int64  // Unix ms sale end, nil if none
	ObservedAtMs int64   // Unix ms stamped at commit time
}
