package domain

// Product represents one catalog entry tracked across stores.
// Corresponds to the products table.
type Product struct {
	ID          string            // product identifier
	Name        string            // display name
	Brand       string            // brand name, may be empty
	Category    string            // category slug, may be empty
	Barcode     string            // canonical barcode (UPC/EAN), unique
	ExternalIDs map[string]string // source name -> source-specific product id
	LastRefreshMs int64           // Unix ms of last successful price refresh, 0 if never
	CreatedAtMs   int64           // Unix ms of catalog ingestion
}

// ExternalID returns the product id a given source knows this product by.
// Falls back to the barcode when the source has no dedicated mapping.
func (p *Product) ExternalID(source string) string {
	if id, ok := p.ExternalIDs[source]; ok {
		return id
	}
	return p.Barcode
}
