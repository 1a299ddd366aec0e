package domain

// Store represents one retail store whose prices are tracked.
// Created lazily by normalization the first time a source name is observed.
type Store struct {
	ID          string // store identifier
	Name        string // display name, unique
	Active      bool   // inactive stores are skipped by the scheduler
	CreatedAtMs int64  // Unix ms of first observation
}

// SourceKind identifies the transport a configured source speaks.
type SourceKind string

const (
	SourceKindAPI    SourceKind = "api"    // retailer JSON API
	SourceKindScrape SourceKind = "scrape" // scraped storefront page
	SourceKindFeed   SourceKind = "feed"   // websocket price feed
)

// IsValid checks if the kind is a known value.
func (k SourceKind) IsValid() bool {
	return k == SourceKindAPI || k == SourceKindScrape || k == SourceKindFeed
}

// SourceConfig describes one configured external price source.
// Credential is opaque to the engine and passed through to the client.
type SourceConfig struct {
	Name       string     `json:"name"`       // store display name, registry key
	Kind       SourceKind `json:"kind"`       // transport kind
	Shape      string     `json:"shape"`      // response shape for api kind: walmart, kroger, target
	BaseURL    string     `json:"base_url"`   // endpoint base
	Credential string     `json:"credential"` // opaque auth token, may be empty
}
