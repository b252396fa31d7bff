package models

import "time"

// Sort orders accepted in SearchFilters.Sort. An empty Sort means SortPriceAsc.
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortSizeDesc  = "size_desc"
)

// SearchFilters describes one property search. Zero values on the optional
// numeric fields mean "not set" — a zero price or size is never a meaningful
// bound in this domain.
type SearchFilters struct {
	City         string
	State        string
	Neighborhood string
	PropertyType string

	MinPrice float64
	MaxPrice float64
	MinSize  float64
	MaxSize  float64
	Bedrooms int

	Sort    string
	Page    int
	PerPage int
}

// ListingRecord is one normalized property observation from a single source.
type ListingRecord struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	URL      string `json:"url"`

	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	SizeM2       float64 `json:"size_m2"`
	Bedrooms     int     `json:"bedrooms"`
	Bathrooms    int     `json:"bathrooms"`
	PropertyType string  `json:"property_type"`
	City         string  `json:"city"`
	Neighborhood string  `json:"neighborhood"`
	Address      string  `json:"address"`

	Synthetic bool      `json:"synthetic"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Provenance marks how a ResultSet was produced.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenancePartial   Provenance = "partial-live"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Stats holds the aggregates computed once over a final deduplicated set.
// Price aggregates only consider records with a known (non-zero) price.
type Stats struct {
	Count    int            `json:"count"`
	MinPrice float64        `json:"min_price"`
	MaxPrice float64        `json:"max_price"`
	AvgPrice float64        `json:"avg_price"`
	ByType   map[string]int `json:"by_type"`
}

// ResultSet is the deduplicated, ordered answer for one fingerprint.
type ResultSet struct {
	Fingerprint string           `json:"fingerprint"`
	Provenance  Provenance       `json:"provenance"`
	Records     []*ListingRecord `json:"records"`
	Stats       Stats            `json:"stats"`
	AssembledAt time.Time        `json:"assembled_at"`
}
