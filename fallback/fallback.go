// Package fallback produces synthetic, clearly marked listings from reference
// market statistics when live acquisition comes back empty.
package fallback

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"imovel-search/config"
	"imovel-search/merge"
	"imovel-search/models"
	"imovel-search/services"
)

const source = "mercado"

// CityStats is the reference market profile for one city.
type CityStats struct {
	BasePrice     float64
	Neighborhoods []string
}

// defaultMarket mirrors observed asking-price levels in the covered cities.
var defaultMarket = map[string]CityStats{
	"sao paulo":      {650000, []string{"Vila Madalena", "Pinheiros", "Jardins"}},
	"rio de janeiro": {580000, []string{"Copacabana", "Ipanema", "Leblon"}},
	"brasilia":       {450000, []string{"Asa Sul", "Asa Norte", "Lago Sul"}},
	"belo horizonte": {380000, []string{"Savassi", "Lourdes", "Funcionários"}},
	"salvador":       {320000, []string{"Barra", "Ondina", "Campo Grande"}},
	"fortaleza":      {280000, []string{"Meireles", "Aldeota", "Cocó"}},
}

var propertyTypes = []string{"apartment", "house", "condo"}

// Generator builds synthetic result sets. Safe for concurrent use: all state
// is read-only after construction.
type Generator struct {
	market   map[string]CityStats
	minCount int
	maxCount int
}

// NewGenerator builds a Generator from configuration.
func NewGenerator(cfg *config.Config) *Generator {
	minCount, maxCount := cfg.FallbackMinCount, cfg.FallbackMaxCount
	if minCount < 1 {
		minCount = 1
	}
	if maxCount < minCount {
		maxCount = minCount
	}
	return &Generator{market: defaultMarket, minCount: minCount, maxCount: maxCount}
}

// Generate produces a non-empty synthetic ResultSet for the filters. The
// randomness is seeded from the fingerprint, so the same query always yields
// the same synthetic listings until a live fetch replaces them.
func (g *Generator) Generate(filters models.SearchFilters, fingerprint string) *models.ResultSet {
	rng := rand.New(rand.NewSource(seed(fingerprint)))

	cityKey := services.Slugify(filters.City)
	stats, ok := g.market[keyToSpace(cityKey)]
	if !ok {
		stats = g.market["sao paulo"]
	}

	count := g.minCount + rng.Intn(g.maxCount-g.minCount+1)
	records := make([]*models.ListingRecord, 0, count)
	now := time.Now().UTC()

	for i := 0; i < count; i++ {
		neighborhood := filters.Neighborhood
		if neighborhood == "" {
			neighborhood = stats.Neighborhoods[i%len(stats.Neighborhoods)]
		}

		propType := services.Fold(filters.PropertyType)
		if propType == "" {
			propType = propertyTypes[rng.Intn(len(propertyTypes))]
		}

		bedrooms := filters.Bedrooms
		if bedrooms == 0 {
			bedrooms = 1 + rng.Intn(4)
		}

		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%d", fingerprint, i))).String()
		records = append(records, &models.ListingRecord{
			Source:       source,
			SourceID:     id,
			URL:          fmt.Sprintf("https://mercado.invalid/imovel/%s", id),
			Title:        fmt.Sprintf("Imóvel em %s - %s", services.CleanText(filters.City), neighborhood),
			Price:        price(rng, stats.BasePrice, filters),
			SizeM2:       size(rng, filters),
			Bedrooms:     bedrooms,
			Bathrooms:    1 + rng.Intn(3),
			PropertyType: propType,
			City:         services.CleanText(filters.City),
			Neighborhood: neighborhood,
			Address:      fmt.Sprintf("%s, %s", neighborhood, services.CleanText(filters.City)),
			Synthetic:    true,
			FetchedAt:    now,
		})
	}

	return merge.Assemble(fingerprint, records, models.ProvenanceSynthetic, filters.Sort)
}

// price spreads around the city base price, then clamps into the requested
// bounds so synthetic data always respects the caller's filters.
func price(rng *rand.Rand, base float64, filters models.SearchFilters) float64 {
	p := base * (0.6 + rng.Float64()*1.9)
	lo, hi := filters.MinPrice, filters.MaxPrice
	switch {
	case lo > 0 && hi > 0:
		p = lo + rng.Float64()*(hi-lo)
	case lo > 0 && p < lo:
		p = lo * (1 + rng.Float64()*0.3)
	case hi > 0 && p > hi:
		p = hi * (0.7 + rng.Float64()*0.3)
	}
	p = float64(int(p/1000)) * 1000
	// Rounding must not push the price back out of the requested bounds.
	if lo > 0 && p < lo {
		p = lo
	}
	if hi > 0 && p > hi {
		p = hi
	}
	return p
}

func size(rng *rand.Rand, filters models.SearchFilters) float64 {
	s := 45 + rng.Float64()*175
	lo, hi := filters.MinSize, filters.MaxSize
	switch {
	case lo > 0 && hi > 0:
		s = lo + rng.Float64()*(hi-lo)
	case lo > 0 && s < lo:
		s = lo + rng.Float64()*30
	case hi > 0 && s > hi:
		s = hi - rng.Float64()*(hi*0.2)
	}
	s = float64(int(s))
	if lo > 0 && s < lo {
		s = lo
	}
	if hi > 0 && s > hi {
		s = hi
	}
	return s
}

func seed(fingerprint string) int64 {
	h := fnv.New64a()
	h.Write([]byte(fingerprint))
	return int64(h.Sum64())
}

func keyToSpace(slug string) string {
	out := make([]byte, len(slug))
	for i := 0; i < len(slug); i++ {
		if slug[i] == '-' {
			out[i] = ' '
		} else {
			out[i] = slug[i]
		}
	}
	return string(out)
}
