// Package merge combines adapter outcomes into one deduplicated, ordered
// result set with aggregate statistics.
package merge

import (
	"math"
	"sort"
	"time"

	"imovel-search/models"
	"imovel-search/scraper"
	"imovel-search/services"
)

// Options carries the similarity tolerances (fractional) and requested sort.
type Options struct {
	PriceTolerance float64
	SizeTolerance  float64
	Sort           string
}

// Merge concatenates every successful adapter's records, deduplicates them,
// orders them deterministically, and computes the aggregates once. The merge
// is commutative: adapter completion order never changes the output.
func Merge(fingerprint string, outcomes []scraper.Outcome, opts Options) *models.ResultSet {
	var records []*models.ListingRecord
	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		succeeded++
		records = append(records, o.Records...)
	}

	provenance := models.ProvenanceLive
	if failed > 0 {
		provenance = models.ProvenancePartial
	}

	return Assemble(fingerprint, Dedup(records, opts), provenance, opts.Sort)
}

// Assemble orders the records and computes statistics over the final set.
// Shared with the fallback generator so synthetic sets obey the same
// ordering and stats contract as live ones.
func Assemble(fingerprint string, records []*models.ListingRecord, provenance models.Provenance, sortOrder string) *models.ResultSet {
	sortRecords(records, sortOrder)
	return &models.ResultSet{
		Fingerprint: fingerprint,
		Provenance:  provenance,
		Records:     records,
		Stats:       computeStats(records),
		AssembledAt: time.Now().UTC(),
	}
}

// Dedup removes records judged to be the same listing, keeping the one with
// the more complete field set; ties go to the most recently fetched record.
// Input order only affects which duplicate is examined first, never the
// surviving content.
func Dedup(records []*models.ListingRecord, opts Options) []*models.ListingRecord {
	kept := make([]*models.ListingRecord, 0, len(records))
	byID := make(map[string]int, len(records))

	for _, r := range records {
		idx := -1
		if r.SourceID != "" {
			if i, ok := byID[identityKey(r)]; ok {
				idx = i
			}
		}
		if idx < 0 {
			for i, k := range kept {
				if sameListing(r, k, opts) {
					idx = i
					break
				}
			}
		}

		if idx < 0 {
			kept = append(kept, r)
			if r.SourceID != "" {
				byID[identityKey(r)] = len(kept) - 1
			}
			continue
		}
		if prefer(r, kept[idx]) {
			if kept[idx].SourceID != "" {
				delete(byID, identityKey(kept[idx]))
			}
			kept[idx] = r
			if r.SourceID != "" {
				byID[identityKey(r)] = idx
			}
		}
	}
	return kept
}

func identityKey(r *models.ListingRecord) string {
	return r.Source + "\x00" + r.SourceID
}

// sameListing applies the identity rule: same source-native id within one
// source, or the cross-source similarity heuristic — matching normalized
// title/address with price and size inside the configured tolerances.
func sameListing(a, b *models.ListingRecord, opts Options) bool {
	if a.Source == b.Source && a.SourceID != "" && a.SourceID == b.SourceID {
		return true
	}
	if !textMatches(a, b) {
		return false
	}
	if !within(a.Price, b.Price, opts.PriceTolerance) {
		return false
	}
	// Size participates only when both records know it.
	if a.SizeM2 > 0 && b.SizeM2 > 0 && !within(a.SizeM2, b.SizeM2, opts.SizeTolerance) {
		return false
	}
	return true
}

func textMatches(a, b *models.ListingRecord) bool {
	if at, bt := services.Fold(a.Title), services.Fold(b.Title); at != "" && at == bt {
		return true
	}
	if aa, ba := services.Fold(a.Address), services.Fold(b.Address); aa != "" && aa == ba {
		return true
	}
	return false
}

func within(a, b, tolerance float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	return math.Abs(a-b) <= tolerance*math.Max(a, b)
}

// prefer reports whether candidate should replace incumbent: more non-empty
// descriptive fields wins, then the fresher fetch.
func prefer(candidate, incumbent *models.ListingRecord) bool {
	c, i := completeness(candidate), completeness(incumbent)
	if c != i {
		return c > i
	}
	return candidate.FetchedAt.After(incumbent.FetchedAt)
}

func completeness(r *models.ListingRecord) int {
	n := 0
	for _, set := range []bool{
		r.Title != "", r.URL != "", r.Price > 0, r.SizeM2 > 0,
		r.Bedrooms > 0, r.Bathrooms > 0, r.PropertyType != "",
		r.Neighborhood != "", r.Address != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// sortRecords orders deterministically: requested sort first, then source and
// source-native id so equal-priced records keep a reproducible order across
// assemblies (stable pagination).
func sortRecords(records []*models.ListingRecord, order string) {
	less := func(a, b *models.ListingRecord) bool { return a.Price < b.Price }
	switch order {
	case models.SortPriceDesc:
		less = func(a, b *models.ListingRecord) bool { return a.Price > b.Price }
	case models.SortSizeDesc:
		less = func(a, b *models.ListingRecord) bool { return a.SizeM2 > b.SizeM2 }
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.SourceID < b.SourceID
	})
}

func computeStats(records []*models.ListingRecord) models.Stats {
	stats := models.Stats{Count: len(records), ByType: make(map[string]int)}

	priced := 0
	var total float64
	for _, r := range records {
		if r.PropertyType != "" {
			stats.ByType[r.PropertyType]++
		}
		if r.Price <= 0 {
			continue
		}
		if priced == 0 || r.Price < stats.MinPrice {
			stats.MinPrice = r.Price
		}
		if r.Price > stats.MaxPrice {
			stats.MaxPrice = r.Price
		}
		total += r.Price
		priced++
	}
	if priced > 0 {
		stats.AvgPrice = math.Round(total/float64(priced)*100) / 100
	}
	return stats
}
