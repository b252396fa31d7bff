// Package query validates search filters and derives the canonical cache key
// used for caching and single-flight coordination.
package query

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"imovel-search/models"
	"imovel-search/services"
)

const (
	// openBound is the sentinel for an absent numeric bound, so that an
	// explicit open-ended range and an unset field hash identically.
	openBound = "-1"

	defaultPerPage = 20
	maxPerPage     = 100
)

// Validate checks the filters a caller may hand to the pipeline. It is the
// only failure surface of a search: everything past validation degrades
// gracefully instead of erroring.
func Validate(f models.SearchFilters) error {
	if strings.TrimSpace(f.City) == "" {
		return models.NewInputError("city", "required")
	}
	if f.MinPrice < 0 || f.MaxPrice < 0 {
		return models.NewInputError("price", "must not be negative")
	}
	if f.MinPrice > 0 && f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return models.NewInputError("price", "min greater than max")
	}
	if f.MinSize < 0 || f.MaxSize < 0 {
		return models.NewInputError("size", "must not be negative")
	}
	if f.MinSize > 0 && f.MaxSize > 0 && f.MinSize > f.MaxSize {
		return models.NewInputError("size", "min greater than max")
	}
	if f.Bedrooms < 0 || f.Bedrooms > 20 {
		return models.NewInputError("bedrooms", "out of range")
	}
	if f.Page < 0 {
		return models.NewInputError("page", "must not be negative")
	}
	if f.PerPage < 0 || f.PerPage > maxPerPage {
		return models.NewInputError("per_page", "out of range")
	}
	switch f.Sort {
	case "", models.SortPriceAsc, models.SortPriceDesc, models.SortSizeDesc:
	default:
		return models.NewInputError("sort", "unknown sort order")
	}
	return nil
}

// Fingerprint derives the canonical, stable key for a filter set. It is pure
// and total: semantically equal filters (key order, case, whitespace,
// equivalent open-range encodings) always map to the same digest.
func Fingerprint(f models.SearchFilters) string {
	sum := md5.Sum([]byte(canonical(f)))
	return hex.EncodeToString(sum[:])
}

// canonical renders the filters as a fixed-order k=v string. Strings are
// case-folded and whitespace-collapsed; absent numeric bounds become the
// openBound sentinel; pagination defaults are applied so that an implicit
// and an explicit first page agree.
func canonical(f models.SearchFilters) string {
	var b strings.Builder
	field := func(key, val string) {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(val)
		b.WriteByte('|')
	}

	field("city", services.Fold(f.City))
	field("state", services.Fold(f.State))
	field("neighborhood", services.Fold(f.Neighborhood))
	field("type", services.Fold(f.PropertyType))
	field("minprice", bound(f.MinPrice))
	field("maxprice", bound(f.MaxPrice))
	field("minsize", bound(f.MinSize))
	field("maxsize", bound(f.MaxSize))
	if f.Bedrooms > 0 {
		field("bedrooms", strconv.Itoa(f.Bedrooms))
	} else {
		field("bedrooms", openBound)
	}
	sort := f.Sort
	if sort == "" {
		sort = models.SortPriceAsc
	}
	field("sort", sort)
	page := f.Page
	if page < 1 {
		page = 1
	}
	field("page", strconv.Itoa(page))
	perPage := f.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	field("perpage", strconv.Itoa(perPage))

	return b.String()
}

func bound(v float64) string {
	if v <= 0 {
		return openBound
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
