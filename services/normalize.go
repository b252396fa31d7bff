package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// priceRegexp captures a Brazilian price value after the currency marker,
	// e.g. "R$ 1.250.000" or "R$ 3.500,50".
	priceRegexp = regexp.MustCompile(`R\$\s*([\d.]+(?:,\d{1,2})?)`)
	// sizeRegexp captures an area in square metres, e.g. "72 m²" or "72m2".
	sizeRegexp = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*m[²2]`)
	// bedroomsRegexp and bathroomsRegexp match the abbreviated forms the
	// portals use ("3 quartos", "2 banh.").
	bedroomsRegexp  = regexp.MustCompile(`(?i)(\d+)\s*quar`)
	bathroomsRegexp = regexp.MustCompile(`(?i)(\d+)\s*banh`)

	slugStrip = regexp.MustCompile(`[^a-z0-9-]`)

	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// CleanText strips leading/trailing whitespace and collapses internal whitespace.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// Fold normalizes a string for comparison: cleaned and case-folded.
func Fold(s string) string {
	return strings.ToLower(CleanText(s))
}

// ParsePriceBRL extracts a price from portal text like "R$ 1.250.000".
// Thousands separators are dots, the decimal separator a comma. Returns 0
// when no price is present.
func ParsePriceBRL(raw string) float64 {
	match := priceRegexp.FindStringSubmatch(raw)
	if len(match) < 2 {
		return 0
	}
	cleaned := strings.ReplaceAll(match[1], ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return val
}

// ParseSizeM2 extracts an area in square metres from portal text. Returns 0
// when no area is present.
func ParseSizeM2(raw string) float64 {
	match := sizeRegexp.FindStringSubmatch(raw)
	if len(match) < 2 {
		return 0
	}
	cleaned := strings.ReplaceAll(match[1], ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return val
}

// ParseBedrooms extracts a bedroom count ("3 quartos") from portal text.
func ParseBedrooms(raw string) int {
	return parseCount(bedroomsRegexp, raw)
}

// ParseBathrooms extracts a bathroom count ("2 banheiros") from portal text.
func ParseBathrooms(raw string) int {
	return parseCount(bathroomsRegexp, raw)
}

func parseCount(re *regexp.Regexp, raw string) int {
	match := re.FindStringSubmatch(raw)
	if len(match) < 2 {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// Slugify turns a city or neighborhood name into the URL slug the portals
// expect: accents stripped, lower-cased, spaces replaced with hyphens.
// "São Paulo" becomes "sao-paulo".
func Slugify(s string) string {
	out, _, err := transform.String(deaccent, CleanText(s))
	if err != nil {
		out = CleanText(s)
	}
	out = strings.ToLower(strings.ReplaceAll(out, " ", "-"))
	return slugStrip.ReplaceAllString(out, "")
}
