// Package zapimoveis fetches and parses listings from zapimoveis.com.br.
package zapimoveis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"go.uber.org/zap"

	"imovel-search/config"
	"imovel-search/models"
	"imovel-search/scraper"
	"imovel-search/services"
	"imovel-search/utils"
)

const (
	Source  = "zapimoveis"
	baseURL = "https://www.zapimoveis.com.br"
)

// Adapter implements the source adapter contract for ZAP Imóveis.
type Adapter struct {
	userAgent string
	log       *zap.Logger
}

// New creates a ready-to-use ZAP adapter.
func New(cfg *config.Config, log *zap.Logger) *Adapter {
	return &Adapter{
		userAgent: cfg.UserAgent,
		log:       log.With(zap.String("adapter", Source)),
	}
}

func (a *Adapter) Name() string { return Source }

// Fetch downloads one search result page and extracts its property cards.
func (a *Adapter) Fetch(ctx context.Context, filters models.SearchFilters) ([]*models.ListingRecord, error) {
	searchURL := BuildSearchURL(filters)
	a.log.Debug("fetching", zap.String("url", searchURL))

	c := colly.NewCollector(
		colly.UserAgent(a.userAgent),
		colly.DetectCharset(),
	)
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}

	var (
		records  []*models.ListingRecord
		found    bool
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = scraper.Permanent(Source, fmt.Errorf("parse result page: %w", err))
			return
		}
		records, found = ParseDocument(doc, time.Now().UTC())
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = classifyHTTP(r.StatusCode, err)
	})

	if err := c.Visit(searchURL); err != nil && fetchErr == nil {
		fetchErr = scraper.Transient(Source, err)
	}
	if ctx.Err() != nil {
		return nil, scraper.Timeout(Source, ctx.Err())
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if !found {
		// The result container itself is gone: the page layout changed and
		// retrying the same request cannot help.
		return nil, scraper.Permanent(Source, errors.New("no recognizable result container"))
	}
	return records, nil
}

// BuildSearchURL renders the ZAP search URL for the filters, matching the
// portal's `/venda/imoveis/<state>+<city-slug>/` scheme.
func BuildSearchURL(filters models.SearchFilters) string {
	state := services.Slugify(filters.State)
	if state == "" {
		state = "sp"
	}
	u := fmt.Sprintf("%s/venda/imoveis/%s+%s/", baseURL, state, services.Slugify(filters.City))

	params := url.Values{}
	if filters.MinPrice > 0 {
		params.Set("preco-minimo", fmt.Sprintf("%.0f", filters.MinPrice))
	}
	if filters.MaxPrice > 0 {
		params.Set("preco-maximo", fmt.Sprintf("%.0f", filters.MaxPrice))
	}
	if filters.Bedrooms > 0 {
		params.Set("quartos", fmt.Sprintf("%d", filters.Bedrooms))
	}
	if filters.Page > 1 {
		params.Set("pagina", fmt.Sprintf("%d", filters.Page))
	}
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// ParseDocument extracts listing records from a result page. The second
// return reports whether a recognizable result container was present at all;
// a present-but-empty container is a legitimate empty result. Shared with the
// browser adapter, which renders the same portal.
func ParseDocument(doc *goquery.Document, fetchedAt time.Time) ([]*models.ListingRecord, bool) {
	cards := doc.Find(`div[data-testid="property-card"]`)
	if cards.Length() == 0 {
		cards = doc.Find(".result-card, .listing-card, article")
	}
	if cards.Length() == 0 {
		if doc.Find(`[data-testid="results-wrapper"], .results-list, main`).Length() == 0 {
			return nil, false
		}
		return nil, true
	}

	seen := utils.NewSeenSet()
	records := make([]*models.ListingRecord, 0, cards.Length())
	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		if i >= 50 {
			return false
		}
		if r := parseCard(card, fetchedAt); r != nil && seen.Add(r.URL) {
			records = append(records, r)
		}
		return true
	})
	return records, true
}

func parseCard(card *goquery.Selection, fetchedAt time.Time) *models.ListingRecord {
	href, _ := card.Find("a[href]").First().Attr("href")
	if href == "" {
		href, _ = card.Attr("data-href")
	}
	if href == "" {
		return nil
	}
	if strings.HasPrefix(href, "/") {
		href = baseURL + href
	}

	text := services.CleanText(card.Text())
	price := services.ParsePriceBRL(text)
	if price <= 0 {
		return nil
	}

	title := services.CleanText(card.Find(`[data-testid="card-title"], h2, h3`).First().Text())
	address := services.CleanText(card.Find(`[data-testid="card-address"], .card__address`).First().Text())

	return &models.ListingRecord{
		Source:    Source,
		SourceID:  listingID(href),
		URL:       href,
		Title:     title,
		Price:     price,
		SizeM2:    services.ParseSizeM2(text),
		Bedrooms:  services.ParseBedrooms(text),
		Bathrooms: services.ParseBathrooms(text),
		Address:   address,
		FetchedAt: fetchedAt,
	}
}

// listingID extracts the portal-native id, the trailing `id-<digits>` path
// segment of a listing URL.
func listingID(href string) string {
	trimmed := strings.TrimRight(href, "/")
	if i := strings.LastIndex(trimmed, "id-"); i >= 0 {
		return strings.TrimPrefix(trimmed[i:], "id-")
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i+1 < len(trimmed) {
		return trimmed[i+1:]
	}
	return ""
}

func classifyHTTP(status int, err error) error {
	switch {
	case status == 429 || status >= 500:
		return scraper.Transient(Source, fmt.Errorf("status %d: %w", status, err))
	case status == 404 || status == 410:
		return scraper.Permanent(Source, fmt.Errorf("status %d: %w", status, err))
	default:
		return scraper.Transient(Source, err)
	}
}
