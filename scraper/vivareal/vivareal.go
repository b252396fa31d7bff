// Package vivareal fetches and parses listings from vivareal.com.br.
package vivareal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"imovel-search/config"
	"imovel-search/models"
	"imovel-search/scraper"
	"imovel-search/services"
)

const (
	Source  = "vivareal"
	baseURL = "https://www.vivareal.com.br"
)

// Adapter implements the source adapter contract for VivaReal.
type Adapter struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// New creates a ready-to-use VivaReal adapter. The client carries no timeout
// of its own; the scheduler bounds every attempt through the context.
func New(cfg *config.Config, log *zap.Logger) *Adapter {
	return &Adapter{
		client:    &http.Client{},
		userAgent: cfg.UserAgent,
		log:       log.With(zap.String("adapter", Source)),
	}
}

func (a *Adapter) Name() string { return Source }

// Fetch downloads one search result page and extracts its property cards.
func (a *Adapter) Fetch(ctx context.Context, filters models.SearchFilters) ([]*models.ListingRecord, error) {
	searchURL := BuildSearchURL(filters)
	a.log.Debug("fetching", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, scraper.Permanent(Source, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, scraper.Timeout(Source, ctx.Err())
		}
		return nil, scraper.Transient(Source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, scraper.Transient(Source, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, scraper.Permanent(Source, fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, scraper.Permanent(Source, fmt.Errorf("parse result page: %w", err))
	}

	records, found := parseDocument(doc, time.Now().UTC())
	if !found {
		return nil, scraper.Permanent(Source, errors.New("no recognizable result container"))
	}
	return records, nil
}

// BuildSearchURL renders the VivaReal search URL, following the portal's
// `/venda/<state>/<city-slug>/` scheme with hyphenated filter params.
func BuildSearchURL(filters models.SearchFilters) string {
	state := services.Slugify(filters.State)
	if state == "" {
		state = "sp"
	}
	path := fmt.Sprintf("/venda/%s/%s/", state, services.Slugify(filters.City))
	if t := services.Fold(filters.PropertyType); t != "" {
		path += services.Slugify(t) + "/"
	}

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
	if filters.MinSize > 0 {
		params.Set("area-util-minima", fmt.Sprintf("%.0f", filters.MinSize))
	}
	if filters.MaxSize > 0 {
		params.Set("area-util-maxima", fmt.Sprintf("%.0f", filters.MaxSize))
	}

	u := baseURL + path
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	if filters.Page > 1 {
		u += fmt.Sprintf("#pagina=%d", filters.Page)
	}
	return u
}

func parseDocument(doc *goquery.Document, fetchedAt time.Time) ([]*models.ListingRecord, bool) {
	cards := doc.Find("article.property-card, div.property-card__container, article")
	if cards.Length() == 0 {
		if doc.Find(".results-list, .results__list, main").Length() == 0 {
			return nil, false
		}
		return nil, true
	}

	records := make([]*models.ListingRecord, 0, cards.Length())
	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		if i >= 50 {
			return false
		}
		if r := parseCard(card, fetchedAt); r != nil {
			records = append(records, r)
		}
		return true
	})
	return records, true
}

func parseCard(card *goquery.Selection, fetchedAt time.Time) *models.ListingRecord {
	link := card.Find("a.property-card__link, a[href]").First()
	href, _ := link.Attr("href")
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

	title := services.CleanText(card.Find(".property-card__title, h2, h3").First().Text())
	address := services.CleanText(card.Find(".property-card__address, .listing-address").First().Text())

	return &models.ListingRecord{
		Source:    Source,
		SourceID:  listingID(card, href),
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

// listingID prefers the portal's data-id attribute and falls back to the
// trailing `id-<digits>` URL segment.
func listingID(card *goquery.Selection, href string) string {
	if id, ok := card.Attr("data-id"); ok && id != "" {
		return id
	}
	trimmed := strings.TrimRight(href, "/")
	if i := strings.LastIndex(trimmed, "id-"); i >= 0 {
		return strings.TrimPrefix(trimmed[i:], "id-")
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i+1 < len(trimmed) {
		return trimmed[i+1:]
	}
	return ""
}
