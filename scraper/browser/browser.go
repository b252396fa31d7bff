// Package browser drives a headless Chrome to render JS-heavy portal pages
// that the plain HTTP adapters cannot read.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"imovel-search/config"
	"imovel-search/models"
	"imovel-search/scraper"
	"imovel-search/scraper/zapimoveis"
)

// Source is reported alongside "zapimoveis" records because the rendered page
// is the same portal; the separate name keeps scheduler outcomes attributable.
const Source = "zapimoveis-js"

// Adapter renders a ZAP Imóveis search page in headless Chrome and feeds the
// resulting DOM through the same card parser as the HTTP adapter.
type Adapter struct {
	userAgent string
	log       *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Adapter {
	return &Adapter{
		userAgent: cfg.UserAgent,
		log:       log.With(zap.String("adapter", Source)),
	}
}

func (a *Adapter) Name() string { return Source }

// Fetch navigates to the search URL, waits for the client-side render, and
// extracts listings from the final DOM. The caller's context bounds the whole
// browser session.
func (a *Adapter) Fetch(ctx context.Context, filters models.SearchFilters) ([]*models.ListingRecord, error) {
	searchURL := zapimoveis.BuildSearchURL(filters)
	a.log.Debug("rendering", zap.String("url", searchURL))

	chromeBin := findChromeBinary()
	if chromeBin == "" {
		return nil, scraper.Permanent(Source, errors.New("no chrome binary found"))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(a.userAgent),
		chromedp.ExecPath(chromeBin),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(searchURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, scraper.Timeout(Source, ctx.Err())
		}
		return nil, scraper.Transient(Source, fmt.Errorf("render page: %w", err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, scraper.Permanent(Source, fmt.Errorf("parse rendered page: %w", err))
	}

	records, found := zapimoveis.ParseDocument(doc, time.Now().UTC())
	if !found {
		return nil, scraper.Permanent(Source, errors.New("no recognizable result container"))
	}
	for _, r := range records {
		r.Source = Source
	}
	return records, nil
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
