package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"imovel-search/cache"
	"imovel-search/config"
	"imovel-search/fallback"
	"imovel-search/models"
	"imovel-search/pipeline"
	"imovel-search/scraper"
	"imovel-search/scraper/browser"
	"imovel-search/scraper/vivareal"
	"imovel-search/scraper/zapimoveis"
	"imovel-search/storage"
	"imovel-search/utils"
)

func main() {
	var filters models.SearchFilters
	flag.StringVar(&filters.City, "city", "São Paulo", "city to search in")
	flag.StringVar(&filters.State, "state", "SP", "two-letter state code")
	flag.StringVar(&filters.Neighborhood, "neighborhood", "", "neighborhood filter")
	flag.StringVar(&filters.PropertyType, "type", "", "property type (apartment, house, condo)")
	flag.Float64Var(&filters.MinPrice, "min-price", 0, "minimum price in BRL")
	flag.Float64Var(&filters.MaxPrice, "max-price", 0, "maximum price in BRL")
	flag.Float64Var(&filters.MinSize, "min-size", 0, "minimum size in m²")
	flag.Float64Var(&filters.MaxSize, "max-size", 0, "maximum size in m²")
	flag.IntVar(&filters.Bedrooms, "bedrooms", 0, "minimum number of bedrooms")
	flag.StringVar(&filters.Sort, "sort", models.SortPriceAsc, "sort order: price_asc, price_desc, size_desc")
	flag.IntVar(&filters.Page, "page", 1, "result page")
	flag.Parse()

	cfg := config.Load()
	logger := utils.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("=== Imóvel Search starting ===",
		zap.Strings("sources", cfg.EnabledSources),
		zap.Duration("adapter_timeout", cfg.AdapterTimeout),
		zap.Duration("global_budget", cfg.GlobalBudget),
		zap.Int("concurrency", cfg.MaxConcurrency))

	primary := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	secondary := cache.NewMemoryStore(cfg.MemorySweep)
	defer primary.Close()
	defer secondary.Close()
	tiered := cache.NewTiered(primary, secondary, logger)

	adapters := buildAdapters(cfg, logger)
	if len(adapters) == 0 {
		logger.Error("no enabled sources recognized", zap.Strings("sources", cfg.EnabledSources))
		os.Exit(1)
	}
	sched := scraper.NewScheduler(adapters, cfg, logger)
	gen := fallback.NewGenerator(cfg)

	var store storage.ResultWriter
	if cfg.PersistEnabled {
		pg, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Warn("PostgreSQL unavailable, continuing without persistence", zap.Error(err))
		} else {
			defer pg.Close()
			store = pg
		}
	}

	p := pipeline.New(cfg, logger, tiered, sched, gen, store)

	rs, err := p.Search(context.Background(), filters)
	if err != nil {
		logger.Error("search rejected", zap.Error(err))
		os.Exit(1)
	}

	printResults(rs)

	if cfg.CSVExportPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVExportPath)
		if err != nil {
			logger.Error("failed to create CSV writer", zap.Error(err))
		} else {
			defer csvWriter.Close()
			if err := csvWriter.Write(context.Background(), rs); err != nil {
				logger.Error("CSV export failed", zap.Error(err))
			} else {
				logger.Info("results exported", zap.String("path", cfg.CSVExportPath))
			}
		}
	}

	stats := p.SessionStats()
	logger.Info("session complete",
		zap.Int64("cache_hits", stats.CacheHits),
		zap.Int64("cache_misses", stats.CacheMisses),
		zap.Int64("assemblies", stats.Assemblies),
		zap.Int64("fallbacks", stats.Fallbacks))
}

// buildAdapters instantiates one adapter per enabled source name.
func buildAdapters(cfg *config.Config, logger *zap.Logger) []scraper.Adapter {
	adapters := make([]scraper.Adapter, 0, len(cfg.EnabledSources))
	for _, name := range cfg.EnabledSources {
		switch name {
		case zapimoveis.Source:
			adapters = append(adapters, zapimoveis.New(cfg, logger))
		case vivareal.Source:
			adapters = append(adapters, vivareal.New(cfg, logger))
		case browser.Source:
			adapters = append(adapters, browser.New(cfg, logger))
		default:
			logger.Warn("unknown source in ENABLED_SOURCES, skipping", zap.String("source", name))
		}
	}
	return adapters
}

func printResults(rs *models.ResultSet) {
	fmt.Printf("\n%d listings (%s) — fingerprint %s\n\n",
		len(rs.Records), rs.Provenance, rs.Fingerprint)

	for _, r := range rs.Records {
		size := "?"
		if r.SizeM2 > 0 {
			size = fmt.Sprintf("%.0f m²", r.SizeM2)
		}
		fmt.Printf("  R$ %10.0f | %-7s | %dq %db | [%s] %s\n",
			r.Price, size, r.Bedrooms, r.Bathrooms, r.Source, r.Title)
	}

	s := rs.Stats
	fmt.Printf("\n  price range R$ %.0f – R$ %.0f (avg R$ %.2f) across %d listings\n\n",
		s.MinPrice, s.MaxPrice, s.AvgPrice, s.Count)
}
