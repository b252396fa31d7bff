package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"imovel-search/cache"
	"imovel-search/config"
	"imovel-search/fallback"
	"imovel-search/models"
	"imovel-search/scraper"
)

func testConfig() *config.Config {
	return &config.Config{
		TTLLive:             time.Minute,
		TTLSynthetic:        10 * time.Second,
		AdapterTimeout:      200 * time.Millisecond,
		GlobalBudget:        500 * time.Millisecond,
		MaxConcurrency:      3,
		MaxRetries:          1,
		RetryBaseDelay:      5 * time.Millisecond,
		BreakerFailures:     100,
		BreakerCooldown:     time.Minute,
		DedupPriceTolerance: 0.05,
		DedupSizeTolerance:  0.10,
		FallbackMinCount:    8,
		FallbackMaxCount:    15,
	}
}

// countingAdapter returns a scripted record list and counts Fetch calls.
type countingAdapter struct {
	name    string
	records []*models.ListingRecord
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func (a *countingAdapter) Name() string { return a.name }

func (a *countingAdapter) Fetch(ctx context.Context, _ models.SearchFilters) ([]*models.ListingRecord, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.records, nil
}

func record(source, id string, price float64) *models.ListingRecord {
	return &models.ListingRecord{
		Source:    source,
		SourceID:  id,
		URL:       "https://example.invalid/" + source + "/" + id,
		Title:     "Apartamento " + id,
		Price:     price,
		FetchedAt: time.Now().UTC(),
	}
}

// downStore always fails, standing in for an unreachable Redis.
type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (downStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (downStore) Ping(context.Context) error { return errors.New("connection refused") }
func (downStore) Close() error               { return nil }

func newTestPipeline(t *testing.T, cfg *config.Config, primary cache.Store, adapters ...scraper.Adapter) *Pipeline {
	t.Helper()
	log := zap.NewNop()
	mem := cache.NewMemoryStore(0)
	t.Cleanup(func() { mem.Close() })
	tiered := cache.NewTiered(primary, mem, log)
	sched := scraper.NewScheduler(adapters, cfg, log)
	gen := fallback.NewGenerator(cfg)
	return New(cfg, log, tiered, sched, gen, nil)
}

func TestConcurrentSearchesShareOneAssembly(t *testing.T) {
	cfg := testConfig()
	a := &countingAdapter{
		name:    "zapimoveis",
		delay:   50 * time.Millisecond,
		records: []*models.ListingRecord{record("zapimoveis", "1", 400000)},
	}
	p := newTestPipeline(t, cfg, downStore{}, a)

	filters := models.SearchFilters{City: "São Paulo", State: "SP"}

	const callers = 8
	results := make([]*models.ResultSet, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs, err := p.Search(context.Background(), filters)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = rs
		}(i)
	}
	wg.Wait()

	if got := a.calls.Load(); got != 1 {
		t.Errorf("adapter fetched %d times, want 1", got)
	}
	for i, rs := range results {
		if rs == nil {
			t.Fatalf("caller %d got nil result", i)
		}
		if rs.Fingerprint != results[0].Fingerprint || len(rs.Records) != len(results[0].Records) {
			t.Errorf("caller %d got a different result set", i)
		}
	}
}

func TestCachedResultSkipsAdapters(t *testing.T) {
	cfg := testConfig()
	a := &countingAdapter{
		name:    "zapimoveis",
		records: []*models.ListingRecord{record("zapimoveis", "1", 400000)},
	}
	p := newTestPipeline(t, cfg, downStore{}, a)

	filters := models.SearchFilters{City: "São Paulo", State: "SP"}

	first, err := p.Search(context.Background(), filters)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	second, err := p.Search(context.Background(), filters)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}

	if got := a.calls.Load(); got != 1 {
		t.Errorf("adapter fetched %d times, want 1 (second call must be served from cache)", got)
	}
	if !second.AssembledAt.Equal(first.AssembledAt) {
		t.Error("cached result was reassembled")
	}

	stats := p.SessionStats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 || stats.Assemblies != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss / 1 assembly", stats)
	}
}

func TestAllSourcesFailingYieldsSyntheticResults(t *testing.T) {
	cfg := testConfig()
	a := &countingAdapter{
		name: "zapimoveis",
		err:  scraper.Permanent("zapimoveis", errors.New("layout changed")),
	}
	b := &countingAdapter{
		name: "vivareal",
		err:  scraper.Permanent("vivareal", errors.New("layout changed")),
	}
	p := newTestPipeline(t, cfg, downStore{}, a, b)

	filters := models.SearchFilters{
		City:     "Curitiba",
		State:    "PR",
		MinPrice: 200000,
		MaxPrice: 900000,
	}
	rs, err := p.Search(context.Background(), filters)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if rs.Provenance != models.ProvenanceSynthetic {
		t.Errorf("provenance = %q, want synthetic", rs.Provenance)
	}
	if len(rs.Records) < cfg.FallbackMinCount || len(rs.Records) > cfg.FallbackMaxCount {
		t.Errorf("synthetic count = %d, want within [%d, %d]",
			len(rs.Records), cfg.FallbackMinCount, cfg.FallbackMaxCount)
	}
	for _, r := range rs.Records {
		if !r.Synthetic {
			t.Fatalf("record %s not marked synthetic", r.SourceID)
		}
		if r.Price < filters.MinPrice || r.Price > filters.MaxPrice {
			t.Errorf("synthetic price %v outside [%v, %v]", r.Price, filters.MinPrice, filters.MaxPrice)
		}
	}
	if got := p.SessionStats().Fallbacks; got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}
}

func TestPartialResultsWhenOneSourceHangs(t *testing.T) {
	cfg := testConfig()
	fast := &countingAdapter{
		name: "zapimoveis",
		records: []*models.ListingRecord{
			record("zapimoveis", "10", 550000),
			record("zapimoveis", "11", 480000),
			record("zapimoveis", "10", 550000), // portal repeats the card
		},
	}
	slow := &countingAdapter{
		name:  "vivareal",
		delay: 5 * time.Second,
	}
	p := newTestPipeline(t, cfg, downStore{}, fast, slow)

	filters := models.SearchFilters{City: "São Paulo", State: "SP", Sort: models.SortPriceAsc}
	rs, err := p.Search(context.Background(), filters)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if rs.Provenance != models.ProvenancePartial {
		t.Errorf("provenance = %q, want partial-live", rs.Provenance)
	}
	if len(rs.Records) != 2 {
		t.Fatalf("got %d records, want 2 after dedup", len(rs.Records))
	}
	if rs.Records[0].Price != 480000 || rs.Records[1].Price != 550000 {
		t.Errorf("records not sorted price ascending: %v, %v",
			rs.Records[0].Price, rs.Records[1].Price)
	}
	if rs.Stats.Count != 2 || rs.Stats.MinPrice != 480000 || rs.Stats.MaxPrice != 550000 {
		t.Errorf("stats = %+v", rs.Stats)
	}
}

func TestSearchSurvivesDegradedPrimaryCache(t *testing.T) {
	cfg := testConfig()
	a := &countingAdapter{
		name:    "zapimoveis",
		records: []*models.ListingRecord{record("zapimoveis", "1", 400000)},
	}
	p := newTestPipeline(t, cfg, downStore{}, a)

	filters := models.SearchFilters{City: "São Paulo", State: "SP"}
	rs, err := p.Search(context.Background(), filters)
	if err != nil {
		t.Fatalf("search with primary cache down: %v", err)
	}
	if rs.Provenance != models.ProvenanceLive {
		t.Errorf("provenance = %q, want live", rs.Provenance)
	}

	// The secondary tier still caches the answer.
	if _, err := p.Search(context.Background(), filters); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if got := a.calls.Load(); got != 1 {
		t.Errorf("adapter fetched %d times, want 1", got)
	}

	health := p.CacheHealth(context.Background())
	if health.PrimaryUp {
		t.Error("primary reported up while failing")
	}
	if !health.SecondaryUp {
		t.Error("secondary reported down")
	}
}

func TestInvalidFiltersRejected(t *testing.T) {
	p := newTestPipeline(t, testConfig(), downStore{}, &countingAdapter{name: "zapimoveis"})

	_, err := p.Search(context.Background(), models.SearchFilters{State: "SP"})
	var ie *models.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InputError for missing city, got %v", err)
	}
	if ie.Field != "city" {
		t.Errorf("Field = %q, want city", ie.Field)
	}
}
