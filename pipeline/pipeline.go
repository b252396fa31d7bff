// Package pipeline is the coordinator: it decides cache vs. live fetch,
// guarantees at most one in-flight assembly per query fingerprint, and always
// answers with a result set — synthetic if it must.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"imovel-search/cache"
	"imovel-search/config"
	"imovel-search/fallback"
	"imovel-search/merge"
	"imovel-search/models"
	"imovel-search/query"
	"imovel-search/scraper"
	"imovel-search/storage"
)

// Stats is a snapshot of the coordinator's session counters.
type Stats struct {
	CacheHits  int64
	CacheMisses int64
	Assemblies int64
	Fallbacks  int64
}

// Pipeline orchestrates fingerprinting, caching, scheduling, merging,
// fallback, and background persistence. Safe for concurrent use.
type Pipeline struct {
	cfg   *config.Config
	log   *zap.Logger
	cache *cache.Tiered
	sched *scraper.Scheduler
	gen   *fallback.Generator
	store storage.ResultWriter

	// group is the single-flight table: one assembly per fingerprint, all
	// concurrent callers share its outcome.
	group singleflight.Group

	hits       atomic.Int64
	misses     atomic.Int64
	assemblies atomic.Int64
	fallbacks  atomic.Int64
}

// New wires a Pipeline. store may be nil when persistence is disabled.
func New(cfg *config.Config, log *zap.Logger, tiered *cache.Tiered, sched *scraper.Scheduler, gen *fallback.Generator, store storage.ResultWriter) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		log:   log.With(zap.String("component", "pipeline")),
		cache: tiered,
		sched: sched,
		gen:   gen,
		store: store,
	}
}

// Search is the sole entry point. It returns a ResultSet for every filter set
// that validates; past validation there is no failure path — adapter and
// cache trouble degrade to partial or synthetic results instead.
func (p *Pipeline) Search(ctx context.Context, filters models.SearchFilters) (*models.ResultSet, error) {
	if err := query.Validate(filters); err != nil {
		return nil, err
	}
	fp := query.Fingerprint(filters)

	if rs, ok := p.cache.Get(ctx, fp); ok {
		p.hits.Add(1)
		p.log.Debug("cache hit", zap.String("fingerprint", fp))
		return rs, nil
	}
	p.misses.Add(1)

	v, _, shared := p.group.Do(fp, func() (interface{}, error) {
		// A waiter queued behind a finished flight may arrive after the
		// cache was populated; re-check before assembling.
		if rs, ok := p.cache.Get(ctx, fp); ok {
			return rs, nil
		}
		return p.assemble(ctx, fp, filters), nil
	})
	if shared {
		p.log.Debug("joined in-flight assembly", zap.String("fingerprint", fp))
	}
	return v.(*models.ResultSet), nil
}

// assemble runs one acquisition under the global fetch budget. It is detached
// from the triggering caller's cancellation: other waiters may depend on it.
func (p *Pipeline) assemble(ctx context.Context, fp string, filters models.SearchFilters) *models.ResultSet {
	p.assemblies.Add(1)
	start := time.Now()

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.GlobalBudget)
	defer cancel()

	outcomes := p.sched.Run(actx, filters)
	rs := merge.Merge(fp, outcomes, merge.Options{
		PriceTolerance: p.cfg.DedupPriceTolerance,
		SizeTolerance:  p.cfg.DedupSizeTolerance,
		Sort:           filters.Sort,
	})

	ttl := p.cfg.TTLLive
	if len(rs.Records) == 0 {
		p.fallbacks.Add(1)
		rs = p.gen.Generate(filters, fp)
		ttl = p.cfg.TTLSynthetic
		p.log.Info("live acquisition empty, serving synthetic data",
			zap.String("fingerprint", fp),
			zap.Int("records", len(rs.Records)))
	}

	p.cache.Set(actx, fp, rs, ttl)

	if p.store != nil && rs.Provenance != models.ProvenanceSynthetic {
		go p.persist(rs)
	}

	p.log.Info("assembly complete",
		zap.String("fingerprint", fp),
		zap.String("provenance", string(rs.Provenance)),
		zap.Int("records", len(rs.Records)),
		zap.Duration("elapsed", time.Since(start)))
	return rs
}

// persist hands the result set to the persistence collaborator. Fire and
// forget: a persistence failure never fails a request.
func (p *Pipeline) persist(rs *models.ResultSet) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.store.Write(ctx, rs); err != nil {
		p.log.Warn("background persistence failed",
			zap.String("fingerprint", rs.Fingerprint), zap.Error(err))
	}
}

// CacheHealth reports per-tier cache availability for health endpoints.
func (p *Pipeline) CacheHealth(ctx context.Context) cache.Health {
	return p.cache.HealthCheck(ctx)
}

// SessionStats returns a snapshot of the coordinator's counters.
func (p *Pipeline) SessionStats() Stats {
	return Stats{
		CacheHits:   p.hits.Load(),
		CacheMisses: p.misses.Load(),
		Assemblies:  p.assemblies.Load(),
		Fallbacks:   p.fallbacks.Load(),
	}
}
