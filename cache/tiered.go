package cache

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"imovel-search/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Health reports per-tier availability for health-check endpoints.
type Health struct {
	PrimaryUp   bool `json:"primary_up"`
	SecondaryUp bool `json:"secondary_up"`
}

// entry is the wire form of a cached result set. The TTL is carried inside
// the payload so a refreshed entry fully replaces the old one.
type entry struct {
	ResultSet *models.ResultSet `json:"result_set"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
}

// Tiered composes the primary (remote) and secondary (in-process) stores.
// Callers never see which tier served them; a fully unavailable cache
// behaves as an always-miss cache, never as an error source.
type Tiered struct {
	primary   Store
	secondary Store
	log       *zap.Logger
}

// NewTiered builds the tiered cache over the given stores.
func NewTiered(primary, secondary Store, log *zap.Logger) *Tiered {
	return &Tiered{
		primary:   primary,
		secondary: secondary,
		log:       log.With(zap.String("component", "cache")),
	}
}

// Get returns the cached result set for a fingerprint, if any. The secondary
// tier is consulted both when the primary fails (degraded mode) and when it
// misses — an entry written while the primary was down would otherwise be
// unreachable after it recovers.
func (t *Tiered) Get(ctx context.Context, key string) (*models.ResultSet, bool) {
	data, ok, err := t.primary.Get(ctx, key)
	if err != nil {
		t.log.Warn("primary cache read failed, using secondary",
			zap.String("key", key), zap.Error(err))
	}
	if ok {
		if rs := decode(t.log, key, data); rs != nil {
			return rs, true
		}
	}

	data, ok, err = t.secondary.Get(ctx, key)
	if err != nil {
		t.log.Warn("secondary cache read failed",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if rs := decode(t.log, key, data); rs != nil {
		return rs, true
	}
	return nil, false
}

// Set writes the result set to both tiers, best-effort. A primary failure is
// tolerated as long as the secondary write lands; both failing is logged and
// swallowed — the pipeline keeps answering with no cache at all.
func (t *Tiered) Set(ctx context.Context, key string, rs *models.ResultSet, ttl time.Duration) {
	data, err := json.Marshal(entry{ResultSet: rs, CreatedAt: time.Now(), TTL: ttl})
	if err != nil {
		t.log.Error("cache entry marshal failed", zap.String("key", key), zap.Error(err))
		return
	}

	primaryErr := t.primary.Set(ctx, key, data, ttl)
	if primaryErr != nil {
		t.log.Warn("primary cache write failed",
			zap.String("key", key), zap.Error(primaryErr))
	}
	secondaryErr := t.secondary.Set(ctx, key, data, ttl)
	if secondaryErr != nil {
		t.log.Warn("secondary cache write failed",
			zap.String("key", key), zap.Error(secondaryErr))
	}
	if primaryErr != nil && secondaryErr != nil {
		t.log.Error("cache fully unavailable, entry dropped", zap.String("key", key))
	}
}

// HealthCheck pings both tiers.
func (t *Tiered) HealthCheck(ctx context.Context) Health {
	return Health{
		PrimaryUp:   t.primary.Ping(ctx) == nil,
		SecondaryUp: t.secondary.Ping(ctx) == nil,
	}
}

// Close releases both tiers.
func (t *Tiered) Close() error {
	perr := t.primary.Close()
	serr := t.secondary.Close()
	if perr != nil {
		return perr
	}
	return serr
}

func decode(log *zap.Logger, key string, data []byte) *models.ResultSet {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.ResultSet == nil {
		// A corrupt entry is a miss, not a failure.
		log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	return e.ResultSet
}
