package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"imovel-search/config"
	"imovel-search/models"
)

// Outcome is one adapter's contribution to an assembly: either records or a
// classified error, never both.
type Outcome struct {
	Source  string
	Records []*models.ListingRecord
	Err     error
}

// Scheduler fans a search out to every adapter concurrently. In-flight
// fetches are capped by a channel semaphore (FIFO admission), each attempt
// runs under the per-adapter timeout, and the caller's context carries the
// global fetch budget: when it expires, still-pending adapters are recorded
// as timeouts and whatever completed is returned.
type Scheduler struct {
	adapters    []Adapter
	sem         chan struct{}
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	breakers    map[string]*gobreaker.CircuitBreaker
	log         *zap.Logger
}

// NewScheduler wires the adapters with the configured limits. Each adapter
// gets its own circuit breaker so a repeatedly failing site is skipped for a
// cool-down window instead of re-hammered on every query.
func NewScheduler(adapters []Adapter, cfg *config.Config, log *zap.Logger) *Scheduler {
	concurrency := cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	s := &Scheduler{
		adapters:    adapters,
		sem:         make(chan struct{}, concurrency),
		timeout:     cfg.AdapterTimeout,
		maxAttempts: cfg.MaxRetries,
		baseDelay:   cfg.RetryBaseDelay,
		breakers:    make(map[string]*gobreaker.CircuitBreaker, len(adapters)),
		log:         log.With(zap.String("component", "scheduler")),
	}
	for _, a := range adapters {
		failures := cfg.BreakerFailures
		s.breakers[a.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    a.Name(),
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.log.Warn("adapter breaker state change",
					zap.String("adapter", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	return s
}

type indexedOutcome struct {
	idx int
	out Outcome
}

// Run executes every adapter and returns one Outcome per adapter, in adapter
// order. Run never blocks past ctx's deadline.
func (s *Scheduler) Run(ctx context.Context, filters models.SearchFilters) []Outcome {
	n := len(s.adapters)
	results := make(chan indexedOutcome, n)

	for i, a := range s.adapters {
		go func(i int, a Adapter) {
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-ctx.Done():
				results <- indexedOutcome{i, Outcome{Source: a.Name(), Err: Timeout(a.Name(), ctx.Err())}}
				return
			}

			start := time.Now()
			recs, err := s.fetch(ctx, a, filters)
			if err != nil {
				s.log.Warn("adapter failed",
					zap.String("adapter", a.Name()),
					zap.String("kind", string(Classify(err))),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				results <- indexedOutcome{i, Outcome{Source: a.Name(), Err: err}}
				return
			}
			s.log.Info("adapter completed",
				zap.String("adapter", a.Name()),
				zap.Int("records", len(recs)),
				zap.Duration("elapsed", time.Since(start)))
			results <- indexedOutcome{i, Outcome{Source: a.Name(), Records: recs}}
		}(i, a)
	}

	out := make([]Outcome, n)
	got := make([]bool, n)
	for remaining := n; remaining > 0; {
		select {
		case r := <-results:
			out[r.idx] = r.out
			got[r.idx] = true
			remaining--
		case <-ctx.Done():
			// Budget elapsed: abandon stragglers, their partial output is
			// discarded and they are recorded as timeouts.
			for i, a := range s.adapters {
				if !got[i] {
					out[i] = Outcome{Source: a.Name(), Err: Timeout(a.Name(), ctx.Err())}
				}
			}
			return out
		}
	}
	return out
}

// fetch runs one adapter with per-attempt timeout, breaker protection, and
// exponential-backoff retry for transient failures only.
func (s *Scheduler) fetch(ctx context.Context, a Adapter, filters models.SearchFilters) ([]*models.ListingRecord, error) {
	breaker := s.breakers[a.Name()]

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.baseDelay
	retries := uint64(0)
	if s.maxAttempts > 1 {
		retries = uint64(s.maxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, retries), ctx)

	var recs []*models.ListingRecord
	err := backoff.Retry(func() error {
		res, err := breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return a.Fetch(attemptCtx, filters)
		})
		if err != nil {
			if Classify(err) == KindPermanent ||
				errors.Is(err, gobreaker.ErrOpenState) ||
				errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		recs, _ = res.([]*models.ListingRecord)
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
