package balloon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheKey    = "balloon:aggregate"
	DefaultTTL         = time.Hour
	DefaultHourTimeout = 30 * time.Second
)

var errNoCache = errors.New("cache not configured")

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	CacheKey          string
	TTL               time.Duration
	HourTimeout       time.Duration
	BatchSize         int
	EnrichConcurrency int
	PartialEnrichment bool
	Location          *time.Location

	// Now overrides the clock used for temporal alignment.
	Now func() time.Time
}

// Service runs aggregation cycles and keeps the latest aggregate in a cache.
type Service struct {
	feed     FeedSource
	wind     WindSource
	cache    Cache
	enricher *Enricher
	opts     Options
	now      func() time.Time
	group    singleflight.Group
}

// NewService creates a new Service.
func NewService(feed FeedSource, wind WindSource, cache Cache, opts Options) *Service {
	if opts.CacheKey == "" {
		opts.CacheKey = DefaultCacheKey
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.HourTimeout <= 0 {
		opts.HourTimeout = DefaultHourTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		feed:     feed,
		wind:     wind,
		cache:    cache,
		enricher: NewEnricher(wind, opts.BatchSize, opts.EnrichConcurrency, opts.PartialEnrichment, opts.Location),
		opts:     opts,
		now:      now,
	}
}

// GetCached returns the cached aggregate, running a cycle and populating the
// cache on a miss. Cache store failures are treated as misses. Concurrent
// misses share a single cycle.
func (s *Service) GetCached(ctx context.Context) Aggregate {
	if agg, ok := s.load(ctx); ok {
		return agg
	}

	v, _, _ := s.group.Do(s.opts.CacheKey, func() (interface{}, error) {
		// Another caller may have populated the cache while we waited.
		if agg, ok := s.load(ctx); ok {
			return agg, nil
		}

		started := s.now().UTC()
		agg := s.FetchAggregate(ctx)
		if agg.Succeeded() == 0 {
			log.Printf("ERROR: service: every hour failed; not caching aggregate")
			return agg, nil
		}
		if err := s.saveIfNewer(ctx, agg, started); err != nil {
			log.Printf("ERROR: service: cache write failed: %v", err)
		}
		return agg, nil
	})

	return v.(Aggregate)
}

// Refresh runs a cycle and overwrites the cached aggregate, resetting its
// TTL. A cycle where every hour failed leaves the cache untouched, as does one
// that started before the cached aggregate was fetched.
func (s *Service) Refresh(ctx context.Context) error {
	started := s.now().UTC()
	agg := s.FetchAggregate(ctx)
	if agg.Succeeded() == 0 {
		return ErrNoSuccessfulHours
	}
	if err := s.saveIfNewer(ctx, agg, started); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// cachedHour is the stored form of a Snapshot; it keeps error details that
// the public JSON form flattens to a string.
type cachedHour struct {
	Hour      int        `json:"hour"`
	Positions []Position `json:"positions,omitempty"`
	Skipped   int        `json:"skipped,omitempty"`
	Err       *Error     `json:"error,omitempty"`
}

type cacheEntry struct {
	FetchedAt time.Time    `json:"fetchedAt"`
	Hours     []cachedHour `json:"hours"`
}

// saveIfNewer stores agg stamped with the time its cycle started, unless the
// cache already holds an aggregate from a cycle that started later. Entries
// that cannot be read are overwritten.
func (s *Service) saveIfNewer(ctx context.Context, agg Aggregate, started time.Time) error {
	if s.cache == nil {
		return errNoCache
	}

	if data, err := s.cache.Get(ctx, s.opts.CacheKey); err == nil {
		var current cacheEntry
		if json.Unmarshal(data, &current) == nil && current.FetchedAt.After(started) {
			log.Printf("INFO: service: keeping cached aggregate from %s over cycle started %s",
				current.FetchedAt.Format(time.RFC3339), started.Format(time.RFC3339))
			return nil
		}
	}

	return s.save(ctx, agg, started)
}

func (s *Service) save(ctx context.Context, agg Aggregate, fetchedAt time.Time) error {
	entry := cacheEntry{
		FetchedAt: fetchedAt.UTC(),
		Hours:     make([]cachedHour, 0, len(agg)),
	}
	for hour := 0; hour < HourCount; hour++ {
		snap := agg[hour]
		entry.Hours = append(entry.Hours, cachedHour{
			Hour:      hour,
			Positions: snap.Positions,
			Skipped:   snap.Skipped,
			Err:       snap.Err,
		})
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.opts.CacheKey, data, s.opts.TTL)
}

func (s *Service) load(ctx context.Context) (Aggregate, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, s.opts.CacheKey)
	if err != nil {
		log.Printf("DEBUG: service: cache miss: %v", err)
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("ERROR: service: discarding unreadable cache entry: %v", err)
		return nil, false
	}

	agg := make(Aggregate, HourCount)
	for _, h := range entry.Hours {
		if h.Hour < 0 || h.Hour >= HourCount {
			continue
		}
		agg[h.Hour] = Snapshot{Hour: h.Hour, Positions: h.Positions, Skipped: h.Skipped, Err: h.Err}
	}
	if len(agg) != HourCount {
		log.Printf("ERROR: service: discarding incomplete cache entry with %d hours", len(agg))
		return nil, false
	}

	return agg, true
}
