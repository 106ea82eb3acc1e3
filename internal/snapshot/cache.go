// Package snapshot maintains the merged latest-rates view served by the
// funding-rates endpoints: one TTL-bounded value refreshed with
// single-flight semantics.
package snapshot

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ratewatch/ratewatch/internal/adapters"
)

// DefaultTTL bounds snapshot staleness between refreshes.
const DefaultTTL = 60 * time.Second

// refreshFanout bounds concurrent adapter round-trips in one refresh.
const refreshFanout = 5

// UniverseFetcher supplies the set of symbols with a Binance spot
// market. The binance adapter implements it.
type UniverseFetcher interface {
	FetchSpotUniverse(ctx context.Context) (map[string]bool, error)
}

// Snapshot is one merged batch with its freshness timestamp. Immutable
// once published.
type Snapshot struct {
	Rates     []adapters.NormalizedRate `json:"rates"`
	UpdatedAt time.Time                 `json:"last_updated"`
}

// Cache holds the current snapshot. Readers never block each other;
// concurrent refreshes collapse into one upstream round-trip.
type Cache struct {
	sources  []adapters.Source
	universe UniverseFetcher
	ttl      time.Duration
	log      zerolog.Logger

	group   singleflight.Group
	current atomic.Pointer[Snapshot]
}

// NewCache creates a new snapshot cache
func NewCache(sources []adapters.Source, universe UniverseFetcher, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		sources:  sources,
		universe: universe,
		ttl:      ttl,
		log:      log.With().Str("component", "snapshot_cache").Logger(),
	}
}

// Get returns the current snapshot, refreshing when forced or when the
// TTL has lapsed. Concurrent callers during a refresh all observe the
// same completing refresh.
func (c *Cache) Get(ctx context.Context, force bool) (*Snapshot, error) {
	if snap := c.current.Load(); snap != nil && !force && time.Since(snap.UpdatedAt) <= c.ttl {
		return snap, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		snap, err := c.refresh(ctx)
		if err != nil {
			return nil, err
		}
		c.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		// Serve the stale value if one exists rather than failing reads.
		if snap := c.current.Load(); snap != nil {
			c.log.Warn().Err(err).Msg("Refresh failed, serving stale snapshot")
			return snap, nil
		}
		return nil, err
	}
	return v.(*Snapshot), nil
}

// refresh fans out to every adapter, merges the batches, and annotates
// rates whose symbol has a Binance spot market. A failing venue is
// logged and skipped; the snapshot is whatever the healthy venues
// returned.
func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	var (
		mu       sync.Mutex
		merged   []adapters.NormalizedRate
		universe map[string]bool
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(refreshFanout)

	group.Go(func() error {
		u, err := c.universe.FetchSpotUniverse(groupCtx)
		if err != nil {
			c.log.Warn().Err(err).Msg("Spot universe fetch failed")
			return nil
		}
		mu.Lock()
		universe = u
		mu.Unlock()
		return nil
	})

	for _, source := range c.sources {
		source := source
		group.Go(func() error {
			batch, err := source.FetchSnapshot(groupCtx)
			if err != nil {
				c.log.Warn().Err(err).Str("venue", source.Name()).Msg("Venue fetch failed")
				return nil
			}
			mu.Lock()
			merged = append(merged, batch...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i := range merged {
		merged[i].HasBinanceSpot = universe[merged[i].Symbol]
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Symbol != merged[j].Symbol {
			return merged[i].Symbol < merged[j].Symbol
		}
		return merged[i].Venue < merged[j].Venue
	})

	return &Snapshot{Rates: merged, UpdatedAt: time.Now().UTC()}, nil
}

// FilterSymbol returns the rates whose symbol starts with the given
// prefix, case-insensitively matched upstream by the handler.
func (s *Snapshot) FilterSymbol(prefix string) []adapters.NormalizedRate {
	out := make([]adapters.NormalizedRate, 0, 8)
	for _, r := range s.Rates {
		if len(r.Symbol) >= len(prefix) && r.Symbol[:len(prefix)] == prefix {
			out = append(out, r)
		}
	}
	return out
}
