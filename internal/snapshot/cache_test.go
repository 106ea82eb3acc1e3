package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/adapters"
)

type countingSource struct {
	name    string
	batch   []adapters.NormalizedRate
	calls   atomic.Int64
	started chan struct{}
	release chan struct{}
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) FetchSnapshot(ctx context.Context) ([]adapters.NormalizedRate, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.batch, nil
}

type fakeUniverse struct {
	symbols map[string]bool
	calls   atomic.Int64
}

func (u *fakeUniverse) FetchSpotUniverse(ctx context.Context) (map[string]bool, error) {
	u.calls.Add(1)
	return u.symbols, nil
}

func rate(venue, symbol string) adapters.NormalizedRate {
	return adapters.NormalizedRate{Venue: venue, Symbol: symbol}
}

func TestCache_MergesAndAnnotates(t *testing.T) {
	sources := []adapters.Source{
		&countingSource{name: "a", batch: []adapters.NormalizedRate{rate("a", "BTC"), rate("a", "DOGE")}},
		&countingSource{name: "b", batch: []adapters.NormalizedRate{rate("b", "BTC")}},
	}
	universe := &fakeUniverse{symbols: map[string]bool{"BTC": true}}
	cache := NewCache(sources, universe, DefaultTTL, zerolog.Nop())

	snap, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Rates, 3)

	for _, r := range snap.Rates {
		if r.Symbol == "BTC" {
			assert.True(t, r.HasBinanceSpot)
		} else {
			assert.False(t, r.HasBinanceSpot)
		}
	}
}

func TestCache_TTLServesCachedValue(t *testing.T) {
	source := &countingSource{name: "a", batch: []adapters.NormalizedRate{rate("a", "BTC")}}
	cache := NewCache([]adapters.Source{source}, &fakeUniverse{}, time.Hour, zerolog.Nop())

	first, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), false)
	require.NoError(t, err)

	// Within the TTL the exact same snapshot is returned, one fetch total.
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestCache_ForceRefreshBypassesTTL(t *testing.T) {
	source := &countingSource{name: "a", batch: []adapters.NormalizedRate{rate("a", "BTC")}}
	cache := NewCache([]adapters.Source{source}, &fakeUniverse{}, time.Hour, zerolog.Nop())

	_, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, int64(2), source.calls.Load())
}

func TestCache_SingleFlight(t *testing.T) {
	source := &countingSource{
		name:    "a",
		batch:   []adapters.NormalizedRate{rate("a", "BTC")},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	cache := NewCache([]adapters.Source{source}, &fakeUniverse{}, time.Hour, zerolog.Nop())

	var (
		wg      sync.WaitGroup
		results [2]*Snapshot
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		snap, err := cache.Get(context.Background(), true)
		require.NoError(t, err)
		results[0] = snap
	}()

	// Wait until the first refresh is mid-flight, then issue a second
	// forced Get. It must join the in-flight refresh, not start another.
	<-source.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		snap, err := cache.Get(context.Background(), true)
		require.NoError(t, err)
		results[1] = snap
	}()

	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	assert.Equal(t, int64(1), source.calls.Load())
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
	assert.Equal(t, results[0].UpdatedAt, results[1].UpdatedAt)
}

func TestSnapshot_FilterSymbol(t *testing.T) {
	snap := &Snapshot{Rates: []adapters.NormalizedRate{
		rate("a", "BTC"), rate("b", "BTC"), rate("a", "ETH"),
	}}
	assert.Len(t, snap.FilterSymbol("BTC"), 2)
	assert.Len(t, snap.FilterSymbol("ETH"), 1)
	assert.Empty(t, snap.FilterSymbol("SOL"))
}
