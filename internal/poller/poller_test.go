package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/adapters"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

type fakeSource struct {
	name  string
	batch []adapters.NormalizedRate
	err   error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchSnapshot(ctx context.Context) ([]adapters.NormalizedRate, error) {
	return f.batch, f.err
}

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]samples.Sample
}

func (w *fakeWriter) InsertBatch(batch []samples.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, batch)
	return nil
}

func annualized(symbol string, rate float64) adapters.NormalizedRate {
	r := rate
	return adapters.NormalizedRate{Venue: "testvenue", Symbol: symbol, AnnualizedRate: &r}
}

func TestPoller_WritesFundingSamples(t *testing.T) {
	writer := &fakeWriter{}
	source := &fakeSource{name: "testvenue", batch: []adapters.NormalizedRate{
		annualized("BTC", 12.5),
		annualized("ETH", -3.25),
		{Venue: "testvenue", Symbol: "NORATE"},
	}}
	p := NewPoller(source, writer, FundingInterval, 50, zerolog.Nop())

	require.NoError(t, p.poll(context.Background()))
	require.Len(t, writer.batches, 1)

	rows := writer.batches[0]
	// The entry without an annualized rate is skipped.
	require.Len(t, rows, 2)
	assert.Equal(t, samples.FundingSourceID("testvenue", "BTC"), rows[0].SourceID)
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, 12.5, *rows[0].Value, 1e-9)
	assert.Equal(t, "%", rows[0].Unit)
}

func TestPoller_FetchErrorWritesNothing(t *testing.T) {
	writer := &fakeWriter{}
	source := &fakeSource{name: "testvenue", err: errors.New("fetch failed: boom")}
	p := NewPoller(source, writer, FundingInterval, 50, zerolog.Nop())

	require.Error(t, p.poll(context.Background()))
	assert.Empty(t, writer.batches)
}

func TestPoller_AppliesTopN(t *testing.T) {
	batch := make([]adapters.NormalizedRate, 0, 10)
	for i := 0; i < 10; i++ {
		r := annualized("S"+string(rune('A'+i)), 1)
		turnover := float64(i)
		r.Turnover24h = &turnover
		batch = append(batch, r)
	}

	writer := &fakeWriter{}
	p := NewPoller(&fakeSource{name: "testvenue", batch: batch}, writer, FundingInterval, 3, zerolog.Nop())

	require.NoError(t, p.poll(context.Background()))
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0], 3)
}

func TestFleet_DrainsOnCancel(t *testing.T) {
	fleet := NewFleet(zerolog.Nop())
	writer := &fakeWriter{}
	for i := 0; i < 3; i++ {
		fleet.Add(NewPoller(&fakeSource{name: "testvenue"}, writer, time.Hour, 50, zerolog.Nop()))
	}
	require.Equal(t, 3, fleet.Size())

	ctx, cancel := context.WithCancel(context.Background())
	fleet.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		fleet.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fleet did not drain after cancellation")
	}
}

func TestPositionSymbol(t *testing.T) {
	symbol, ok := positionSymbol("account_main_SOL_position", "main")
	require.True(t, ok)
	assert.Equal(t, "SOL", symbol)

	_, ok = positionSymbol("account_main_value", "main")
	assert.False(t, ok)

	_, ok = positionSymbol("account_other_SOL_position", "main")
	assert.False(t, ok)

	_, ok = positionSymbol("funding_lighter_BTC", "main")
	assert.False(t, ok)
}
