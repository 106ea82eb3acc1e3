package poller

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/adapters"
)

func rateWithTurnover(symbol string, turnover float64) adapters.NormalizedRate {
	t := turnover
	return adapters.NormalizedRate{Venue: "test", Symbol: symbol, Turnover24h: &t}
}

func TestTopN_KeepsLargestByTurnover(t *testing.T) {
	batch := make([]adapters.NormalizedRate, 0, 80)
	for i := 0; i < 80; i++ {
		batch = append(batch, rateWithTurnover(fmt.Sprintf("S%02d", i), float64(i)))
	}

	out := TopN(batch, 50)
	require.Len(t, out, 50)

	// The survivors are exactly the 50 largest turnovers.
	for _, r := range out {
		require.NotNil(t, r.Turnover24h)
		assert.GreaterOrEqual(t, *r.Turnover24h, 30.0)
	}
}

func TestTopN_TiesKeepInputOrder(t *testing.T) {
	batch := []adapters.NormalizedRate{
		rateWithTurnover("first", 10),
		rateWithTurnover("second", 10),
		rateWithTurnover("third", 10),
	}

	out := TopN(batch, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Symbol)
	assert.Equal(t, "second", out[1].Symbol)
}

func TestTopN_FallsBackToVolume(t *testing.T) {
	v1, v2 := 5.0, 50.0
	batch := []adapters.NormalizedRate{
		{Symbol: "small", Volume24h: &v1},
		{Symbol: "big", Volume24h: &v2},
	}

	out := TopN(batch, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "big", out[0].Symbol)
}

func TestTopN_PassThrough(t *testing.T) {
	// No volume data at all: unchanged even above the cap.
	batch := []adapters.NormalizedRate{
		{Symbol: "a"}, {Symbol: "b"}, {Symbol: "c"},
	}
	assert.Equal(t, batch, TopN(batch, 2))

	// At or under the cap: unchanged.
	small := []adapters.NormalizedRate{rateWithTurnover("a", 1)}
	assert.Equal(t, small, TopN(small, 50))
}
