package samples

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return db.Conn()
}

func floatPtr(v float64) *float64 { return &v }

func makeSample(sourceID string, value float64, ts time.Time) Sample {
	return Sample{
		SourceID:    sourceID,
		DisplayName: sourceID,
		Value:       floatPtr(value),
		Text:        "",
		Unit:        "%",
		Timestamp:   ts,
		ReceivedAt:  ts,
	}
}

func TestRepository_InsertAndLatest(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	now := time.Now().UTC().Truncate(time.Second)
	s1 := makeSample("funding_lighter_BTC", 10.5, now.Add(-time.Minute))
	s2 := makeSample("funding_lighter_BTC", 11.0, now)

	_, err := repo.Insert(&s1)
	require.NoError(t, err)
	_, err = repo.Insert(&s2)
	require.NoError(t, err)

	latest, err := repo.Latest("funding_lighter_BTC")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 11.0, *latest.Value, 1e-9)

	// Unknown source yields nil, not an error.
	missing, err := repo.Latest("funding_lighter_DOGE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_LatestValueSkipsNull(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	now := time.Now().UTC()
	withValue := makeSample("pricing", 150, now.Add(-time.Minute))
	_, err := repo.Insert(&withValue)
	require.NoError(t, err)

	// A later row that captured only text.
	textOnly := Sample{SourceID: "pricing", Text: "n/a", Timestamp: now, ReceivedAt: now}
	_, err = repo.Insert(&textOnly)
	require.NoError(t, err)

	v, err := repo.LatestValue("pricing")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.InDelta(t, 150.0, *v, 1e-9)
}

func TestRepository_InsertBatch(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	now := time.Now().UTC()
	batch := []Sample{
		makeSample("spot_binance_BTC", 64000, now),
		makeSample("spot_binance_ETH", 2400, now),
		makeSample("spot_binance_SOL", 140, now),
	}
	require.NoError(t, repo.InsertBatch(batch))
	require.NoError(t, repo.InsertBatch(nil))

	sources, err := repo.DistinctSources()
	require.NoError(t, err)
	assert.Len(t, sources, 3)
}

func TestRepository_ByRange(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	base := time.Now().UTC().Add(-10 * time.Hour).Truncate(time.Second)
	for i := 0; i < 10; i++ {
		s := makeSample("pricing", float64(i), base.Add(time.Duration(i)*time.Hour))
		_, err := repo.Insert(&s)
		require.NoError(t, err)
	}

	// Default ordering is newest first.
	all, err := repo.ByRange(RangeQuery{SourceID: "pricing", Limit: 5})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.InDelta(t, 9.0, *all[0].Value, 1e-9)

	// Ascending with offset.
	asc, err := repo.ByRange(RangeQuery{SourceID: "pricing", Limit: 3, Offset: 2, OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.InDelta(t, 2.0, *asc[0].Value, 1e-9)

	// Time bounds.
	start := base.Add(3 * time.Hour)
	end := base.Add(5 * time.Hour)
	windowed, err := repo.ByRange(RangeQuery{SourceID: "pricing", Start: &start, End: &end})
	require.NoError(t, err)
	assert.Len(t, windowed, 3)
}

func TestRepository_SummaryAll(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	now := time.Now().UTC()
	for i, v := range []float64{1, 2, 3} {
		s := makeSample("pricing", v, now.Add(time.Duration(i)*time.Minute))
		if i == 2 {
			s.IsChange = true
		}
		_, err := repo.Insert(&s)
		require.NoError(t, err)
	}

	summaries, err := repo.SummaryAll()
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "pricing", s.SourceID)
	assert.Equal(t, int64(3), s.Count)
	assert.InDelta(t, 1.0, *s.Min, 1e-9)
	assert.InDelta(t, 3.0, *s.Max, 1e-9)
	assert.InDelta(t, 2.0, *s.Mean, 1e-9)
	assert.Equal(t, int64(1), s.ChangeCount)
	require.NotNil(t, s.Latest)
	assert.InDelta(t, 3.0, *s.Latest.Value, 1e-9)
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	now := time.Now().UTC()
	old := makeSample("spot_binance_BTC", 1, now.Add(-72*time.Hour))
	fresh := makeSample("spot_binance_BTC", 2, now)
	other := makeSample("funding_lighter_BTC", 3, now.Add(-72*time.Hour))
	for _, s := range []*Sample{&old, &fresh, &other} {
		_, err := repo.Insert(s)
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteOlderThan(now.Add(-48*time.Hour), "spot_%")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The funding row outside the pattern survives.
	latest, err := repo.Latest("funding_lighter_BTC")
	require.NoError(t, err)
	require.NotNil(t, latest)
}
