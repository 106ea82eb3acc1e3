package downsampler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/database"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

func setupJob(t *testing.T) (*database.DB, *Job) {
	t.Helper()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	job := NewJob(db, []config.PairConfig{
		{Venue: "lighter", Symbol: "BTC"},
		{Venue: "lighter", Symbol: "ETH"},
		{Venue: "lighter", Symbol: "SOL"},
	}, nil, zerolog.Nop())
	return db, job
}

func seedSamples(t *testing.T, db *database.DB, sourceID string, n int, span time.Duration, now time.Time) {
	t.Helper()

	repo := samples.NewRepository(db.Conn(), zerolog.Nop())
	batch := make([]samples.Sample, 0, n)
	step := span / time.Duration(n)
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(i) * step)
		v := float64(i)
		batch = append(batch, samples.Sample{
			SourceID: sourceID, DisplayName: sourceID, Value: &v,
			Timestamp: ts, ReceivedAt: ts,
		})
	}
	require.NoError(t, repo.InsertBatch(batch))
}

func countInRange(t *testing.T, db *database.DB, sourceID string, from, to time.Time) int {
	t.Helper()
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM samples WHERE source_id = ? AND timestamp >= ? AND timestamp < ?",
		sourceID, from, to,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestJob_SpotRetention(t *testing.T) {
	db, job := setupJob(t)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	source := samples.SpotSourceID("binance", "TEST")
	seedSamples(t, db, source, 10000, 72*time.Hour, now)

	lastHourBefore := countInRange(t, db, source, now.Add(-time.Hour), now.Add(time.Minute))
	require.NoError(t, job.Run(context.Background()))

	// Last hour untouched.
	assert.Equal(t, lastHourBefore, countInRange(t, db, source, now.Add(-time.Hour), now.Add(time.Minute)))

	// 1-48h thinned to at most one row per 5 minutes.
	midWindow := countInRange(t, db, source, now.Add(-48*time.Hour), now.Add(-time.Hour))
	assert.LessOrEqual(t, midWindow, 565)
	assert.Greater(t, midWindow, 0)

	// Nothing survives past 48h.
	assert.Equal(t, 0, countInRange(t, db, source, now.Add(-100*time.Hour), now.Add(-48*time.Hour)))
}

func TestJob_Idempotent(t *testing.T) {
	db, job := setupJob(t)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	seedSamples(t, db, samples.SpotSourceID("binance", "TEST"), 2000, 72*time.Hour, now)
	seedSamples(t, db, samples.FundingSourceID("bybit", "TEST"), 500, 12*time.Hour, now)
	seedSamples(t, db, samples.FundingSourceID("lighter", "BTC"), 500, 12*time.Hour, now)

	require.NoError(t, job.Run(context.Background()))

	deleted, err := job.thin(now)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestJob_FundingTiers(t *testing.T) {
	db, job := setupJob(t)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	important := samples.FundingSourceID("lighter", "BTC")
	other := samples.FundingSourceID("bybit", "BTC")
	seedSamples(t, db, important, 1000, 24*time.Hour, now)
	seedSamples(t, db, other, 1000, 24*time.Hour, now)

	require.NoError(t, job.Run(context.Background()))

	// Important pairs keep 24h raw.
	assert.Equal(t, 1000, countInRange(t, db, important, now.Add(-25*time.Hour), now.Add(time.Minute)))

	// Other funding loses everything past 8h and is thinned between 1-8h.
	assert.Equal(t, 0, countInRange(t, db, other, now.Add(-25*time.Hour), now.Add(-8*time.Hour)))
	thinned := countInRange(t, db, other, now.Add(-8*time.Hour), now.Add(-time.Hour))
	assert.LessOrEqual(t, thinned, 7*12+1)
	raw := countInRange(t, db, other, now.Add(-time.Hour), now.Add(time.Minute))
	assert.Greater(t, raw, 0)
}

func TestJob_BackupCreatedAndPruned(t *testing.T) {
	db, job := setupJob(t)
	base := time.Now().UTC().Add(-time.Hour)

	// Five runs at distinct timestamps leave only the 3 newest backups.
	for i := 0; i < 5; i++ {
		runAt := base.Add(time.Duration(i) * time.Minute)
		job.now = func() time.Time { return runAt }
		require.NoError(t, job.Run(context.Background()))
	}

	matches, err := filepath.Glob(db.Path() + ".backup-*")
	require.NoError(t, err)
	assert.Len(t, matches, maxLocalBackups)
}

func TestJob_AbortsWhenBackupFails(t *testing.T) {
	db, job := setupJob(t)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	seedSamples(t, db, samples.SpotSourceID("binance", "TEST"), 100, 72*time.Hour, now)

	// Remove the DB file out from under the job so the copy fails. The
	// open connection keeps working against the unlinked inode.
	require.NoError(t, db.WALCheckpoint("TRUNCATE"))
	require.NoError(t, os.Remove(db.Path()))

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup failed")
}

func TestJob_MonitorValuesThinned(t *testing.T) {
	db, job := setupJob(t)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	_, err := db.Exec(`
		INSERT INTO monitors (id, name, formula, enabled, created_at, updated_at)
		VALUES ('m1', 'm1', '0', 1, ?, ?)`, now, now)
	require.NoError(t, err)

	// Ten values within one 15-minute bucket, 40 days back.
	old := now.Add(-40 * 24 * time.Hour).Truncate(coarseInterval)
	for i := 0; i < 10; i++ {
		_, err := db.Exec(`
			INSERT INTO monitor_values (monitor_id, value, computed_at, dependencies)
			VALUES ('m1', ?, ?, '[]')`,
			float64(i), old.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	deleted, err := job.thin(now)
	require.NoError(t, err)
	assert.Equal(t, int64(9), deleted)

	var remaining int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM monitor_values").Scan(&remaining))
	assert.Equal(t, 1, remaining)
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("%s.backup-2026010%d-000000", dbPath, i+1)
		require.NoError(t, os.WriteFile(name, []byte("x"), 0644))
	}

	removed, err := pruneBackups(dbPath)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	matches, _ := filepath.Glob(dbPath + ".backup-*")
	assert.Len(t, matches, 3)

	// The survivors are the newest three.
	for _, m := range matches {
		assert.NotContains(t, m, "20260101")
		assert.NotContains(t, m, "20260102")
	}
}
