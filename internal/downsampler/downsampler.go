// Package downsampler implements the periodic retention job: back up the
// database file, thin historical rows per the multi-tier policy, compact
// the freed space, and rotate old backups.
package downsampler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/database"
	"github.com/ratewatch/ratewatch/internal/modules/samples"
)

// Interval is the cron period between runs.
const Interval = 2 * time.Hour

// Thinning granularities per retention tier.
const (
	fineInterval   = 5 * time.Minute
	mediumInterval = 10 * time.Minute
	coarseInterval = 15 * time.Minute
)

// window thins rows aged between from and to (offsets back from now) to
// one row per bucket. A zero bucket means delete the whole window.
type window struct {
	from   time.Duration // older bound; 0 means unbounded past
	to     time.Duration // newer bound
	bucket time.Duration
}

// longTermPolicy applies to important funding pairs, webhook samples,
// and everything else that should survive long-term: 24h raw, then
// progressively coarser.
var longTermPolicy = []window{
	{from: 7 * 24 * time.Hour, to: 24 * time.Hour, bucket: fineInterval},
	{from: 30 * 24 * time.Hour, to: 7 * 24 * time.Hour, bucket: mediumInterval},
	{from: 0, to: 30 * 24 * time.Hour, bucket: coarseInterval},
}

// fundingPolicy applies to non-important funding pairs: 1h raw, 5min
// granularity to 8h, nothing beyond.
var fundingPolicy = []window{
	{from: 8 * time.Hour, to: 1 * time.Hour, bucket: fineInterval},
	{from: 0, to: 8 * time.Hour, bucket: 0},
}

// spotPolicy applies to spot prices: 1h raw, 5min granularity to 48h,
// nothing beyond.
var spotPolicy = []window{
	{from: 48 * time.Hour, to: 1 * time.Hour, bucket: fineInterval},
	{from: 0, to: 48 * time.Hour, bucket: 0},
}

// Job is one downsampler instance. Safe to run repeatedly; a run over
// unchanged data deletes nothing.
type Job struct {
	db        *database.DB
	important map[string]bool
	uploader  *S3Uploader
	log       zerolog.Logger

	now func() time.Time
}

// NewJob creates a new downsampler job
func NewJob(db *database.DB, importantPairs []config.PairConfig, uploader *S3Uploader, log zerolog.Logger) *Job {
	important := make(map[string]bool, len(importantPairs))
	for _, p := range importantPairs {
		important[samples.FundingSourceID(p.Venue, p.Symbol)] = true
	}
	return &Job{
		db:        db,
		important: important,
		uploader:  uploader,
		log:       log.With().Str("component", "downsampler").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one full maintenance pass.
func (j *Job) Run(ctx context.Context) error {
	start := j.now()

	statsBefore, err := j.db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read database stats: %w", err)
	}

	// Fold the WAL into the main file so the copy is self-contained.
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint before backup failed")
	}

	// No backup, no thinning.
	backupPath, err := createBackup(j.db.Path(), start)
	if err != nil {
		return fmt.Errorf("backup failed, aborting downsample: %w", err)
	}
	j.log.Info().Str("backup", backupPath).Int64("db_bytes", statsBefore.SizeBytes).Msg("Backup created")

	deleted, err := j.thin(start)
	if err != nil {
		return err
	}

	if deleted > 0 {
		if err := j.db.Vacuum(); err != nil {
			j.log.Warn().Err(err).Msg("Vacuum failed")
		} else if statsAfter, err := j.db.GetStats(); err == nil {
			j.log.Info().
				Int64("deleted_rows", deleted).
				Int64("freed_bytes", statsBefore.SizeBytes-statsAfter.SizeBytes).
				Msg("Compaction finished")
		}
	}

	removed, err := pruneBackups(j.db.Path())
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	} else if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("Old backups pruned")
	}

	if j.uploader != nil {
		if err := j.uploader.Upload(ctx, backupPath); err != nil {
			j.log.Warn().Err(err).Msg("Offsite upload failed")
		}
	}

	j.log.Info().
		Int64("deleted_rows", deleted).
		Dur("duration", time.Since(start)).
		Msg("Downsample run finished")
	return nil
}

// thin applies the per-source policies and returns total rows deleted.
func (j *Job) thin(now time.Time) (int64, error) {
	sources, err := j.listSources()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, sourceID := range sources {
		policy := j.policyFor(sourceID)
		for _, w := range policy {
			n, err := j.applyWindow(sourceID, w, now)
			if err != nil {
				return total, fmt.Errorf("failed to thin %s: %w", sourceID, err)
			}
			total += n
		}
	}

	n, err := j.thinMonitorValues(now)
	if err != nil {
		return total, err
	}
	return total + n, nil
}

func (j *Job) policyFor(sourceID string) []window {
	switch {
	case strings.HasPrefix(sourceID, "funding_"):
		if j.important[sourceID] {
			return longTermPolicy
		}
		return fundingPolicy
	case strings.HasPrefix(sourceID, "spot_"):
		return spotPolicy
	default:
		// Webhook, account, and hedge series keep long-term history.
		return longTermPolicy
	}
}

func (j *Job) listSources() ([]string, error) {
	rows, err := j.db.Query("SELECT DISTINCT source_id FROM samples")
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// applyWindow thins one source's rows inside one retention window:
// group by floor(epoch/bucket), keep the lowest id per bucket, delete
// the rest. Absolute bucket boundaries make reruns idempotent.
func (j *Job) applyWindow(sourceID string, w window, now time.Time) (int64, error) {
	newerBound := now.Add(-w.to)

	if w.bucket == 0 {
		result, err := j.db.Exec(
			"DELETE FROM samples WHERE source_id = ? AND timestamp < ?",
			sourceID, newerBound,
		)
		if err != nil {
			return 0, err
		}
		return result.RowsAffected()
	}

	query := `
		DELETE FROM samples
		WHERE source_id = ?1 AND timestamp < ?2`
	args := []any{sourceID, newerBound}
	if w.from > 0 {
		query += " AND timestamp >= ?3"
		args = append(args, now.Add(-w.from))
	}
	query += fmt.Sprintf(`
		AND id NOT IN (
			SELECT MIN(id) FROM samples
			WHERE source_id = ?1 AND timestamp < ?2 %s
			GROUP BY CAST(strftime('%%s', timestamp) AS INTEGER) / %d
		)`,
		ifThen(w.from > 0, "AND timestamp >= ?3"),
		int64(w.bucket.Seconds()),
	)

	result, err := j.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// thinMonitorValues applies the long-term policy to the value cache,
// bucketing per monitor.
func (j *Job) thinMonitorValues(now time.Time) (int64, error) {
	var total int64
	for _, w := range longTermPolicy {
		newerBound := now.Add(-w.to)

		query := `
			DELETE FROM monitor_values
			WHERE computed_at < ?1`
		args := []any{newerBound}
		if w.from > 0 {
			query += " AND computed_at >= ?2"
			args = append(args, now.Add(-w.from))
		}
		query += fmt.Sprintf(`
			AND id NOT IN (
				SELECT MIN(id) FROM monitor_values
				WHERE computed_at < ?1 %s
				GROUP BY monitor_id, CAST(strftime('%%s', computed_at) AS INTEGER) / %d
			)`,
			ifThen(w.from > 0, "AND computed_at >= ?2"),
			int64(w.bucket.Seconds()),
		)

		result, err := j.db.Exec(query, args...)
		if err != nil {
			return total, fmt.Errorf("failed to thin monitor values: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func ifThen(cond bool, s string) string {
	if cond {
		return s
	}
	return ""
}
