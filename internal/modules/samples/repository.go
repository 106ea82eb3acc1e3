package samples

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/database"
)

// Repository handles sample persistence. Writes are append-only; the only
// deletions come from the downsampler.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new sample repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "samples").Logger(),
	}
}

const sampleColumns = `id, source_id, display_name, value, text, unit, decimal_places,
	timestamp, received_at, is_change, previous_value`

// Insert persists a single sample and returns its row id.
func (r *Repository) Insert(s *Sample) (int64, error) {
	result, err := r.db.Exec(`
		INSERT INTO samples (source_id, display_name, value, text, unit, decimal_places,
			timestamp, received_at, is_change, previous_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SourceID, s.DisplayName, s.Value, s.Text, s.Unit, s.DecimalPlaces,
		s.Timestamp.UTC(), s.ReceivedAt.UTC(), s.IsChange, s.PreviousValue,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sample: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sample id: %w", err)
	}
	s.ID = id
	return id, nil
}

// InsertBatch persists a batch of samples in one transaction.
// One malformed row fails the whole batch; callers pre-filter.
func (r *Repository) InsertBatch(batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO samples (source_id, display_name, value, text, unit, decimal_places,
				timestamp, received_at, is_change, previous_value)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare batch insert: %w", err)
		}
		defer stmt.Close()

		for i := range batch {
			s := &batch[i]
			if _, err := stmt.Exec(
				s.SourceID, s.DisplayName, s.Value, s.Text, s.Unit, s.DecimalPlaces,
				s.Timestamp.UTC(), s.ReceivedAt.UTC(), s.IsChange, s.PreviousValue,
			); err != nil {
				return fmt.Errorf("failed to insert sample for %s: %w", s.SourceID, err)
			}
		}
		return nil
	})
}

// ByRange returns samples matching the query, newest first by default.
func (r *Repository) ByRange(q RangeQuery) ([]Sample, error) {
	var conditions []string
	var args []interface{}

	if q.SourceID != "" {
		conditions = append(conditions, "source_id = ?")
		args = append(args, q.SourceID)
	}
	if q.Start != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.Start.UTC())
	}
	if q.End != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, q.End.UTC())
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "timestamp"
	if q.OrderBy == "received_at" {
		orderBy = "received_at"
	}
	orderDir := "DESC"
	if strings.EqualFold(q.OrderDir, "asc") {
		orderDir = "ASC"
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxRangeLimit {
		limit = MaxRangeLimit
	}

	query := fmt.Sprintf(
		"SELECT %s FROM samples %s ORDER BY %s %s LIMIT ? OFFSET ?",
		sampleColumns, where, orderBy, orderDir,
	)
	args = append(args, limit, q.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// Latest returns the most recent sample for a source, or nil when the
// source has never produced data.
func (r *Repository) Latest(sourceID string) (*Sample, error) {
	row := r.db.QueryRow(fmt.Sprintf(`
		SELECT %s FROM samples
		WHERE source_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, sampleColumns), sourceID)

	s, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sample for %s: %w", sourceID, err)
	}
	return s, nil
}

// LatestValue returns the most recent non-null value for a source, or nil.
func (r *Repository) LatestValue(sourceID string) (*float64, error) {
	var value sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT value FROM samples
		WHERE source_id = ? AND value IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, sourceID).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest value for %s: %w", sourceID, err)
	}
	if !value.Valid {
		return nil, nil
	}
	v := value.Float64
	return &v, nil
}

// SummaryAll returns aggregate stats for every distinct source.
func (r *Repository) SummaryAll() ([]SourceSummary, error) {
	rows, err := r.db.Query(`
		SELECT source_id,
		       COUNT(*),
		       MIN(value),
		       MAX(value),
		       AVG(value),
		       COALESCE(SUM(is_change), 0)
		FROM samples
		GROUP BY source_id
		ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []SourceSummary
	for rows.Next() {
		var s SourceSummary
		var min, max, mean sql.NullFloat64
		if err := rows.Scan(&s.SourceID, &s.Count, &min, &max, &mean, &s.ChangeCount); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if min.Valid {
			s.Min = &min.Float64
		}
		if max.Valid {
			s.Max = &max.Float64
		}
		if mean.Valid {
			s.Mean = &mean.Float64
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}

	// Attach the latest row per source; display_name follows latest-wins.
	for i := range summaries {
		latest, err := r.Latest(summaries[i].SourceID)
		if err != nil {
			return nil, err
		}
		summaries[i].Latest = latest
		if latest != nil {
			summaries[i].DisplayName = latest.DisplayName
		}
	}

	return summaries, nil
}

// DistinctSources returns all source ids present in the store.
func (r *Repository) DistinctSources() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT source_id FROM samples ORDER BY source_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteOlderThan removes rows older than the cutoff. When sourcePattern
// is non-empty it is applied as a LIKE filter. Returns rows deleted.
func (r *Repository) DeleteOlderThan(cutoff time.Time, sourcePattern string) (int64, error) {
	query := "DELETE FROM samples WHERE timestamp < ?"
	args := []interface{}{cutoff.UTC()}
	if sourcePattern != "" {
		query += " AND source_id LIKE ?"
		args = append(args, sourcePattern)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old samples: %w", err)
	}
	return result.RowsAffected()
}

func scanSamples(rows *sql.Rows) ([]Sample, error) {
	var out []Sample
	for rows.Next() {
		var s Sample
		var value, prev sql.NullFloat64
		if err := rows.Scan(
			&s.ID, &s.SourceID, &s.DisplayName, &value, &s.Text, &s.Unit,
			&s.DecimalPlaces, &s.Timestamp, &s.ReceivedAt, &s.IsChange, &prev,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if value.Valid {
			s.Value = &value.Float64
		}
		if prev.Valid {
			s.PreviousValue = &prev.Float64
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSample(row rowScanner) (*Sample, error) {
	var s Sample
	var value, prev sql.NullFloat64
	if err := row.Scan(
		&s.ID, &s.SourceID, &s.DisplayName, &value, &s.Text, &s.Unit,
		&s.DecimalPlaces, &s.Timestamp, &s.ReceivedAt, &s.IsChange, &prev,
	); err != nil {
		return nil, err
	}
	if value.Valid {
		s.Value = &value.Float64
	}
	if prev.Valid {
		s.PreviousValue = &prev.Float64
	}
	return &s, nil
}
