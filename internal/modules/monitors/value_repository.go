package monitors

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratewatch/ratewatch/internal/formula"
)

// ValueRepository handles the per-monitor value cache.
type ValueRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewValueRepository creates a new monitor value repository
func NewValueRepository(db *sql.DB, log zerolog.Logger) *ValueRepository {
	return &ValueRepository{
		db:  db,
		log: log.With().Str("repo", "monitor_values").Logger(),
	}
}

// Latest returns the most recent cached value for a monitor, or nil when
// the monitor has never evaluated to a value.
func (r *ValueRepository) Latest(monitorID string) (*MonitorValue, error) {
	var mv MonitorValue
	var deps string
	err := r.db.QueryRow(`
		SELECT id, monitor_id, value, computed_at, dependencies
		FROM monitor_values
		WHERE monitor_id = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT 1`, monitorID).Scan(&mv.ID, &mv.MonitorID, &mv.Value, &mv.ComputedAt, &deps)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest value for %s: %w", monitorID, err)
	}

	if err := json.Unmarshal([]byte(deps), &mv.Dependencies); err != nil {
		mv.Dependencies = nil
	}
	return &mv, nil
}

// RecordIfChanged appends a new value row when the value moved by more
// than the change tolerance (or no prior value exists). Returns whether a
// row was written.
func (r *ValueRepository) RecordIfChanged(monitorID string, value float64, dependencies []string) (bool, error) {
	prev, err := r.Latest(monitorID)
	if err != nil {
		return false, err
	}
	if prev != nil && math.Abs(value-prev.Value) <= formula.Epsilon {
		return false, nil
	}

	if dependencies == nil {
		dependencies = []string{}
	}
	depsJSON, err := json.Marshal(dependencies)
	if err != nil {
		return false, fmt.Errorf("failed to marshal dependencies: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO monitor_values (monitor_id, value, computed_at, dependencies)
		VALUES (?, ?, ?, ?)`,
		monitorID, value, time.Now().UTC(), string(depsJSON),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert value for %s: %w", monitorID, err)
	}
	return true, nil
}

// History returns cached values for a monitor, newest first.
func (r *ValueRepository) History(monitorID string, limit int) ([]MonitorValue, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT id, monitor_id, value, computed_at, dependencies
		FROM monitor_values
		WHERE monitor_id = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT ?`, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query value history for %s: %w", monitorID, err)
	}
	defer rows.Close()

	var values []MonitorValue
	for rows.Next() {
		var mv MonitorValue
		var deps string
		if err := rows.Scan(&mv.ID, &mv.MonitorID, &mv.Value, &mv.ComputedAt, &deps); err != nil {
			return nil, fmt.Errorf("failed to scan value row: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &mv.Dependencies); err != nil {
			mv.Dependencies = nil
		}
		values = append(values, mv)
	}
	return values, rows.Err()
}

// DeleteOlderThan removes cached values older than the cutoff.
// Used by the downsampler's long-term retention pass.
func (r *ValueRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM monitor_values WHERE computed_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old monitor values: %w", err)
	}
	return result.RowsAffected()
}
