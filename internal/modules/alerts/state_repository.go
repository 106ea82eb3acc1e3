package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StateRepository tracks live and historical alert states. Threshold and
// heartbeat states for the same rule are distinguished by the level
// prefix, so each class can have its own active row.
type StateRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStateRepository creates a new alert state repository
func NewStateRepository(db *sql.DB, log zerolog.Logger) *StateRepository {
	return &StateRepository{
		db:  db,
		log: log.With().Str("repo", "alert_states").Logger(),
	}
}

const stateColumns = `id, rule_id, level, triggered_at, last_notified_at,
	notification_count, resolved_at, is_active`

func scanState(row interface{ Scan(...any) error }) (*AlertState, error) {
	var st AlertState
	err := row.Scan(
		&st.ID, &st.RuleID, &st.Level, &st.TriggeredAt, &st.LastNotifiedAt,
		&st.NotificationCount, &st.ResolvedAt, &st.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Active returns the active state for a rule in one class, or nil.
func (r *StateRepository) Active(ruleID string, heartbeat bool) (*AlertState, error) {
	classFilter := "level NOT LIKE 'heartbeat_%'"
	if heartbeat {
		classFilter = "level LIKE 'heartbeat_%'"
	}

	query := fmt.Sprintf(
		"SELECT %s FROM alert_states WHERE rule_id = ? AND is_active = 1 AND %s ORDER BY id DESC LIMIT 1",
		stateColumns, classFilter,
	)
	st, err := scanState(r.db.QueryRow(query, ruleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active alert state for %s: %w", ruleID, err)
	}
	return st, nil
}

// Create inserts a new active state with one notification recorded.
func (r *StateRepository) Create(ruleID, level string, now time.Time) (*AlertState, error) {
	result, err := r.db.Exec(`
		INSERT INTO alert_states (rule_id, level, triggered_at, last_notified_at, notification_count, is_active)
		VALUES (?, ?, ?, ?, 1, 1)`,
		ruleID, level, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert state for %s: %w", ruleID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read alert state id for %s: %w", ruleID, err)
	}
	return &AlertState{
		ID: id, RuleID: ruleID, Level: level,
		TriggeredAt: now, LastNotifiedAt: now,
		NotificationCount: 1, IsActive: true,
	}, nil
}

// Touch records another notification on an existing state.
func (r *StateRepository) Touch(id int64, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE alert_states
		SET last_notified_at = ?, notification_count = notification_count + 1
		WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch alert state %d: %w", id, err)
	}
	return nil
}

// Resolve marks a state inactive.
func (r *StateRepository) Resolve(id int64, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE alert_states
		SET is_active = 0, resolved_at = ?
		WHERE id = ? AND is_active = 1`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve alert state %d: %w", id, err)
	}
	return nil
}

// Recent returns the newest states, active first.
func (r *StateRepository) Recent(limit int) ([]AlertState, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT %s FROM alert_states ORDER BY is_active DESC, triggered_at DESC LIMIT ?",
		stateColumns,
	)
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert states: %w", err)
	}
	defer rows.Close()

	var states []AlertState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert state: %w", err)
		}
		states = append(states, *st)
	}
	return states, rows.Err()
}

// DeleteOlderThan removes resolved states older than the cutoff.
func (r *StateRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM alert_states WHERE is_active = 0 AND triggered_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune alert states: %w", err)
	}
	return result.RowsAffected()
}

// resolveAllForRule deactivates every active state of a rule, used when a
// rule is disabled or deleted mid-flight.
func (r *StateRepository) ResolveAllForRule(ruleID string, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE alert_states
		SET is_active = 0, resolved_at = ?
		WHERE rule_id = ? AND is_active = 1`,
		now, ruleID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve alert states for %s: %w", ruleID, err)
	}
	return nil
}
