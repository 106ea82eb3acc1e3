package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RuleRepository handles alert rule persistence.
type RuleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRuleRepository creates a new alert rule repository
func NewRuleRepository(db *sql.DB, log zerolog.Logger) *RuleRepository {
	return &RuleRepository{
		db:  db,
		log: log.With().Str("repo", "alert_rules").Logger(),
	}
}

const ruleColumns = `id, name, condition, level, enabled, cooldown_s,
	heartbeat_enabled, heartbeat_interval_s, created_at, updated_at`

// GetAll returns all rules, optionally only enabled ones.
func (r *RuleRepository) GetAll(enabledOnly bool) ([]AlertRule, error) {
	query := fmt.Sprintf("SELECT %s FROM alert_rules", ruleColumns)
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []AlertRule
	for rows.Next() {
		var rule AlertRule
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Condition, &rule.Level, &rule.Enabled,
			&rule.CooldownS, &rule.HeartbeatEnabled, &rule.HeartbeatIntervalS,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetByID returns one rule or ErrNotFound.
func (r *RuleRepository) GetByID(id string) (*AlertRule, error) {
	var rule AlertRule
	err := r.db.QueryRow(fmt.Sprintf("SELECT %s FROM alert_rules WHERE id = ?", ruleColumns), id).Scan(
		&rule.ID, &rule.Name, &rule.Condition, &rule.Level, &rule.Enabled,
		&rule.CooldownS, &rule.HeartbeatEnabled, &rule.HeartbeatIntervalS,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rule %s: %w", id, err)
	}
	return &rule, nil
}

// Create persists a new rule.
func (r *RuleRepository) Create(rule *AlertRule) error {
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO alert_rules (id, name, condition, level, enabled, cooldown_s,
			heartbeat_enabled, heartbeat_interval_s, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Condition, rule.Level, rule.Enabled, rule.CooldownS,
		rule.HeartbeatEnabled, rule.HeartbeatIntervalS, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert rule %s: %w", rule.ID, err)
	}
	return nil
}

// Update rewrites an existing rule.
func (r *RuleRepository) Update(rule *AlertRule) error {
	rule.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(`
		UPDATE alert_rules
		SET name = ?, condition = ?, level = ?, enabled = ?, cooldown_s = ?,
			heartbeat_enabled = ?, heartbeat_interval_s = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Condition, rule.Level, rule.Enabled, rule.CooldownS,
		rule.HeartbeatEnabled, rule.HeartbeatIntervalS, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule %s: %w", rule.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of alert rule %s: %w", rule.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a rule. Historical alert states are kept.
func (r *RuleRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of alert rule %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
