package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TargetRepository handles notification target persistence.
type TargetRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTargetRepository creates a new notification target repository
func NewTargetRepository(db *sql.DB, log zerolog.Logger) *TargetRepository {
	return &TargetRepository{
		db:  db,
		log: log.With().Str("repo", "notification_targets").Logger(),
	}
}

const targetColumns = "id, name, recipient_key, auth_token, enabled, min_level, created_at"

// GetAll returns all targets, optionally only enabled ones.
func (r *TargetRepository) GetAll(enabledOnly bool) ([]NotificationTarget, error) {
	query := fmt.Sprintf("SELECT %s FROM notification_targets", targetColumns)
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification targets: %w", err)
	}
	defer rows.Close()

	var targets []NotificationTarget
	for rows.Next() {
		var t NotificationTarget
		if err := rows.Scan(
			&t.ID, &t.Name, &t.RecipientKey, &t.AuthToken, &t.Enabled,
			&t.MinLevel, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// GetByID returns one target or ErrNotFound.
func (r *TargetRepository) GetByID(id string) (*NotificationTarget, error) {
	var t NotificationTarget
	err := r.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM notification_targets WHERE id = ?", targetColumns), id,
	).Scan(&t.ID, &t.Name, &t.RecipientKey, &t.AuthToken, &t.Enabled, &t.MinLevel, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query notification target %s: %w", id, err)
	}
	return &t, nil
}

// Create persists a new target.
func (r *TargetRepository) Create(t *NotificationTarget) error {
	t.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO notification_targets (id, name, recipient_key, auth_token, enabled, min_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.RecipientKey, t.AuthToken, t.Enabled, t.MinLevel, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification target %s: %w", t.ID, err)
	}
	return nil
}

// Update rewrites an existing target.
func (r *TargetRepository) Update(t *NotificationTarget) error {
	result, err := r.db.Exec(`
		UPDATE notification_targets
		SET name = ?, recipient_key = ?, auth_token = ?, enabled = ?, min_level = ?
		WHERE id = ?`,
		t.Name, t.RecipientKey, t.AuthToken, t.Enabled, t.MinLevel, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification target %s: %w", t.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of notification target %s: %w", t.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a target.
func (r *TargetRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM notification_targets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete notification target %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of notification target %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
