package monitors

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles monitor definition persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new monitor repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "monitors").Logger(),
	}
}

const monitorColumns = `id, name, unit, color, description, decimal_places, formula,
	enabled, heartbeat_interval_s, created_at, updated_at`

// GetAll returns all monitors. When enabledOnly is true, disabled
// monitors are omitted.
func (r *Repository) GetAll(enabledOnly bool) ([]Monitor, error) {
	query := fmt.Sprintf("SELECT %s FROM monitors", monitorColumns)
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	var monitors []Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

// GetByID returns one monitor or ErrNotFound.
func (r *Repository) GetByID(id string) (*Monitor, error) {
	row := r.db.QueryRow(fmt.Sprintf("SELECT %s FROM monitors WHERE id = ?", monitorColumns), id)
	m, err := scanMonitor(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor %s: %w", id, err)
	}
	return m, nil
}

// Create persists a new monitor definition.
func (r *Repository) Create(m *Monitor) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO monitors (id, name, unit, color, description, decimal_places, formula,
			enabled, heartbeat_interval_s, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Unit, m.Color, m.Description, m.DecimalPlaces, m.Formula,
		m.Enabled, m.HeartbeatIntervalS, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create monitor %s: %w", m.ID, err)
	}
	return nil
}

// Update rewrites an existing monitor definition.
func (r *Repository) Update(m *Monitor) error {
	m.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(`
		UPDATE monitors
		SET name = ?, unit = ?, color = ?, description = ?, decimal_places = ?,
			formula = ?, enabled = ?, heartbeat_interval_s = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Unit, m.Color, m.Description, m.DecimalPlaces,
		m.Formula, m.Enabled, m.HeartbeatIntervalS, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update monitor %s: %w", m.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of monitor %s: %w", m.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a monitor. Cached values cascade via the foreign key.
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM monitors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of monitor %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMonitor(row rowScanner) (*Monitor, error) {
	var m Monitor
	if err := row.Scan(
		&m.ID, &m.Name, &m.Unit, &m.Color, &m.Description, &m.DecimalPlaces,
		&m.Formula, &m.Enabled, &m.HeartbeatIntervalS, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
