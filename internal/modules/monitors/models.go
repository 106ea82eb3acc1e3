// Package monitors implements user-defined metrics: the registry, the
// per-monitor value cache, and formula evaluation over the store.
package monitors

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a monitor id does not exist.
var ErrNotFound = errors.New("monitor not found")

// ErrCycleDetected is returned when a create/update would make the
// monitor dependency graph cyclic.
var ErrCycleDetected = errors.New("monitor formula creates a dependency cycle")

// Monitor is a user-authored metric definition.
type Monitor struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Unit               string    `json:"unit"`
	Color              string    `json:"color"`
	Description        string    `json:"description"`
	DecimalPlaces      int       `json:"decimal_places"`
	Formula            string    `json:"formula"`
	Enabled            bool      `json:"enabled"`
	HeartbeatIntervalS int       `json:"heartbeat_interval_s"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MonitorValue is one cached evaluation result. A new row is written only
// when the value moved by more than the change tolerance.
type MonitorValue struct {
	ID           int64     `json:"id"`
	MonitorID    string    `json:"monitor_id"`
	Value        float64   `json:"value"`
	ComputedAt   time.Time `json:"computed_at"`
	Dependencies []string  `json:"dependencies"`
}
