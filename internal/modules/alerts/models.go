// Package alerts implements threshold and heartbeat alerting over
// monitor formulas: rule storage, alert state tracking, cooldowns, and
// tier-filtered notification dispatch.
package alerts

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a rule or target id does not exist.
var ErrNotFound = errors.New("not found")

// Alert tiers, ordered low < medium < high < critical.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// heartbeatPrefix namespaces heartbeat alert levels so threshold and
// heartbeat states for the same rule never collide.
const heartbeatPrefix = "heartbeat_"

// levelRank orders tiers for min-level filtering. Heartbeat levels rank
// by their underlying tier.
func levelRank(level string) int {
	switch strings.TrimPrefix(level, heartbeatPrefix) {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	case LevelCritical:
		return 3
	}
	return -1
}

// ValidLevel reports whether a level is one of the four tiers.
func ValidLevel(level string) bool {
	switch level {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	}
	return false
}

// HeartbeatLevel returns the namespaced level for heartbeat breaches of
// a rule at the given tier.
func HeartbeatLevel(level string) string {
	return heartbeatPrefix + level
}

// AlertRule is a boolean condition over formulas with dispatch policy.
type AlertRule struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Condition          string    `json:"condition"`
	Level              string    `json:"level"`
	Enabled            bool      `json:"enabled"`
	CooldownS          int       `json:"cooldown_s"`
	HeartbeatEnabled   bool      `json:"heartbeat_enabled"`
	HeartbeatIntervalS int       `json:"heartbeat_interval_s"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AlertState tracks one live (or resolved) alert. The engine enforces at
// most one active state per rule per alert class (threshold/heartbeat).
type AlertState struct {
	ID                int64      `json:"id"`
	RuleID            string     `json:"rule_id"`
	Level             string     `json:"level"`
	TriggeredAt       time.Time  `json:"triggered_at"`
	LastNotifiedAt    time.Time  `json:"last_notified_at"`
	NotificationCount int        `json:"notification_count"`
	ResolvedAt        *time.Time `json:"resolved_at"`
	IsActive          bool       `json:"is_active"`
}

// NotificationTarget is one recipient of dispatched alerts.
type NotificationTarget struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RecipientKey string    `json:"recipient_key"`
	AuthToken    *string   `json:"auth_token,omitempty"`
	Enabled      bool      `json:"enabled"`
	MinLevel     string    `json:"min_level"`
	CreatedAt    time.Time `json:"created_at"`
}
