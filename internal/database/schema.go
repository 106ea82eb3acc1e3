package database

// Schema is the single source of truth for the database layout.
// All statements are idempotent so Migrate can run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    value REAL,
    text TEXT NOT NULL DEFAULT '',
    unit TEXT NOT NULL DEFAULT '',
    decimal_places INTEGER NOT NULL DEFAULT 2,
    timestamp DATETIME NOT NULL,
    received_at DATETIME NOT NULL,
    is_change INTEGER NOT NULL DEFAULT 0,
    previous_value REAL
);

CREATE INDEX IF NOT EXISTS idx_samples_source_ts ON samples(source_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(timestamp);

CREATE TABLE IF NOT EXISTS monitors (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    color TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    decimal_places INTEGER NOT NULL DEFAULT 2,
    formula TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    heartbeat_interval_s INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_values (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    monitor_id TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
    value REAL NOT NULL,
    computed_at DATETIME NOT NULL,
    dependencies TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_monitor_values_monitor ON monitor_values(monitor_id, computed_at);

CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    condition TEXT NOT NULL,
    level TEXT NOT NULL DEFAULT 'medium',
    enabled INTEGER NOT NULL DEFAULT 1,
    cooldown_s INTEGER NOT NULL DEFAULT 300,
    heartbeat_enabled INTEGER NOT NULL DEFAULT 0,
    heartbeat_interval_s INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_id TEXT NOT NULL,
    level TEXT NOT NULL,
    triggered_at DATETIME NOT NULL,
    last_notified_at DATETIME NOT NULL,
    notification_count INTEGER NOT NULL DEFAULT 1,
    resolved_at DATETIME,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_alert_states_rule ON alert_states(rule_id, is_active);

CREATE TABLE IF NOT EXISTS notification_targets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    recipient_key TEXT NOT NULL,
    auth_token TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    min_level TEXT NOT NULL DEFAULT 'low',
    created_at DATETIME NOT NULL
);
`
