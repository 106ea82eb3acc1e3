// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Host          string
	Port          int
	DatabasePath  string // Single SQLite file holding all tables (always absolute)
	CORSOrigins   []string
	WebhookSecret string // Shared secret for /webhook/distill; empty disables the token check
	LogLevel      string
	DevMode       bool

	// Poller class switches. A disabled class is never constructed,
	// matching the behavior of removing the pollers entirely.
	DisableFundingPollers bool
	DisableSpotPollers    bool
	DisableAccountPollers bool
	DisableDownsampler    bool

	// TopNLimit caps how many rows a volume-ranked batch may persist.
	TopNLimit int

	// Accounts lists the on-chain accounts polled for value and positions.
	Accounts []AccountConfig

	// ImportantPairs get the long retention tier in the downsampler.
	ImportantPairs []PairConfig

	Pushover PushoverConfig
	Backup   BackupConfig
}

// AccountConfig identifies one polled account on one venue.
type AccountConfig struct {
	Venue   string
	Label   string
	Address string
}

// PairConfig is one (venue, symbol) funding pair.
type PairConfig struct {
	Venue  string
	Symbol string
}

// PushoverConfig holds push notification service configuration.
type PushoverConfig struct {
	APIURL   string
	APIToken string
}

// BackupConfig holds offsite backup configuration. Offsite upload is
// enabled only when Bucket is non-empty; local backup copies are always made.
type BackupConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dbPath := getEnv("DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = "data/ratewatch.db"
	}

	// Always resolve to absolute path so backup copies land next to the DB
	// regardless of working directory.
	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(absDBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		Host:          getEnv("HOST", "0.0.0.0"),
		Port:          getEnvAsInt("PORT", 8000),
		DatabasePath:  absDBPath,
		CORSOrigins:   splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),

		DisableFundingPollers: getEnvAsBool("DISABLE_FUNDING_POLLERS", false),
		DisableSpotPollers:    getEnvAsBool("DISABLE_SPOT_POLLERS", false),
		DisableAccountPollers: getEnvAsBool("DISABLE_ACCOUNT_POLLERS", false),
		DisableDownsampler:    getEnvAsBool("DISABLE_DOWNSAMPLER", false),

		TopNLimit: getEnvAsInt("TOP_N_LIMIT", 50),

		Accounts:       parseAccounts(getEnv("ACCOUNTS", "")),
		ImportantPairs: parsePairs(getEnv("IMPORTANT_FUNDING_PAIRS", "lighter:BTC,lighter:ETH,lighter:SOL")),

		Pushover: PushoverConfig{
			APIURL:   getEnv("PUSHOVER_API_URL", "https://api.pushover.net/1/messages.json"),
			APIToken: getEnv("PUSHOVER_API_TOKEN", ""),
		},
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.TopNLimit < 1 {
		return fmt.Errorf("TOP_N_LIMIT must be positive, got %d", c.TopNLimit)
	}
	if c.Backup.Bucket != "" && (c.Backup.AccessKey == "" || c.Backup.SecretKey == "") {
		return fmt.Errorf("BACKUP_S3_BUCKET is set but credentials are missing")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// parseAccounts reads "venue:label:address" triples from a comma list.
// Malformed entries are skipped.
func parseAccounts(s string) []AccountConfig {
	var out []AccountConfig
	for _, entry := range splitAndTrim(s) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			continue
		}
		out = append(out, AccountConfig{Venue: parts[0], Label: parts[1], Address: parts[2]})
	}
	return out
}

// parsePairs reads "venue:SYMBOL" pairs from a comma list.
func parsePairs(s string) []PairConfig {
	var out []PairConfig
	for _, entry := range splitAndTrim(s) {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out = append(out, PairConfig{Venue: parts[0], Symbol: strings.ToUpper(parts[1])})
	}
	return out
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
