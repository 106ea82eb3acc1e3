package downsampler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupTimeFormat names backups sortably: <db>.backup-YYYYMMDD-HHMMSS.
const backupTimeFormat = "20060102-150405"

// maxLocalBackups bounds how many backup copies stay next to the DB.
const maxLocalBackups = 3

// createBackup copies the database file to a timestamped sibling and
// returns the new path.
func createBackup(dbPath string, now time.Time) (string, error) {
	backupPath := fmt.Sprintf("%s.backup-%s", dbPath, now.Format(backupTimeFormat))

	src, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open database for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to copy database: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}
	return backupPath, nil
}

// pruneBackups deletes all but the newest maxLocalBackups copies.
// Returns how many were removed.
func pruneBackups(dbPath string) (int, error) {
	pattern := dbPath + ".backup-*"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	prefix := dbPath + ".backup-"
	var backups []string
	for _, m := range matches {
		if strings.HasPrefix(m, prefix) {
			backups = append(backups, m)
		}
	}
	if len(backups) <= maxLocalBackups {
		return 0, nil
	}

	// The timestamp suffix sorts lexically; newest last.
	sort.Strings(backups)

	removed := 0
	for _, path := range backups[:len(backups)-maxLocalBackups] {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove old backup %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
