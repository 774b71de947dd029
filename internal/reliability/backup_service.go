// Package reliability provides database backup, restore and maintenance.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tilt/internal/database"
)

// BackupService creates local point-in-time copies of the application databases.
// Copies are taken with VACUUM INTO, which produces a consistent snapshot
// without blocking concurrent readers or writers.
type BackupService struct {
	databases map[string]*database.DB
	backupDir string
	log       zerolog.Logger
}

// NewBackupService creates a backup service for the given databases.
// The map key is the logical database name (e.g. "views") and becomes
// the backup filename ("views.db").
func NewBackupService(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		backupDir: filepath.Join(dataDir, "backups"),
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the logical names of all registered databases, sorted.
func (s *BackupService) DatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BackupDir returns the root directory for local backups.
func (s *BackupService) BackupDir() string {
	return s.backupDir
}

// BackupDatabase writes a consistent copy of the named database to destPath.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database %q", name)
	}

	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear stale backup %s: %w", destPath, err)
	}

	if _, err := db.Conn().Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("failed to back up %s: %w", name, err)
	}

	return nil
}

// CreateDailyBackup copies every database into backups/daily/<date> and
// returns the backup directory. Backing up twice on the same day overwrites
// that day's copies.
func (s *BackupService) CreateDailyBackup() (string, error) {
	s.log.Info().Msg("Starting local backup")
	startTime := time.Now()

	dateDir := filepath.Join(s.backupDir, "daily", time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	for _, name := range s.DatabaseNames() {
		destPath := filepath.Join(dateDir, name+".db")

		s.log.Debug().Str("database", name).Msg("Backing up database")

		if err := s.BackupDatabase(name, destPath); err != nil {
			return "", err
		}
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("dir", dateDir).
		Msg("Local backup completed")

	return dateDir, nil
}

// VerifyBackup opens every database copy in the given backup directory and
// runs an integrity check on it.
func (s *BackupService) VerifyBackup(dir string) error {
	for _, name := range s.DatabaseNames() {
		backupPath := filepath.Join(dir, name+".db")

		if _, err := os.Stat(backupPath); err != nil {
			return fmt.Errorf("backup file missing for %s: %w", name, err)
		}

		if err := verifyDatabaseFile(backupPath); err != nil {
			return fmt.Errorf("backup of %s failed verification: %w", name, err)
		}

		s.log.Debug().Str("database", name).Msg("Backup verified")
	}

	return nil
}

// PruneDailyBackups removes daily backup directories beyond the most recent
// keepDays. Returns the number of directories removed.
func (s *BackupService) PruneDailyBackups(keepDays int) (int, error) {
	if keepDays < 1 {
		return 0, fmt.Errorf("keepDays must be at least 1, got %d", keepDays)
	}

	dailyDir := filepath.Join(s.backupDir, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	// Directory names are YYYY-MM-DD, so lexical order is chronological.
	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dates = append(dates, entry.Name())
		}
	}
	sort.Strings(dates)

	if len(dates) <= keepDays {
		return 0, nil
	}

	removed := 0
	for _, date := range dates[:len(dates)-keepDays] {
		path := filepath.Join(dailyDir, date)
		if err := os.RemoveAll(path); err != nil {
			s.log.Error().Err(err).Str("dir", path).Msg("Failed to remove old backup")
			continue
		}
		removed++
		s.log.Info().Str("dir", path).Msg("Removed old backup")
	}

	return removed, nil
}

// verifyDatabaseFile opens a SQLite file and runs PRAGMA integrity_check.
func verifyDatabaseFile(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}

	return nil
}
