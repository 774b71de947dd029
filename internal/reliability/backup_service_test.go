package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tilt/internal/database"
)

// setupTestDatabases creates the three application databases in a temp
// directory, migrated and ready for use.
func setupTestDatabases(t *testing.T) (map[string]*database.DB, string) {
	t.Helper()

	dataDir := t.TempDir()
	databases := make(map[string]*database.DB)

	for _, name := range []string{"history", "views", "results"} {
		db, err := database.New(database.Config{
			Path:    filepath.Join(dataDir, name+".db"),
			Profile: database.ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)
		require.NoError(t, db.Migrate())
		t.Cleanup(func() { db.Close() })

		databases[name] = db
	}

	return databases, dataDir
}

func TestBackupService_CreateDailyBackup(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)

	_, err := databases["views"].Conn().Exec(
		`INSERT INTO views (id, name, confidence, out_performance, allocation, created_at, updated_at)
		 VALUES ('v1', 'equities over bonds', 0.5, 0.03, '{"VWCE":1,"AGGH":-1}', 100, 100)`,
	)
	require.NoError(t, err)

	service := NewBackupService(databases, dataDir, zerolog.Nop())

	backupDir, err := service.CreateDailyBackup()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "backups", "daily", time.Now().Format("2006-01-02")), backupDir)

	for _, name := range []string{"history", "views", "results"} {
		assert.FileExists(t, filepath.Join(backupDir, name+".db"))
	}

	require.NoError(t, service.VerifyBackup(backupDir))

	// The backup is a usable database containing the data.
	copyDB, err := sql.Open("sqlite", filepath.Join(backupDir, "views.db"))
	require.NoError(t, err)
	defer copyDB.Close()

	var count int
	require.NoError(t, copyDB.QueryRow("SELECT COUNT(*) FROM views").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBackupService_CreateDailyBackupTwiceSameDay(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)
	service := NewBackupService(databases, dataDir, zerolog.Nop())

	first, err := service.CreateDailyBackup()
	require.NoError(t, err)

	second, err := service.CreateDailyBackup()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBackupService_BackupDatabaseUnknownName(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)
	service := NewBackupService(databases, dataDir, zerolog.Nop())

	err := service.BackupDatabase("ledger", filepath.Join(dataDir, "ledger.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database")
}

func TestBackupService_DatabaseNames(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)
	service := NewBackupService(databases, dataDir, zerolog.Nop())

	assert.Equal(t, []string{"history", "results", "views"}, service.DatabaseNames())
}

func TestBackupService_PruneDailyBackups(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)
	service := NewBackupService(databases, dataDir, zerolog.Nop())

	dailyDir := filepath.Join(dataDir, "backups", "daily")
	dates := []string{"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04", "2026-01-05"}
	for _, date := range dates {
		require.NoError(t, os.MkdirAll(filepath.Join(dailyDir, date), 0755))
	}

	removed, err := service.PruneDailyBackups(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := os.ReadDir(dailyDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2026-01-04", entries[0].Name())
	assert.Equal(t, "2026-01-05", entries[1].Name())
}

func TestBackupService_PruneDailyBackupsNoDirectory(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)
	service := NewBackupService(databases, dataDir, zerolog.Nop())

	removed, err := service.PruneDailyBackups(7)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestBackupService_PruneDailyBackupsRejectsZeroKeep(t *testing.T) {
	databases, dataDir := setupTestDatabases(t)
	service := NewBackupService(databases, dataDir, zerolog.Nop())

	_, err := service.PruneDailyBackups(0)
	require.Error(t, err)
}
