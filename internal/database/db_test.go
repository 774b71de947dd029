package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory database with a scratch table.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    ":memory:",
		Profile: ProfileStandard,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS test_table (
			id INTEGER PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	return db
}

func TestNew_InMemory(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.QuickCheck(context.Background()))
	assert.Equal(t, "test", db.Name())
	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestNew_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "history.db")

	db, err := New(Config{Path: path, Profile: ProfileBulk, Name: "history"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	require.NoError(t, db.QuickCheck(context.Background()))
}

func TestMigrate_AppliesEmbeddedSchemas(t *testing.T) {
	expectedTables := map[string][]string{
		"history": {"daily_prices", "market_caps"},
		"views":   {"views"},
		"results": {"weight_snapshots"},
	}

	for name, tables := range expectedTables {
		t.Run(name, func(t *testing.T) {
			db, err := New(Config{Path: ":memory:", Name: name})
			require.NoError(t, err)
			defer db.Close()

			require.NoError(t, db.Migrate())
			// Schemas only use IF NOT EXISTS, so a second run is a no-op.
			require.NoError(t, db.Migrate())

			for _, table := range tables {
				var found string
				err := db.Conn().QueryRow(
					"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
				).Scan(&found)
				require.NoError(t, err, "table %s should exist after migration", table)
				assert.Equal(t, table, found)
			}
		})
	}
}

func TestMigrate_UnknownDatabaseName(t *testing.T) {
	db, err := New(Config{Path: ":memory:", Name: "scratch"})
	require.NoError(t, err)
	defer db.Close()

	err = db.Migrate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema registered")
}

func TestWithTransaction_Success(t *testing.T) {
	db := setupTestDB(t)

	var result int
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", "test-value"); err != nil {
			return err
		}
		return tx.QueryRow("SELECT COUNT(*) FROM test_table WHERE value = ?", "test-value").Scan(&result)
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result)

	// Row persists after commit.
	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)

	testErr := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", "test-value"); err != nil {
			return err
		}
		return testErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.Contains(t, err.Error(), "transaction")

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table").Scan(&count))
	assert.Equal(t, 0, count, "row should not exist after rollback")
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	db := setupTestDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", "test-value"); err != nil {
			return err
		}
		panic("panic occurred")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Contains(t, err.Error(), "panic occurred")

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table").Scan(&count))
	assert.Equal(t, 0, count, "row should not exist after panic rollback")
}

func TestWithTransaction_MultipleOperations(t *testing.T) {
	db := setupTestDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		for i := 0; i < 5; i++ {
			if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", fmt.Sprintf("value-%d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table").Scan(&count))
	assert.Equal(t, 5, count)
}

func TestWithTransaction_NilDB(t *testing.T) {
	err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestHealthCheck(t *testing.T) {
	db, err := New(Config{Path: ":memory:", Name: "views"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestGetStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	db, err := New(Config{Path: path, Profile: ProfileDurable, Name: "results"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	stats, err := db.GetStats()

	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestMaintenanceOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := New(Config{Path: path, Profile: ProfileBulk, Name: "history"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	_, err = db.Conn().Exec(
		"INSERT INTO daily_prices (asset_id, date, close) VALUES (?, ?, ?)",
		"VWCE", 1704153600, 100.0,
	)
	require.NoError(t, err)

	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))
	assert.NoError(t, db.Vacuum())
}
