// Package dbtest opens throwaway databases for package tests: in-memory sqlite
// by default, and a scratch PostgreSQL schema when PostgresDSNEnv is set.
package dbtest

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bookstore/services/library/internal/db"
)

// Open returns a migrated in-memory database with foreign keys enforced.
//
// The pool is pinned to a single connection. sqlite ignores row-lock clauses,
// so this is what serializes concurrent transactions in tests.
func Open(t *testing.T) *db.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), db.Config(zap.NewNop()))
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	t.Cleanup(func() { _ = database.Close() })
	return database
}

// PostgresDSNEnv names the variable holding the server OpenPostgres connects to.
const PostgresDSNEnv = "LIBRARY_TEST_PG_DSN"

// OpenPostgres returns a migrated database in a fresh schema on the server named
// by PostgresDSNEnv, skipping the test when it is unset. Unlike Open, the pool is
// not pinned, so row locks are what keep concurrent transactions apart.
func OpenPostgres(t *testing.T) *db.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping PostgreSQL test", PostgresDSNEnv)
	}

	schema := "library_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := db.Connect(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, admin.Exec("CREATE SCHEMA " + schema).Error)
	t.Cleanup(func() {
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = admin.Close()
	})

	database, err := db.Connect(withSearchPath(dsn, schema), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database))
	return database
}

// withSearchPath adds search_path to a URL or keyword/value DSN.
func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&search_path=" + schema
		}
		return dsn + "?search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

// Record returns the open issued record with issueID, or nil once it is closed.
func Record(t *testing.T, database *db.DB, issueID uint) *db.IssuedRecord {
	t.Helper()

	var records []db.IssuedRecord
	require.NoError(t, database.Where("issue_id = ?", issueID).Limit(1).Find(&records).Error)
	if len(records) == 0 {
		return nil
	}
	return &records[0]
}

// OpenQuantity sums the copies of bookID currently out on loan.
func OpenQuantity(t *testing.T, database *db.DB, bookID uint) int {
	t.Helper()

	var total int
	require.NoError(t, database.Model(&db.IssuedRecord{}).
		Where("book_id = ?", bookID).
		Select("COALESCE(SUM(qty), 0)").
		Scan(&total).Error)
	return total
}
