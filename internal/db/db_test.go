package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bookstore/services/library/internal/db"
)

func TestConfigKeepsMissingRowsOutOfTheLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), db.Config(zap.New(core)))
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	var user db.User
	err = database.Where("email = ?", "ADMIN@example.com").First(&user).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var record db.IssuedRecord
	err = database.First(&record, "issue_id = ?", 42).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.Zero(t, logs.Len())

	// A real failure still reaches the zap stream.
	_ = database.Exec("SELECT * FROM no_such_table").Error
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "gorm", logs.All()[0].LoggerName)
}
