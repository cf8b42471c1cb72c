package db

import (
	"fmt"
	"strings"
	"testing"

	"txstatus-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSchemaOnly(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.TransactionRecord{}, &DataMigrationRecord{}))
	return gdb
}

func insertRecord(t *testing.T, gdb *gorm.DB, hash string) string {
	t.Helper()
	record := models.NewPlaceholderRecord(hash, 11155111, "sepolia", "alice")
	record.ID = uuid.NewString()
	require.NoError(t, gdb.Create(record).Error)
	return record.ID
}

func storedHash(t *testing.T, gdb *gorm.DB, id string) string {
	t.Helper()
	var record models.TransactionRecord
	require.NoError(t, gdb.First(&record, "id = ?", id).Error)
	return record.TxHash
}

func TestLowercaseTxHashes_SkipsCaseCollisions(t *testing.T) {
	gdb := openSchemaOnly(t)

	lower := "0x" + strings.Repeat("ab", 32)
	upper := "0x" + strings.Repeat("AB", 32)
	unique := "0x" + strings.Repeat("CD", 32)

	lowerID := insertRecord(t, gdb, lower)
	upperID := insertRecord(t, gdb, upper)
	uniqueID := insertRecord(t, gdb, unique)

	rows, err := lowercaseTxHashes(gdb)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	assert.Equal(t, strings.ToLower(unique), storedHash(t, gdb, uniqueID))
	assert.Equal(t, lower, storedHash(t, gdb, lowerID))
	assert.Equal(t, upper, storedHash(t, gdb, upperID))
}

func TestMigrate_StartsWithCollidingHashes(t *testing.T) {
	gdb := openSchemaOnly(t)

	upper := "0x" + strings.Repeat("EF", 32)
	insertRecord(t, gdb, upper)
	insertRecord(t, gdb, strings.ToLower(upper))

	require.NoError(t, Migrate(gdb))

	var applied int64
	require.NoError(t, gdb.Model(&DataMigrationRecord{}).Where("version = ?", "data_003").Count(&applied).Error)
	assert.Equal(t, int64(1), applied)
}
