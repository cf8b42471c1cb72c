package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"txstatus-backend/internal/models"

	"gorm.io/gorm"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*gorm.DB) (int64, error)
}

// DataMigrationRecord applied data migration bookkeeping
type DataMigrationRecord struct {
	Version   string    `gorm:"primaryKey;size:32"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name
func (DataMigrationRecord) TableName() string {
	return "data_migrations"
}

// GetDataMigrations return all data migrations
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Backfill metadata schema version on legacy records",
			Up:          backfillMetadataSchemaVersion,
		},
		{
			Version:     "data_002",
			Description: "Default empty token addresses to the native token",
			Up:          backfillNativeTokenAddress,
		},
		{
			Version:     "data_003",
			Description: "Lowercase stored transaction hashes",
			Up:          lowercaseTxHashes,
		},
	}
}

// RunDataMigrations applies every migration not yet recorded in data_migrations, in order.
func RunDataMigrations(gdb *gorm.DB) error {
	for _, m := range GetDataMigrations() {
		var count int64
		if err := gdb.Model(&DataMigrationRecord{}).Where("version = ?", m.Version).Count(&count).Error; err != nil {
			return fmt.Errorf("check data migration %s: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		err := gdb.Transaction(func(tx *gorm.DB) error {
			rows, err := m.Up(tx)
			if err != nil {
				return err
			}
			log.Printf("🔄 Data migration %s (%s): %d rows", m.Version, m.Description, rows)
			return tx.Create(&DataMigrationRecord{Version: m.Version, AppliedAt: time.Now()}).Error
		})
		if err != nil {
			return fmt.Errorf("data migration %s failed: %w", m.Version, err)
		}
	}
	return nil
}

func backfillMetadataSchemaVersion(tx *gorm.DB) (int64, error) {
	result := tx.Model(&models.TransactionRecord{}).
		Where("meta_schema_version IS NULL OR meta_schema_version = 0").
		Update("meta_schema_version", models.MetadataSchemaVersion)
	return result.RowsAffected, result.Error
}

func backfillNativeTokenAddress(tx *gorm.DB) (int64, error) {
	result := tx.Model(&models.TransactionRecord{}).
		Where("token_address IS NULL OR token_address = ''").
		Update("token_address", models.NativeTokenAddress)
	return result.RowsAffected, result.Error
}

// lowercaseTxHashes rows whose hashes differ only in case are left untouched and logged;
// they need a manual merge before their hashes can be normalized.
func lowercaseTxHashes(tx *gorm.DB) (int64, error) {
	var collisions []string
	if err := tx.Raw(`SELECT LOWER(tx_hash) FROM transaction_records
		WHERE tx_hash <> '' GROUP BY LOWER(tx_hash) HAVING COUNT(*) > 1`).
		Scan(&collisions).Error; err != nil {
		return 0, fmt.Errorf("find colliding tx hashes: %w", err)
	}

	query := tx.Model(&models.TransactionRecord{}).Where("tx_hash <> LOWER(tx_hash)")
	if len(collisions) > 0 {
		log.Printf("⚠️ %d tx hashes differ only in case, left unchanged: %s", len(collisions), strings.Join(collisions, ", "))
		query = query.Where("LOWER(tx_hash) NOT IN ?", collisions)
	}
	result := query.Update("tx_hash", gorm.Expr("LOWER(tx_hash)"))
	return result.RowsAffected, result.Error
}
