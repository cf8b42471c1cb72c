// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"errors"
	"time"

	"txstatus-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound no row matched
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict the row's status no longer matched the expected value at write time
	ErrStatusConflict = errors.New("record status changed concurrently")
	// ErrDuplicateTxHash a record for the hash already exists
	ErrDuplicateTxHash = errors.New("transaction hash already recorded")
)

// TransactionRecordRepository defines the interface for TransactionRecord data access
type TransactionRecordRepository interface {
	Create(ctx context.Context, record *models.TransactionRecord) error
	GetByID(ctx context.Context, id string) (*models.TransactionRecord, error)
	GetByTxHash(ctx context.Context, txHash string) (*models.TransactionRecord, error)

	// UpdateIfStatus writes every column of record only while the stored status equals expected.
	// Returns ErrStatusConflict when another writer moved the row first.
	UpdateIfStatus(ctx context.Context, record *models.TransactionRecord, expected models.TransactionStatus) error

	// FindSuspect pending rows, plus completed rows still carrying placeholders, oldest first
	FindSuspect(ctx context.Context, limit int) ([]*models.TransactionRecord, error)
	CountByStatus(ctx context.Context) (map[models.TransactionStatus]int64, error)
}

// transactionRecordRepository implements TransactionRecordRepository
type transactionRecordRepository struct {
	db *gorm.DB
}

// NewTransactionRecordRepository creates a new TransactionRecordRepository instance
func NewTransactionRecordRepository(db *gorm.DB) TransactionRecordRepository {
	return &transactionRecordRepository{db: db}
}

// Create inserts a record, assigning an id when empty
func (r *transactionRecordRepository) Create(ctx context.Context, record *models.TransactionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = models.TransactionStatusPending
	}
	if record.Metadata.SchemaVersion == 0 {
		record.Metadata.SchemaVersion = models.MetadataSchemaVersion
	}

	err := r.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTxHash
	}
	return err
}

// GetByID retrieves a record by ID
func (r *transactionRecordRepository) GetByID(ctx context.Context, id string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByTxHash retrieves a record by its (lowercased) transaction hash
func (r *transactionRecordRepository) GetByTxHash(ctx context.Context, txHash string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdateIfStatus conditional full-row update keyed on id and expected status
func (r *transactionRecordRepository) UpdateIfStatus(ctx context.Context, record *models.TransactionRecord, expected models.TransactionStatus) error {
	record.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).
		Model(record).
		Where("status = ?", expected).
		Select("*").
		Omit("id", "created_at").
		Updates(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTxHash
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// FindSuspect rows the sweep should look at
func (r *transactionRecordRepository) FindSuspect(ctx context.Context, limit int) ([]*models.TransactionRecord, error) {
	var records []*models.TransactionRecord
	query := r.db.WithContext(ctx).
		Where("status = ?", models.TransactionStatusPending).
		Or("status = ? AND (meta_is_pending = ? OR from_address = ? OR to_address = ?)",
			models.TransactionStatusCompleted, true, models.PendingAddress, models.PendingAddress).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByStatus row count per status
func (r *transactionRecordRepository) CountByStatus(ctx context.Context) (map[models.TransactionStatus]int64, error) {
	var rows []struct {
		Status models.TransactionStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.TransactionRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.TransactionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
