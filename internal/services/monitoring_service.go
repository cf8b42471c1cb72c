package services

import (
	"context"
	"time"

	"txstatus-backend/internal/metrics"
	"txstatus-backend/internal/models"
	"txstatus-backend/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MonitoringService periodically refreshes database and record-count gauges
type MonitoringService struct {
	db       *gorm.DB
	records  repository.TransactionRecordRepository
	interval time.Duration
	logger   *logrus.Logger
}

// NewMonitoringService creates the monitor
func NewMonitoringService(db *gorm.DB, records repository.TransactionRecordRepository, logger *logrus.Logger) *MonitoringService {
	return &MonitoringService{
		db:       db,
		records:  records,
		interval: 10 * time.Second,
		logger:   logger,
	}
}

// Run blocks until ctx is done
func (m *MonitoringService) Run(ctx context.Context) error {
	m.logger.Info("🚀 Starting monitoring service...")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("🛑 Monitoring service stopped")
			return nil
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh updates every gauge once
func (m *MonitoringService) Refresh(ctx context.Context) {
	m.updateDatabaseMetrics(ctx)
	m.updateRecordMetrics(ctx)
}

func (m *MonitoringService) updateDatabaseMetrics(ctx context.Context) {
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionOpen.Set(float64(stats.OpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		m.logger.WithError(err).Warn("⚠️ Database ping failed")
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}

func (m *MonitoringService) updateRecordMetrics(ctx context.Context) {
	counts, err := m.records.CountByStatus(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("⚠️ Record count query failed")
		return
	}
	for _, status := range []models.TransactionStatus{
		models.TransactionStatusPending,
		models.TransactionStatusCompleted,
		models.TransactionStatusFailed,
	} {
		metrics.RecordsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
