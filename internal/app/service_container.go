package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"txstatus-backend/internal/clients"
	"txstatus-backend/internal/config"
	"txstatus-backend/internal/db"
	"txstatus-backend/internal/repository"
	"txstatus-backend/internal/router"
	"txstatus-backend/internal/services"
	"txstatus-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires every long-lived component from one Config
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database
	DB *gorm.DB

	// Repositories
	Records repository.TransactionRecordRepository
	Users   repository.UserRepository

	// Ledger & Notification
	Registry *utils.NetworkRegistry
	Ledger   *clients.EthLedgerReader
	Notifier services.Notifier

	// Core Services
	StatusService *services.TransactionStatusService

	// Background Services
	Scheduler         *services.SweepScheduler
	MonitoringService *services.MonitoringService

	closers []func()
}

// NewLogger logrus logger configured from the log section
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// NetworkRegistryFromConfig registry built from blockchain.networks
func NetworkRegistryFromConfig(cfg config.BlockchainConfig) (*utils.NetworkRegistry, error) {
	keys := make([]string, 0, len(cfg.Networks))
	for key := range cfg.Networks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	networks := make([]utils.NetworkInfo, 0, len(keys))
	for _, key := range keys {
		n := cfg.Networks[key]
		name := n.Name
		if name == "" {
			name = key
		}
		networks = append(networks, utils.NetworkInfo{
			NetworkID:   n.ChainID,
			Name:        name,
			DisplayName: n.DisplayName,
			Symbol:      n.Symbol,
			IsTestnet:   n.IsTestnet,
			Aliases:     n.Aliases,
		})
	}
	return utils.NewNetworkRegistry(networks)
}

// PolicyFromConfig reconciliation and sweep tunables
func PolicyFromConfig(cfg *config.Config) services.ReconciliationPolicy {
	r := cfg.Reconciliation
	return services.ReconciliationPolicy{
		Discovery:             services.PollPolicy{Interval: r.DiscoveryInterval, MaxAttempts: r.DiscoveryMaxAttempts},
		Confirmation:          services.PollPolicy{Interval: r.ConfirmationInterval, MaxAttempts: r.ConfirmationMaxAttempts},
		RequiredConfirmations: r.RequiredConfirmations,
		NotifyTimeout:         r.NotifyTimeout,
		SweepMaxRecords:       cfg.Sweep.MaxRecords,
		StaleAfter:            cfg.Sweep.StaleAfter,
	}
}

// InitializeContainer opens the database, dials the ledger networks and connects NATS.
// NATS is optional: a failed connection falls back to log-only notifications.
func InitializeContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing Service Container...")

	c := &ServiceContainer{Config: cfg, Logger: logger}

	gdb, err := db.InitDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = gdb
	c.closers = append(c.closers, func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	registry, err := NetworkRegistryFromConfig(cfg.Blockchain)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build network registry: %w", err)
	}
	c.Registry = registry

	ledger, err := clients.NewEthLedgerReader(ctx, cfg.Blockchain, registry, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize ledger reader: %w", err)
	}
	c.Ledger = ledger
	c.closers = append(c.closers, ledger.Close)

	c.Notifier = c.initNotifier()

	c.initServices()

	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initNotifier() services.Notifier {
	if !c.Config.NATS.Enabled {
		c.Logger.Info("📭 NATS disabled, completion events are logged only")
		return clients.NewLogNotifier(c.Logger)
	}

	notifier, err := clients.NewNATSNotifier(c.Config.NATS, c.Logger)
	if err != nil {
		c.Logger.WithError(err).Warn("⚠️ NATS connection failed, completion events are logged only")
		return clients.NewLogNotifier(c.Logger)
	}
	c.closers = append(c.closers, notifier.Close)
	return notifier
}

// initServices builds repositories and services on top of the connected clients
func (c *ServiceContainer) initServices() {
	c.Records = repository.NewTransactionRecordRepository(c.DB)
	c.Users = repository.NewUserRepository(c.DB)

	c.StatusService = services.NewTransactionStatusService(services.TransactionStatusServiceDeps{
		Records:  c.Records,
		Users:    c.Users,
		Ledger:   c.Ledger,
		Registry: c.Registry,
		Notifier: c.Notifier,
		Policy:   PolicyFromConfig(c.Config),
		Logger:   c.Logger,
	})

	c.Scheduler = services.NewSweepScheduler(c.StatusService, c.Config.Sweep.Interval, c.Config.Sweep.MaxRecords, c.Logger)
	c.MonitoringService = services.NewMonitoringService(c.DB, c.Records, c.Logger)
}

// Router gin engine serving the HTTP surface
func (c *ServiceContainer) Router() *gin.Engine {
	deps := router.Deps{
		Transactions: c.StatusService,
		Sweeper:      c.StatusService,
		Admin:        c.Config.Admin,
		CORS:         c.Config.CORS,
		Logger:       c.Logger,
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		deps.DB = sqlDB
	}
	return router.SetupRouter(deps)
}

// Close releases connections in reverse order of acquisition
func (c *ServiceContainer) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
