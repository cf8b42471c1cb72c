package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database connection metrics
	// ============================================
	DBConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_open",
		Help: "Number of established database connections",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_idle",
		Help: "Number of idle database connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// NATS connection and publish metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_notifications_total",
			Help: "Completed-transaction notifications by result",
		},
		[]string{"result"},
	)

	// ============================================
	// Ledger reader metrics
	// ============================================
	LedgerLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_ledger_lookups_total",
			Help: "Ledger transaction lookups by network and result (found, not_found, error)",
		},
		[]string{"network", "result"},
	)

	LedgerLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txstatus_ledger_lookup_duration_seconds",
			Help:    "Ledger transaction lookup duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	// ============================================
	// Reconciliation engine metrics
	// ============================================
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_submissions_total",
			Help: "Transaction submissions by network and result (found, placeholder, existing, rejected)",
		},
		[]string{"network", "result"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_status_transitions_total",
			Help: "Record status transitions",
		},
		[]string{"network", "from", "to", "reason"},
	)

	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_poll_attempts_total",
			Help: "Poll attempts by task kind (discovery, confirmation) and network",
		},
		[]string{"kind", "network"},
	)

	ActivePollTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txstatus_active_poll_tasks",
			Help: "Poll tasks currently running",
		},
		[]string{"kind"},
	)

	RecordsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txstatus_records",
			Help: "Persisted transaction records by status",
		},
		[]string{"status"},
	)

	// ============================================
	// Sweep metrics
	// ============================================
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_sweep_runs_total",
			Help: "Sweep runs by mode",
		},
		[]string{"dry_run"},
	)

	SweepRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txstatus_sweep_records_total",
			Help: "Records examined by the sweep, by outcome (fixed, failed, skipped, error)",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "txstatus_sweep_duration_seconds",
		Help:    "Sweep run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	// ============================================
	// HTTP metrics
	// ============================================
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)
