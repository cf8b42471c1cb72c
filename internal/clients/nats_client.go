package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"txstatus-backend/internal/config"
	"txstatus-backend/internal/metrics"
	"txstatus-backend/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// natsPublisher subset of nats.Conn / JetStreamContext used for publishing
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

type jetStreamPublisher struct {
	js nats.JetStreamContext
}

func (p jetStreamPublisher) Publish(subject string, data []byte) error {
	_, err := p.js.Publish(subject, data)
	return err
}

// NATSNotifier publishes completed-transaction events to NATS
type NATSNotifier struct {
	conn          *nats.Conn
	publisher     natsPublisher
	subjectPrefix string
	logger        *logrus.Logger
}

// NewNATSNotifier connects to NATS; JetStream is used when enabled and reachable, core NATS otherwise.
func NewNATSNotifier(cfg config.NATSConfig, logger *logrus.Logger) (*NATSNotifier, error) {
	connectTimeout := time.Duration(cfg.Timeout) * time.Second
	logger.WithFields(logrus.Fields{"url": cfg.URL, "timeout": connectTimeout}).Info("🔌 Connecting to NATS")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("txstatus-backend"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait)*time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS connection lost")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection restored")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS failed: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	n := &NATSNotifier{
		conn:          conn,
		publisher:     conn,
		subjectPrefix: cfg.SubjectPrefix,
		logger:        logger,
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			logger.WithError(err).Warn("⚠️ JetStream unavailable, publishing with core NATS")
		} else {
			n.publisher = jetStreamPublisher{js: js}
		}
	}

	logger.WithField("subject_prefix", cfg.SubjectPrefix).Info("✅ NATS notifier ready")
	return n, nil
}

// Subject subject for a completed event on networkID
func (n *NATSNotifier) Subject(networkID int64) string {
	return fmt.Sprintf("%s.transaction.completed.%d", n.subjectPrefix, networkID)
}

// NotifyTransactionCompleted publishes the event as JSON
func (n *NATSNotifier) NotifyTransactionCompleted(ctx context.Context, event models.TransactionCompletedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal completed event: %w", err)
	}

	subject := n.Subject(event.NetworkID)
	if err := n.publisher.Publish(subject, data); err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s failed: %w", subject, err)
	}
	metrics.NotificationsPublished.WithLabelValues("published").Inc()

	n.logger.WithFields(logrus.Fields{
		"subject":   subject,
		"tx_hash":   event.TxHash,
		"record_id": event.RecordID,
	}).Debug("📣 Published transaction completed event")
	return nil
}

// Close connection
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// LogNotifier stands in when NATS is disabled; events are only logged
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a notifier that logs events
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyTransactionCompleted logs the event
func (n *LogNotifier) NotifyTransactionCompleted(ctx context.Context, event models.TransactionCompletedEvent) error {
	n.logger.WithFields(logrus.Fields{
		"tx_hash":      event.TxHash,
		"record_id":    event.RecordID,
		"network_id":   event.NetworkID,
		"from_user_id": event.FromUserID,
		"to_user_id":   event.ToUserID,
	}).Info("📣 Transaction completed (NATS disabled)")
	metrics.NotificationsPublished.WithLabelValues("logged").Inc()
	return nil
}
