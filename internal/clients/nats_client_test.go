package clients

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"txstatus-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSNotifier_PublishesJSONToNetworkSubject(t *testing.T) {
	pub := &recordingPublisher{}
	n := &NATSNotifier{publisher: pub, subjectPrefix: "txstatus", logger: quietLogger()}

	event := models.TransactionCompletedEvent{
		RecordID:    "rec-1",
		TxHash:      "0xabc",
		NetworkID:   11155111,
		FromUserID:  "u-1",
		ToUserID:    "u-2",
		Amount:      "1000",
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, n.NotifyTransactionCompleted(context.Background(), event))

	assert.Equal(t, "txstatus.transaction.completed.11155111", pub.subject)
	var decoded models.TransactionCompletedEvent
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestNATSNotifier_PublishErrorIsReturned(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no responders")}
	n := &NATSNotifier{publisher: pub, subjectPrefix: "txstatus", logger: quietLogger()}

	err := n.NotifyTransactionCompleted(context.Background(), models.TransactionCompletedEvent{NetworkID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "txstatus.transaction.completed.1")
}

func TestNATSNotifier_CancelledContext(t *testing.T) {
	pub := &recordingPublisher{}
	n := &NATSNotifier{publisher: pub, subjectPrefix: "txstatus", logger: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.NotifyTransactionCompleted(ctx, models.TransactionCompletedEvent{}), context.Canceled)
	assert.Empty(t, pub.subject)
}
