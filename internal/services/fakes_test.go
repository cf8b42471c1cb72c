package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"txstatus-backend/internal/models"
	"txstatus-backend/internal/repository"
	"txstatus-backend/internal/testutil"
	"txstatus-backend/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	aliceWallet    = "0x1111111111111111111111111111111111111111"
	bobWallet      = "0x2222222222222222222222222222222222222222"
	strangerWallet = "0x3333333333333333333333333333333333333333"
	tokenContract  = "0xcccccccccccccccccccccccccccccccccccccccc"

	sepoliaID = int64(11155111)
)

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

type ledgerResponse struct {
	details *models.TransactionDetails
	err     error
}

func notFound() ledgerResponse {
	return ledgerResponse{err: models.ErrTransactionNotFound}
}

func found(d *models.TransactionDetails) ledgerResponse {
	return ledgerResponse{details: d}
}

// fakeLedger replays scripted responses per hash; the last response repeats
type fakeLedger struct {
	mu      sync.Mutex
	scripts map[string][]ledgerResponse
	calls   map[string]int
	// onLookup runs before each lookup is answered
	onLookup func(hash string)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{scripts: map[string][]ledgerResponse{}, calls: map[string]int{}}
}

func (f *fakeLedger) script(hash string, responses ...ledgerResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[hash] = responses
}

func (f *fakeLedger) GetTransactionDetails(ctx context.Context, networkName, hash string) (*models.TransactionDetails, error) {
	if f.onLookup != nil {
		f.onLookup(hash)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[hash]++

	queue := f.scripts[hash]
	if len(queue) == 0 {
		return nil, models.ErrTransactionNotFound
	}
	next := queue[0]
	if len(queue) > 1 {
		f.scripts[hash] = queue[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	cp := *next.details
	return &cp, nil
}

func (f *fakeLedger) callCount(hash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[hash]
}

func (f *fakeLedger) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.TransactionCompletedEvent
	err    error
}

func (f *fakeNotifier) NotifyTransactionCompleted(ctx context.Context, event models.TransactionCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeUsers in-memory UserLookup
type fakeUsers struct {
	byID map[string]*models.User
	err  error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByWalletAddress(ctx context.Context, address string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if utils.SameAddress(u.PrimaryWalletAddress, address) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

var errBoom = errors.New("boom")

func nativeTx(hash, from, to, value string, status models.LedgerTxStatus, confirmations uint64) *models.TransactionDetails {
	d := &models.TransactionDetails{
		Hash:          hash,
		From:          from,
		To:            to,
		Value:         value,
		Gas:           21000,
		GasPrice:      "1000000000",
		Nonce:         3,
		Status:        status,
		Confirmations: confirmations,
	}
	if status != models.LedgerTxPending {
		block := uint64(500)
		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		d.BlockNumber = &block
		d.Timestamp = &ts
	}
	return d
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testPolicy() ReconciliationPolicy {
	return ReconciliationPolicy{
		Discovery:             PollPolicy{Interval: 2 * time.Second, MaxAttempts: 5},
		Confirmation:          PollPolicy{Interval: 10 * time.Second, MaxAttempts: 3},
		RequiredConfirmations: 1,
		NotifyTimeout:         time.Second,
		SweepMaxRecords:       50,
		StaleAfter:            2 * time.Hour,
	}
}

type harness struct {
	svc      *TransactionStatusService
	db       *gorm.DB
	records  repository.TransactionRecordRepository
	users    repository.UserRepository
	ledger   *fakeLedger
	notifier *fakeNotifier
	clock    *testutil.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb := testutil.NewTestDB(t)
	h := &harness{
		db:       gdb,
		records:  repository.NewTransactionRecordRepository(gdb),
		users:    repository.NewUserRepository(gdb),
		ledger:   newFakeLedger(),
		notifier: &fakeNotifier{},
		clock:    testutil.NewFakeClock(time.Now()),
	}

	ctx := context.Background()
	require.NoError(t, h.users.Create(ctx, &models.User{ID: "alice", PrimaryWalletAddress: aliceWallet}))
	require.NoError(t, h.users.Create(ctx, &models.User{ID: "bob", PrimaryWalletAddress: bobWallet}))
	require.NoError(t, h.users.Create(ctx, &models.User{ID: "nowallet"}))

	registry, err := utils.NewNetworkRegistry(utils.DefaultNetworks())
	require.NoError(t, err)

	logger := quietLogger()
	h.svc = NewTransactionStatusService(TransactionStatusServiceDeps{
		Records:  h.records,
		Users:    h.users,
		Ledger:   h.ledger,
		Registry: registry,
		Notifier: h.notifier,
		Runner:   NewTaskRunner(logger),
		Clock:    h.clock,
		Policy:   testPolicy(),
		Logger:   logger,
	})
	return h
}

func (h *harness) load(t *testing.T, hash string) *models.TransactionRecord {
	t.Helper()
	record, err := h.records.GetByTxHash(context.Background(), hash)
	require.NoError(t, err)
	return record
}

// seed inserts a record directly, bypassing Submit and its pollers
func (h *harness) seed(t *testing.T, record *models.TransactionRecord) *models.TransactionRecord {
	t.Helper()
	require.NoError(t, h.records.Create(context.Background(), record))
	return record
}
