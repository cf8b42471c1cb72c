package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"txstatus-backend/internal/metrics"
	"txstatus-backend/internal/models"
	"txstatus-backend/internal/repository"
	"txstatus-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// Notifier receives completed-transaction events
type Notifier interface {
	NotifyTransactionCompleted(ctx context.Context, event models.TransactionCompletedEvent) error
}

// ReconciliationPolicy polling, confirmation and sweep tunables
type ReconciliationPolicy struct {
	Discovery             PollPolicy
	Confirmation          PollPolicy
	RequiredConfirmations uint64
	NotifyTimeout         time.Duration
	SweepMaxRecords       int
	StaleAfter            time.Duration
}

// DefaultReconciliationPolicy 2s x 60 discovery, 10s x 10 confirmation, 1 confirmation, 2h staleness
func DefaultReconciliationPolicy() ReconciliationPolicy {
	return ReconciliationPolicy{
		Discovery:             PollPolicy{Interval: 2 * time.Second, MaxAttempts: 60},
		Confirmation:          PollPolicy{Interval: 10 * time.Second, MaxAttempts: 10},
		RequiredConfirmations: 1,
		NotifyTimeout:         5 * time.Second,
		SweepMaxRecords:       50,
		StaleAfter:            2 * time.Hour,
	}
}

// TransactionStatusServiceDeps collaborators of TransactionStatusService
type TransactionStatusServiceDeps struct {
	Records  repository.TransactionRecordRepository
	Users    UserLookup
	Ledger   models.LedgerReader
	Registry *utils.NetworkRegistry
	Notifier Notifier
	Runner   *TaskRunner
	Clock    Clock
	Policy   ReconciliationPolicy
	Logger   *logrus.Logger
}

// TransactionStatusService reconciles submitted transaction hashes against the ledger
type TransactionStatusService struct {
	records     repository.TransactionRecordRepository
	users       UserLookup
	ledger      models.LedgerReader
	registry    *utils.NetworkRegistry
	attribution *AddressAttributionResolver
	notifier    Notifier
	runner      *TaskRunner
	clock       Clock
	policy      ReconciliationPolicy
	logger      *logrus.Logger
}

// NewTransactionStatusService creates a new TransactionStatusService instance
func NewTransactionStatusService(deps TransactionStatusServiceDeps) *TransactionStatusService {
	s := &TransactionStatusService{
		records:     deps.Records,
		users:       deps.Users,
		ledger:      deps.Ledger,
		registry:    deps.Registry,
		attribution: NewAddressAttributionResolver(deps.Users),
		notifier:    deps.Notifier,
		runner:      deps.Runner,
		clock:       deps.Clock,
		policy:      deps.Policy,
		logger:      deps.Logger,
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.runner == nil {
		s.runner = NewTaskRunner(s.logger)
	}
	if s.policy.Discovery.MaxAttempts == 0 && s.policy.Confirmation.MaxAttempts == 0 {
		s.policy = DefaultReconciliationPolicy()
	}
	return s
}

// Runner task runner owning the background pollers
func (s *TransactionStatusService) Runner() *TaskRunner {
	return s.runner
}

// SubmitRequest a client-reported transaction hash
type SubmitRequest struct {
	UserID    string
	TxHash    string
	NetworkID int64
	Metadata  map[string]interface{}
}

// SubmitResult outcome of Submit
type SubmitResult struct {
	RecordID         string                   `json:"recordId"`
	ImmediatelyFound bool                     `json:"immediatelyFound"`
	AlreadyTracked   bool                     `json:"alreadyTracked,omitempty"`
	Status           models.TransactionStatus `json:"status"`
}

// pollTask identity a background poller needs; the record itself is re-read every attempt
type pollTask struct {
	RecordID     string
	TxHash       string
	NetworkID    int64
	NetworkName  string
	ActingUserID string
}

func (t pollTask) fields() logrus.Fields {
	return logrus.Fields{
		"record_id":  t.RecordID,
		"tx_hash":    t.TxHash,
		"network_id": t.NetworkID,
	}
}

// errAlreadyResolved the record reached a terminal status before this writer got to it
var errAlreadyResolved = errors.New("record already in terminal status")

// Submit records a transaction hash and starts reconciliation.
// Exactly one record exists per hash; a repeated submission returns the existing record.
func (s *TransactionStatusService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	txHash, err := utils.NormalizeTxHash(req.TxHash)
	if err != nil {
		metrics.Submissions.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}
	networkName, err := s.registry.ResolveNetworkName(req.NetworkID)
	if err != nil {
		metrics.Submissions.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}

	fields := logrus.Fields{"tx_hash": txHash, "network_id": req.NetworkID, "user_id": req.UserID}

	if existing, err := s.records.GetByTxHash(ctx, txHash); err == nil {
		metrics.Submissions.WithLabelValues(networkName, "existing").Inc()
		s.logger.WithFields(fields).WithField("record_id", existing.ID).Info("♻️ Transaction already tracked")
		return existingResult(existing), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup existing record: %w", err)
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		metrics.Submissions.WithLabelValues(networkName, "rejected").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	task := pollTask{TxHash: txHash, NetworkID: req.NetworkID, NetworkName: networkName, ActingUserID: user.ID}

	details, lookupErr := s.ledger.GetTransactionDetails(ctx, networkName, txHash)
	if errors.Is(lookupErr, models.ErrNetworkNotConfigured) {
		metrics.Submissions.WithLabelValues(networkName, "rejected").Inc()
		s.logger.WithFields(fields).Error("❌ Network is registered but has no ledger client")
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotConfigured, networkName)
	}
	if lookupErr == nil {
		if user.PrimaryWalletAddress == "" {
			metrics.Submissions.WithLabelValues(networkName, "rejected").Inc()
			return nil, fmt.Errorf("%w: %s", ErrMissingWalletAddress, user.ID)
		}
		return s.submitFound(ctx, task, user, details, req.Metadata)
	}

	if errors.Is(lookupErr, models.ErrTransactionNotFound) {
		s.logger.WithFields(fields).Info("🔍 Transaction not yet visible on ledger, starting discovery")
	} else {
		s.logger.WithFields(fields).WithError(lookupErr).Warn("⚠️ Ledger lookup failed at intake, starting discovery")
	}

	record := models.NewPlaceholderRecord(txHash, req.NetworkID, networkName, user.ID)
	record.Metadata.Extensions = copyExtensions(req.Metadata)

	existing, err := s.createOnce(ctx, record)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.Submissions.WithLabelValues(networkName, "existing").Inc()
		return existingResult(existing), nil
	}

	metrics.Submissions.WithLabelValues(networkName, "placeholder").Inc()
	task.RecordID = record.ID
	s.runner.Go("discovery:"+txHash, func(ctx context.Context) {
		s.runDiscovery(ctx, task, lookupErr)
	})

	return &SubmitResult{RecordID: record.ID, ImmediatelyFound: false, Status: record.Status}, nil
}

func (s *TransactionStatusService) submitFound(ctx context.Context, task pollTask, user *models.User, details *models.TransactionDetails, extensions map[string]interface{}) (*SubmitResult, error) {
	eff := resolveEffectiveTransfer(details)
	attr, err := s.attribution.Classify(ctx, eff.From, eff.To, user.ID, user.PrimaryWalletAddress)
	if err != nil {
		return nil, err
	}

	record := &models.TransactionRecord{
		TxHash: task.TxHash,
		Status: models.TransactionStatusPending,
		Metadata: models.TransactionMetadata{
			SubmittedBy: user.ID,
			Extensions:  copyExtensions(extensions),
		},
	}
	if err := applyLedgerDetails(record, details, eff, attr, task.NetworkID, task.NetworkName); err != nil {
		return nil, err
	}

	existing, err := s.createOnce(ctx, record)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.Submissions.WithLabelValues(task.NetworkName, "existing").Inc()
		return existingResult(existing), nil
	}

	metrics.Submissions.WithLabelValues(task.NetworkName, "found").Inc()
	task.RecordID = record.ID
	s.logger.WithFields(task.fields()).WithFields(logrus.Fields{
		"ledger_status": details.Status,
		"is_erc20":      eff.IsERC20,
	}).Info("✅ Transaction found at intake, starting confirmation polling")

	s.runner.Go("confirmation:"+task.TxHash, func(ctx context.Context) {
		s.runConfirmation(ctx, task)
	})

	return &SubmitResult{RecordID: record.ID, ImmediatelyFound: true, Status: record.Status}, nil
}

// createOnce inserts record; a concurrent insert of the same hash yields the winner instead
func (s *TransactionStatusService) createOnce(ctx context.Context, record *models.TransactionRecord) (*models.TransactionRecord, error) {
	err := s.records.Create(ctx, record)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, repository.ErrDuplicateTxHash) {
		return nil, fmt.Errorf("create transaction record: %w", err)
	}
	existing, err := s.records.GetByTxHash(ctx, record.TxHash)
	if err != nil {
		return nil, fmt.Errorf("load concurrently created record: %w", err)
	}
	return existing, nil
}

func existingResult(record *models.TransactionRecord) *SubmitResult {
	return &SubmitResult{
		RecordID:         record.ID,
		ImmediatelyFound: !record.Metadata.IsPending,
		AlreadyTracked:   true,
		Status:           record.Status,
	}
}

func copyExtensions(in map[string]interface{}) map[string]interface{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// runDiscovery polls until the ledger returns the transaction, then hands over to confirmation.
// The intake lookup is attempt 1; intakeErr is its result.
func (s *TransactionStatusService) runDiscovery(ctx context.Context, task pollTask, intakeErr error) {
	metrics.ActivePollTasks.WithLabelValues("discovery").Inc()
	defer metrics.ActivePollTasks.WithLabelValues("discovery").Dec()

	log := s.logger.WithFields(task.fields())
	policy := s.policy.Discovery
	lastErr := intakeErr

	for attempt := 2; attempt <= policy.MaxAttempts; attempt++ {
		if err := s.clock.Sleep(ctx, policy.Interval); err != nil {
			log.WithError(err).Info("🛑 Discovery polling stopped")
			return
		}
		metrics.PollAttempts.WithLabelValues("discovery", task.NetworkName).Inc()

		details, err := s.ledger.GetTransactionDetails(ctx, task.NetworkName, task.TxHash)
		if err != nil {
			lastErr = err
			if errors.Is(err, models.ErrTransactionNotFound) {
				log.WithField("attempt", attempt).Debug("Transaction not found yet")
			} else {
				log.WithField("attempt", attempt).WithError(err).Warn("⚠️ Ledger lookup failed during discovery")
			}
			continue
		}

		err = s.recordDiscovered(ctx, task, details, attempt)
		if errors.Is(err, errAlreadyResolved) || errors.Is(err, ErrRecordNotPending) {
			log.Info("Record resolved elsewhere, discovery finished")
			return
		}
		if err != nil {
			log.WithField("attempt", attempt).WithError(err).Error("❌ Failed to record discovered transaction")
			continue
		}

		log.WithField("attempt", attempt).Info("✅ Transaction discovered, starting confirmation polling")
		s.runConfirmation(ctx, task)
		return
	}

	if ctx.Err() != nil {
		return
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	kind := models.FailureKindDiscoveryExhausted
	reason := fmt.Sprintf("not found after %d discovery attempts", attempts)
	if lastErr != nil && !errors.Is(lastErr, models.ErrTransactionNotFound) {
		kind = models.FailureKindLedgerUnavailable
		reason = fmt.Sprintf("ledger unavailable after %d discovery attempts: %v", attempts, lastErr)
	}
	s.failRecord(ctx, task, kind, reason, "discovery", func(r *models.TransactionRecord) {
		r.Metadata.Diagnostics.DiscoveryAttempts = attempts
	})
}

func (s *TransactionStatusService) recordDiscovered(ctx context.Context, task pollTask, details *models.TransactionDetails, attempt int) error {
	record, err := s.records.GetByID(ctx, task.RecordID)
	if err != nil {
		return err
	}
	if record.Status.IsTerminal() {
		return errAlreadyResolved
	}

	eff := resolveEffectiveTransfer(details)
	attr, err := s.attribution.Classify(ctx, eff.From, eff.To, task.ActingUserID, s.actingWallet(ctx, task.ActingUserID))
	if err != nil {
		return err
	}
	if err := applyLedgerDetails(record, details, eff, attr, task.NetworkID, task.NetworkName); err != nil {
		return err
	}
	record.Metadata.Diagnostics.DiscoveryAttempts = attempt
	return s.records.UpdateIfStatus(ctx, record, models.TransactionStatusPending)
}

// runConfirmation polls until the required confirmations are reached, the transaction reverts,
// or the attempt budget runs out
func (s *TransactionStatusService) runConfirmation(ctx context.Context, task pollTask) {
	metrics.ActivePollTasks.WithLabelValues("confirmation").Inc()
	defer metrics.ActivePollTasks.WithLabelValues("confirmation").Dec()

	log := s.logger.WithFields(task.fields())
	policy := s.policy.Confirmation

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.clock.Sleep(ctx, policy.Interval); err != nil {
				log.WithError(err).Info("🛑 Confirmation polling stopped")
				return
			}
		}
		metrics.PollAttempts.WithLabelValues("confirmation", task.NetworkName).Inc()

		details, err := s.ledger.GetTransactionDetails(ctx, task.NetworkName, task.TxHash)
		lastErr = err
		if err != nil {
			log.WithField("attempt", attempt).WithError(err).Warn("⚠️ Ledger lookup failed during confirmation")
			continue
		}

		done, err := s.applyConfirmation(ctx, task, details, attempt)
		if errors.Is(err, errAlreadyResolved) || errors.Is(err, ErrRecordNotPending) {
			log.Info("Record resolved elsewhere, confirmation finished")
			return
		}
		if err != nil {
			log.WithField("attempt", attempt).WithError(err).Error("❌ Failed to update record during confirmation")
			continue
		}
		if done {
			return
		}
		log.WithFields(logrus.Fields{
			"attempt":       attempt,
			"confirmations": details.Confirmations,
			"required":      s.policy.RequiredConfirmations,
		}).Debug("Waiting for confirmations")
	}

	if ctx.Err() != nil {
		return
	}
	kind := models.FailureKindConfirmationExhausted
	reason := fmt.Sprintf("found but not confirmed after %d confirmation attempts", policy.MaxAttempts)
	if lastErr != nil {
		kind = models.FailureKindLedgerUnavailable
		reason = fmt.Sprintf("ledger unavailable after %d confirmation attempts: %v", policy.MaxAttempts, lastErr)
	}
	s.failRecord(ctx, task, kind, reason, "confirmation", func(r *models.TransactionRecord) {
		r.Metadata.Diagnostics.ConfirmationAttempts = policy.MaxAttempts
	})
}

func (s *TransactionStatusService) applyConfirmation(ctx context.Context, task pollTask, details *models.TransactionDetails, attempt int) (bool, error) {
	record, err := s.records.GetByID(ctx, task.RecordID)
	if err != nil {
		return false, err
	}
	if record.Status.IsTerminal() {
		return false, errAlreadyResolved
	}

	if details.Status == models.LedgerTxFailed {
		record.Metadata.Blockchain.LedgerStatus = string(details.Status)
		record.Metadata.Diagnostics.ConfirmationAttempts = attempt
		err := s.transition(ctx, record, models.TransactionStatusFailed, models.FailureKindReverted, "reverted on-chain", "confirmation")
		return err == nil, err
	}

	eff := resolveEffectiveTransfer(details)
	attr, err := s.attribution.Classify(ctx, eff.From, eff.To, task.ActingUserID, s.actingWallet(ctx, task.ActingUserID))
	if err != nil {
		return false, err
	}
	if err := applyLedgerDetails(record, details, eff, attr, task.NetworkID, task.NetworkName); err != nil {
		return false, err
	}
	record.Metadata.Diagnostics.ConfirmationAttempts = attempt

	if details.Status == models.LedgerTxConfirmed && details.Confirmations >= s.policy.RequiredConfirmations {
		if err := s.transition(ctx, record, models.TransactionStatusCompleted, "", "", "confirmation"); err != nil {
			return false, err
		}
		s.notifyCompleted(ctx, record)
		return true, nil
	}
	return false, s.records.UpdateIfStatus(ctx, record, models.TransactionStatusPending)
}

// transition moves a pending record to a terminal status with a conditional write
func (s *TransactionStatusService) transition(ctx context.Context, record *models.TransactionRecord, to models.TransactionStatus, failureKind, reason, source string) error {
	from := record.Status
	record.Status = to
	if to == models.TransactionStatusFailed {
		record.Metadata.Diagnostics.FailureKind = failureKind
		record.Metadata.Diagnostics.Error = reason
	}
	if err := s.records.UpdateIfStatus(ctx, record, from); err != nil {
		record.Status = from
		return err
	}

	label := failureKind
	if label == "" {
		label = source
	}
	metrics.StatusTransitions.WithLabelValues(record.Metadata.NetworkName, string(from), string(to), label).Inc()

	entry := s.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"tx_hash":   record.TxHash,
		"from":      from,
		"to":        to,
		"source":    source,
	})
	if to == models.TransactionStatusFailed {
		entry.WithField("reason", reason).Warn("❌ Transaction marked failed")
	} else {
		entry.Info("✅ Transaction marked completed")
	}
	return nil
}

func (s *TransactionStatusService) failRecord(ctx context.Context, task pollTask, kind, reason, source string, mutate func(*models.TransactionRecord)) {
	log := s.logger.WithFields(task.fields())

	record, err := s.records.GetByID(ctx, task.RecordID)
	if err != nil {
		log.WithError(err).Error("❌ Failed to load record for failure transition")
		return
	}
	if record.Status.IsTerminal() {
		return
	}
	if mutate != nil {
		mutate(record)
	}
	if err := s.transition(ctx, record, models.TransactionStatusFailed, kind, reason, source); err != nil {
		if errors.Is(err, ErrRecordNotPending) {
			log.Info("Record resolved concurrently, failure transition skipped")
			return
		}
		log.WithError(err).Error("❌ Failed to mark record failed")
	}
}

// notifyCompleted fires the Notifier when both parties are known. Errors are logged only;
// the completed status is already persisted.
func (s *TransactionStatusService) notifyCompleted(ctx context.Context, record *models.TransactionRecord) {
	if s.notifier == nil || record.FromUserID == nil || record.ToUserID == nil {
		return
	}

	var networkID int64
	if record.Metadata.NetworkID != nil {
		networkID = *record.Metadata.NetworkID
	}
	event := models.TransactionCompletedEvent{
		RecordID:     record.ID,
		TxHash:       record.TxHash,
		NetworkID:    networkID,
		NetworkName:  record.Metadata.NetworkName,
		FromUserID:   *record.FromUserID,
		ToUserID:     *record.ToUserID,
		FromAddress:  record.FromAddress,
		ToAddress:    record.ToAddress,
		Amount:       record.Amount,
		TokenAddress: record.TokenAddress,
		CompletedAt:  s.clock.Now().UTC(),
	}

	nctx := ctx
	if s.policy.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(ctx, s.policy.NotifyTimeout)
		defer cancel()
	}
	if err := s.notifier.NotifyTransactionCompleted(nctx, event); err != nil {
		s.logger.WithFields(logrus.Fields{
			"record_id": record.ID,
			"tx_hash":   record.TxHash,
		}).WithError(err).Error("❌ Completion notification failed")
	}
}

// actingWallet primary wallet of userID, empty when unknown
func (s *TransactionStatusService) actingWallet(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Warn("⚠️ Acting user lookup failed, attributing as third party")
		return ""
	}
	return user.PrimaryWalletAddress
}

// StatusCheckResult single-shot ledger view of a hash
type StatusCheckResult struct {
	TxHash        string                    `json:"txHash"`
	NetworkID     int64                     `json:"networkId"`
	NetworkName   string                    `json:"networkName"`
	IsConfirmed   bool                      `json:"isConfirmed"`
	Status        string                    `json:"status"` // ledger status, or not_found / unknown
	Confirmations uint64                    `json:"confirmations"`
	BlockNumber   *uint64                   `json:"blockNumber,omitempty"`
	Error         string                    `json:"error,omitempty"`
	RecordStatus  *models.TransactionStatus `json:"recordStatus,omitempty"`
}

// Status values reported by CheckStatus in addition to the ledger statuses
const (
	CheckStatusNotFound = "not_found"
	CheckStatusUnknown  = "unknown"
)

// CheckStatus queries the ledger once. Nothing is persisted.
// Input and configuration errors are returned; lookup errors are reported in the result.
func (s *TransactionStatusService) CheckStatus(ctx context.Context, txHash string, networkID int64) (*StatusCheckResult, error) {
	txHash, err := utils.NormalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	networkName, err := s.registry.ResolveNetworkName(networkID)
	if err != nil {
		return nil, err
	}

	result := &StatusCheckResult{TxHash: txHash, NetworkID: networkID, NetworkName: networkName}
	if record, err := s.records.GetByTxHash(ctx, txHash); err == nil {
		status := record.Status
		result.RecordStatus = &status
	}

	details, err := s.ledger.GetTransactionDetails(ctx, networkName, txHash)
	switch {
	case errors.Is(err, models.ErrNetworkNotConfigured):
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotConfigured, networkName)
	case errors.Is(err, models.ErrTransactionNotFound):
		result.Status = CheckStatusNotFound
		return result, nil
	case err != nil:
		result.Status = CheckStatusUnknown
		result.Error = err.Error()
		return result, nil
	}

	result.Status = string(details.Status)
	result.Confirmations = details.Confirmations
	result.BlockNumber = details.BlockNumber
	result.IsConfirmed = details.Status == models.LedgerTxConfirmed && details.Confirmations >= s.policy.RequiredConfirmations
	return result, nil
}

// GetRecord persisted record for a hash
func (s *TransactionStatusService) GetRecord(ctx context.Context, txHash string) (*models.TransactionRecord, error) {
	txHash, err := utils.NormalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	return s.records.GetByTxHash(ctx, txHash)
}

// Networks supported networks
func (s *TransactionStatusService) Networks() []utils.NetworkInfo {
	return s.registry.All()
}
