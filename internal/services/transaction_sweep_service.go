package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"txstatus-backend/internal/metrics"
	"txstatus-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// SweepOptions sweep invocation parameters
type SweepOptions struct {
	DryRun     bool `json:"dryRun"`
	MaxRecords int  `json:"maxRecords"`
}

// SweepOutcome per-record sweep result
type SweepOutcome string

const (
	SweepOutcomeFixed   SweepOutcome = "fixed"
	SweepOutcomeFailed  SweepOutcome = "failed"
	SweepOutcomeSkipped SweepOutcome = "skipped"
	SweepOutcomeError   SweepOutcome = "error"
)

const unknownNetwork = "unknown"

// SweepRecordResult what the sweep did with one record
type SweepRecordResult struct {
	RecordID  string       `json:"recordId"`
	TxHash    string       `json:"txHash"`
	Network   string       `json:"network"`
	NetworkID int64        `json:"networkId,omitempty"`
	Outcome   SweepOutcome `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	AgeHours  float64      `json:"ageHours"`
}

// NetworkSweepStats per-network totals
type NetworkSweepStats struct {
	Scanned int `json:"scanned"`
	Fixed   int `json:"fixed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SweepReport aggregate result of one sweep run
type SweepReport struct {
	DryRun     bool                          `json:"dryRun"`
	MaxRecords int                           `json:"maxRecords"`
	StartedAt  time.Time                     `json:"startedAt"`
	FinishedAt time.Time                     `json:"finishedAt"`
	Duration   string                        `json:"duration"`
	Scanned    int                           `json:"scanned"`
	Fixed      int                           `json:"fixed"`
	Failed     int                           `json:"failed"`
	Skipped    int                           `json:"skipped"`
	Errors     int                           `json:"errors"`
	ByNetwork  map[string]*NetworkSweepStats `json:"byNetwork"`
	Records    []SweepRecordResult           `json:"records"`
	ErrorList  []SweepRecordResult           `json:"errorList"`
}

func (r *SweepReport) add(result SweepRecordResult) {
	network := result.Network
	if network == "" {
		network = unknownNetwork
	}
	stats, ok := r.ByNetwork[network]
	if !ok {
		stats = &NetworkSweepStats{}
		r.ByNetwork[network] = stats
	}

	r.Scanned++
	stats.Scanned++
	switch result.Outcome {
	case SweepOutcomeFixed:
		r.Fixed++
		stats.Fixed++
	case SweepOutcomeFailed:
		r.Failed++
		stats.Failed++
	case SweepOutcomeSkipped:
		r.Skipped++
		stats.Skipped++
	case SweepOutcomeError:
		r.Errors++
		stats.Errors++
		r.ErrorList = append(r.ErrorList, result)
	}
	r.Records = append(r.Records, result)
	metrics.SweepRecords.WithLabelValues(string(result.Outcome)).Inc()
}

// SweepStuckTransactions re-examines suspect records, oldest first, up to MaxRecords.
// Found transactions are completed, long-missing ones failed, the rest left for a later run.
// DryRun makes no ledger calls and no writes.
func (s *TransactionStatusService) SweepStuckTransactions(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	maxRecords := opts.MaxRecords
	if maxRecords <= 0 {
		maxRecords = s.policy.SweepMaxRecords
	}

	report := &SweepReport{
		DryRun:     opts.DryRun,
		MaxRecords: maxRecords,
		StartedAt:  s.clock.Now().UTC(),
		ByNetwork:  make(map[string]*NetworkSweepStats),
		Records:    []SweepRecordResult{},
		ErrorList:  []SweepRecordResult{},
	}
	log := s.logger.WithFields(logrus.Fields{"dry_run": opts.DryRun, "max_records": maxRecords})
	log.Info("🧹 Sweep started")

	records, err := s.records.FindSuspect(ctx, maxRecords)
	if err != nil {
		return nil, fmt.Errorf("find suspect records: %w", err)
	}

	for _, record := range records {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("🛑 Sweep interrupted")
			break
		}
		report.add(s.sweepRecord(ctx, record, opts.DryRun))
	}

	report.FinishedAt = s.clock.Now().UTC()
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	report.Duration = elapsed.String()

	metrics.SweepRuns.WithLabelValues(strconv.FormatBool(opts.DryRun)).Inc()
	metrics.SweepDuration.Observe(elapsed.Seconds())
	log.WithFields(logrus.Fields{
		"scanned":  report.Scanned,
		"fixed":    report.Fixed,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
		"errors":   report.Errors,
		"duration": report.Duration,
	}).Info("🧹 Sweep finished")
	return report, nil
}

func (s *TransactionStatusService) sweepRecord(ctx context.Context, record *models.TransactionRecord, dryRun bool) (result SweepRecordResult) {
	result = SweepRecordResult{RecordID: record.ID, TxHash: record.TxHash}
	log := s.logger.WithFields(logrus.Fields{"record_id": record.ID, "tx_hash": record.TxHash, "dry_run": dryRun})

	defer func() {
		if rec := recover(); rec != nil {
			result.Outcome = SweepOutcomeError
			result.Reason = fmt.Sprintf("panic: %v", rec)
			log.WithField("panic", rec).Error("❌ Sweep record panicked")
		}
	}()

	age := record.Age(s.clock.Now())
	result.AgeHours = age.Hours()
	stale := age > s.policy.StaleAfter

	networkID, networkName, ok := s.resolveRecordNetwork(record)
	if !ok {
		result.Outcome = SweepOutcomeSkipped
		result.Reason = "unresolvable network"
		log.Warn("⚠️ Sweep cannot resolve network for record")
		return result
	}
	result.Network = networkName
	result.NetworkID = networkID

	if record.TxHash == "" {
		result.Outcome = SweepOutcomeSkipped
		result.Reason = "record has no transaction hash"
		return result
	}

	if dryRun {
		result.Outcome = SweepOutcomeSkipped
		switch {
		case record.Status == models.TransactionStatusPending && stale:
			result.Reason = "dry run: would check ledger, fails if still not found"
		default:
			result.Reason = "dry run: would check ledger"
		}
		return result
	}

	details, err := s.ledger.GetTransactionDetails(ctx, networkName, record.TxHash)
	if err != nil && !errors.Is(err, models.ErrTransactionNotFound) {
		log.WithError(err).Warn("⚠️ Ledger lookup failed during sweep")
		result.Outcome = SweepOutcomeError
		result.Reason = err.Error()
		return result
	}

	// the lookup can take a while; every write below goes to the current row
	current, skip, reloadErr := s.reloadForWrite(ctx, record)
	if reloadErr != nil {
		log.WithError(reloadErr).Error("❌ Failed to reload record before sweep write")
		result.Outcome = SweepOutcomeError
		result.Reason = reloadErr.Error()
		return result
	}
	if skip != "" {
		result.Outcome = SweepOutcomeSkipped
		result.Reason = skip
		log.WithField("reason", skip).Info("⏭️ Sweep left record untouched")
		return result
	}
	record = current

	if err == nil {
		return s.sweepFound(ctx, record, networkID, networkName, details, result)
	}

	if record.Status != models.TransactionStatusPending || !stale {
		result.Outcome = SweepOutcomeSkipped
		result.Reason = "not found on-chain yet"
		return result
	}
	hours := age.Hours()
	reason := fmt.Sprintf("stale: not found on-chain after %.1fh (sweep)", hours)
	record.Metadata.Diagnostics.HoursSinceCreation = &hours
	if err := s.transition(ctx, record, models.TransactionStatusFailed, models.FailureKindStale, reason, "sweep"); err != nil {
		return sweepWriteError(result, err)
	}
	result.Outcome = SweepOutcomeFailed
	result.Reason = reason
	return result
}

// reloadForWrite re-reads the record before the sweep writes it. A non-empty skip reason
// means another writer got there first and this run leaves the record alone.
func (s *TransactionStatusService) reloadForWrite(ctx context.Context, snapshot *models.TransactionRecord) (*models.TransactionRecord, string, error) {
	current, err := s.records.GetByID(ctx, snapshot.ID)
	if err != nil {
		return nil, "", fmt.Errorf("reload record: %w", err)
	}
	if current.Status != snapshot.Status {
		return nil, "resolved concurrently", nil
	}
	if current.Status == models.TransactionStatusCompleted && !current.HasPlaceholders() {
		return nil, "resolved concurrently", nil
	}
	if changedSince(snapshot, current) {
		return nil, "updated concurrently, left for next sweep", nil
	}
	return current, "", nil
}

// changedSince reports whether current differs from the sweep's snapshot in anything the sweep writes
func changedSince(snapshot, current *models.TransactionRecord) bool {
	return !current.UpdatedAt.Equal(snapshot.UpdatedAt) ||
		current.FromAddress != snapshot.FromAddress ||
		current.ToAddress != snapshot.ToAddress ||
		current.Amount != snapshot.Amount ||
		current.TokenAddress != snapshot.TokenAddress ||
		current.Metadata.IsPending != snapshot.Metadata.IsPending
}

func (s *TransactionStatusService) sweepFound(ctx context.Context, record *models.TransactionRecord, networkID int64, networkName string, details *models.TransactionDetails, result SweepRecordResult) SweepRecordResult {
	expected := record.Status

	switch details.Status {
	case models.LedgerTxPending:
		result.Outcome = SweepOutcomeSkipped
		result.Reason = "found on-chain but not yet mined"
		return result
	case models.LedgerTxFailed:
		if expected != models.TransactionStatusPending {
			result.Outcome = SweepOutcomeSkipped
			result.Reason = "ledger reports reverted but record is already final"
			return result
		}
		record.Metadata.Blockchain.LedgerStatus = string(details.Status)
		if err := s.transition(ctx, record, models.TransactionStatusFailed, models.FailureKindReverted, "reverted on-chain", "sweep"); err != nil {
			return sweepWriteError(result, err)
		}
		result.Outcome = SweepOutcomeFailed
		result.Reason = "reverted on-chain"
		return result
	}

	eff := resolveEffectiveTransfer(details)
	actingUserID := record.Metadata.SubmittedBy
	attr, err := s.attribution.Classify(ctx, eff.From, eff.To, actingUserID, s.actingWallet(ctx, actingUserID))
	if err != nil {
		result.Outcome = SweepOutcomeError
		result.Reason = err.Error()
		return result
	}
	if err := applyLedgerDetails(record, details, eff, attr, networkID, networkName); err != nil {
		result.Outcome = SweepOutcomeError
		result.Reason = err.Error()
		return result
	}
	fixedAt := s.clock.Now().UTC()
	record.Metadata.Diagnostics.FixedAt = &fixedAt

	if expected == models.TransactionStatusPending {
		if err := s.transition(ctx, record, models.TransactionStatusCompleted, "", "", "sweep"); err != nil {
			return sweepWriteError(result, err)
		}
		s.notifyCompleted(ctx, record)
		result.Reason = "found on-chain"
	} else {
		// completed record still holding placeholders: repair fields, status stays
		if err := s.records.UpdateIfStatus(ctx, record, expected); err != nil {
			return sweepWriteError(result, err)
		}
		result.Reason = "repaired placeholder fields"
	}
	result.Outcome = SweepOutcomeFixed
	return result
}

func sweepWriteError(result SweepRecordResult, err error) SweepRecordResult {
	if errors.Is(err, ErrRecordNotPending) {
		result.Outcome = SweepOutcomeSkipped
		result.Reason = "resolved concurrently"
		return result
	}
	result.Outcome = SweepOutcomeError
	result.Reason = err.Error()
	return result
}

// resolveRecordNetwork metadata network id first, then chain-name heuristics for legacy records
func (s *TransactionStatusService) resolveRecordNetwork(record *models.TransactionRecord) (int64, string, bool) {
	if id := record.Metadata.NetworkID; id != nil {
		if name, err := s.registry.ResolveNetworkName(*id); err == nil {
			return *id, name, true
		}
	}
	for _, candidate := range []string{record.Metadata.NetworkName, record.SourceChain, record.DestinationChain} {
		if id, ok := s.registry.NetworkIDFromChainName(candidate); ok {
			name, _ := s.registry.ResolveNetworkName(id)
			return id, name, true
		}
	}
	return 0, "", false
}
