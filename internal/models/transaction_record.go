package models

import (
	"time"
)

// TransactionStatus lifecycle status of a transaction record
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// IsTerminal completed and failed are final; no poll or sweep moves a record out of them.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Placeholder values written before the ledger has been observed.
const (
	PendingAddress     = "pending"
	PendingAmount      = "0"
	NativeTokenAddress = "0x0"
)

// Failure kinds recorded in DiagnosticInfo.FailureKind
const (
	FailureKindDiscoveryExhausted    = "discovery_exhausted"
	FailureKindConfirmationExhausted = "confirmation_exhausted"
	FailureKindReverted              = "reverted"
	FailureKindStale                 = "stale"
	FailureKindLedgerUnavailable     = "ledger_unavailable"
)

// MetadataSchemaVersion current layout of TransactionMetadata
const MetadataSchemaVersion = 1

// BlockchainDetails ledger facts copied onto the record once the transaction is observed
type BlockchainDetails struct {
	Gas                uint64     `json:"gas" gorm:"column:gas"`
	GasPrice           string     `json:"gasPrice" gorm:"column:gas_price;size:78"`
	Nonce              uint64     `json:"nonce" gorm:"column:nonce"`
	BlockNumber        *uint64    `json:"blockNumber,omitempty" gorm:"column:block_number"`
	Confirmations      uint64     `json:"confirmations" gorm:"column:confirmations"`
	Timestamp          *time.Time `json:"timestamp,omitempty" gorm:"column:timestamp"`
	LedgerStatus       string     `json:"ledgerStatus,omitempty" gorm:"column:ledger_status;size:16"`
	IsERC20Transfer    bool       `json:"isERC20Transfer" gorm:"column:is_erc20_transfer"`
	ContractAddress    string     `json:"contractAddress,omitempty" gorm:"column:contract_address;size:66"`
	TransferEventCount int        `json:"transferEventCount,omitempty" gorm:"column:transfer_event_count"`
}

// DiagnosticInfo failure and repair bookkeeping
type DiagnosticInfo struct {
	Error                string     `json:"error,omitempty" gorm:"column:error;type:text"`
	FailureKind          string     `json:"failureKind,omitempty" gorm:"column:failure_kind;size:32"`
	HoursSinceCreation   *float64   `json:"hoursSinceCreation,omitempty" gorm:"column:hours_since_creation"`
	FixedAt              *time.Time `json:"fixedAt,omitempty" gorm:"column:fixed_at"`
	DiscoveryAttempts    int        `json:"discoveryAttempts,omitempty" gorm:"column:discovery_attempts"`
	ConfirmationAttempts int        `json:"confirmationAttempts,omitempty" gorm:"column:confirmation_attempts"`
}

// TransactionMetadata versioned metadata; known fields are columns so the sweep can filter on them
type TransactionMetadata struct {
	SchemaVersion int               `json:"schemaVersion" gorm:"column:schema_version;default:1"`
	IsPending     bool              `json:"isPending" gorm:"column:is_pending;index"`
	NetworkID     *int64            `json:"networkId,omitempty" gorm:"column:network_id"`
	NetworkName   string            `json:"networkName,omitempty" gorm:"column:network_name;size:64"`
	SubmittedBy   string            `json:"submittedBy,omitempty" gorm:"column:submitted_by;size:36;index"`
	Blockchain    BlockchainDetails `json:"blockchainDetails" gorm:"embedded;embeddedPrefix:chain_"`
	Diagnostics   DiagnosticInfo    `json:"diagnosticInfo" gorm:"embedded;embeddedPrefix:diag_"`

	// Caller-supplied values; opaque to the engine
	Extensions map[string]interface{} `json:"extensions,omitempty" gorm:"column:extensions;type:text;serializer:json"`
}

// TransactionRecord persisted view of one submitted on-chain transaction
type TransactionRecord struct {
	ID               string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TxHash           string            `json:"txHash" gorm:"column:tx_hash;size:66;uniqueIndex:idx_transaction_records_tx_hash,where:tx_hash <> ''"`
	Status           TransactionStatus `json:"status" gorm:"column:status;size:16;not null;default:pending;index"`
	FromUserID       *string           `json:"fromUserId,omitempty" gorm:"column:from_user_id;size:36;index"`
	ToUserID         *string           `json:"toUserId,omitempty" gorm:"column:to_user_id;size:36;index"`
	FromAddress      string            `json:"fromAddress" gorm:"column:from_address;size:66;not null"`
	ToAddress        string            `json:"toAddress" gorm:"column:to_address;size:66;not null"`
	Amount           string            `json:"amount" gorm:"column:amount;size:78;not null"`
	TokenAddress     string            `json:"tokenAddress" gorm:"column:token_address;size:66;not null"`
	SourceChain      string            `json:"sourceChain" gorm:"column:source_chain;size:64"`
	DestinationChain string            `json:"destinationChain" gorm:"column:destination_chain;size:64"`

	Metadata TransactionMetadata `json:"metadata" gorm:"embedded;embeddedPrefix:meta_"`

	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (TransactionRecord) TableName() string {
	return "transaction_records"
}

// HasPlaceholders true while any field still holds a pre-discovery placeholder
func (r *TransactionRecord) HasPlaceholders() bool {
	return r.Metadata.IsPending || r.FromAddress == PendingAddress || r.ToAddress == PendingAddress
}

// Age time since creation as seen at now
func (r *TransactionRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// NewPlaceholderRecord record for a hash the ledger has not returned yet
func NewPlaceholderRecord(txHash string, networkID int64, networkName, submittedBy string) *TransactionRecord {
	id := networkID
	return &TransactionRecord{
		TxHash:           txHash,
		Status:           TransactionStatusPending,
		FromAddress:      PendingAddress,
		ToAddress:        PendingAddress,
		Amount:           PendingAmount,
		TokenAddress:     NativeTokenAddress,
		SourceChain:      networkName,
		DestinationChain: networkName,
		Metadata: TransactionMetadata{
			SchemaVersion: MetadataSchemaVersion,
			IsPending:     true,
			NetworkID:     &id,
			NetworkName:   networkName,
			SubmittedBy:   submittedBy,
		},
	}
}
