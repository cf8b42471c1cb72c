package models

import (
	"context"
	"errors"
	"time"
)

// ErrTransactionNotFound the ledger has no record of the hash (yet)
var ErrTransactionNotFound = errors.New("transaction not found on ledger")

// ErrNetworkNotConfigured the reader has no RPC client for the network
var ErrNetworkNotConfigured = errors.New("ledger network not configured")

// LedgerTxStatus ledger-side status of a transaction
type LedgerTxStatus string

const (
	LedgerTxPending   LedgerTxStatus = "pending"   // in mempool or mined without receipt
	LedgerTxConfirmed LedgerTxStatus = "confirmed" // mined, receipt status success
	LedgerTxFailed    LedgerTxStatus = "failed"    // mined, reverted
)

// TokenTransfer one decoded ERC-20 Transfer log
type TokenTransfer struct {
	ContractAddress string `json:"contractAddress"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	LogIndex        uint   `json:"logIndex"`
}

// TransactionDetails snapshot of a transaction as read from the ledger
type TransactionDetails struct {
	Hash           string          `json:"hash"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Value          string          `json:"value"`
	Gas            uint64          `json:"gas"`
	GasPrice       string          `json:"gasPrice"`
	Nonce          uint64          `json:"nonce"`
	BlockNumber    *uint64         `json:"blockNumber,omitempty"`
	Confirmations  uint64          `json:"confirmations"`
	Status         LedgerTxStatus  `json:"status"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
	TokenTransfers []TokenTransfer `json:"tokenTransfers,omitempty"`
}

// FirstTokenTransfer the transfer the engine treats as the effective movement, nil for native transfers.
// Only the first decoded Transfer event is considered.
func (d *TransactionDetails) FirstTokenTransfer() *TokenTransfer {
	if d == nil || len(d.TokenTransfers) == 0 {
		return nil
	}
	return &d.TokenTransfers[0]
}

// LedgerReader read-only lookup against a ledger network.
// Returns ErrTransactionNotFound when the ledger does not know the hash.
type LedgerReader interface {
	GetTransactionDetails(ctx context.Context, networkName, txHash string) (*TransactionDetails, error)
}

// TransactionCompletedEvent published when a record reaches completed with both parties resolved
type TransactionCompletedEvent struct {
	RecordID     string    `json:"recordId"`
	TxHash       string    `json:"txHash"`
	NetworkID    int64     `json:"networkId"`
	NetworkName  string    `json:"networkName"`
	FromUserID   string    `json:"fromUserId"`
	ToUserID     string    `json:"toUserId"`
	FromAddress  string    `json:"fromAddress"`
	ToAddress    string    `json:"toAddress"`
	Amount       string    `json:"amount"`
	TokenAddress string    `json:"tokenAddress"`
	CompletedAt  time.Time `json:"completedAt"`
}
