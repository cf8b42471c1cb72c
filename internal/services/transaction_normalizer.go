package services

import (
	"fmt"

	"txstatus-backend/internal/models"
	"txstatus-backend/internal/utils"
)

// extensionExternalCounterparty marks sends to addresses no account owns
const extensionExternalCounterparty = "externalCounterparty"

// effectiveTransfer the value movement a transaction represents
type effectiveTransfer struct {
	From    string
	To      string
	Amount  string
	Token   string
	IsERC20 bool
}

// resolveEffectiveTransfer native value transfer unless the receipt carries an ERC-20
// Transfer event, in which case the first such event supplies recipient, amount and token.
// The outer call targets the token contract with zero value, so its to/value are not the
// economic movement. The sender stays the transaction signer, so a spender calling
// transferFrom is attributed as the sender rather than the token owner.
func resolveEffectiveTransfer(d *models.TransactionDetails) effectiveTransfer {
	if t := d.FirstTokenTransfer(); t != nil {
		return effectiveTransfer{
			From:    utils.NormalizeAddress(d.From),
			To:      utils.NormalizeAddress(t.To),
			Amount:  t.Value,
			Token:   utils.NormalizeAddress(t.ContractAddress),
			IsERC20: true,
		}
	}
	return effectiveTransfer{
		From:   utils.NormalizeAddress(d.From),
		To:     utils.NormalizeAddress(d.To),
		Amount: d.Value,
		Token:  models.NativeTokenAddress,
	}
}

// applyLedgerDetails overwrites placeholders and blockchain details on record. Status is untouched.
func applyLedgerDetails(record *models.TransactionRecord, d *models.TransactionDetails, eff effectiveTransfer, attr Attribution, networkID int64, networkName string) error {
	amount, err := utils.NormalizeAmount(eff.Amount)
	if err != nil {
		return fmt.Errorf("ledger amount: %w", err)
	}

	record.FromAddress = eff.From
	record.ToAddress = eff.To
	record.Amount = amount
	record.TokenAddress = eff.Token
	record.FromUserID = attr.FromUserID
	record.ToUserID = attr.ToUserID
	record.SourceChain = networkName
	record.DestinationChain = networkName

	meta := &record.Metadata
	meta.SchemaVersion = models.MetadataSchemaVersion
	meta.IsPending = false
	id := networkID
	meta.NetworkID = &id
	meta.NetworkName = networkName

	meta.Blockchain = models.BlockchainDetails{
		Gas:                d.Gas,
		GasPrice:           d.GasPrice,
		Nonce:              d.Nonce,
		BlockNumber:        d.BlockNumber,
		Confirmations:      d.Confirmations,
		Timestamp:          d.Timestamp,
		LedgerStatus:       string(d.Status),
		IsERC20Transfer:    eff.IsERC20,
		TransferEventCount: len(d.TokenTransfers),
	}
	if eff.IsERC20 {
		meta.Blockchain.ContractAddress = eff.Token
	}

	if attr.ExternalCounterparty {
		if meta.Extensions == nil {
			meta.Extensions = make(map[string]interface{})
		}
		meta.Extensions[extensionExternalCounterparty] = true
	} else if meta.Extensions != nil {
		delete(meta.Extensions, extensionExternalCounterparty)
	}
	return nil
}
