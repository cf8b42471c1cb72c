package services

import (
	"errors"

	"txstatus-backend/internal/models"
	"txstatus-backend/internal/repository"
	"txstatus-backend/internal/utils"
)

var (
	// ErrUnsupportedNetwork network id is not in the registry
	ErrUnsupportedNetwork = utils.ErrUnsupportedNetwork
	// ErrInvalidTxHash hash is not 0x + 64 hex characters
	ErrInvalidTxHash = utils.ErrInvalidTxHash
	// ErrUserNotFound acting user id does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrMissingWalletAddress acting user exists but has no primary wallet
	ErrMissingWalletAddress = errors.New("user has no primary wallet address")
	// ErrRecordNotPending another writer already moved the record
	ErrRecordNotPending = repository.ErrStatusConflict
	// ErrRecordNotFound no record for the id or hash
	ErrRecordNotFound = repository.ErrNotFound
	// ErrNetworkNotConfigured network is registered but the ledger reader has no client for it
	ErrNetworkNotConfigured = models.ErrNetworkNotConfigured
)
