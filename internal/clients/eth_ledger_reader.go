package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"txstatus-backend/internal/config"
	"txstatus-backend/internal/metrics"
	"txstatus-backend/internal/models"
	"txstatus-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNetworkNotConfigured no RPC client exists for the requested network
var ErrNetworkNotConfigured = models.ErrNetworkNotConfigured

const erc20TransferABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

var transferEvent = mustTransferEvent()

func mustTransferEvent() abi.Event {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(fmt.Sprintf("parse ERC-20 Transfer ABI: %v", err))
	}
	return parsed.Events["Transfer"]
}

// ethBackend subset of *ethclient.Client used by the reader
type ethBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

type ethNetwork struct {
	name     string
	chainID  *big.Int
	endpoint string
	client   ethBackend
	limiter  *rate.Limiter
}

// EthLedgerReader LedgerReader backed by JSON-RPC ethclient connections, one per network
type EthLedgerReader struct {
	networks      map[string]*ethNetwork
	lookupTimeout time.Duration
	logger        *logrus.Logger
}

// NewEthLedgerReader dials every configured network, falling back across its RPC endpoints.
// Clients are keyed by the registry's canonical name for the network's chain id, the same
// name lookups arrive with. Networks without endpoints are skipped; lookups against them
// return ErrNetworkNotConfigured.
func NewEthLedgerReader(ctx context.Context, cfg config.BlockchainConfig, registry *utils.NetworkRegistry, logger *logrus.Logger) (*EthLedgerReader, error) {
	r := &EthLedgerReader{
		networks:      make(map[string]*ethNetwork),
		lookupTimeout: cfg.LookupTimeout,
		logger:        logger,
	}

	for key, network := range cfg.Networks {
		name, err := registry.ResolveNetworkName(network.ChainID)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("network %q: %w", key, err)
		}
		if len(network.RPCEndpoints) == 0 {
			logger.WithField("network", name).Warn("⏭️ No RPC endpoints configured, ledger lookups disabled for network")
			continue
		}

		client, endpoint, err := dialNetwork(ctx, network, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to connect to %s network: %w", name, err)
		}

		r.networks[name] = &ethNetwork{
			name:     name,
			chainID:  big.NewInt(network.ChainID),
			endpoint: endpoint,
			client:   client,
			limiter:  rate.NewLimiter(rate.Limit(network.RequestsPerSecond), network.Burst),
		}
		logger.WithFields(logrus.Fields{
			"network":  name,
			"chain_id": network.ChainID,
			"endpoint": endpoint,
		}).Info("✅ Ledger RPC client connected")
	}

	return r, nil
}

func dialNetwork(ctx context.Context, network config.NetworkConfig, logger *logrus.Logger) (*ethclient.Client, string, error) {
	var lastErr error
	for i, endpoint := range network.RPCEndpoints {
		fields := logrus.Fields{"network": network.Name, "endpoint": endpoint, "attempt": i + 1}

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(dialCtx, endpoint)
		if err != nil {
			cancel()
			lastErr = err
			logger.WithFields(fields).WithError(err).Warn("❌ Dial failed")
			continue
		}

		chainID, err := client.ChainID(dialCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			logger.WithFields(fields).WithError(err).Warn("❌ ChainID check failed")
			continue
		}
		if chainID.Int64() != network.ChainID {
			client.Close()
			lastErr = fmt.Errorf("endpoint reports chain id %s, expected %d", chainID, network.ChainID)
			logger.WithFields(fields).Warn("❌ Chain id mismatch")
			continue
		}
		return client, endpoint, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints")
	}
	return nil, "", lastErr
}

// Networks names with a live client
func (r *EthLedgerReader) Networks() []string {
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	return names
}

// Close releases every RPC connection
func (r *EthLedgerReader) Close() {
	for _, n := range r.networks {
		n.client.Close()
	}
}

// GetTransactionDetails looks the hash up on networkName.
// Returns models.ErrTransactionNotFound when the node has never seen it.
func (r *EthLedgerReader) GetTransactionDetails(ctx context.Context, networkName, txHash string) (*models.TransactionDetails, error) {
	n, ok := r.networks[networkName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotConfigured, networkName)
	}

	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	start := time.Now()
	details, err := r.lookup(ctx, n, common.HexToHash(txHash))
	metrics.LedgerLookupDuration.WithLabelValues(networkName).Observe(time.Since(start).Seconds())
	metrics.LedgerLookups.WithLabelValues(networkName, lookupResult(err)).Inc()
	return details, err
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, models.ErrTransactionNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (r *EthLedgerReader) lookup(ctx context.Context, n *ethNetwork, hash common.Hash) (*models.TransactionDetails, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	tx, isPending, err := n.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction by hash: %w", err)
	}

	details := &models.TransactionDetails{
		Hash:     strings.ToLower(hash.Hex()),
		From:     r.sender(n, tx),
		Value:    tx.Value().String(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice().String(),
		Nonce:    tx.Nonce(),
		Status:   models.LedgerTxPending,
	}
	if to := tx.To(); to != nil {
		details.To = strings.ToLower(to.Hex())
	}
	if isPending {
		return details, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	receipt, err := n.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// mined but not yet indexed by this node
			return details, nil
		}
		return nil, fmt.Errorf("transaction receipt: %w", err)
	}
	if receipt.EffectiveGasPrice != nil {
		details.GasPrice = receipt.EffectiveGasPrice.String()
	}

	block := receipt.BlockNumber.Uint64()
	details.BlockNumber = &block

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	head, err := n.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	if head >= block {
		details.Confirmations = head - block + 1
	}

	if err := n.limiter.Wait(ctx); err == nil {
		if header, err := n.client.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
			ts := time.Unix(int64(header.Time), 0).UTC()
			details.Timestamp = &ts
		} else {
			r.logger.WithFields(logrus.Fields{"network": n.name, "block": block}).WithError(err).Debug("Header lookup failed")
		}
	}

	if receipt.Status == types.ReceiptStatusFailed {
		details.Status = models.LedgerTxFailed
	} else {
		details.Status = models.LedgerTxConfirmed
	}
	details.TokenTransfers = decodeTransferLogs(receipt.Logs)
	return details, nil
}

func (r *EthLedgerReader) sender(n *ethNetwork, tx *types.Transaction) string {
	from, err := types.Sender(types.LatestSignerForChainID(n.chainID), tx)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"network": n.name, "tx_hash": tx.Hash().Hex()}).WithError(err).Warn("⚠️ Could not recover sender")
		return ""
	}
	return strings.ToLower(from.Hex())
}

// decodeTransferLogs every ERC-20 Transfer(address,address,uint256) log in emission order.
// ERC-721 transfers share the signature but index the token id, so they carry 4 topics and are skipped.
func decodeTransferLogs(logs []*types.Log) []models.TokenTransfer {
	var transfers []models.TokenTransfer
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) != 3 || lg.Topics[0] != transferEvent.ID {
			continue
		}
		values, err := transferEvent.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		value, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		transfers = append(transfers, models.TokenTransfer{
			ContractAddress: strings.ToLower(lg.Address.Hex()),
			From:            strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
			To:              strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex()),
			Value:           value.String(),
			LogIndex:        lg.Index,
		})
	}
	return transfers
}
