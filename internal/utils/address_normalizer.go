package utils

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidTxHash hash is not 0x followed by 64 hex characters
var ErrInvalidTxHash = errors.New("invalid transaction hash")

var (
	evmAddressPattern = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
	txHashPattern     = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")
)

// IsEvmAddress checkwhether EVM address (20 bytes, 0x-prefixed)
func IsEvmAddress(address string) bool {
	return evmAddressPattern.MatchString(address)
}

// NormalizeAddress lowercases EVM addresses; anything else is returned trimmed and unchanged.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if IsEvmAddress(address) {
		return strings.ToLower(address)
	}
	return address
}

// SameAddress case-insensitive comparison; empty addresses never match
func SameAddress(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// NormalizeTxHash validates and lowercases a transaction hash
func NormalizeTxHash(txHash string) (string, error) {
	txHash = strings.TrimSpace(txHash)
	if !txHashPattern.MatchString(txHash) {
		return "", ErrInvalidTxHash
	}
	return strings.ToLower(txHash), nil
}
