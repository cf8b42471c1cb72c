package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeAmount canonical base-10 integer string for a base-unit amount.
// Accepts decimal or 0x-prefixed hex input.
func NormalizeAmount(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0", nil
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, ok := new(big.Int).SetString(raw[2:], 16)
		if !ok {
			return "", fmt.Errorf("invalid hex amount %q", raw)
		}
		return v.String(), nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("negative amount %q", raw)
	}
	if !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("fractional base-unit amount %q", raw)
	}
	return d.BigInt().String(), nil
}

// FormatUnits renders a base-unit amount with the given decimals, e.g. 1500000 @6 -> "1.5".
func FormatUnits(amount string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d.Shift(-decimals).String(), nil
}
