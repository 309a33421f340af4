package x402

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var errNonPositiveAmount = errors.New("amount must be positive")

// ResolveAmount picks the amount to pay: the challenge amount when it names
// one, otherwise the stake. The result must be a positive decimal.
func ResolveAmount(challengeAmount string, stake decimal.Decimal) (decimal.Decimal, error) {
	amount := stake
	if s := strings.TrimSpace(challengeAmount); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("x402: amount %q: %w", s, err)
		}
		amount = d
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("x402: amount %s: %w", amount, errNonPositiveAmount)
	}
	return amount, nil
}

// ToBaseUnits converts a decimal amount into the chain's smallest unit
// (wei for 18 decimals). Amounts finer than one base unit are rejected.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("x402: negative decimals %d", decimals)
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("x402: amount %s has more than %d decimal places", amount, decimals)
	}
	if !shifted.IsPositive() {
		return nil, fmt.Errorf("x402: amount %s: %w", amount, errNonPositiveAmount)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}
