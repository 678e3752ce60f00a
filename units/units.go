// Package units converts between human-readable decimal amounts and
// atomic token units. All conversion is exact string arithmetic so no
// floating-point rounding ever reaches the wire.
package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eventpay/x402gate/types"
)

// amountPattern accepts non-negative decimals only. Signs, exponents
// and bare dots are rejected up front.
var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ToAtomicUnits converts a decimal amount string like "0.05" into an
// atomic-unit integer string like "50000" for the given token decimals.
// Fractional digits beyond the token's precision are truncated, never
// rounded. The result carries no leading zeros; a zero value is "0".
func ToAtomicUnits(amount string, decimals int) (string, error) {
	if decimals < 0 {
		return "", &types.X402Error{
			Code:    types.ErrInvalidAmountFormat,
			Message: fmt.Sprintf("decimals cannot be negative: %d", decimals),
		}
	}
	if !amountPattern.MatchString(amount) {
		return "", &types.X402Error{
			Code:    types.ErrInvalidAmountFormat,
			Message: fmt.Sprintf("invalid amount format: %q", amount),
		}
	}

	whole, frac, _ := strings.Cut(amount, ".")

	if len(frac) > decimals {
		frac = frac[:decimals]
	} else {
		frac += strings.Repeat("0", decimals-len(frac))
	}

	atomic := strings.TrimLeft(whole+frac, "0")
	if atomic == "" {
		atomic = "0"
	}
	return atomic, nil
}

// FromAtomicUnits renders an atomic-unit integer string back into a
// decimal amount, used for logs and settlement summaries.
func FromAtomicUnits(atomic string, decimals int) (string, error) {
	if decimals < 0 {
		return "", &types.X402Error{
			Code:    types.ErrInvalidAmountFormat,
			Message: fmt.Sprintf("decimals cannot be negative: %d", decimals),
		}
	}
	value, ok := new(big.Int).SetString(atomic, 10)
	if !ok || value.Sign() < 0 {
		return "", &types.X402Error{
			Code:    types.ErrInvalidAmountFormat,
			Message: fmt.Sprintf("invalid atomic amount: %q", atomic),
		}
	}
	dec := decimal.NewFromBigInt(value, -int32(decimals))
	return dec.String(), nil
}

// ValidateAmount checks that an amount string is a parseable
// non-negative decimal without converting it.
func ValidateAmount(amount string) error {
	if amount == "" {
		return &types.X402Error{
			Code:    types.ErrInvalidAmountFormat,
			Message: "amount cannot be empty",
		}
	}
	if !amountPattern.MatchString(amount) {
		return &types.X402Error{
			Code:    types.ErrInvalidAmountFormat,
			Message: fmt.Sprintf("invalid amount format: %q", amount),
		}
	}
	return nil
}
