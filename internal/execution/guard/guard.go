// Package guard holds the pre-flight checks that run before any transaction
// of an operation is built. A guard failure is a CodeGuard error whose details
// carry a category and the figures that failed.
package guard

import (
	"math/big"

	"github.com/ggonzalez94/bscdefi/internal/amount"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

const (
	CategoryInsufficientBalance = "insufficient_balance"
	CategoryBelowMinimum        = "below_minimum"
	CategoryGasReserve          = "insufficient_gas_reserve"
	CategoryShortfall           = "shortfall"
	CategoryNoCapacity          = "no_borrowing_capacity"
	CategoryExceedsLiquidity    = "exceeds_liquidity"
	CategoryLiquidityRead       = "liquidity_unavailable"
	CategoryNothingToWithdraw   = "nothing_to_withdraw"
	CategoryNoDebt              = "no_debt"
	CategoryInvalidAmount       = "invalid_amount"
)

func Fail(category, message string, details map[string]any) *clierr.Error {
	err := clierr.New(clierr.CodeGuard, message).WithDetails(map[string]any{"category": category})
	return err.WithDetails(details)
}

// Covered fails when required exceeds available.
func Covered(symbol string, decimals int32, required, available *big.Int) error {
	if required.Cmp(available) <= 0 {
		return nil
	}
	return Fail(CategoryInsufficientBalance, "Insufficient "+symbol+" balance", map[string]any{
		"required":  amount.Format(required, decimals),
		"available": amount.Format(available, decimals),
		"token":     symbol,
	})
}

// Minimum fails when value is below the protocol minimum.
func Minimum(symbol string, decimals int32, value, minimum *big.Int) error {
	if value.Cmp(minimum) >= 0 {
		return nil
	}
	floor := amount.Format(minimum, decimals)
	return Fail(CategoryBelowMinimum, "Amount below minimum requirement", map[string]any{
		"requested":  amount.Format(value, decimals),
		"minimum":    floor + " " + symbol,
		"suggestion": "Use at least " + floor + " " + symbol,
	})
}

// Positive fails on a zero resolved amount, e.g. "max" against an empty balance.
func Positive(symbol, message string, value *big.Int) error {
	if value != nil && value.Sign() > 0 {
		return nil
	}
	return Fail(CategoryInvalidAmount, message, map[string]any{"token": symbol, "requested": "0"})
}
