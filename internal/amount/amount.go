package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/shopspring/decimal"
)

// Max is the sentinel accepted in place of a decimal amount.
const Max = "max"

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// MaxUint256 is the unbounded approval / repay sentinel understood by ERC20 and Venus contracts.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Amount is a parsed request amount: either a base-unit value or the "max" sentinel.
type Amount struct {
	Raw   string
	Value *big.Int
	IsMax bool
}

// Parse accepts a positive decimal string (e.g. "1.5") or "max".
func Parse(input string, decimals int32) (Amount, error) {
	clean := strings.TrimSpace(input)
	if strings.EqualFold(clean, Max) {
		return Amount{Raw: Max, IsMax: true}, nil
	}
	v, err := ParseDecimal(clean, decimals)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Raw: clean, Value: v}, nil
}

// ParseDecimal converts a decimal string into base units, rejecting zero and excess precision.
func ParseDecimal(input string, decimals int32) (*big.Int, error) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return nil, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be in decimal form like 1.23 or %q", input, Max))
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid decimal amount", err)
	}
	if d.Exponent() < -decimals && !d.Equal(d.Truncate(decimals)) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	base := d.Shift(decimals).BigInt()
	if base.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	return base, nil
}

// MustParseDecimal is for package-level constants.
func MustParseDecimal(input string, decimals int32) *big.Int {
	v, err := ParseDecimal(input, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders base units as a trimmed decimal string.
func Format(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// Resolve returns the concrete base-unit value, substituting available for the "max" sentinel.
func (a Amount) Resolve(available *big.Int) *big.Int {
	if a.IsMax {
		if available == nil {
			return new(big.Int)
		}
		return new(big.Int).Set(available)
	}
	if a.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Value)
}

func (a Amount) String() string {
	if a.IsMax {
		return Max
	}
	return a.Raw
}
