package numbers

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrNegativeValue = errors.New("value must not be negative")

// ScaleToUnits expresses value in units of 10^-decimals, truncating any remaining fraction.
// Shifting moves the decimal exponent, so no floating point rounding is involved.
func ScaleToUnits(value decimal.Decimal, decimals uint8) (*big.Int, error) {
	if value.IsNegative() {
		return nil, ErrNegativeValue
	}
	return value.Shift(int32(decimals)).Floor().BigInt(), nil
}

// ParseUnits parses a non-negative base 10 integer amount such as a pool size.
func ParseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid integer amount '%s'", s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	return v, nil
}
