/*
This file contains common utility functions for basis-point arithmetic and for
converting between SDK math types and display values, with zero-tolerance
error handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/openvault/yvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrInvalidBps       = errors.New("basis points out of range")
	ErrZeroWhole        = errors.New("whole amount is zero")
	ErrConversionFailed = errors.New("conversion failed")
)

// PortionBps returns amount * bps / 10000, truncated toward zero.
func PortionBps(amount sdkmath.Int, bps int64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if bps < 0 || bps > types.BpsDenominator {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return amount.MulRaw(bps).QuoRaw(types.BpsDenominator), nil
}

// BpsOf returns part / whole expressed in basis points, truncated toward zero.
func BpsOf(part, whole sdkmath.Int) (int64, error) {
	if part.IsNil() || whole.IsNil() {
		return 0, ErrAmountNil
	}
	if part.IsNegative() || whole.IsNegative() {
		return 0, ErrAmountNegative
	}
	if whole.IsZero() {
		return 0, ErrZeroWhole
	}
	return part.MulRaw(types.BpsDenominator).Quo(whole).Int64(), nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}
