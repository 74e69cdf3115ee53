// Package utils provides fixed-point and address helpers shared by the SDK.
package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dwdwow/morpho-go/constants"
)

// ErrEmptyAmount is returned by ParseUnits for a blank input
var ErrEmptyAmount = errors.New("empty amount")

// ParseUnits converts a decimal string to an integer scaled by 10^decimals.
// Digits beyond the precision are rounded half away from zero.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrEmptyAmount
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}

	return d.Shift(int32(decimals)).Round(0).BigInt(), nil
}

// FormatUnits renders an integer scaled by 10^decimals as a decimal string
// without trailing zeros
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// ParseBig parses a base-10 integer string, treating blank as zero
func ParseBig(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}

// BigOrZero parses a base-10 integer string and returns zero on failure
func BigOrZero(s string) *big.Int {
	v, ok := ParseBig(s)
	if !ok {
		return new(big.Int)
	}
	return v
}

// PercentToWAD converts a percent string (0-100) to a WAD relative cap.
// Blank or non-positive input yields zero.
func PercentToWAD(percent string) *big.Int {
	v, err := ParseUnits(percent, constants.PercentDecimals)
	if err != nil || v.Sign() <= 0 {
		return new(big.Int)
	}
	return v
}

// WADToPercent renders a WAD relative cap as a percent string (1e16 = 1)
func WADToPercent(wad string) string {
	return FormatUnits(BigOrZero(wad), constants.PercentDecimals)
}

// AmountToAbsoluteCap converts an asset-denominated string to an absolute cap.
// Blank or non-positive input yields the MaxUint128 "no limit" sentinel.
func AmountToAbsoluteCap(amount string, decimals int) *big.Int {
	v, err := ParseUnits(amount, decimals)
	if err != nil || v.Sign() <= 0 {
		return new(big.Int).Set(constants.MaxUint128)
	}
	if v.Cmp(constants.MaxUint128) > 0 {
		return new(big.Int).Set(constants.MaxUint128)
	}
	return v
}

// AbsoluteCapToAmount renders an absolute cap for editing; the no-limit
// sentinel becomes an empty string
func AbsoluteCapToAmount(absoluteCap string, decimals int) string {
	v := BigOrZero(absoluteCap)
	if IsUnlimited(v) {
		return ""
	}
	return FormatUnits(v, decimals)
}

// IsUnlimited reports whether an absolute cap is the no-limit sentinel (or above it)
func IsUnlimited(v *big.Int) bool {
	return v != nil && v.Cmp(constants.MaxUint128) >= 0
}

// ToFloat converts a scaled integer string to a float64, for USD math only
func ToFloat(value string, decimals int) float64 {
	f, _ := decimal.NewFromBigInt(BigOrZero(value), -int32(decimals)).Float64()
	return f
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NormalizeAddress returns the lowercase 0x form of an address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsAddress reports whether s is a 20-byte hex address
func IsAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}

// OrDefault returns def when s is empty
func OrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
