// Package types provides the unified domain model shared by every data source.
package types

import (
	"math/big"
)

// Asset is a token referenced by a market
type Asset struct {
	Address  string   `json:"address"`
	Symbol   string   `json:"symbol"`
	Decimals int      `json:"decimals"`
	PriceUSD *float64 `json:"priceUsd,omitempty"`
}

// MarketState is the latest indexed state of a market
type MarketState struct {
	SupplyAssets        string  `json:"supplyAssets"`
	BorrowAssets        string  `json:"borrowAssets"`
	SupplyShares        string  `json:"supplyShares"`
	BorrowShares        string  `json:"borrowShares"`
	CollateralAssets    string  `json:"collateralAssets"`
	LiquidityAssets     string  `json:"liquidityAssets"`
	SupplyAssetsUSD     float64 `json:"supplyAssetsUsd"`
	BorrowAssetsUSD     float64 `json:"borrowAssetsUsd"`
	CollateralAssetsUSD float64 `json:"collateralAssetsUsd"`
	LiquidityAssetsUSD  float64 `json:"liquidityAssetsUsd"`
	Utilization         float64 `json:"utilization"`
	SupplyAPY           float64 `json:"supplyApy"`
	BorrowAPY           float64 `json:"borrowApy"`
	Fee                 float64 `json:"fee"`
	Timestamp           int64   `json:"timestamp"`
}

// Market is a Morpho Blue lending market
type Market struct {
	UniqueKey       string      `json:"uniqueKey"`
	ChainID         int64       `json:"chainId"`
	LoanAsset       Asset       `json:"loanAsset"`
	CollateralAsset Asset       `json:"collateralAsset"`
	OracleAddress   string      `json:"oracleAddress"`
	IrmAddress      string      `json:"irmAddress"`
	Lltv            string      `json:"lltv"`
	State           MarketState `json:"state"`
	RealizedBadDebt string      `json:"realizedBadDebt"`
	HasUSDPrice     bool        `json:"hasUsdPrice"`
	Warnings        []Warning   `json:"warnings"`
}

// HasWarning reports whether the market carries a warning of the given type
func (m *Market) HasWarning(t WarningType) bool {
	for _, w := range m.Warnings {
		if w.Type == t {
			return true
		}
	}
	return false
}

// ComputeUtilization returns borrow/supply, or 0 when nothing is supplied
func ComputeUtilization(supplyAssets, borrowAssets string) float64 {
	supply, ok := new(big.Float).SetString(orZero(supplyAssets))
	if !ok || supply.Sign() <= 0 {
		return 0
	}
	borrow, ok := new(big.Float).SetString(orZero(borrowAssets))
	if !ok || borrow.Sign() <= 0 {
		return 0
	}
	u, _ := new(big.Float).Quo(borrow, supply).Float64()
	return u
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// MarketPosition is a supplier or borrower position in a market
type MarketPosition struct {
	UserAddress      string `json:"userAddress"`
	MarketUniqueKey  string `json:"marketUniqueKey"`
	SupplyShares     string `json:"supplyShares"`
	SupplyAssets     string `json:"supplyAssets"`
	BorrowShares     string `json:"borrowShares"`
	BorrowAssets     string `json:"borrowAssets"`
	CollateralAssets string `json:"collateralAssets"`
}

// TimeRange bounds a historical query, unix seconds
type TimeRange struct {
	StartTimestamp int64  `json:"startTimestamp"`
	EndTimestamp   int64  `json:"endTimestamp"`
	Interval       string `json:"interval"` // HOUR | DAY | WEEK
}

// HistoricalPoint is one sample of a time series
type HistoricalPoint struct {
	X int64   `json:"x"`
	Y float64 `json:"y"`
}

// MarketHistoricalData holds rate and volume series for a market
type MarketHistoricalData struct {
	SupplyAPY    []HistoricalPoint `json:"supplyApy"`
	BorrowAPY    []HistoricalPoint `json:"borrowApy"`
	SupplyAssets []HistoricalPoint `json:"supplyAssets"`
	BorrowAssets []HistoricalPoint `json:"borrowAssets"`
	Utilization  []HistoricalPoint `json:"utilization"`
}
