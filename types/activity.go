package types

import "sort"

// ActivityType is the kind of a market activity record
type ActivityType string

const (
	ActivitySupply      ActivityType = "supply"
	ActivityWithdraw    ActivityType = "withdraw"
	ActivityBorrow      ActivityType = "borrow"
	ActivityRepay       ActivityType = "repay"
	ActivityLiquidation ActivityType = "liquidation"
	ActivityBadDebt     ActivityType = "bad_debt"
)

// MarketActivityTransaction is a supply/withdraw/borrow/repay event
type MarketActivityTransaction struct {
	Type        ActivityType `json:"type"`
	Hash        string       `json:"hash"`
	Timestamp   int64        `json:"timestamp"`
	Amount      string       `json:"amount"`
	UserAddress string       `json:"userAddress"`
}

// MarketLiquidationTransaction is a liquidation or a bad debt realization
type MarketLiquidationTransaction struct {
	Type          ActivityType `json:"type"`
	Hash          string       `json:"hash"`
	Timestamp     int64        `json:"timestamp"`
	Liquidator    string       `json:"liquidator"`
	Borrower      string       `json:"borrower"`
	RepaidAssets  string       `json:"repaidAssets"`
	SeizedAssets  string       `json:"seizedAssets"`
	BadDebtAssets string       `json:"badDebtAssets"`
}

// SortActivity orders records most recent first
func SortActivity(txs []MarketActivityTransaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp > txs[j].Timestamp })
}

// SortLiquidations orders records most recent first
func SortLiquidations(txs []MarketLiquidationTransaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp > txs[j].Timestamp })
}
