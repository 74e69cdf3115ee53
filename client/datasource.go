package client

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dwdwow/morpho-go/types"
)

// DataSource is implemented by both backends. Every method yields the same
// unified types whichever backend served it. A nil result with a nil error
// means "not found".
type DataSource interface {
	Name() string

	Market(ctx context.Context, chainID int64, uniqueKey string) (*types.Market, error)
	Markets(ctx context.Context, chainID int64) ([]types.Market, error)

	// MarketSupplies merges supply and withdraw events, most recent first
	MarketSupplies(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error)
	// MarketBorrows merges borrow and repay events, most recent first
	MarketBorrows(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error)
	// MarketLiquidations merges liquidations and bad debt realizations, most recent first
	MarketLiquidations(ctx context.Context, chainID int64, uniqueKey string) ([]types.MarketLiquidationTransaction, error)

	MarketSuppliers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error)
	MarketBorrowers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error)

	MarketHistoricalData(ctx context.Context, chainID int64, uniqueKey string, tr types.TimeRange) (*types.MarketHistoricalData, error)

	VaultDetails(ctx context.Context, chainID int64, vault string) (*types.VaultDetails, error)
	VaultCaps(ctx context.Context, chainID int64, vault string) ([]types.VaultV2Cap, error)
}

var (
	_ DataSource = (*MorphoAPI)(nil)
	_ DataSource = (*Subgraph)(nil)
	_ DataSource = (*Source)(nil)
)

const unknownSymbol = "Unknown"

func strOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// numString accepts a JSON string or number and keeps its plain decimal
// text. null and malformed input decode to "".
type numString string

func (n *numString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		*n = ""
		return nil
	}
	*n = numString(d.String())
	return nil
}

// or returns the text, or def when absent
func (n numString) or(def string) string {
	if n == "" {
		return def
	}
	return string(n)
}

// asInt returns the integer part of the value, or 0
func (n numString) asInt() int64 {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0
	}
	return d.IntPart()
}

// asFloat returns the value as float64, or 0
func (n numString) asFloat() float64 {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
