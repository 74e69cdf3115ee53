package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwdwow/morpho-go/types"
)

func newTestSubgraph(url string, prices *PriceOracle) *Subgraph {
	return NewSubgraph(map[int64]*API{1: NewAPI(url, time.Second, WithSource("subgraph"))}, testRegistry(), prices, nil, nil)
}

func newTestPriceServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSubgraph_PositionsPageFromCachedSnapshot(t *testing.T) {
	srv := newGQLServer(t, func(_ int, req request) (int, any) {
		first := int(req.Variables["first"].(float64))
		positions := make([]map[string]any, 0, first)
		for i := 0; i < first; i++ {
			positions = append(positions, map[string]any{
				"account": map[string]any{"id": fmt.Sprintf("0x%040x", i)},
				"shares":  fmt.Sprint(1_000_000 - i),
				"balance": fmt.Sprint(900_000 - i),
			})
		}
		return http.StatusOK, map[string]any{"data": map[string]any{"positions": positions}}
	})
	sg := newTestSubgraph(srv.URL, nil)

	page, err := sg.MarketSuppliers(context.Background(), 1, "0xABC", "0", types.PageRequest{Skip: 16, First: 8})
	require.NoError(t, err)
	require.Len(t, page.Items, 8)
	for i, p := range page.Items {
		assert.Equal(t, fmt.Sprintf("0x%040x", 16+i), p.UserAddress)
		assert.Equal(t, fmt.Sprint(1_000_000-16-i), p.SupplyShares)
		assert.Equal(t, "0", p.BorrowShares)
	}
	assert.Equal(t, 1000, page.TotalCount)
	assert.False(t, page.IsExact, "a snapshot at the ceiling may be truncated")

	next, err := sg.MarketSuppliers(context.Background(), 1, "0xabc", "0", types.PageRequest{Skip: 24, First: 8})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0x%040x", 24), next.Items[0].UserAddress)

	assert.Equal(t, 1, srv.calls(), "later pages are served from the snapshot")
	vars := srv.request(0).Variables
	assert.Equal(t, "SUPPLIER", vars["side"])
	assert.Equal(t, "0xabc", vars["market"])
	assert.Equal(t, float64(1000), vars["first"])
}

func TestSubgraph_BorrowersCarryCollateral(t *testing.T) {
	srv := newGQLServer(t, func(_ int, req request) (int, any) {
		if strings.Contains(req.Query, "query Collateral") {
			return http.StatusOK, `{"data":{"positions":[{"account":{"id":"0xAA"},"balance":"777"}]}}`
		}
		return http.StatusOK, `{"data":{"positions":[
			{"account":{"id":"0xaa"},"shares":"10","balance":"9"},
			{"account":{"id":"0xbb"},"shares":"5","balance":"4"}
		]}}`
	})
	sg := newTestSubgraph(srv.URL, nil)

	page, err := sg.MarketBorrowers(context.Background(), 1, "0xabc", "", types.PageRequest{First: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "10", page.Items[0].BorrowShares)
	assert.Equal(t, "777", page.Items[0].CollateralAssets)
	assert.Equal(t, "0", page.Items[1].CollateralAssets)
	assert.True(t, page.IsExact)
	assert.Equal(t, 2, page.TotalCount)

	assert.Equal(t, "BORROWER", srv.request(0).Variables["side"])
	assert.Equal(t, []any{"0xaa", "0xbb"}, srv.request(1).Variables["accounts"])
}

func TestSubgraph_MarketEstimatesPeggedPrice(t *testing.T) {
	priceSrv, hits := newTestPriceServer(t, `{"usd-coin":{"usd":1.0},"ethereum":{"usd":3000},"bitcoin":{"usd":60000}}`)
	prices := NewPriceOracle(priceSrv.URL, time.Second, time.Minute, nil, nil, nil)

	srv := newGQLServer(t, func(int, request) (int, any) {
		return http.StatusOK, `{"data":{"market":{
			"id":"0xabc","lltv":"860000000000000000","irm":"0x0000000000000000000000000000000000000001",
			"fee":"50000000000000000","lastUpdate":"1700000000",
			"oracle":{"oracleAddress":"0x0000000000000000000000000000000000000002"},
			"inputToken":{"id":"` + strings.ToLower(wethMainnet) + `","symbol":"WETH","decimals":18,"lastPriceUSD":"3000"},
			"borrowedToken":{"id":"` + strings.ToLower(usdcMainnet) + `","symbol":"USDC","decimals":6,"lastPriceUSD":null},
			"totalSupply":"2000000000","totalBorrow":"500000000",
			"totalSupplyShares":"2000000000000000","totalBorrowShares":"500000000000000",
			"totalCollateral":"1000000000000000000",
			"rates":[{"rate":"4.5","side":"LENDER"},{"rate":"6","side":"BORROWER"}],
			"badDebtRealizations":[]
		}}}`
	})
	sg := newTestSubgraph(srv.URL, prices)

	m, err := sg.Market(context.Background(), 1, "0xABC")
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "0xabc", srv.request(0).Variables["id"])
	assert.Equal(t, "USDC", m.LoanAsset.Symbol)
	assert.Equal(t, "WETH", m.CollateralAsset.Symbol)
	require.NotNil(t, m.LoanAsset.PriceUSD)
	assert.Equal(t, 1.0, *m.LoanAsset.PriceUSD)
	assert.True(t, m.HasUSDPrice)
	assert.True(t, m.HasWarning(types.WarningPriceIsEstimated))
	assert.False(t, m.HasWarning(types.WarningMissingUSDPrice))

	assert.Equal(t, "1500000000", m.State.LiquidityAssets)
	assert.InDelta(t, 2000.0, m.State.SupplyAssetsUSD, 1e-9)
	assert.InDelta(t, 3000.0, m.State.CollateralAssetsUSD, 1e-9)
	assert.InDelta(t, 0.25, m.State.Utilization, 1e-12)
	assert.InDelta(t, 0.045, m.State.SupplyAPY, 1e-12)
	assert.InDelta(t, 0.06, m.State.BorrowAPY, 1e-12)
	assert.InDelta(t, 0.05, m.State.Fee, 1e-12)
	assert.Equal(t, "0", m.RealizedBadDebt)

	_, err = sg.Market(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "peg prices are cached")
}

func TestSubgraph_MarketWithoutPriceSource(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) {
		return http.StatusOK, `{"data":{"market":{
			"id":"0xabc","borrowedToken":{"id":"0x9999999999999999999999999999999999999999","symbol":"ODD","decimals":18},
			"totalSupply":"0","totalBorrow":"0",
			"badDebtRealizations":[{"badDebt":"4"},{"badDebt":"6"}]
		}}}`
	})

	m, err := newTestSubgraph(srv.URL, nil).Market(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "10", m.RealizedBadDebt)
	assert.Equal(t, 0.0, m.State.Utilization)
	assert.True(t, m.HasWarning(types.WarningUnrecognizedLoanAsset))
	assert.True(t, m.HasWarning(types.WarningMissingUSDPrice))
	assert.True(t, m.HasWarning(types.WarningBadDebtRealized))
	assert.False(t, m.HasWarning(types.WarningUnrecognizedCollateralAsset), "idle markets have no collateral token")
}

func TestSubgraph_MarketNotFound(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) { return http.StatusOK, `{"data":{"market":null}}` })

	m, err := newTestSubgraph(srv.URL, nil).Market(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSubgraph_MarketsFollowsCursor(t *testing.T) {
	srv := newGQLServer(t, func(n int, _ request) (int, any) {
		pages := map[int][]string{1: {"0x01", "0x02"}, 2: {"0x03", "0x04"}, 3: {"0x05"}}
		markets := []map[string]any{}
		for _, id := range pages[n] {
			markets = append(markets, map[string]any{"id": id})
		}
		return http.StatusOK, map[string]any{"data": map[string]any{"markets": markets}}
	})
	sg := newTestSubgraph(srv.URL, nil)
	sg.ceiling = 2

	markets, err := sg.Markets(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, markets, 5)
	require.Equal(t, 3, srv.calls())
	assert.Equal(t, "", srv.request(0).Variables["lastId"])
	assert.Equal(t, "0x02", srv.request(1).Variables["lastId"])
	assert.Equal(t, "0x04", srv.request(2).Variables["lastId"])
}

func TestSubgraph_SuppliesMergedAndSliced(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) {
		return http.StatusOK, `{"data":{
			"deposits":[
				{"hash":"0xd1","timestamp":"500","amount":"1","account":{"id":"0xa"}},
				{"hash":"0xd2","timestamp":"300","amount":"2","account":{"id":"0xa"}}
			],
			"withdraws":[
				{"hash":"0xw1","timestamp":"400","amount":"3","account":{"id":"0xb"}},
				{"hash":"0xw2","timestamp":"100","amount":"4","account":{"id":"0xb"}}
			]
		}}`
	})
	sg := newTestSubgraph(srv.URL, nil)

	page, err := sg.MarketSupplies(context.Background(), 1, "0xabc", "", types.PageRequest{Skip: 1, First: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "0xw1", page.Items[0].Hash)
	assert.Equal(t, types.ActivityWithdraw, page.Items[0].Type)
	assert.Equal(t, "0xd2", page.Items[1].Hash)
	assert.Equal(t, types.ActivitySupply, page.Items[1].Type)
	assert.Equal(t, 4, page.TotalCount)
	assert.True(t, page.IsExact)
	assert.Equal(t, "0", srv.request(0).Variables["minAssets"])
}

func TestSubgraph_ActivityAtCeilingIsNotExact(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) {
		return http.StatusOK, `{"data":{
			"borrows":[{"hash":"0x1","timestamp":"2","amount":"1"},{"hash":"0x2","timestamp":"1","amount":"1"}],
			"repays":[]
		}}`
	})
	sg := newTestSubgraph(srv.URL, nil)
	sg.ceiling = 2

	page, err := sg.MarketBorrows(context.Background(), 1, "0xabc", "0", types.PageRequest{First: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.IsExact)
}

func TestSubgraph_LiquidationsFoldBadDebt(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) {
		return http.StatusOK, `{"data":{
			"liquidates":[
				{"id":"liq-1","hash":"0xh1","timestamp":"100","liquidator":{"id":"0xl"},"account":{"id":"0xb1"},"amount":"50","repaid":"40"},
				{"id":"liq-2","hash":"0xh2","timestamp":"300","liquidator":{"id":"0xl"},"account":{"id":"0xb2"},"amount":"60","repaid":"45"}
			],
			"badDebtRealizations":[
				{"id":"bd-1","timestamp":"300","badDebt":"7","liquidation":{"id":"liq-2","hash":"0xh2"}},
				{"id":"bd-2","timestamp":"200","badDebt":"9","liquidation":null}
			]
		}}`
	})

	txs, err := newTestSubgraph(srv.URL, nil).MarketLiquidations(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, "0xh2", txs[0].Hash)
	assert.Equal(t, types.ActivityLiquidation, txs[0].Type)
	assert.Equal(t, "7", txs[0].BadDebtAssets)
	assert.Equal(t, "60", txs[0].SeizedAssets)

	assert.Equal(t, types.ActivityBadDebt, txs[1].Type)
	assert.Equal(t, "bd-2", txs[1].Hash)
	assert.Equal(t, "9", txs[1].BadDebtAssets)

	assert.Equal(t, "0xh1", txs[2].Hash)
	assert.Equal(t, "0", txs[2].BadDebtAssets)
}

func TestSubgraph_WeeklyHistoryDownsamplesDaily(t *testing.T) {
	const day = 24 * 3600
	srv := newGQLServer(t, func(int, request) (int, any) {
		snaps := []map[string]any{}
		for i := 0; i < 15; i++ {
			snaps = append(snaps, map[string]any{
				"timestamp":              fmt.Sprint(i * day),
				"rates":                  []map[string]any{{"rate": "5", "side": "LENDER"}},
				"totalDepositBalanceUSD": "100",
				"totalBorrowBalanceUSD":  "40",
			})
		}
		return http.StatusOK, map[string]any{"data": map[string]any{"snapshots": snaps}}
	})
	sg := newTestSubgraph(srv.URL, nil)

	h, err := sg.MarketHistoricalData(context.Background(), 1, "0xabc", types.TimeRange{StartTimestamp: 0, EndTimestamp: 15 * day, Interval: "week"})
	require.NoError(t, err)
	require.Len(t, h.SupplyAPY, 3)
	assert.Equal(t, []int64{0, 7 * day, 14 * day}, []int64{h.SupplyAPY[0].X, h.SupplyAPY[1].X, h.SupplyAPY[2].X})
	assert.InDelta(t, 0.05, h.SupplyAPY[0].Y, 1e-12)
	assert.InDelta(t, 0.4, h.Utilization[1].Y, 1e-12)
	assert.Contains(t, srv.request(0).Query, "marketDailySnapshots")
	assert.Equal(t, "0", srv.request(0).Variables["from"])
}

func TestSubgraph_HourlyHistoryUsesHourlySnapshots(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) { return http.StatusOK, `{"data":{"snapshots":[]}}` })

	h, err := newTestSubgraph(srv.URL, nil).MarketHistoricalData(context.Background(), 1, "0xabc", types.TimeRange{Interval: "HOUR"})
	require.NoError(t, err)
	assert.NotNil(t, h.BorrowAPY)
	assert.Empty(t, h.BorrowAPY)
	assert.Contains(t, srv.request(0).Query, "marketHourlySnapshots")
}

func TestSubgraph_UnavailableChain(t *testing.T) {
	sg := NewSubgraph(nil, nil, nil, nil, nil)
	assert.False(t, sg.Supports(1))

	_, err := sg.Market(context.Background(), 1, "0xabc")
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = sg.MarketSuppliers(context.Background(), 1, "0xabc", "0", types.PageRequest{First: 1})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSubgraph_VaultsNotIndexed(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) { return http.StatusOK, `{"data":{}}` })
	sg := newTestSubgraph(srv.URL, nil)

	_, err := sg.VaultDetails(context.Background(), 1, "0xvault")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	_, err = sg.VaultCaps(context.Background(), 1, "0xvault")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Zero(t, srv.calls())
}

func TestSubgraph_ErrorSurfacesWithoutRetry(t *testing.T) {
	srv := newGQLServer(t, func(int, request) (int, any) {
		return http.StatusOK, `{"errors":[{"message":"indexing_error"}]}`
	})

	_, err := newTestSubgraph(srv.URL, nil).Markets(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing_error")
	assert.Equal(t, 1, srv.calls())
}
