package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// MorphoAPI serves every DataSource method from the hosted Morpho API
type MorphoAPI struct {
	*API
	fetcher  *retryingFetcher
	registry Registry
	chains   map[int64]bool

	// PageSize is the page size used to walk the market list
	PageSize int
}

// NewMorphoAPI wraps api. chains lists the chain ids the API indexes; nil
// uses constants.APIChains.
func NewMorphoAPI(api *API, policy RetryPolicy, registry Registry, chains []int64) *MorphoAPI {
	supported := make(map[int64]bool)
	if chains == nil {
		for id := range constants.APIChains {
			supported[int64(id)] = true
		}
	}
	for _, id := range chains {
		supported[id] = true
	}
	return &MorphoAPI{
		API:      api,
		fetcher:  &retryingFetcher{api: api, policy: policy, sleep: sleepContext},
		registry: registry,
		chains:   supported,
		PageSize: constants.APIPageSize,
	}
}

func (m *MorphoAPI) Name() string { return "api" }

// Supports reports whether the API indexes chainID
func (m *MorphoAPI) Supports(chainID int64) bool { return m.chains[chainID] }

func (m *MorphoAPI) fetch(ctx context.Context, chainID int64, query string, vars map[string]any, out any) (bool, error) {
	if !m.chains[chainID] {
		return false, fmt.Errorf("api chain %d: %w", chainID, ErrSourceUnavailable)
	}
	return m.fetcher.fetch(ctx, query, vars, out)
}

type apiAsset struct {
	Address  *string  `json:"address"`
	Symbol   *string  `json:"symbol"`
	Decimals *int     `json:"decimals"`
	PriceUsd *float64 `json:"priceUsd"`
}

type apiMarket struct {
	UniqueKey     *string   `json:"uniqueKey"`
	Lltv          numString `json:"lltv"`
	OracleAddress *string   `json:"oracleAddress"`
	IrmAddress    *string   `json:"irmAddress"`
	MorphoBlue    *struct {
		Chain *struct {
			ID int64 `json:"id"`
		} `json:"chain"`
	} `json:"morphoBlue"`
	LoanAsset       *apiAsset `json:"loanAsset"`
	CollateralAsset *apiAsset `json:"collateralAsset"`
	State           *struct {
		SupplyAssets        numString `json:"supplyAssets"`
		BorrowAssets        numString `json:"borrowAssets"`
		SupplyShares        numString `json:"supplyShares"`
		BorrowShares        numString `json:"borrowShares"`
		CollateralAssets    numString `json:"collateralAssets"`
		LiquidityAssets     numString `json:"liquidityAssets"`
		SupplyAssetsUsd     numString `json:"supplyAssetsUsd"`
		BorrowAssetsUsd     numString `json:"borrowAssetsUsd"`
		CollateralAssetsUsd numString `json:"collateralAssetsUsd"`
		LiquidityAssetsUsd  numString `json:"liquidityAssetsUsd"`
		SupplyApy           numString `json:"supplyApy"`
		BorrowApy           numString `json:"borrowApy"`
		Fee                 numString `json:"fee"`
		Timestamp           numString `json:"timestamp"`
	} `json:"state"`
	RealizedBadDebt *struct {
		Underlying numString `json:"underlying"`
	} `json:"realizedBadDebt"`
	Warnings []struct {
		Type  string `json:"type"`
		Level string `json:"level"`
	} `json:"warnings"`
}

type apiPageInfo struct {
	CountTotal int `json:"countTotal"`
	Count      int `json:"count"`
}

func toAsset(a *apiAsset) types.Asset {
	if a == nil {
		return types.Asset{Address: "0x", Symbol: unknownSymbol}
	}
	return types.Asset{
		Address:  strOr(a.Address, "0x"),
		Symbol:   strOr(a.Symbol, unknownSymbol),
		Decimals: intOr(a.Decimals, 18),
		PriceUSD: a.PriceUsd,
	}
}

func (m *MorphoAPI) toMarket(raw apiMarket, chainID int64) types.Market {
	out := types.Market{
		UniqueKey:       strOr(raw.UniqueKey, ""),
		ChainID:         chainID,
		LoanAsset:       toAsset(raw.LoanAsset),
		CollateralAsset: toAsset(raw.CollateralAsset),
		OracleAddress:   strOr(raw.OracleAddress, "0x"),
		IrmAddress:      strOr(raw.IrmAddress, "0x"),
		Lltv:            raw.Lltv.or("0"),
		RealizedBadDebt: "0",
	}
	if raw.MorphoBlue != nil && raw.MorphoBlue.Chain != nil && raw.MorphoBlue.Chain.ID != 0 {
		out.ChainID = raw.MorphoBlue.Chain.ID
	}

	if s := raw.State; s != nil {
		out.State = types.MarketState{
			SupplyAssets:        s.SupplyAssets.or("0"),
			BorrowAssets:        s.BorrowAssets.or("0"),
			SupplyShares:        s.SupplyShares.or("0"),
			BorrowShares:        s.BorrowShares.or("0"),
			CollateralAssets:    s.CollateralAssets.or("0"),
			LiquidityAssets:     s.LiquidityAssets.or("0"),
			SupplyAssetsUSD:     s.SupplyAssetsUsd.asFloat(),
			BorrowAssetsUSD:     s.BorrowAssetsUsd.asFloat(),
			CollateralAssetsUSD: s.CollateralAssetsUsd.asFloat(),
			LiquidityAssetsUSD:  s.LiquidityAssetsUsd.asFloat(),
			SupplyAPY:           s.SupplyApy.asFloat(),
			BorrowAPY:           s.BorrowApy.asFloat(),
			Fee:                 s.Fee.asFloat(),
			Timestamp:           s.Timestamp.asInt(),
		}
	} else {
		out.State = zeroState()
	}
	out.State.Utilization = types.ComputeUtilization(out.State.SupplyAssets, out.State.BorrowAssets)

	if raw.RealizedBadDebt != nil {
		out.RealizedBadDebt = raw.RealizedBadDebt.Underlying.or("0")
	}

	for _, w := range raw.Warnings {
		if t, ok := apiWarningType(w.Type); ok {
			out.Warnings = append(out.Warnings, types.NewWarning(t))
		}
	}
	annotateMarket(&out, m.registry)
	return out
}

func zeroState() types.MarketState {
	return types.MarketState{
		SupplyAssets:     "0",
		BorrowAssets:     "0",
		SupplyShares:     "0",
		BorrowShares:     "0",
		CollateralAssets: "0",
		LiquidityAssets:  "0",
	}
}

// Market fetches one market by unique key
func (m *MorphoAPI) Market(ctx context.Context, chainID int64, uniqueKey string) (*types.Market, error) {
	var resp struct {
		MarketByUniqueKey *apiMarket `json:"marketByUniqueKey"`
	}
	found, err := m.fetch(ctx, chainID, apiMarketQuery, map[string]any{
		"uniqueKey": uniqueKey,
		"chainId":   chainID,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", uniqueKey, err)
	}
	if !found || resp.MarketByUniqueKey == nil {
		return nil, nil
	}
	market := m.toMarket(*resp.MarketByUniqueKey, chainID)
	return &market, nil
}

// Markets walks the paginated market list of a chain
func (m *MorphoAPI) Markets(ctx context.Context, chainID int64) ([]types.Market, error) {
	pageSize := max(m.PageSize, 1)
	var all []types.Market

	for skip := 0; ; {
		var resp struct {
			Markets *struct {
				Items    []apiMarket  `json:"items"`
				PageInfo *apiPageInfo `json:"pageInfo"`
			} `json:"markets"`
		}
		found, err := m.fetch(ctx, chainID, apiMarketsQuery, map[string]any{
			"first": pageSize,
			"skip":  skip,
			"where": map[string]any{"chainId_in": []int64{chainID}},
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch markets (skip %d): %w", skip, err)
		}
		if !found || resp.Markets == nil || len(resp.Markets.Items) == 0 {
			// an empty page before the reported total means the backend is misbehaving
			break
		}

		for _, raw := range resp.Markets.Items {
			all = append(all, m.toMarket(raw, chainID))
		}

		count, total := len(resp.Markets.Items), len(all)
		if pi := resp.Markets.PageInfo; pi != nil {
			if pi.Count > 0 {
				count = pi.Count
			}
			total = pi.CountTotal
		}
		skip += count
		if skip >= total {
			break
		}
	}

	m.log.WithFields(logger.Fields{"chain": chainID, "markets": len(all)}).Debug("fetched markets")
	return all, nil
}

type apiTransaction struct {
	Hash      *string   `json:"hash"`
	Timestamp numString `json:"timestamp"`
	Type      *string   `json:"type"`
	User      *struct {
		Address *string `json:"address"`
	} `json:"user"`
	Data *struct {
		Assets        numString `json:"assets"`
		Liquidator    *string   `json:"liquidator"`
		RepaidAssets  numString `json:"repaidAssets"`
		SeizedAssets  numString `json:"seizedAssets"`
		BadDebtAssets numString `json:"badDebtAssets"`
	} `json:"data"`
}

type apiTransactions struct {
	Transactions *struct {
		Items    []apiTransaction `json:"items"`
		PageInfo *apiPageInfo     `json:"pageInfo"`
	} `json:"transactions"`
}

var apiActivityTypes = map[string]types.ActivityType{
	"MarketSupply":   types.ActivitySupply,
	"MarketWithdraw": types.ActivityWithdraw,
	"MarketBorrow":   types.ActivityBorrow,
	"MarketRepay":    types.ActivityRepay,
}

func (m *MorphoAPI) activity(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest, kinds []string) (types.Page[types.MarketActivityTransaction], error) {
	where := map[string]any{
		"marketUniqueKey_in": []string{uniqueKey},
		"chainId_in":         []int64{chainID},
		"type_in":            kinds,
	}
	if v := utils.BigOrZero(minAssets); v.Sign() > 0 {
		where["assets_gte"] = v.String()
	}

	var resp apiTransactions
	found, err := m.fetch(ctx, chainID, apiTransactionsQuery, map[string]any{
		"first": page.First,
		"skip":  page.Skip,
		"where": where,
	}, &resp)
	if err != nil {
		return types.Page[types.MarketActivityTransaction]{}, fmt.Errorf("failed to fetch %s for %s: %w", strings.Join(kinds, "/"), uniqueKey, err)
	}

	out := types.Page[types.MarketActivityTransaction]{Items: []types.MarketActivityTransaction{}, IsExact: true}
	if !found || resp.Transactions == nil {
		return out, nil
	}
	for _, tx := range resp.Transactions.Items {
		kind, ok := apiActivityTypes[strOr(tx.Type, "")]
		if !ok {
			continue
		}
		item := types.MarketActivityTransaction{
			Type:      kind,
			Hash:      strOr(tx.Hash, ""),
			Timestamp: tx.Timestamp.asInt(),
			Amount:    "0",
		}
		if tx.User != nil {
			item.UserAddress = strOr(tx.User.Address, "")
		}
		if tx.Data != nil {
			item.Amount = tx.Data.Assets.or("0")
		}
		out.Items = append(out.Items, item)
	}
	types.SortActivity(out.Items)
	if pi := resp.Transactions.PageInfo; pi != nil {
		out.TotalCount = pi.CountTotal
	} else {
		out.TotalCount = len(out.Items)
	}
	return out, nil
}

// MarketSupplies returns supply and withdraw events
func (m *MorphoAPI) MarketSupplies(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error) {
	return m.activity(ctx, chainID, uniqueKey, minAssets, page, []string{"MarketSupply", "MarketWithdraw"})
}

// MarketBorrows returns borrow and repay events
func (m *MorphoAPI) MarketBorrows(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error) {
	return m.activity(ctx, chainID, uniqueKey, minAssets, page, []string{"MarketBorrow", "MarketRepay"})
}

// MarketLiquidations returns every liquidation of a market. Bad debt is
// reported on the liquidation that realized it.
func (m *MorphoAPI) MarketLiquidations(ctx context.Context, chainID int64, uniqueKey string) ([]types.MarketLiquidationTransaction, error) {
	out := []types.MarketLiquidationTransaction{}

	for skip := 0; ; {
		var resp apiTransactions
		found, err := m.fetch(ctx, chainID, apiTransactionsQuery, map[string]any{
			"first": max(m.PageSize, 1),
			"skip":  skip,
			"where": map[string]any{
				"marketUniqueKey_in": []string{uniqueKey},
				"chainId_in":         []int64{chainID},
				"type_in":            []string{"MarketLiquidation"},
			},
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch liquidations for %s: %w", uniqueKey, err)
		}
		if !found || resp.Transactions == nil || len(resp.Transactions.Items) == 0 {
			break
		}

		for _, tx := range resp.Transactions.Items {
			item := types.MarketLiquidationTransaction{
				Type:          types.ActivityLiquidation,
				Hash:          strOr(tx.Hash, ""),
				Timestamp:     tx.Timestamp.asInt(),
				RepaidAssets:  "0",
				SeizedAssets:  "0",
				BadDebtAssets: "0",
			}
			if tx.User != nil {
				item.Borrower = strOr(tx.User.Address, "")
			}
			if d := tx.Data; d != nil {
				item.Liquidator = strOr(d.Liquidator, "")
				item.RepaidAssets = d.RepaidAssets.or("0")
				item.SeizedAssets = d.SeizedAssets.or("0")
				item.BadDebtAssets = d.BadDebtAssets.or("0")
			}
			out = append(out, item)
		}

		skip += len(resp.Transactions.Items)
		if pi := resp.Transactions.PageInfo; pi == nil || skip >= pi.CountTotal {
			break
		}
	}

	types.SortLiquidations(out)
	return out, nil
}

type apiPositions struct {
	MarketPositions *struct {
		Items []struct {
			User *struct {
				Address *string `json:"address"`
			} `json:"user"`
			Market *struct {
				UniqueKey *string `json:"uniqueKey"`
			} `json:"market"`
			State *struct {
				SupplyShares numString `json:"supplyShares"`
				SupplyAssets numString `json:"supplyAssets"`
				BorrowShares numString `json:"borrowShares"`
				BorrowAssets numString `json:"borrowAssets"`
				Collateral   numString `json:"collateral"`
			} `json:"state"`
		} `json:"items"`
		PageInfo *apiPageInfo `json:"pageInfo"`
	} `json:"marketPositions"`
}

func (m *MorphoAPI) positions(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest, side PositionSide) (types.Page[types.MarketPosition], error) {
	where := map[string]any{
		"marketUniqueKey_in": []string{uniqueKey},
		"chainId_in":         []int64{chainID},
	}
	orderBy := "SupplyShares"
	sharesFilter := "supplyShares_gte"
	if side == SideBorrower {
		orderBy = "BorrowShares"
		sharesFilter = "borrowShares_gte"
	}
	where[sharesFilter] = utils.BigOrZero(minShares).String()

	var resp apiPositions
	found, err := m.fetch(ctx, chainID, apiPositionsQuery, map[string]any{
		"first":   page.First,
		"skip":    page.Skip,
		"orderBy": orderBy,
		"where":   where,
	}, &resp)
	if err != nil {
		return types.Page[types.MarketPosition]{}, fmt.Errorf("failed to fetch %s positions for %s: %w", side, uniqueKey, err)
	}

	out := types.Page[types.MarketPosition]{Items: []types.MarketPosition{}, IsExact: true}
	if !found || resp.MarketPositions == nil {
		return out, nil
	}
	for _, p := range resp.MarketPositions.Items {
		pos := types.MarketPosition{
			MarketUniqueKey:  uniqueKey,
			SupplyShares:     "0",
			SupplyAssets:     "0",
			BorrowShares:     "0",
			BorrowAssets:     "0",
			CollateralAssets: "0",
		}
		if p.User != nil {
			pos.UserAddress = strOr(p.User.Address, "")
		}
		if p.Market != nil {
			pos.MarketUniqueKey = strOr(p.Market.UniqueKey, uniqueKey)
		}
		if s := p.State; s != nil {
			pos.SupplyShares = s.SupplyShares.or("0")
			pos.SupplyAssets = s.SupplyAssets.or("0")
			pos.BorrowShares = s.BorrowShares.or("0")
			pos.BorrowAssets = s.BorrowAssets.or("0")
			pos.CollateralAssets = s.Collateral.or("0")
		}
		out.Items = append(out.Items, pos)
	}
	if pi := resp.MarketPositions.PageInfo; pi != nil {
		out.TotalCount = pi.CountTotal
	} else {
		out.TotalCount = len(out.Items)
	}
	return out, nil
}

// MarketSuppliers returns supplier positions with at least minShares
func (m *MorphoAPI) MarketSuppliers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error) {
	return m.positions(ctx, chainID, uniqueKey, minShares, page, SideSupplier)
}

// MarketBorrowers returns borrower positions with at least minShares
func (m *MorphoAPI) MarketBorrowers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error) {
	return m.positions(ctx, chainID, uniqueKey, minShares, page, SideBorrower)
}

type apiPoint struct {
	X numString `json:"x"`
	Y numString `json:"y"`
}

func toPoints(raw []apiPoint) []types.HistoricalPoint {
	out := make([]types.HistoricalPoint, 0, len(raw))
	for _, p := range raw {
		out = append(out, types.HistoricalPoint{X: p.X.asInt(), Y: p.Y.asFloat()})
	}
	return out
}

// MarketHistoricalData fetches rate and volume series of a market
func (m *MorphoAPI) MarketHistoricalData(ctx context.Context, chainID int64, uniqueKey string, tr types.TimeRange) (*types.MarketHistoricalData, error) {
	var resp struct {
		MarketByUniqueKey *struct {
			HistoricalState *struct {
				SupplyApy       []apiPoint `json:"supplyApy"`
				BorrowApy       []apiPoint `json:"borrowApy"`
				SupplyAssetsUsd []apiPoint `json:"supplyAssetsUsd"`
				BorrowAssetsUsd []apiPoint `json:"borrowAssetsUsd"`
				Utilization     []apiPoint `json:"utilization"`
			} `json:"historicalState"`
		} `json:"marketByUniqueKey"`
	}
	found, err := m.fetch(ctx, chainID, apiHistoricalQuery, map[string]any{
		"uniqueKey": uniqueKey,
		"chainId":   chainID,
		"options": map[string]any{
			"startTimestamp": tr.StartTimestamp,
			"endTimestamp":   tr.EndTimestamp,
			"interval":       utils.OrDefault(strings.ToUpper(tr.Interval), "DAY"),
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", uniqueKey, err)
	}
	if !found || resp.MarketByUniqueKey == nil || resp.MarketByUniqueKey.HistoricalState == nil {
		return nil, nil
	}
	h := resp.MarketByUniqueKey.HistoricalState
	return &types.MarketHistoricalData{
		SupplyAPY:    toPoints(h.SupplyApy),
		BorrowAPY:    toPoints(h.BorrowApy),
		SupplyAssets: toPoints(h.SupplyAssetsUsd),
		BorrowAssets: toPoints(h.BorrowAssetsUsd),
		Utilization:  toPoints(h.Utilization),
	}, nil
}

type apiAddress struct {
	Address *string `json:"address"`
}

type apiVault struct {
	Address *string `json:"address"`
	Name    *string `json:"name"`
	Symbol  *string `json:"symbol"`
	Chain   *struct {
		ID int64 `json:"id"`
	} `json:"chain"`
	Asset      *apiAsset   `json:"asset"`
	Owner      *apiAddress `json:"owner"`
	Curator    *apiAddress `json:"curator"`
	Allocators []struct {
		Allocator *apiAddress `json:"allocator"`
	} `json:"allocators"`
	Adapters *struct {
		Items []struct {
			Address *string   `json:"address"`
			Type    *string   `json:"type"`
			Assets  numString `json:"assets"`
		} `json:"items"`
	} `json:"adapters"`
	Caps *struct {
		Items []struct {
			ID          *string   `json:"id"`
			IDData      *string   `json:"idData"`
			RelativeCap numString `json:"relativeCap"`
			AbsoluteCap numString `json:"absoluteCap"`
			Allocation  numString `json:"allocation"`
		} `json:"items"`
	} `json:"caps"`
	TotalAssets numString `json:"totalAssets"`
	TotalSupply numString `json:"totalSupply"`
}

func addressOf(a *apiAddress) string {
	if a == nil {
		return ""
	}
	return strOr(a.Address, "")
}

// VaultDetails fetches the configuration and caps of a Vault V2
func (m *MorphoAPI) VaultDetails(ctx context.Context, chainID int64, vault string) (*types.VaultDetails, error) {
	var resp struct {
		VaultV2ByAddress *apiVault `json:"vaultV2ByAddress"`
	}
	found, err := m.fetch(ctx, chainID, apiVaultQuery, map[string]any{
		"address": vault,
		"chainId": chainID,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vault %s: %w", vault, err)
	}
	if !found || resp.VaultV2ByAddress == nil {
		return nil, nil
	}
	v := resp.VaultV2ByAddress

	out := &types.VaultDetails{
		Address:     strOr(v.Address, vault),
		ChainID:     chainID,
		Name:        strOr(v.Name, unknownSymbol),
		Symbol:      strOr(v.Symbol, unknownSymbol),
		Asset:       toAsset(v.Asset),
		Owner:       addressOf(v.Owner),
		Curator:     addressOf(v.Curator),
		Allocators:  []string{},
		Adapters:    []types.VaultAdapter{},
		Caps:        []types.VaultV2Cap{},
		TotalAssets: v.TotalAssets.or("0"),
		TotalSupply: v.TotalSupply.or("0"),
	}
	if v.Chain != nil && v.Chain.ID != 0 {
		out.ChainID = v.Chain.ID
	}
	if m.registry != nil {
		if t, ok := m.registry.FindToken(out.Asset.Address, out.ChainID); ok {
			fillAsset(&out.Asset, t)
		}
	}
	for _, a := range v.Allocators {
		if addr := addressOf(a.Allocator); addr != "" {
			out.Allocators = append(out.Allocators, addr)
		}
	}
	if v.Adapters != nil {
		for _, a := range v.Adapters.Items {
			out.Adapters = append(out.Adapters, types.VaultAdapter{
				Address: strOr(a.Address, ""),
				Type:    strOr(a.Type, unknownSymbol),
				Assets:  a.Assets.or("0"),
			})
		}
	}
	if v.Caps != nil {
		for _, c := range v.Caps.Items {
			out.Caps = append(out.Caps, types.VaultV2Cap{
				CapID:       strOr(c.ID, ""),
				IDParams:    strOr(c.IDData, "0x"),
				RelativeCap: c.RelativeCap.or("0"),
				AbsoluteCap: c.AbsoluteCap.or("0"),
				Allocation:  c.Allocation.or("0"),
			})
		}
	}
	return out, nil
}

// VaultCaps returns the caps of a Vault V2, empty when the vault is unknown
func (m *MorphoAPI) VaultCaps(ctx context.Context, chainID int64, vault string) ([]types.VaultV2Cap, error) {
	details, err := m.VaultDetails(ctx, chainID, vault)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return []types.VaultV2Cap{}, nil
	}
	return details.Caps, nil
}
