package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/tokens"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// Subgraph serves the DataSource methods from per-chain Morpho Blue
// subgraphs. A chain without an endpoint yields ErrSourceUnavailable.
type Subgraph struct {
	endpoints map[int64]*plainFetcher
	registry  Registry
	prices    *PriceOracle
	pager     *PositionPager
	log       *logger.Entry
	ceiling   int
}

// NewSubgraph creates a subgraph source. prices may be nil, which disables
// USD estimation for pegged tokens.
func NewSubgraph(endpoints map[int64]*API, registry Registry, prices *PriceOracle, pager *PositionPager, log *logger.Entry) *Subgraph {
	s := &Subgraph{
		endpoints: make(map[int64]*plainFetcher, len(endpoints)),
		registry:  registry,
		prices:    prices,
		pager:     pager,
		log:       logger.OrDiscard(log, "subgraph"),
		ceiling:   constants.SubgraphFetchCeiling,
	}
	for id, api := range endpoints {
		if api != nil {
			s.endpoints[id] = &plainFetcher{api: api}
		}
	}
	if s.pager == nil {
		s.pager = NewPositionPager(nil, 0, nil)
	}
	return s
}

func (s *Subgraph) Name() string { return "subgraph" }

// Supports reports whether a subgraph endpoint is configured for chainID
func (s *Subgraph) Supports(chainID int64) bool { return s.endpoints[chainID] != nil }

func (s *Subgraph) fetch(ctx context.Context, chainID int64, query string, vars map[string]any, out any) error {
	f := s.endpoints[chainID]
	if f == nil {
		return fmt.Errorf("subgraph chain %d: %w", chainID, ErrSourceUnavailable)
	}
	return f.fetch(ctx, query, vars, out)
}

type sgToken struct {
	ID           *string   `json:"id"`
	Symbol       *string   `json:"symbol"`
	Decimals     *int      `json:"decimals"`
	LastPriceUSD numString `json:"lastPriceUSD"`
}

type sgRate struct {
	Rate numString `json:"rate"`
	Side string    `json:"side"`
}

type sgMarket struct {
	ID         *string   `json:"id"`
	Lltv       numString `json:"lltv"`
	Irm        *string   `json:"irm"`
	Fee        numString `json:"fee"`
	LastUpdate numString `json:"lastUpdate"`
	Oracle     *struct {
		OracleAddress *string `json:"oracleAddress"`
	} `json:"oracle"`
	InputToken          *sgToken  `json:"inputToken"`
	BorrowedToken       *sgToken  `json:"borrowedToken"`
	TotalSupply         numString `json:"totalSupply"`
	TotalBorrow         numString `json:"totalBorrow"`
	TotalSupplyShares   numString `json:"totalSupplyShares"`
	TotalBorrowShares   numString `json:"totalBorrowShares"`
	TotalCollateral     numString `json:"totalCollateral"`
	Rates               []sgRate  `json:"rates"`
	BadDebtRealizations []struct {
		BadDebt numString `json:"badDebt"`
	} `json:"badDebtRealizations"`
}

// ratesToAPY splits subgraph rates (percent) into supply and borrow fractions
func ratesToAPY(rates []sgRate) (supply, borrow float64) {
	for _, r := range rates {
		switch strings.ToUpper(r.Side) {
		case "LENDER":
			supply = r.Rate.asFloat() / 100
		case "BORROWER":
			borrow = r.Rate.asFloat() / 100
		}
	}
	return supply, borrow
}

// tokenAsset converts a subgraph token, estimating its USD price from the
// peg when the subgraph has none. estimated reports whether that happened.
func (s *Subgraph) tokenAsset(ctx context.Context, t *sgToken, chainID int64) (asset types.Asset, estimated bool) {
	if t == nil {
		return types.Asset{Address: "0x", Symbol: unknownSymbol, Decimals: 18}, false
	}
	asset = types.Asset{
		Address:  strOr(t.ID, "0x"),
		Symbol:   strOr(t.Symbol, unknownSymbol),
		Decimals: intOr(t.Decimals, 18),
	}
	if p := t.LastPriceUSD.asFloat(); p > 0 {
		asset.PriceUSD = &p
		return asset, false
	}
	if s.prices == nil || s.registry == nil {
		return asset, false
	}
	tok, ok := s.registry.FindToken(asset.Address, chainID)
	if !ok || tok.Peg == tokens.PegNone {
		return asset, false
	}
	if p := s.prices.PegPrice(ctx, tok.Peg); p > 0 {
		asset.PriceUSD = &p
		return asset, true
	}
	return asset, false
}

func usdValue(amount string, a types.Asset) float64 {
	if a.PriceUSD == nil {
		return 0
	}
	return utils.ToFloat(amount, a.Decimals) * *a.PriceUSD
}

func (s *Subgraph) toMarket(ctx context.Context, raw sgMarket, chainID int64) types.Market {
	loan, loanEstimated := s.tokenAsset(ctx, raw.BorrowedToken, chainID)
	collateral, collEstimated := s.tokenAsset(ctx, raw.InputToken, chainID)

	out := types.Market{
		UniqueKey:       strOr(raw.ID, ""),
		ChainID:         chainID,
		LoanAsset:       loan,
		CollateralAsset: collateral,
		IrmAddress:      strOr(raw.Irm, "0x"),
		OracleAddress:   "0x",
		Lltv:            raw.Lltv.or("0"),
		RealizedBadDebt: "0",
	}
	if raw.Oracle != nil {
		out.OracleAddress = strOr(raw.Oracle.OracleAddress, "0x")
	}

	supply := raw.TotalSupply.or("0")
	borrow := raw.TotalBorrow.or("0")
	liquidity := new(big.Int).Sub(utils.BigOrZero(supply), utils.BigOrZero(borrow))
	if liquidity.Sign() < 0 {
		liquidity.SetInt64(0)
	}
	supplyAPY, borrowAPY := ratesToAPY(raw.Rates)

	out.State = types.MarketState{
		SupplyAssets:     supply,
		BorrowAssets:     borrow,
		SupplyShares:     raw.TotalSupplyShares.or("0"),
		BorrowShares:     raw.TotalBorrowShares.or("0"),
		CollateralAssets: raw.TotalCollateral.or("0"),
		LiquidityAssets:  liquidity.String(),
		SupplyAPY:        supplyAPY,
		BorrowAPY:        borrowAPY,
		Fee:              utils.ToFloat(raw.Fee.or("0"), constants.WADDecimals),
		Timestamp:        raw.LastUpdate.asInt(),
		Utilization:      types.ComputeUtilization(supply, borrow),
	}
	out.State.SupplyAssetsUSD = usdValue(supply, loan)
	out.State.BorrowAssetsUSD = usdValue(borrow, loan)
	out.State.LiquidityAssetsUSD = usdValue(out.State.LiquidityAssets, loan)
	out.State.CollateralAssetsUSD = usdValue(out.State.CollateralAssets, collateral)

	badDebt := new(big.Int)
	for _, r := range raw.BadDebtRealizations {
		badDebt.Add(badDebt, utils.BigOrZero(r.BadDebt.or("0")))
	}
	out.RealizedBadDebt = badDebt.String()

	if loanEstimated || collEstimated {
		out.Warnings = append(out.Warnings, types.NewWarning(types.WarningPriceIsEstimated))
	}
	annotateMarket(&out, s.registry)
	return out
}

// Market fetches one market by id
func (s *Subgraph) Market(ctx context.Context, chainID int64, uniqueKey string) (*types.Market, error) {
	var resp struct {
		Market *sgMarket `json:"market"`
	}
	if err := s.fetch(ctx, chainID, sgMarketQuery, map[string]any{"id": strings.ToLower(uniqueKey)}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", uniqueKey, err)
	}
	if resp.Market == nil {
		return nil, nil
	}
	m := s.toMarket(ctx, *resp.Market, chainID)
	return &m, nil
}

// Markets walks every market of the chain by id cursor
func (s *Subgraph) Markets(ctx context.Context, chainID int64) ([]types.Market, error) {
	var all []types.Market
	lastID := ""

	for {
		var resp struct {
			Markets []sgMarket `json:"markets"`
		}
		if err := s.fetch(ctx, chainID, sgMarketsQuery, map[string]any{
			"first":  s.ceiling,
			"lastId": lastID,
		}, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch markets after %q: %w", lastID, err)
		}

		for _, raw := range resp.Markets {
			all = append(all, s.toMarket(ctx, raw, chainID))
		}
		if len(resp.Markets) < s.ceiling {
			break
		}
		next := strOr(resp.Markets[len(resp.Markets)-1].ID, "")
		if next == "" || next == lastID {
			break
		}
		lastID = next
	}

	s.log.WithFields(logger.Fields{"chain": chainID, "markets": len(all)}).Debug("fetched markets")
	return all, nil
}

type sgEvent struct {
	Hash      *string   `json:"hash"`
	Timestamp numString `json:"timestamp"`
	Amount    numString `json:"amount"`
	Account   *struct {
		ID *string `json:"id"`
	} `json:"account"`
}

func toActivity(events []sgEvent, kind types.ActivityType) []types.MarketActivityTransaction {
	out := make([]types.MarketActivityTransaction, 0, len(events))
	for _, e := range events {
		tx := types.MarketActivityTransaction{
			Type:      kind,
			Hash:      strOr(e.Hash, ""),
			Timestamp: e.Timestamp.asInt(),
			Amount:    e.Amount.or("0"),
		}
		if e.Account != nil {
			tx.UserAddress = strOr(e.Account.ID, "")
		}
		out = append(out, tx)
	}
	return out
}

// activity fetches two event streams up to the ceiling each, merges them
// most recent first and slices the requested page
func (s *Subgraph) activity(ctx context.Context, chainID int64, query, uniqueKey, minAssets string, page types.PageRequest, kinds [2]types.ActivityType, fields [2]string) (types.Page[types.MarketActivityTransaction], error) {
	resp := map[string][]sgEvent{}
	if err := s.fetch(ctx, chainID, query, map[string]any{
		"market":    strings.ToLower(uniqueKey),
		"first":     s.ceiling,
		"minAssets": utils.BigOrZero(minAssets).String(),
	}, &resp); err != nil {
		return types.Page[types.MarketActivityTransaction]{}, fmt.Errorf("failed to fetch %s/%s for %s: %w", kinds[0], kinds[1], uniqueKey, err)
	}

	first, second := resp[fields[0]], resp[fields[1]]
	merged := append(toActivity(first, kinds[0]), toActivity(second, kinds[1])...)
	types.SortActivity(merged)

	exact := len(first) < s.ceiling && len(second) < s.ceiling
	return types.SlicePage(merged, page, exact), nil
}

// MarketSupplies returns supply and withdraw events
func (s *Subgraph) MarketSupplies(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error) {
	return s.activity(ctx, chainID, sgSuppliesQuery, uniqueKey, minAssets, page,
		[2]types.ActivityType{types.ActivitySupply, types.ActivityWithdraw}, [2]string{"deposits", "withdraws"})
}

// MarketBorrows returns borrow and repay events
func (s *Subgraph) MarketBorrows(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error) {
	return s.activity(ctx, chainID, sgBorrowsQuery, uniqueKey, minAssets, page,
		[2]types.ActivityType{types.ActivityBorrow, types.ActivityRepay}, [2]string{"borrows", "repays"})
}

// MarketLiquidations merges liquidations with bad debt realizations. A
// realization is folded into the liquidation that produced it; one without a
// matching liquidation is reported on its own.
func (s *Subgraph) MarketLiquidations(ctx context.Context, chainID int64, uniqueKey string) ([]types.MarketLiquidationTransaction, error) {
	var resp struct {
		Liquidates []struct {
			ID         *string   `json:"id"`
			Hash       *string   `json:"hash"`
			Timestamp  numString `json:"timestamp"`
			Liquidator *struct {
				ID *string `json:"id"`
			} `json:"liquidator"`
			Account *struct {
				ID *string `json:"id"`
			} `json:"account"`
			Amount numString `json:"amount"`
			Repaid numString `json:"repaid"`
		} `json:"liquidates"`
		BadDebtRealizations []struct {
			ID          *string   `json:"id"`
			Timestamp   numString `json:"timestamp"`
			BadDebt     numString `json:"badDebt"`
			Liquidation *struct {
				ID   *string `json:"id"`
				Hash *string `json:"hash"`
			} `json:"liquidation"`
		} `json:"badDebtRealizations"`
	}
	if err := s.fetch(ctx, chainID, sgLiquidationsQuery, map[string]any{
		"market": strings.ToLower(uniqueKey),
		"first":  s.ceiling,
	}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch liquidations for %s: %w", uniqueKey, err)
	}

	out := make([]types.MarketLiquidationTransaction, 0, len(resp.Liquidates))
	byID := make(map[string]int, len(resp.Liquidates))
	for _, l := range resp.Liquidates {
		tx := types.MarketLiquidationTransaction{
			Type:          types.ActivityLiquidation,
			Hash:          strOr(l.Hash, ""),
			Timestamp:     l.Timestamp.asInt(),
			RepaidAssets:  l.Repaid.or("0"),
			SeizedAssets:  l.Amount.or("0"),
			BadDebtAssets: "0",
		}
		if l.Liquidator != nil {
			tx.Liquidator = strOr(l.Liquidator.ID, "")
		}
		if l.Account != nil {
			tx.Borrower = strOr(l.Account.ID, "")
		}
		if id := strOr(l.ID, ""); id != "" {
			byID[id] = len(out)
		}
		out = append(out, tx)
	}

	for _, r := range resp.BadDebtRealizations {
		if r.Liquidation != nil {
			if i, ok := byID[strOr(r.Liquidation.ID, "")]; ok {
				out[i].BadDebtAssets = r.BadDebt.or("0")
				continue
			}
		}
		tx := types.MarketLiquidationTransaction{
			Type:          types.ActivityBadDebt,
			Hash:          strOr(r.ID, ""),
			Timestamp:     r.Timestamp.asInt(),
			RepaidAssets:  "0",
			SeizedAssets:  "0",
			BadDebtAssets: r.BadDebt.or("0"),
		}
		if r.Liquidation != nil {
			tx.Hash = strOr(r.Liquidation.Hash, tx.Hash)
		}
		out = append(out, tx)
	}

	types.SortLiquidations(out)
	return out, nil
}

type sgPosition struct {
	Account *struct {
		ID *string `json:"id"`
	} `json:"account"`
	Shares  numString `json:"shares"`
	Balance numString `json:"balance"`
}

func (p sgPosition) account() string {
	if p.Account == nil {
		return ""
	}
	return strOr(p.Account.ID, "")
}

func (s *Subgraph) loadPositions(chainID int64, uniqueKey, minShares string, side PositionSide) PositionLoader {
	return func(ctx context.Context, limit int) ([]types.MarketPosition, error) {
		sgSide := "SUPPLIER"
		if side == SideBorrower {
			sgSide = "BORROWER"
		}
		var resp struct {
			Positions []sgPosition `json:"positions"`
		}
		if err := s.fetch(ctx, chainID, sgPositionsQuery, map[string]any{
			"market":    strings.ToLower(uniqueKey),
			"side":      sgSide,
			"first":     limit,
			"minShares": utils.BigOrZero(minShares).String(),
		}, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch %s positions for %s: %w", side, uniqueKey, err)
		}

		out := make([]types.MarketPosition, 0, len(resp.Positions))
		for _, p := range resp.Positions {
			pos := types.MarketPosition{
				UserAddress:      p.account(),
				MarketUniqueKey:  uniqueKey,
				SupplyShares:     "0",
				SupplyAssets:     "0",
				BorrowShares:     "0",
				BorrowAssets:     "0",
				CollateralAssets: "0",
			}
			if side == SideBorrower {
				pos.BorrowShares = p.Shares.or("0")
				pos.BorrowAssets = p.Balance.or("0")
			} else {
				pos.SupplyShares = p.Shares.or("0")
				pos.SupplyAssets = p.Balance.or("0")
			}
			out = append(out, pos)
		}

		if side == SideBorrower && len(out) > 0 {
			if err := s.attachCollateral(ctx, chainID, uniqueKey, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

func (s *Subgraph) attachCollateral(ctx context.Context, chainID int64, uniqueKey string, positions []types.MarketPosition) error {
	accounts := make([]string, 0, len(positions))
	for _, p := range positions {
		accounts = append(accounts, p.UserAddress)
	}
	var resp struct {
		Positions []sgPosition `json:"positions"`
	}
	if err := s.fetch(ctx, chainID, sgCollateralQuery, map[string]any{
		"market":   strings.ToLower(uniqueKey),
		"accounts": accounts,
	}, &resp); err != nil {
		return fmt.Errorf("failed to fetch collateral for %s: %w", uniqueKey, err)
	}

	collateral := make(map[string]string, len(resp.Positions))
	for _, p := range resp.Positions {
		collateral[utils.NormalizeAddress(p.account())] = p.Balance.or("0")
	}
	for i := range positions {
		if c, ok := collateral[utils.NormalizeAddress(positions[i].UserAddress)]; ok {
			positions[i].CollateralAssets = c
		}
	}
	return nil
}

func (s *Subgraph) positions(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest, side PositionSide) (types.Page[types.MarketPosition], error) {
	if !s.Supports(chainID) {
		return types.Page[types.MarketPosition]{}, fmt.Errorf("subgraph chain %d: %w", chainID, ErrSourceUnavailable)
	}
	key := PositionKey{Network: chainID, MarketID: uniqueKey, MinShares: minShares, Side: side}
	return s.pager.Page(ctx, key, page, s.loadPositions(chainID, uniqueKey, minShares, side))
}

// MarketSuppliers returns a page of the cached supplier snapshot
func (s *Subgraph) MarketSuppliers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error) {
	return s.positions(ctx, chainID, uniqueKey, minShares, page, SideSupplier)
}

// MarketBorrowers returns a page of the cached borrower snapshot
func (s *Subgraph) MarketBorrowers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error) {
	return s.positions(ctx, chainID, uniqueKey, minShares, page, SideBorrower)
}

const secondsPerWeek = 7 * 24 * 3600

// MarketHistoricalData builds the series from hourly or daily snapshots.
// WEEK keeps one daily snapshot per seven days.
func (s *Subgraph) MarketHistoricalData(ctx context.Context, chainID int64, uniqueKey string, tr types.TimeRange) (*types.MarketHistoricalData, error) {
	query := sgDailySnapshotsQuery
	interval := strings.ToUpper(tr.Interval)
	if interval == "HOUR" {
		query = sgHourlySnapshotsQuery
	}

	var resp struct {
		Snapshots []struct {
			Timestamp              numString `json:"timestamp"`
			Rates                  []sgRate  `json:"rates"`
			TotalDepositBalanceUSD numString `json:"totalDepositBalanceUSD"`
			TotalBorrowBalanceUSD  numString `json:"totalBorrowBalanceUSD"`
		} `json:"snapshots"`
	}
	if err := s.fetch(ctx, chainID, query, map[string]any{
		"market": strings.ToLower(uniqueKey),
		"from":   fmt.Sprint(tr.StartTimestamp),
		"to":     fmt.Sprint(tr.EndTimestamp),
	}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", uniqueKey, err)
	}

	out := &types.MarketHistoricalData{
		SupplyAPY:    []types.HistoricalPoint{},
		BorrowAPY:    []types.HistoricalPoint{},
		SupplyAssets: []types.HistoricalPoint{},
		BorrowAssets: []types.HistoricalPoint{},
		Utilization:  []types.HistoricalPoint{},
	}
	var last int64
	for i, snap := range resp.Snapshots {
		ts := snap.Timestamp.asInt()
		if interval == "WEEK" && i > 0 && ts-last < secondsPerWeek {
			continue
		}
		last = ts

		supplyAPY, borrowAPY := ratesToAPY(snap.Rates)
		supplyUSD := snap.TotalDepositBalanceUSD.asFloat()
		borrowUSD := snap.TotalBorrowBalanceUSD.asFloat()
		util := 0.0
		if supplyUSD > 0 {
			util = borrowUSD / supplyUSD
		}

		out.SupplyAPY = append(out.SupplyAPY, types.HistoricalPoint{X: ts, Y: supplyAPY})
		out.BorrowAPY = append(out.BorrowAPY, types.HistoricalPoint{X: ts, Y: borrowAPY})
		out.SupplyAssets = append(out.SupplyAssets, types.HistoricalPoint{X: ts, Y: supplyUSD})
		out.BorrowAssets = append(out.BorrowAssets, types.HistoricalPoint{X: ts, Y: borrowUSD})
		out.Utilization = append(out.Utilization, types.HistoricalPoint{X: ts, Y: util})
	}
	return out, nil
}

// VaultDetails is not indexed by the Morpho Blue subgraph
func (s *Subgraph) VaultDetails(_ context.Context, chainID int64, vault string) (*types.VaultDetails, error) {
	return nil, fmt.Errorf("vault %s on chain %d is not indexed by the subgraph: %w", vault, chainID, ErrSourceUnavailable)
}

// VaultCaps is not indexed by the Morpho Blue subgraph
func (s *Subgraph) VaultCaps(_ context.Context, chainID int64, vault string) ([]types.VaultV2Cap, error) {
	return nil, fmt.Errorf("vault %s on chain %d is not indexed by the subgraph: %w", vault, chainID, ErrSourceUnavailable)
}
