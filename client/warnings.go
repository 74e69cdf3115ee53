package client

import (
	"strings"

	"github.com/dwdwow/morpho-go/tokens"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// Registry is the token and oracle metadata the transforms consult
type Registry interface {
	tokens.Finder
	IsWhitelistedOracle(address string, chainID int64) (whitelisted, known bool)
}

type warningSet struct {
	list []types.Warning
	seen map[types.WarningType]bool
}

func newWarningSet(existing []types.Warning) *warningSet {
	s := &warningSet{seen: make(map[types.WarningType]bool)}
	for _, w := range existing {
		s.add(w)
	}
	return s
}

func (s *warningSet) add(w types.Warning) {
	if s.seen[w.Type] {
		return
	}
	s.seen[w.Type] = true
	s.list = append(s.list, w)
}

func (s *warningSet) addType(t types.WarningType) { s.add(types.NewWarning(t)) }

// annotateMarket attaches the warnings both sources synthesize identically:
// unknown tokens, unknown oracle, missing USD price and realized bad debt.
// Token symbols and decimals missing from the backend are filled from the
// registry.
func annotateMarket(m *types.Market, reg Registry) {
	ws := newWarningSet(m.Warnings)

	if reg != nil {
		if t, ok := reg.FindToken(m.LoanAsset.Address, m.ChainID); ok {
			fillAsset(&m.LoanAsset, t)
		} else {
			ws.addType(types.WarningUnrecognizedLoanAsset)
		}
		if t, ok := reg.FindToken(m.CollateralAsset.Address, m.ChainID); ok {
			fillAsset(&m.CollateralAsset, t)
		} else if !isZeroAddress(m.CollateralAsset.Address) {
			ws.addType(types.WarningUnrecognizedCollateralAsset)
		}
		if whitelisted, known := reg.IsWhitelistedOracle(m.OracleAddress, m.ChainID); known && !whitelisted {
			ws.addType(types.WarningUnrecognizedOracle)
		}
	}

	m.HasUSDPrice = m.LoanAsset.PriceUSD != nil
	if !m.HasUSDPrice {
		ws.addType(types.WarningMissingUSDPrice)
	}
	if utils.BigOrZero(m.RealizedBadDebt).Sign() > 0 {
		ws.addType(types.WarningBadDebtRealized)
	}

	m.Warnings = ws.list
	if m.Warnings == nil {
		m.Warnings = []types.Warning{}
	}
}

func fillAsset(a *types.Asset, t tokens.Token) {
	if a.Symbol == "" || a.Symbol == unknownSymbol {
		a.Symbol = t.Symbol
	}
	if a.Decimals == 0 {
		a.Decimals = t.Decimals
	}
}

func isZeroAddress(a string) bool {
	a = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), "0x")
	return strings.Trim(a, "0") == ""
}

// apiWarningType maps a backend warning such as "BAD_DEBT_REALIZED" to ours
func apiWarningType(t string) (types.WarningType, bool) {
	switch wt := types.WarningType(strings.ToLower(t)); wt {
	case types.WarningUnrecognizedLoanAsset,
		types.WarningUnrecognizedCollateralAsset,
		types.WarningUnrecognizedOracle,
		types.WarningBadDebtRealized:
		return wt, true
	default:
		return "", false
	}
}
