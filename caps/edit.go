package caps

import (
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwdwow/morpho-go/capid"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// Defaults of a collateral cap created on behalf of a new market
const (
	ScaffoldRelativePercent = "100"
	ScaffoldAbsolute        = ""
)

// CapInput is one cap as edited by a user. RelativePercent is 0-100;
// Absolute is in vault asset units and blank means no limit.
type CapInput struct {
	RelativePercent string
	Absolute        string
	// ExistingCapID is empty for a cap that does not exist on chain yet
	ExistingCapID string
	// NeedsCreation marks a collateral cap scaffolded for a new market
	NeedsCreation bool
}

// MarketCapInput is a market cap edit together with the market it limits
type MarketCapInput struct {
	CapInput
	Market types.Market
}

// EditState is an immutable snapshot of a cap edit session. Every setter
// returns a new state and leaves the receiver untouched.
type EditState struct {
	adapter    *CapInput
	collateral map[common.Address]CapInput
	markets    map[string]MarketCapInput
}

// NewEditState returns an empty edit state
func NewEditState() EditState {
	return EditState{
		collateral: map[common.Address]CapInput{},
		markets:    map[string]MarketCapInput{},
	}
}

// FromExisting seeds an edit state from on-chain caps. WAD relative caps
// become percents and the unlimited sentinel becomes a blank absolute.
// Market caps are only seeded when their market is found in markets.
func FromExisting(existing Existing, markets []types.Market, decimals int) EditState {
	s := NewEditState()

	for _, c := range existing.Collateral {
		p := capid.ParseCapIDParams(c.IDParams)
		s.collateral[p.CollateralToken] = capInputFrom(c, decimals)
	}

	byKey := make(map[string]types.Market, len(markets))
	for _, m := range markets {
		byKey[marketKey(m.UniqueKey)] = m
	}
	for _, c := range existing.Markets {
		p := capid.ParseCapIDParams(c.IDParams)
		m, ok := byKey[marketKey(p.MarketID.Hex())]
		if !ok {
			continue
		}
		s.markets[marketKey(m.UniqueKey)] = MarketCapInput{CapInput: capInputFrom(c, decimals), Market: m}
	}
	return s
}

func capInputFrom(c types.VaultV2Cap, decimals int) CapInput {
	return CapInput{
		RelativePercent: utils.WADToPercent(c.RelativeCap),
		Absolute:        utils.AbsoluteCapToAmount(c.AbsoluteCap, decimals),
		ExistingCapID:   c.CapID,
	}
}

func marketKey(uniqueKey string) string {
	return strings.ToLower(strings.TrimSpace(uniqueKey))
}

func (s EditState) clone() EditState {
	out := EditState{
		collateral: maps.Clone(s.collateral),
		markets:    maps.Clone(s.markets),
	}
	if out.collateral == nil {
		out.collateral = map[common.Address]CapInput{}
	}
	if out.markets == nil {
		out.markets = map[string]MarketCapInput{}
	}
	if s.adapter != nil {
		a := *s.adapter
		out.adapter = &a
	}
	return out
}

// Adapter returns the adapter cap edit, if any
func (s EditState) Adapter() (CapInput, bool) {
	if s.adapter == nil {
		return CapInput{}, false
	}
	return *s.adapter, true
}

// SetAdapter sets the adapter cap edit
func (s EditState) SetAdapter(in CapInput) EditState {
	out := s.clone()
	out.adapter = &in
	return out
}

// Collateral returns the collateral cap edit of token
func (s EditState) Collateral(token common.Address) (CapInput, bool) {
	in, ok := s.collateral[token]
	return in, ok
}

// CollateralTokens returns the edited collateral tokens in address order
func (s EditState) CollateralTokens() []common.Address {
	return slices.SortedFunc(maps.Keys(s.collateral), func(a, b common.Address) int {
		return a.Cmp(b)
	})
}

// SetCollateral replaces the collateral cap edit of token
func (s EditState) SetCollateral(token common.Address, in CapInput) EditState {
	out := s.clone()
	out.collateral[token] = in
	return out
}

// EditCollateral changes the values of a collateral cap, keeping its
// identity. A token not yet in the state is added as an explicit cap.
func (s EditState) EditCollateral(token common.Address, relativePercent, absolute string) EditState {
	in := s.collateral[token]
	in.RelativePercent = relativePercent
	in.Absolute = absolute
	return s.SetCollateral(token, in)
}

// Market returns the market cap edit of uniqueKey
func (s EditState) Market(uniqueKey string) (MarketCapInput, bool) {
	in, ok := s.markets[marketKey(uniqueKey)]
	return in, ok
}

// MarketKeys returns the edited market keys in lexical order
func (s EditState) MarketKeys() []string {
	return slices.Sorted(maps.Keys(s.markets))
}

// EditMarket changes the values of a market cap already in the state
func (s EditState) EditMarket(uniqueKey, relativePercent, absolute string) EditState {
	key := marketKey(uniqueKey)
	in, ok := s.markets[key]
	if !ok {
		return s
	}
	in.RelativePercent = relativePercent
	in.Absolute = absolute
	out := s.clone()
	out.markets[key] = in
	return out
}

// AddMarket adds a market cap. When the market's collateral has no cap in
// the state, a collateral cap is scaffolded with NeedsCreation set.
func (s EditState) AddMarket(m types.Market, relativePercent, absolute string) EditState {
	out := s.clone()
	key := marketKey(m.UniqueKey)
	prev := out.markets[key]
	out.markets[key] = MarketCapInput{
		CapInput: CapInput{
			RelativePercent: relativePercent,
			Absolute:        absolute,
			ExistingCapID:   prev.ExistingCapID,
		},
		Market: m,
	}

	if token, ok := collateralOf(m); ok {
		if _, exists := out.collateral[token]; !exists {
			out.collateral[token] = CapInput{
				RelativePercent: ScaffoldRelativePercent,
				Absolute:        ScaffoldAbsolute,
				NeedsCreation:   true,
			}
		}
	}
	return out
}

// RemoveMarket drops a market cap edit and any scaffolded collateral cap
// that no longer has a market
func (s EditState) RemoveMarket(uniqueKey string) EditState {
	key := marketKey(uniqueKey)
	if _, ok := s.markets[key]; !ok {
		return s
	}
	out := s.clone()
	delete(out.markets, key)
	return out.Prune()
}

// Prune drops every scaffolded collateral cap no market refers to
func (s EditState) Prune() EditState {
	used := make(map[common.Address]bool, len(s.markets))
	for _, m := range s.markets {
		if token, ok := collateralOf(m.Market); ok {
			used[token] = true
		}
	}

	out := s.clone()
	for token, in := range out.collateral {
		if in.NeedsCreation && !used[token] {
			delete(out.collateral, token)
		}
	}
	return out
}

func collateralOf(m types.Market) (common.Address, bool) {
	if !common.IsHexAddress(m.CollateralAsset.Address) {
		return common.Address{}, false
	}
	token := common.HexToAddress(m.CollateralAsset.Address)
	return token, token != (common.Address{})
}
