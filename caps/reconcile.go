package caps

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwdwow/morpho-go/capid"
	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

var (
	ErrMissingAdapter    = errors.New("adapter address is required")
	ErrMissingVaultAsset = errors.New("vault asset is required")
	ErrNothingToSubmit   = errors.New("no cap changes to submit")
)

// VaultAsset is the token a vault accounts in
type VaultAsset struct {
	Address  string
	Decimals int
}

// Input is everything Reconcile needs. Existing is the on-chain snapshot and
// Desired the edited state.
type Input struct {
	AdapterAddress string
	VaultAsset     *VaultAsset
	Existing       Existing
	Desired        EditState
}

// Mutation is one cap change. The embedded cap carries the new values and
// the values it replaces in OldRelativeCap and OldAbsoluteCap.
type Mutation struct {
	Kind capid.Kind
	// Key is the adapter or collateral address, or the market unique key
	Key string
	types.VaultV2Cap
}

// Plan is the ordered list of mutations for one transaction batch:
// adapter first, then collateral caps, then market caps.
type Plan struct {
	Mutations []Mutation
	// AdapterDefaulted is set when the adapter had no cap and one was added
	// at 100% and no limit
	AdapterDefaulted bool
	// Orphaned lists existing market caps without a collateral cap
	Orphaned []types.VaultV2Cap
}

// Caps returns the mutations in the form the transaction layer submits
func (p Plan) Caps() []types.VaultV2Cap {
	out := make([]types.VaultV2Cap, len(p.Mutations))
	for i, m := range p.Mutations {
		out[i] = m.VaultV2Cap
	}
	return out
}

func (p *Plan) add(kind capid.Kind, key string, id capid.CapID, current *types.VaultV2Cap, rel, abs *big.Int) {
	oldRel, oldAbs := new(big.Int), new(big.Int)
	if current != nil {
		oldRel = utils.BigOrZero(current.RelativeCap)
		oldAbs = utils.BigOrZero(current.AbsoluteCap)
	}
	if rel.Cmp(oldRel) == 0 && abs.Cmp(oldAbs) == 0 {
		return
	}

	oldRelStr, oldAbsStr := oldRel.String(), oldAbs.String()
	p.Mutations = append(p.Mutations, Mutation{
		Kind: kind,
		Key:  key,
		VaultV2Cap: types.VaultV2Cap{
			CapID:          id.IDHex(),
			IDParams:       id.ParamsHex(),
			RelativeCap:    rel.String(),
			AbsoluteCap:    abs.String(),
			OldRelativeCap: &oldRelStr,
			OldAbsoluteCap: &oldAbsStr,
		},
	})
}

// targets converts an edit to on-chain values. A blank or non-positive
// relative cap is 0, a blank or non-positive absolute cap is unlimited.
func targets(in CapInput, decimals int) (rel, abs *big.Int, err error) {
	if s := strings.TrimSpace(in.RelativePercent); s != "" {
		if _, err := utils.ParseUnits(s, constants.PercentDecimals); err != nil {
			return nil, nil, fmt.Errorf("relative cap: %w", err)
		}
	}
	if s := strings.TrimSpace(in.Absolute); s != "" {
		if _, err := utils.ParseUnits(s, decimals); err != nil {
			return nil, nil, fmt.Errorf("absolute cap: %w", err)
		}
	}

	rel = utils.PercentToWAD(in.RelativePercent)
	if rel.Cmp(constants.WAD) > 0 {
		return nil, nil, fmt.Errorf("relative cap %s%% is above 100%%", strings.TrimSpace(in.RelativePercent))
	}
	return rel, utils.AmountToAbsoluteCap(in.Absolute, decimals), nil
}

// Reconcile computes the mutations that take in.Existing to in.Desired.
// Only caps whose values change are emitted. Scaffolded collateral caps
// without a market are dropped first. An adapter without a cap gets one at
// 100% and no limit unless Desired sets it explicitly.
//
// A missing adapter or vault asset fails with ErrMissingAdapter or
// ErrMissingVaultAsset; a plan without mutations comes with
// ErrNothingToSubmit. Neither input is modified.
func Reconcile(in Input) (Plan, error) {
	if !common.IsHexAddress(strings.TrimSpace(in.AdapterAddress)) {
		return Plan{}, ErrMissingAdapter
	}
	if in.VaultAsset == nil || !common.IsHexAddress(strings.TrimSpace(in.VaultAsset.Address)) || in.VaultAsset.Decimals < 0 {
		return Plan{}, ErrMissingVaultAsset
	}
	adapter := common.HexToAddress(strings.TrimSpace(in.AdapterAddress))
	decimals := in.VaultAsset.Decimals
	desired := in.Desired.Prune()

	plan := Plan{Orphaned: in.Existing.Orphaned()}

	adapterID := capid.AdapterCapID(adapter)
	current, exists := in.Existing.AdapterCap(adapter)
	if want, ok := desired.Adapter(); ok {
		rel, abs, err := targets(want, decimals)
		if err != nil {
			return Plan{}, fmt.Errorf("adapter %s: %w", adapter.Hex(), err)
		}
		plan.add(capid.KindAdapter, adapter.Hex(), adapterID, capOrNil(current, exists), rel, abs)
	} else if !exists {
		plan.add(capid.KindAdapter, adapter.Hex(), adapterID, nil, new(big.Int).Set(constants.WAD), new(big.Int).Set(constants.MaxUint128))
		plan.AdapterDefaulted = true
	}

	for _, token := range desired.CollateralTokens() {
		want, _ := desired.Collateral(token)
		rel, abs, err := targets(want, decimals)
		if err != nil {
			return Plan{}, fmt.Errorf("collateral %s: %w", token.Hex(), err)
		}
		current, exists := in.Existing.CollateralCap(token)
		plan.add(capid.KindCollateral, token.Hex(), capid.CollateralCapID(token), capOrNil(current, exists), rel, abs)
	}

	for _, key := range desired.MarketKeys() {
		want, _ := desired.Market(key)
		rel, abs, err := targets(want.CapInput, decimals)
		if err != nil {
			return Plan{}, fmt.Errorf("market %s: %w", key, err)
		}
		mp, err := capid.MarketParamsFromMarket(want.Market)
		if err != nil {
			return Plan{}, err
		}
		id, err := capid.MarketCapID(adapter, mp)
		if err != nil {
			return Plan{}, fmt.Errorf("market %s: %w", key, err)
		}
		current, exists := in.Existing.MarketCap(id.ID)
		plan.add(capid.KindMarket, key, id, capOrNil(current, exists), rel, abs)
	}

	if len(plan.Mutations) == 0 {
		return plan, ErrNothingToSubmit
	}
	return plan, nil
}

func capOrNil(c types.VaultV2Cap, ok bool) *types.VaultV2Cap {
	if !ok {
		return nil
	}
	return &c
}

// Apply returns caps with the plan's mutations written over them, as the
// vault would hold them once the batch executes. caps is not modified.
func Apply(caps []types.VaultV2Cap, plan Plan) []types.VaultV2Cap {
	out := make([]types.VaultV2Cap, len(caps))
	copy(out, caps)

	index := make(map[common.Hash]int, len(out))
	for i, c := range out {
		index[capHash(c)] = i
	}
	for _, m := range plan.Mutations {
		next := types.VaultV2Cap{
			CapID:       m.CapID,
			IDParams:    m.IDParams,
			RelativeCap: m.RelativeCap,
			AbsoluteCap: m.AbsoluteCap,
		}
		id := capHash(next)
		if i, ok := index[id]; ok {
			next.Allocation = out[i].Allocation
			out[i] = next
			continue
		}
		index[id] = len(out)
		out = append(out, next)
	}
	return out
}
