// Package caps computes the cap mutations that move a Vault V2 from its
// on-chain cap tree (adapter, collateral, market) to an edited one.
package caps

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dwdwow/morpho-go/capid"
	"github.com/dwdwow/morpho-go/types"
)

// Existing is a vault's on-chain caps split by kind
type Existing struct {
	Adapters   []types.VaultV2Cap
	Collateral []types.VaultV2Cap
	Markets    []types.VaultV2Cap
	Unknown    []types.VaultV2Cap
}

// Partition decodes every cap's parameters and groups the caps by kind.
// Caps from unknown schemes are kept aside, never dropped.
func Partition(caps []types.VaultV2Cap) Existing {
	var e Existing
	for _, c := range caps {
		switch capid.ParseCapIDParams(c.IDParams).Kind {
		case capid.KindAdapter:
			e.Adapters = append(e.Adapters, c)
		case capid.KindCollateral:
			e.Collateral = append(e.Collateral, c)
		case capid.KindMarket:
			e.Markets = append(e.Markets, c)
		default:
			e.Unknown = append(e.Unknown, c)
		}
	}
	return e
}

// All returns every cap in adapter, collateral, market, unknown order
func (e Existing) All() []types.VaultV2Cap {
	out := make([]types.VaultV2Cap, 0, len(e.Adapters)+len(e.Collateral)+len(e.Markets)+len(e.Unknown))
	out = append(out, e.Adapters...)
	out = append(out, e.Collateral...)
	out = append(out, e.Markets...)
	return append(out, e.Unknown...)
}

// AdapterCap returns the cap of adapter
func (e Existing) AdapterCap(adapter common.Address) (types.VaultV2Cap, bool) {
	for _, c := range e.Adapters {
		if capid.ParseCapIDParams(c.IDParams).Adapter == adapter {
			return c, true
		}
	}
	return types.VaultV2Cap{}, false
}

// CollateralCap returns the collateral cap of token
func (e Existing) CollateralCap(token common.Address) (types.VaultV2Cap, bool) {
	for _, c := range e.Collateral {
		if capid.ParseCapIDParams(c.IDParams).CollateralToken == token {
			return c, true
		}
	}
	return types.VaultV2Cap{}, false
}

// MarketCap returns the market cap with the given id
func (e Existing) MarketCap(id common.Hash) (types.VaultV2Cap, bool) {
	for _, c := range e.Markets {
		if capHash(c) == id {
			return c, true
		}
	}
	return types.VaultV2Cap{}, false
}

// Orphaned returns the market caps whose collateral token has no
// collateral cap. Markets without collateral are never orphaned.
func (e Existing) Orphaned() []types.VaultV2Cap {
	var out []types.VaultV2Cap
	for _, c := range e.Markets {
		p := capid.ParseCapIDParams(c.IDParams)
		if p.MarketParams == nil || p.MarketParams.CollateralToken == (common.Address{}) {
			continue
		}
		if _, ok := e.CollateralCap(p.MarketParams.CollateralToken); !ok {
			out = append(out, c)
		}
	}
	return out
}

// capHash is the cap's id, recomputed from its parameters when the reported
// id is missing
func capHash(c types.VaultV2Cap) common.Hash {
	if id := strings.TrimSpace(c.CapID); len(id) == 66 {
		return common.HexToHash(id)
	}
	params, err := hexutil.Decode(strings.TrimSpace(c.IDParams))
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(params)
}
