// Package capid computes and parses Vault V2 cap identifiers.
//
// A cap is identified by an ABI-encoded parameter blob (idData) and its
// keccak256 hash (id). The Morpho market V1 adapter exposes three levels:
//
//	adapter:    abi.encode("this", adapter)
//	collateral: abi.encode("collateralToken", token)
//	market:     abi.encode("this/marketParams", adapter, marketParams)
//
// The id is a pure function of the blob, so two caps are the same cap exactly
// when their ids are equal.
package capid

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dwdwow/morpho-go/types"
)

const (
	TagAdapter      = "this"
	TagCollateral   = "collateralToken"
	TagMarketParams = "this/marketParams"
)

// Kind is the hierarchy level a cap applies to
type Kind string

const (
	KindAdapter    Kind = "adapter"
	KindCollateral Kind = "collateral"
	KindMarket     Kind = "market"
	KindUnknown    Kind = "unknown"
)

// MarketParams identifies a Morpho Blue market. Field order and names follow
// the on-chain struct.
type MarketParams struct {
	LoanToken       common.Address `json:"loanToken"`
	CollateralToken common.Address `json:"collateralToken"`
	Oracle          common.Address `json:"oracle"`
	Irm             common.Address `json:"irm"`
	Lltv            *big.Int       `json:"lltv"`
}

// CapID is an encoded parameter blob and its hash
type CapID struct {
	Params []byte
	ID     common.Hash
}

// ParamsHex returns the 0x-prefixed parameter blob
func (c CapID) ParamsHex() string { return hexutil.Encode(c.Params) }

// IDHex returns the 0x-prefixed id
func (c CapID) IDHex() string { return c.ID.Hex() }

var (
	stringType  = mustType("string", nil)
	addressType = mustType("address", nil)
	paramsType  = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "loanToken", Type: "address"},
		{Name: "collateralToken", Type: "address"},
		{Name: "oracle", Type: "address"},
		{Name: "irm", Type: "address"},
		{Name: "lltv", Type: "uint256"},
	})

	tagAddressArgs = abi.Arguments{{Type: stringType}, {Type: addressType}}
	marketCapArgs  = abi.Arguments{{Type: stringType}, {Type: addressType}, {Type: paramsType}}
	marketIDArgs   = abi.Arguments{{Type: paramsType}}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("capid: invalid abi type %s: %v", t, err))
	}
	return typ
}

func newCapID(params []byte) CapID {
	return CapID{Params: params, ID: crypto.Keccak256Hash(params)}
}

// AdapterCapID computes the cap id of an adapter
func AdapterCapID(adapter common.Address) CapID {
	params, err := tagAddressArgs.Pack(TagAdapter, adapter)
	if err != nil {
		panic(fmt.Sprintf("capid: pack adapter: %v", err))
	}
	return newCapID(params)
}

// CollateralCapID computes the cap id of a collateral token
func CollateralCapID(token common.Address) CapID {
	params, err := tagAddressArgs.Pack(TagCollateral, token)
	if err != nil {
		panic(fmt.Sprintf("capid: pack collateral: %v", err))
	}
	return newCapID(params)
}

// MarketCapID computes the cap id of a market reached through an adapter
func MarketCapID(adapter common.Address, mp MarketParams) (CapID, error) {
	if mp.Lltv == nil {
		return CapID{}, fmt.Errorf("market params: lltv is required")
	}
	params, err := marketCapArgs.Pack(TagMarketParams, adapter, mp)
	if err != nil {
		return CapID{}, fmt.Errorf("failed to encode market cap params: %w", err)
	}
	return newCapID(params), nil
}

// MarketID computes the Morpho Blue market id, keccak256(abi.encode(params))
func MarketID(mp MarketParams) (common.Hash, error) {
	if mp.Lltv == nil {
		return common.Hash{}, fmt.Errorf("market params: lltv is required")
	}
	enc, err := marketIDArgs.Pack(mp)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode market params: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// MarketParamsFromMarket builds market params from a unified market
func MarketParamsFromMarket(m types.Market) (MarketParams, error) {
	for _, a := range []string{m.LoanAsset.Address, m.CollateralAsset.Address, m.OracleAddress, m.IrmAddress} {
		if !common.IsHexAddress(a) {
			return MarketParams{}, fmt.Errorf("market %s: invalid address %q", m.UniqueKey, a)
		}
	}
	lltv, ok := new(big.Int).SetString(strings.TrimSpace(m.Lltv), 10)
	if !ok {
		return MarketParams{}, fmt.Errorf("market %s: invalid lltv %q", m.UniqueKey, m.Lltv)
	}
	return MarketParams{
		LoanToken:       common.HexToAddress(m.LoanAsset.Address),
		CollateralToken: common.HexToAddress(m.CollateralAsset.Address),
		Oracle:          common.HexToAddress(m.OracleAddress),
		Irm:             common.HexToAddress(m.IrmAddress),
		Lltv:            lltv,
	}, nil
}
