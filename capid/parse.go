package capid

import (
	"bytes"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Parsed is the structured form of a cap parameter blob. Only the fields of
// the decoded Kind are set.
type Parsed struct {
	Kind            Kind
	Adapter         common.Address
	CollateralToken common.Address
	MarketParams    *MarketParams
	MarketID        common.Hash
}

// ParseCapIDParams decodes a 0x-prefixed parameter blob. Blobs that match no
// known shape yield KindUnknown.
func ParseCapIDParams(params string) Parsed {
	raw, err := hexutil.Decode(strings.TrimSpace(params))
	if err != nil {
		return Parsed{Kind: KindUnknown}
	}
	return Parse(raw)
}

// Parse decodes a parameter blob, trying the market shape first and then the
// tag/address shape
func Parse(params []byte) Parsed {
	if p, ok := parseMarket(params); ok {
		return p
	}
	if p, ok := parseTagAddress(params); ok {
		return p
	}
	return Parsed{Kind: KindUnknown}
}

func parseMarket(params []byte) (p Parsed, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	values, err := marketCapArgs.Unpack(params)
	if err != nil || len(values) != 3 {
		return Parsed{}, false
	}
	tag, _ := values[0].(string)
	adapter, _ := values[1].(common.Address)
	if tag != TagMarketParams {
		return Parsed{}, false
	}
	mp, isParams := abi.ConvertType(values[2], new(MarketParams)).(*MarketParams)
	if !isParams || mp.Lltv == nil {
		return Parsed{}, false
	}

	// Reject blobs that only decode by ignoring trailing or non-canonical bytes.
	canonical, err := marketCapArgs.Pack(tag, adapter, *mp)
	if err != nil || !bytes.Equal(canonical, params) {
		return Parsed{}, false
	}

	id, err := MarketID(*mp)
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{Kind: KindMarket, Adapter: adapter, CollateralToken: mp.CollateralToken, MarketParams: mp, MarketID: id}, true
}

func parseTagAddress(params []byte) (p Parsed, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	values, err := tagAddressArgs.Unpack(params)
	if err != nil || len(values) != 2 {
		return Parsed{}, false
	}
	tag, _ := values[0].(string)
	addr, _ := values[1].(common.Address)

	canonical, err := tagAddressArgs.Pack(tag, addr)
	if err != nil || !bytes.Equal(canonical, params) {
		return Parsed{}, false
	}

	switch tag {
	case TagCollateral:
		return Parsed{Kind: KindCollateral, CollateralToken: addr}, true
	case TagAdapter:
		return Parsed{Kind: KindAdapter, Adapter: addr}, true
	default:
		return Parsed{}, false
	}
}
