// Package calldata encodes a cap plan into Vault V2 calls.
package calldata

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/dwdwow/morpho-go/caps"
	"github.com/dwdwow/morpho-go/utils"
)

const vaultV2ABI = `[
  {"type":"function","name":"submit","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"increaseAbsoluteCap","stateMutability":"nonpayable","inputs":[{"name":"idData","type":"bytes"},{"name":"newAbsoluteCap","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"decreaseAbsoluteCap","stateMutability":"nonpayable","inputs":[{"name":"idData","type":"bytes"},{"name":"newAbsoluteCap","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"increaseRelativeCap","stateMutability":"nonpayable","inputs":[{"name":"idData","type":"bytes"},{"name":"newRelativeCap","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"decreaseRelativeCap","stateMutability":"nonpayable","inputs":[{"name":"idData","type":"bytes"},{"name":"newRelativeCap","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"multicall","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[]}
]`

// VaultV2 is the parsed subset of the Vault V2 ABI used for cap management
var VaultV2 = mustParse(vaultV2ABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("calldata: invalid vault abi: %v", err))
	}
	return parsed
}

// Encode turns every mutation into vault calls. A raised cap is timelocked,
// so it is emitted as submit(increase...) followed by the increase itself; a
// lowered cap is a single decrease call. Absolute caps come before relative
// ones.
func Encode(plan caps.Plan) ([][]byte, error) {
	var calls [][]byte
	for _, m := range plan.Mutations {
		idData, err := hexutil.Decode(strings.TrimSpace(m.IDParams))
		if err != nil {
			return nil, fmt.Errorf("cap %s: invalid id data: %w", m.CapID, err)
		}

		steps := []struct {
			kind   string
			newVal string
			oldVal *string
		}{
			{"AbsoluteCap", m.AbsoluteCap, m.OldAbsoluteCap},
			{"RelativeCap", m.RelativeCap, m.OldRelativeCap},
		}
		for _, s := range steps {
			newVal, ok := utils.ParseBig(s.newVal)
			if !ok {
				return nil, fmt.Errorf("cap %s: invalid %s %q", m.CapID, s.kind, s.newVal)
			}
			oldVal := new(big.Int)
			if s.oldVal != nil {
				if oldVal, ok = utils.ParseBig(*s.oldVal); !ok {
					return nil, fmt.Errorf("cap %s: invalid old %s %q", m.CapID, s.kind, *s.oldVal)
				}
			}

			encoded, err := encodeChange(s.kind, idData, oldVal, newVal)
			if err != nil {
				return nil, fmt.Errorf("cap %s: %w", m.CapID, err)
			}
			calls = append(calls, encoded...)
		}
	}
	return calls, nil
}

func encodeChange(kind string, idData []byte, oldVal, newVal *big.Int) ([][]byte, error) {
	switch newVal.Cmp(oldVal) {
	case 1:
		call, err := VaultV2.Pack("increase"+kind, idData, newVal)
		if err != nil {
			return nil, fmt.Errorf("failed to encode increase%s: %w", kind, err)
		}
		submit, err := VaultV2.Pack("submit", call)
		if err != nil {
			return nil, fmt.Errorf("failed to encode submit: %w", err)
		}
		return [][]byte{submit, call}, nil
	case -1:
		call, err := VaultV2.Pack("decrease"+kind, idData, newVal)
		if err != nil {
			return nil, fmt.Errorf("failed to encode decrease%s: %w", kind, err)
		}
		return [][]byte{call}, nil
	default:
		return nil, nil
	}
}

// Multicall encodes the whole plan as one multicall(bytes[]) payload
func Multicall(plan caps.Plan) ([]byte, error) {
	calls, err := Encode(plan)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, caps.ErrNothingToSubmit
	}
	data, err := VaultV2.Pack("multicall", calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode multicall: %w", err)
	}
	return data, nil
}
