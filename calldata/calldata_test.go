package calldata

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwdwow/morpho-go/capid"
	"github.com/dwdwow/morpho-go/caps"
	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/types"
)

var (
	adapter = common.HexToAddress("0x00000000000000000000000000000000000000aD")
	usdc    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func selector(call []byte) string {
	if len(call) < 4 {
		return ""
	}
	return hex.EncodeToString(call[:4])
}

func TestSelectors(t *testing.T) {
	want := map[string]string{
		"submit":              "ef7fa71b",
		"increaseAbsoluteCap": "f6f98fd5",
		"decreaseAbsoluteCap": "8c54519b",
		"increaseRelativeCap": "2438525b",
		"decreaseRelativeCap": "57975270",
		"multicall":           "ac9650d8",
	}
	for name, sel := range want {
		m, ok := VaultV2.Methods[name]
		if !ok {
			t.Fatalf("method %s missing", name)
		}
		if got := hex.EncodeToString(m.ID); got != sel {
			t.Errorf("%s selector = %s, want %s", name, got, sel)
		}
	}
}

func scenarioPlan(t *testing.T) caps.Plan {
	t.Helper()
	wad := constants.WAD.String()
	unlimited := constants.MaxUint128.String()
	adapterID := capid.AdapterCapID(adapter)
	collID := capid.CollateralCapID(usdc)
	existing := caps.Partition([]types.VaultV2Cap{
		{CapID: adapterID.IDHex(), IDParams: adapterID.ParamsHex(), RelativeCap: wad, AbsoluteCap: unlimited},
		{CapID: collID.IDHex(), IDParams: collID.ParamsHex(), RelativeCap: "500000000000000000", AbsoluteCap: unlimited},
	})

	mp := capid.MarketParams{
		LoanToken:       weth,
		CollateralToken: usdc,
		Oracle:          common.HexToAddress("0x0000000000000000000000000000000000000011"),
		Irm:             common.HexToAddress("0x0000000000000000000000000000000000000022"),
		Lltv:            big.NewInt(860000000000000000),
	}
	id, err := capid.MarketID(mp)
	if err != nil {
		t.Fatal(err)
	}
	market := types.Market{
		UniqueKey:       id.Hex(),
		LoanAsset:       types.Asset{Address: weth.Hex()},
		CollateralAsset: types.Asset{Address: usdc.Hex()},
		OracleAddress:   mp.Oracle.Hex(),
		IrmAddress:      mp.Irm.Hex(),
		Lltv:            mp.Lltv.String(),
	}

	plan, err := caps.Reconcile(caps.Input{
		AdapterAddress: adapter.Hex(),
		VaultAsset:     &caps.VaultAsset{Address: weth.Hex(), Decimals: 18},
		Existing:       existing,
		Desired: caps.FromExisting(existing, nil, 18).
			EditCollateral(usdc, "75", "").
			AddMarket(market, "100", ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestEncode_IncreasesAreSubmittedThenExecuted(t *testing.T) {
	plan := scenarioPlan(t)

	calls, err := Encode(plan)
	if err != nil {
		t.Fatal(err)
	}

	wantSelectors := []string{
		"ef7fa71b", "2438525b", // collateral relative 50% -> 75%
		"ef7fa71b", "f6f98fd5", // market absolute 0 -> unlimited
		"ef7fa71b", "2438525b", // market relative 0 -> 100%
	}
	if len(calls) != len(wantSelectors) {
		t.Fatalf("got %d calls, want %d", len(calls), len(wantSelectors))
	}
	for i, sel := range wantSelectors {
		if got := selector(calls[i]); got != sel {
			t.Errorf("call %d selector = %s, want %s", i, got, sel)
		}
	}

	for i := 0; i < len(calls); i += 2 {
		args, err := VaultV2.Methods["submit"].Inputs.Unpack(calls[i][4:])
		if err != nil {
			t.Fatalf("unpack submit %d: %v", i, err)
		}
		if inner := args[0].([]byte); !bytes.Equal(inner, calls[i+1]) {
			t.Errorf("submit %d does not wrap the call that follows it", i)
		}
	}

	args, err := VaultV2.Methods["increaseRelativeCap"].Inputs.Unpack(calls[1][4:])
	if err != nil {
		t.Fatal(err)
	}
	if got := args[0].([]byte); !bytes.Equal(got, capid.CollateralCapID(usdc).Params) {
		t.Errorf("id data = %x", got)
	}
	if got := args[1].(*big.Int).String(); got != "750000000000000000" {
		t.Errorf("new relative cap = %s", got)
	}

	args, err = VaultV2.Methods["increaseAbsoluteCap"].Inputs.Unpack(calls[3][4:])
	if err != nil {
		t.Fatal(err)
	}
	if got := args[1].(*big.Int); got.Cmp(constants.MaxUint128) != 0 {
		t.Errorf("new absolute cap = %s", got)
	}
}

func TestEncode_DecreaseIsDirect(t *testing.T) {
	id := capid.CollateralCapID(usdc)
	oldRel, oldAbs := "500000000000000000", "1000"
	plan := caps.Plan{Mutations: []caps.Mutation{{
		Kind: capid.KindCollateral,
		VaultV2Cap: types.VaultV2Cap{
			CapID:          id.IDHex(),
			IDParams:       id.ParamsHex(),
			RelativeCap:    "100000000000000000",
			AbsoluteCap:    "1000",
			OldRelativeCap: &oldRel,
			OldAbsoluteCap: &oldAbs,
		},
	}}}

	calls, err := Encode(plan)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if got := selector(calls[0]); got != "57975270" {
		t.Errorf("selector = %s, want decreaseRelativeCap", got)
	}
}

func TestEncode_InvalidMutation(t *testing.T) {
	tests := []struct {
		name string
		cap  types.VaultV2Cap
	}{
		{"bad id data", types.VaultV2Cap{IDParams: "0xzz", RelativeCap: "1", AbsoluteCap: "1"}},
		{"bad value", types.VaultV2Cap{IDParams: "0x01", RelativeCap: "1.5", AbsoluteCap: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(caps.Plan{Mutations: []caps.Mutation{{VaultV2Cap: tt.cap}}})
			if err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestMulticall(t *testing.T) {
	plan := scenarioPlan(t)

	data, err := Multicall(plan)
	if err != nil {
		t.Fatal(err)
	}
	if got := selector(data); got != "ac9650d8" {
		t.Fatalf("selector = %s, want multicall", got)
	}

	args, err := VaultV2.Methods["multicall"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatal(err)
	}
	inner := args[0].([][]byte)
	calls, _ := Encode(plan)
	if len(inner) != len(calls) {
		t.Fatalf("multicall carries %d calls, want %d", len(inner), len(calls))
	}
	for i := range calls {
		if !bytes.Equal(inner[i], calls[i]) {
			t.Errorf("call %d differs", i)
		}
	}
}

func TestMulticall_EmptyPlan(t *testing.T) {
	if _, err := Multicall(caps.Plan{}); !errors.Is(err, caps.ErrNothingToSubmit) {
		t.Errorf("err = %v, want ErrNothingToSubmit", err)
	}
}
