package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestDefaultPool(t *testing.T) {
	cases := map[string]PoolID{
		"slisBNB": PoolLiquid,
		"wbnb":    PoolLiquid,
		"USDT":    PoolCore,
		"BTCB":    PoolCore,
	}
	for symbol, want := range cases {
		if got := DefaultPool(symbol); got != want {
			t.Fatalf("DefaultPool(%s) = %s, want %s", symbol, got, want)
		}
	}
}

func TestCoreMarketsHaveStaticVTokens(t *testing.T) {
	for _, m := range Markets(PoolCore) {
		if m.VToken == (common.Address{}) {
			t.Fatalf("core market %s is missing a vToken", m.Symbol)
		}
		if m.Underlying == (common.Address{}) {
			t.Fatalf("core market %s is missing an underlying", m.Symbol)
		}
	}
	pool, ok := LookupPool(PoolLiquid)
	if !ok || !pool.Discover {
		t.Fatal("expected liquid pool to resolve market tokens by discovery")
	}
}

func TestMarketsReturnsCopy(t *testing.T) {
	first := Markets(PoolCore)
	first[0].Symbol = "MUTATED"
	second := Markets(PoolCore)
	if second[0].Symbol == "MUTATED" {
		t.Fatal("expected Markets to return an independent copy")
	}
}

func TestMarketAliasMatch(t *testing.T) {
	for _, m := range Markets(PoolCore) {
		if m.Symbol == "BTC" && !m.Matches("btcb") {
			t.Fatal("expected BTC market to match BTCB alias")
		}
	}
}

func TestParsePool(t *testing.T) {
	if p, ok := ParsePool("Liquid-Staked-BNB"); !ok || p != PoolLiquid {
		t.Fatalf("unexpected pool parse: %s %v", p, ok)
	}
	if _, ok := ParsePool("isolated"); ok {
		t.Fatal("did not expect unknown pool to parse")
	}
}

func TestLookupYieldPool(t *testing.T) {
	p, ok := LookupYieldPool("slisbnb")
	if !ok || p.Protocol != "Lista DAO" {
		t.Fatalf("unexpected yield pool lookup: %+v %v", p, ok)
	}
	if len(YieldPoolKeys()) != len(YieldPools()) {
		t.Fatal("expected one key per yield pool")
	}
}

func TestABIConstantsParse(t *testing.T) {
	abis := []string{ERC20ABI, VTokenABI, ComptrollerABI, StakeManagerABI, KernelStakerABI}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("parse abi: %v", err)
		}
	}
}

func TestStakeManagerEventShape(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(StakeManagerABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	event, ok := parsed.Events["WithdrawRequested"]
	if !ok {
		t.Fatal("expected WithdrawRequested event")
	}
	if len(event.Inputs.NonIndexed()) != 2 {
		t.Fatalf("expected amount and withdrawal id as data fields, got %d", len(event.Inputs.NonIndexed()))
	}
}

func TestResolveRPCURL(t *testing.T) {
	if got := ResolveRPCURL("  "); got != DefaultRPCURL {
		t.Fatalf("expected default endpoint, got %q", got)
	}
	if got := ResolveRPCURL(" https://bsc.example/rpc "); got != "https://bsc.example/rpc" {
		t.Fatalf("expected trimmed override, got %q", got)
	}
}
