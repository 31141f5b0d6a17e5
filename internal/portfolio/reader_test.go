package portfolio

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/ledger/ledgertest"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/rs/zerolog"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000AA")

func coreMarket(t *testing.T, symbol string) registry.Market {
	t.Helper()
	for _, m := range registry.Markets(registry.PoolCore) {
		if m.Matches(symbol) {
			return m
		}
	}
	t.Fatalf("no core market %s", symbol)
	return registry.Market{}
}

func newReader(fake *ledgertest.Fake) *Reader {
	return NewReader(fake, nil, Options{Concurrency: 2}, zerolog.Nop())
}

func TestSummaryReportsUnreadableItems(t *testing.T) {
	fake := ledgertest.New(owner)
	fake.SetNative(owner, amount.MustParseDecimal("1.5", 18))
	fake.Returns(registry.SlisBNBAddress, ledger.ERC20ABI, "balanceOf", amount.MustParseDecimal("2", 18))
	fake.OnCall(registry.KernelStakerGatewayAddress, ledger.KernelABI, "balanceOf", func(common.Address, []any) ([]any, error) {
		return nil, errors.New("rpc down")
	})

	got := newReader(fake).Summary(context.Background(), owner)
	if got.BNB == nil || got.BNB.Decimal != "1.5" {
		t.Fatalf("unexpected BNB %+v", got.BNB)
	}
	if got.SlisBNB == nil || got.SlisBNB.Decimal != "2" {
		t.Fatalf("unexpected slisBNB %+v", got.SlisBNB)
	}
	if got.KernelStake != nil {
		t.Fatalf("expected absent kernel stake, got %+v", got.KernelStake)
	}
	if len(got.Unreadable) != 1 || got.Unreadable[0] != "kernel_staked_slisbnb" {
		t.Fatalf("unexpected unreadable list %v", got.Unreadable)
	}
}

func TestSlisBNBIncludesPooledBNB(t *testing.T) {
	fake := ledgertest.New(owner)
	fake.Returns(registry.SlisBNBAddress, ledger.ERC20ABI, "balanceOf", amount.MustParseDecimal("1", 18))
	fake.Returns(registry.StakeManagerAddress, ledger.StakeManagerABI, "sharesOf", amount.MustParseDecimal("1", 18))
	fake.OnCall(registry.StakeManagerAddress, ledger.StakeManagerABI, "getPooledBnbByShares", func(_ common.Address, args []any) ([]any, error) {
		shares := args[0].(*big.Int)
		return []any{new(big.Int).Div(new(big.Int).Mul(shares, big.NewInt(102)), big.NewInt(100))}, nil
	})

	got, err := newReader(fake).SlisBNB(context.Background(), owner)
	if err != nil {
		t.Fatalf("SlisBNB failed: %v", err)
	}
	if got.PooledBNB == nil || got.PooledBNB.Decimal != "1.02" {
		t.Fatalf("unexpected pooled BNB %+v", got.PooledBNB)
	}
}

func TestSlisBNBWithoutShares(t *testing.T) {
	fake := ledgertest.New(owner)
	fake.Returns(registry.SlisBNBAddress, ledger.ERC20ABI, "balanceOf", amount.MustParseDecimal("1", 18))

	got, err := newReader(fake).SlisBNB(context.Background(), owner)
	if err != nil {
		t.Fatalf("SlisBNB failed: %v", err)
	}
	if got.Shares != nil || got.PooledBNB != nil || got.Balance.Decimal != "1" {
		t.Fatalf("unexpected report %+v", got)
	}
}

func TestVenusSkipsUnreadableMarkets(t *testing.T) {
	fake := ledgertest.New(owner)
	usdt := coreMarket(t, "USDT")
	eth := coreMarket(t, "ETH")

	fake.Returns(usdt.VToken, ledger.VTokenABI, "balanceOf", big.NewInt(50_000_000_000))
	fake.Returns(usdt.VToken, ledger.VTokenABI, "borrowBalanceStored", new(big.Int))
	fake.Returns(usdt.VToken, ledger.VTokenABI, "exchangeRateStored", new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(26), nil)))

	fake.Returns(eth.VToken, ledger.VTokenABI, "balanceOf", new(big.Int))
	fake.OnCall(eth.VToken, ledger.VTokenABI, "borrowBalanceStored", func(common.Address, []any) ([]any, error) {
		return nil, errors.New("rpc down")
	})

	comptroller := registry.Pools()[0].Comptroller
	fake.Returns(comptroller, ledger.ComptrollerABI, "getAccountLiquidity", new(big.Int), amount.MustParseDecimal("12.5", 18), new(big.Int))

	report := newReader(fake).Venus(context.Background(), owner)
	if len(report.Pools) != 2 {
		t.Fatalf("expected both pools, got %d", len(report.Pools))
	}
	core := report.Pools[0]
	if core.Pool != "core" {
		t.Fatalf("unexpected pool order %+v", report.Pools)
	}
	if len(core.Supplies) != 1 || core.Supplies[0].Asset != "USDT" || core.Supplies[0].UnderlyingAmount != "10" || core.Supplies[0].VTokenBalance != "500" {
		t.Fatalf("unexpected supplies %+v", core.Supplies)
	}
	if len(core.Borrows) != 0 {
		t.Fatalf("zero borrows must be omitted, got %+v", core.Borrows)
	}
	if !slices.Contains(core.Unreadable, "ETH") || slices.Contains(core.Unreadable, "USDT") {
		t.Fatalf("unexpected unreadable list %v", core.Unreadable)
	}
	if core.Liquidity == nil || core.Liquidity.Liquidity != "12.5" {
		t.Fatalf("unexpected liquidity %+v", core.Liquidity)
	}

	liquid := report.Pools[1]
	if liquid.Error == "" || liquid.Liquidity != nil {
		t.Fatalf("expected discovery error and no liquidity, got %+v", liquid)
	}
	if !slices.Contains(liquid.Unreadable, "slisBNB") {
		t.Fatalf("undiscovered markets must be listed, got %v", liquid.Unreadable)
	}
}

func TestVenusExchangeRateUnavailable(t *testing.T) {
	fake := ledgertest.New(owner)
	usdt := coreMarket(t, "USDT")
	fake.Returns(usdt.VToken, ledger.VTokenABI, "balanceOf", big.NewInt(100))
	fake.Returns(usdt.VToken, ledger.VTokenABI, "borrowBalanceStored", amount.MustParseDecimal("3", 18))
	comptroller := registry.Pools()[0].Comptroller
	fake.Returns(comptroller, ledger.ComptrollerABI, "getAccountLiquidity", big.NewInt(3), new(big.Int), new(big.Int))

	core := newReader(fake).Venus(context.Background(), owner).Pools[0]
	if len(core.Supplies) != 1 || core.Supplies[0].UnderlyingAmount != "unavailable" {
		t.Fatalf("unexpected supplies %+v", core.Supplies)
	}
	if len(core.Borrows) != 1 || core.Borrows[0].Amount != "3" {
		t.Fatalf("unexpected borrows %+v", core.Borrows)
	}
	if core.Liquidity != nil {
		t.Fatal("non-zero comptroller error code must hide liquidity")
	}
}
