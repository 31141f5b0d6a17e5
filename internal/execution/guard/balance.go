package guard

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/registry"
)

// Balance reads the state the balance and liquidity checks need.
type Balance struct {
	reader ledger.Reader
}

func NewBalance(reader ledger.Reader) *Balance {
	return &Balance{reader: reader}
}

func (g *Balance) Native(ctx context.Context, owner common.Address) (*big.Int, error) {
	return g.reader.BalanceAt(ctx, owner)
}

func (g *Balance) Token(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return ledger.Bind("erc20", token, ledger.ERC20ABI).CallBig(ctx, g.reader, owner, "balanceOf", owner)
}

// Stake requires the native balance to cover both the protocol minimum and the request.
func (g *Balance) Stake(ctx context.Context, owner common.Address, value *big.Int) (*big.Int, error) {
	bal, err := g.Native(ctx, owner)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(registry.MinStake) < 0 {
		return nil, Fail(CategoryInsufficientBalance, "Insufficient BNB balance", map[string]any{
			"required":  amount.Format(registry.MinStake, registry.NativeDecimals),
			"available": amount.Format(bal, registry.NativeDecimals),
		})
	}
	if value.Cmp(bal) > 0 {
		return nil, Fail(CategoryInsufficientBalance, "Requested stake amount exceeds available balance", map[string]any{
			"requested": amount.Format(value, registry.NativeDecimals),
			"available": amount.Format(bal, registry.NativeDecimals),
		})
	}
	return bal, nil
}

// GasReserve keeps enough BNB around to pay for borrow and withdraw transactions.
func (g *Balance) GasReserve(ctx context.Context, owner common.Address) error {
	bal, err := g.Native(ctx, owner)
	if err != nil {
		return err
	}
	if bal.Cmp(registry.GasReserve) >= 0 {
		return nil
	}
	return Fail(CategoryGasReserve, "Insufficient BNB for gas fees. Need at least "+amount.Format(registry.GasReserve, registry.NativeDecimals)+" BNB", map[string]any{
		"required":  amount.Format(registry.GasReserve, registry.NativeDecimals),
		"available": amount.Format(bal, registry.NativeDecimals),
	})
}

// Liquidity is a comptroller getAccountLiquidity reading, in 1e18 USD mantissa.
type Liquidity struct {
	Liquidity *big.Int
	Shortfall *big.Int
}

func (l Liquidity) figures() map[string]any {
	return map[string]any{
		"liquidity": amount.Format(l.Liquidity, 18),
		"shortfall": amount.Format(l.Shortfall, 18),
	}
}

// AccountLiquidity reads liquidity and rejects a non-zero protocol error code.
func (g *Balance) AccountLiquidity(ctx context.Context, comptroller, owner common.Address) (Liquidity, error) {
	out, err := ledger.Bind("comptroller", comptroller, ledger.ComptrollerABI).Call(ctx, g.reader, owner, "getAccountLiquidity", owner)
	if err != nil {
		return Liquidity{}, err
	}
	if len(out) != 3 {
		return Liquidity{}, Fail(CategoryLiquidityRead, "Failed to read account liquidity", nil)
	}
	code, _ := out[0].(*big.Int)
	liq, _ := out[1].(*big.Int)
	short, _ := out[2].(*big.Int)
	if code == nil || liq == nil || short == nil {
		return Liquidity{}, Fail(CategoryLiquidityRead, "Failed to read account liquidity", nil)
	}
	if code.Sign() != 0 {
		return Liquidity{}, Fail(CategoryLiquidityRead, fmt.Sprintf("Failed to read account liquidity (error code %s)", code), map[string]any{"error_code": code.String()})
	}
	return Liquidity{Liquidity: liq, Shortfall: short}, nil
}

func (l Liquidity) NoShortfall() error {
	if l.Shortfall.Sign() == 0 {
		return nil
	}
	return Fail(CategoryShortfall, "Account is in shortfall", l.figures())
}

// Borrowable checks shortfall, capacity and that value fits the reported
// liquidity. The comparison is on raw mantissas.
func (l Liquidity) Borrowable(value *big.Int) error {
	if err := l.NoShortfall(); err != nil {
		return err
	}
	if l.Liquidity.Sign() == 0 {
		return Fail(CategoryNoCapacity, "No borrowing capacity available", l.figures())
	}
	if value.Cmp(l.Liquidity) > 0 {
		details := l.figures()
		details["requested"] = amount.Format(value, 18)
		return Fail(CategoryExceedsLiquidity, "Borrow amount exceeds available liquidity", details)
	}
	return nil
}

// EnteredMarkets lists the vTokens the account has enabled as collateral.
func (g *Balance) EnteredMarkets(ctx context.Context, comptroller, owner common.Address) ([]common.Address, error) {
	return ledger.Bind("comptroller", comptroller, ledger.ComptrollerABI).CallAddresses(ctx, g.reader, owner, "getAssetsIn", owner)
}
