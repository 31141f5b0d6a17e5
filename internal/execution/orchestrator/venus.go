package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/execution/guard"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/registry"
)

const (
	OpVenusLend     = "venus_lend"
	OpVenusBorrow   = "venus_borrow"
	OpVenusRepay    = "venus_repay"
	OpVenusWithdraw = "venus_withdraw"
)

// venusMarket is a resolved market plus the comptroller of its pool.
type venusMarket struct {
	registry.Market
	vToken      ledger.Contract
	comptroller common.Address
}

func (o *Orchestrator) market(ctx context.Context, p *op, asset, pool string) (venusMarket, error) {
	var id registry.PoolID
	if strings.TrimSpace(pool) != "" {
		parsed, ok := registry.ParsePool(pool)
		if !ok {
			return venusMarket{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported pool %q", pool)).
				WithDetails(map[string]any{"supported": []string{string(registry.PoolCore), string(registry.PoolLiquid)}})
		}
		id = parsed
	}
	m, err := o.resolver.Resolve(ctx, asset, id)
	if err != nil {
		return venusMarket{}, err
	}
	info, _ := registry.LookupPool(m.Pool)
	if p != nil {
		p.action.Pool = string(m.Pool)
		p.result.Asset = m.Symbol
	}
	return venusMarket{
		Market:      m,
		vToken:      ledger.Bind("v"+m.Symbol, m.VToken, ledger.VTokenABI),
		comptroller: info.Comptroller,
	}, nil
}

func (m venusMarket) underlyingBalance(ctx context.Context, b *guard.Balance, owner common.Address) (*big.Int, error) {
	return b.Token(ctx, m.Underlying, owner)
}

// Lend supplies the underlying asset to its Venus market.
func (o *Orchestrator) Lend(ctx context.Context, asset, amountStr, pool string) model.OperationResult {
	return o.run(ctx, OpVenusLend, asset, pool, amountStr, func(ctx context.Context, p *op) error {
		m, err := o.market(ctx, p, asset, pool)
		if err != nil {
			return err
		}
		req, err := amount.Parse(amountStr, m.Decimals)
		if err != nil {
			return err
		}
		owner := o.Wallet()
		available, err := m.underlyingBalance(ctx, o.balance, owner)
		if err != nil {
			return err
		}
		value := req.Resolve(available)
		if err := guard.Positive(m.Symbol, "No "+m.Symbol+" available to lend", value); err != nil {
			return err
		}
		if err := guard.Covered(m.Symbol, m.Decimals, value, available); err != nil {
			return err
		}
		if _, err := o.allowance.Ensure(ctx, p.action, guard.AllowanceRequest{
			Token:   m.Underlying,
			Symbol:  m.Symbol,
			Spender: m.VToken,
			Amount:  value,
		}); err != nil {
			return err
		}
		before, err := m.vToken.CallBig(ctx, o.exec.Client(), owner, "balanceOf", owner)
		if err != nil {
			return err
		}
		data, err := m.vToken.Pack("mint", value)
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, execution.Call{
			Type:        execution.StepTypeSupply,
			Description: "supply " + m.Symbol + " to Venus",
			To:          m.VToken,
			Data:        data,
			Gas:         execution.GasAuto,
		})
		if err != nil {
			return err
		}
		p.primary(receipt)
		after, err := m.vToken.CallBig(ctx, o.exec.Client(), owner, "balanceOf", owner)
		if err != nil {
			return err
		}
		received := p.delta("v"+m.Symbol, registry.VTokenDecimals, before, after)
		p.balance("vtoken", "v"+m.Symbol, registry.VTokenDecimals, after)
		p.detail("amount_supplied", amount.Format(value, m.Decimals))
		p.detail("vtokens_received", amount.Format(received, registry.VTokenDecimals))
		p.result.Message = "Successfully supplied " + m.Symbol + " to Venus"
		return nil
	})
}

// Borrow draws the asset against collateral in the same pool. collateral
// defaults to the borrowed asset's own market.
func (o *Orchestrator) Borrow(ctx context.Context, asset, amountStr, pool, collateral string) model.OperationResult {
	return o.run(ctx, OpVenusBorrow, asset, pool, amountStr, func(ctx context.Context, p *op) error {
		m, err := o.market(ctx, p, asset, pool)
		if err != nil {
			return err
		}
		value, err := amount.ParseDecimal(amountStr, m.Decimals)
		if err != nil {
			return err
		}
		coll := m
		if strings.TrimSpace(collateral) != "" && !m.Matches(collateral) {
			if coll, err = o.market(ctx, nil, collateral, string(m.Pool)); err != nil {
				return err
			}
		}
		p.detail("collateral", coll.Symbol)

		owner := o.Wallet()
		if err := o.balance.GasReserve(ctx, owner); err != nil {
			return err
		}
		if _, err := guard.EnsureEntered(ctx, o.exec, o.balance, p.action, m.comptroller, coll.VToken); err != nil {
			return err
		}
		liq, err := o.balance.AccountLiquidity(ctx, m.comptroller, owner)
		if err != nil {
			return err
		}
		if err := liq.Borrowable(value); err != nil {
			return err
		}
		data, err := m.vToken.Pack("borrow", value)
		if err != nil {
			return err
		}
		call := execution.Call{
			Type:        execution.StepTypeBorrow,
			Description: "borrow " + m.Symbol + " from Venus",
			To:          m.VToken,
			Data:        data,
			Gas:         execution.GasPadded,
		}
		if _, err := o.exec.Simulate(ctx, call); err != nil {
			return clierr.Wrap(clierr.CodeActionSim, "Borrow transaction would fail", err)
		}
		before, err := m.underlyingBalance(ctx, o.balance, owner)
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, call)
		if err != nil {
			return err
		}
		p.primary(receipt)
		after, err := m.underlyingBalance(ctx, o.balance, owner)
		if err != nil {
			return err
		}
		p.delta(m.Symbol, m.Decimals, before, after)
		p.balance(m.Symbol, m.Symbol, m.Decimals, after)
		if remaining, err := o.balance.AccountLiquidity(ctx, m.comptroller, owner); err == nil {
			p.detail("remaining_liquidity", amount.Format(remaining.Liquidity, 18))
		} else {
			o.log.Debug().Err(err).Msg("read remaining liquidity")
		}
		p.result.Message = "Successfully borrowed " + m.Symbol + " from Venus"
		return nil
	})
}

// Repay pays back borrowed debt. "max" approves and repays with the
// unbounded sentinel so accrued interest is cleared in full.
func (o *Orchestrator) Repay(ctx context.Context, asset, amountStr, pool string) model.OperationResult {
	return o.run(ctx, OpVenusRepay, asset, pool, amountStr, func(ctx context.Context, p *op) error {
		m, err := o.market(ctx, p, asset, pool)
		if err != nil {
			return err
		}
		req, err := amount.Parse(amountStr, m.Decimals)
		if err != nil {
			return err
		}
		owner := o.Wallet()
		before, err := m.vToken.CallBig(ctx, o.exec.Client(), owner, "borrowBalanceStored", owner)
		if err != nil {
			return err
		}
		if before.Sign() == 0 {
			return guard.Fail(guard.CategoryNoDebt, "No outstanding "+m.Symbol+" borrow to repay", map[string]any{"token": m.Symbol})
		}

		allowance := guard.AllowanceRequest{Token: m.Underlying, Symbol: m.Symbol, Spender: m.VToken}
		repayArg := amount.MaxUint256
		if req.IsMax {
			allowance.Unbounded = true
		} else {
			available, err := m.underlyingBalance(ctx, o.balance, owner)
			if err != nil {
				return err
			}
			if err := guard.Covered(m.Symbol, m.Decimals, req.Value, available); err != nil {
				return err
			}
			allowance.Amount = req.Value
			repayArg = req.Value
		}
		if _, err := o.allowance.Ensure(ctx, p.action, allowance); err != nil {
			return err
		}
		data, err := m.vToken.Pack("repayBorrow", repayArg)
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, execution.Call{
			Type:        execution.StepTypeRepay,
			Description: "repay " + m.Symbol + " on Venus",
			To:          m.VToken,
			Data:        data,
			Gas:         execution.GasFixed(registry.RepayGasLimit),
		})
		if err != nil {
			return err
		}
		p.primary(receipt)
		after, err := m.vToken.CallBig(ctx, o.exec.Client(), owner, "borrowBalanceStored", owner)
		if err != nil {
			return err
		}
		p.delta(m.Symbol, m.Decimals, before, after)
		p.balance("borrow_balance", m.Symbol, m.Decimals, after)
		p.result.Message = "Successfully repaid " + m.Symbol + " on Venus"
		return nil
	})
}

// Withdraw redeems supplied assets. "max" redeems the full vToken balance and
// a numeric amount uses redeemUnderlying. Either call is dry-run before it is sent.
func (o *Orchestrator) Withdraw(ctx context.Context, asset, amountStr, pool string) model.OperationResult {
	return o.run(ctx, OpVenusWithdraw, asset, pool, amountStr, func(ctx context.Context, p *op) error {
		m, err := o.market(ctx, p, asset, pool)
		if err != nil {
			return err
		}
		req, err := amount.Parse(amountStr, m.Decimals)
		if err != nil {
			return err
		}
		owner := o.Wallet()
		if err := o.balance.GasReserve(ctx, owner); err != nil {
			return err
		}
		vBal, err := m.vToken.CallBig(ctx, o.exec.Client(), owner, "balanceOf", owner)
		if err != nil {
			return err
		}
		if vBal.Sign() == 0 {
			return guard.Fail(guard.CategoryNothingToWithdraw, "No "+m.Symbol+" supplied to withdraw", map[string]any{"token": m.Symbol})
		}

		var call execution.Call
		if req.IsMax {
			liq, err := o.balance.AccountLiquidity(ctx, m.comptroller, owner)
			if err != nil {
				return err
			}
			if err := liq.NoShortfall(); err != nil {
				return err
			}
			data, err := m.vToken.Pack("redeem", vBal)
			if err != nil {
				return err
			}
			call = execution.Call{Type: execution.StepTypeRedeem, Description: "redeem all v" + m.Symbol, To: m.VToken, Data: data, Gas: execution.GasPadded}
			p.detail("vtokens_redeemed", amount.Format(vBal, registry.VTokenDecimals))
		} else {
			data, err := m.vToken.Pack("redeemUnderlying", req.Value)
			if err != nil {
				return err
			}
			call = execution.Call{Type: execution.StepTypeRedeem, Description: "redeem " + req.String() + " " + m.Symbol, To: m.VToken, Data: data, Gas: execution.GasPadded}
		}
		if _, err := o.exec.Simulate(ctx, call); err != nil {
			return clierr.Wrap(clierr.CodeActionSim, "Transaction would fail - insufficient collateral or liquidity", err)
		}

		before, err := m.underlyingBalance(ctx, o.balance, owner)
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, call)
		if err != nil {
			return err
		}
		p.primary(receipt)
		after, err := m.underlyingBalance(ctx, o.balance, owner)
		if err != nil {
			return err
		}
		p.delta(m.Symbol, m.Decimals, before, after)
		p.balance(m.Symbol, m.Symbol, m.Decimals, after)
		p.result.Message = "Successfully withdrew " + m.Symbol + " from Venus"
		return nil
	})
}
