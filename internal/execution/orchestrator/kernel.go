package orchestrator

import (
	"context"
	"math/big"
	"strings"

	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/execution/guard"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/portfolio"
	"github.com/ggonzalez94/bscdefi/internal/registry"
)

const (
	OpKernelStake   = "kernel_stake"
	OpKernelUnstake = "kernel_unstake"
)

var kernelGateway = ledger.Bind("KernelStakerGateway", registry.KernelStakerGatewayAddress, ledger.KernelABI)

// Restake stakes slisBNB on KernelDAO. An empty amount or "max" restakes the
// whole wallet balance.
func (o *Orchestrator) Restake(ctx context.Context, amountSlis string) model.OperationResult {
	requested := strings.TrimSpace(amountSlis)
	if requested == "" {
		requested = amount.Max
	}
	return o.run(ctx, OpKernelStake, registry.SlisBNBSymbol, "", requested, func(ctx context.Context, p *op) error {
		req, err := amount.Parse(requested, registry.SlisBNBDecimals)
		if err != nil {
			return err
		}
		available, err := o.balance.Token(ctx, registry.SlisBNBAddress, o.Wallet())
		if err != nil {
			return err
		}
		return o.restake(ctx, p, req.Resolve(available), available)
	})
}

// RestakeAmount restakes an exact base-unit amount, typically the delta of a
// preceding stake.
func (o *Orchestrator) RestakeAmount(ctx context.Context, value *big.Int) model.OperationResult {
	requested := amount.Format(value, registry.SlisBNBDecimals)
	return o.run(ctx, OpKernelStake, registry.SlisBNBSymbol, "", requested, func(ctx context.Context, p *op) error {
		available, err := o.balance.Token(ctx, registry.SlisBNBAddress, o.Wallet())
		if err != nil {
			return err
		}
		return o.restake(ctx, p, value, available)
	})
}

func (o *Orchestrator) restake(ctx context.Context, p *op, value, available *big.Int) error {
	if err := guard.Positive(registry.SlisBNBSymbol, "No slisBNB available to restake", value); err != nil {
		return err
	}
	if err := guard.Covered(registry.SlisBNBSymbol, registry.SlisBNBDecimals, value, available); err != nil {
		return err
	}
	owner := o.Wallet()
	before, err := portfolio.KernelStaked(ctx, o.exec.Client(), owner)
	if err != nil {
		return err
	}
	if _, err := o.allowance.Ensure(ctx, p.action, guard.AllowanceRequest{
		Token:   registry.SlisBNBAddress,
		Symbol:  registry.SlisBNBSymbol,
		Spender: registry.KernelStakerGatewayAddress,
		Amount:  value,
	}); err != nil {
		return err
	}
	data, err := kernelGateway.Pack("stake", registry.SlisBNBAddress, value, "")
	if err != nil {
		return err
	}
	receipt, err := p.submit(ctx, execution.Call{
		Type:        execution.StepTypeRestake,
		Description: "stake slisBNB on KernelDAO",
		To:          registry.KernelStakerGatewayAddress,
		Data:        data,
		Gas:         execution.GasAuto,
	})
	if err != nil {
		return err
	}
	p.primary(receipt)
	after, err := portfolio.KernelStaked(ctx, o.exec.Client(), owner)
	if err != nil {
		return err
	}
	p.delta(registry.SlisBNBSymbol, registry.SlisBNBDecimals, before, after)
	p.balance("kernel_staked", registry.SlisBNBSymbol, registry.SlisBNBDecimals, after)
	p.detail("amount", amount.Format(value, registry.SlisBNBDecimals))
	p.detail("total_staked", amount.Format(after, registry.SlisBNBDecimals))
	p.result.Message = "Successfully restaked slisBNB on KernelDAO"
	return nil
}

// Unrestake withdraws slisBNB from KernelDAO back to the wallet.
func (o *Orchestrator) Unrestake(ctx context.Context, amountSlis string) model.OperationResult {
	return o.run(ctx, OpKernelUnstake, registry.SlisBNBSymbol, "", amountSlis, func(ctx context.Context, p *op) error {
		req, err := amount.Parse(amountSlis, registry.SlisBNBDecimals)
		if err != nil {
			return err
		}
		owner := o.Wallet()
		before, err := portfolio.KernelStaked(ctx, o.exec.Client(), owner)
		if err != nil {
			return err
		}
		value := req.Resolve(before)
		if err := guard.Positive(registry.SlisBNBSymbol, "No restaked slisBNB to unstake", value); err != nil {
			return err
		}
		if err := guard.Covered(registry.SlisBNBSymbol, registry.SlisBNBDecimals, value, before); err != nil {
			return err
		}
		data, err := kernelGateway.Pack("unstake", registry.SlisBNBAddress, value, "")
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, execution.Call{
			Type:        execution.StepTypeUnrestake,
			Description: "unstake slisBNB from KernelDAO",
			To:          registry.KernelStakerGatewayAddress,
			Data:        data,
			Gas:         execution.GasAuto,
		})
		if err != nil {
			return err
		}
		p.primary(receipt)
		after, err := portfolio.KernelStaked(ctx, o.exec.Client(), owner)
		if err != nil {
			return err
		}
		p.delta(registry.SlisBNBSymbol, registry.SlisBNBDecimals, before, after)
		p.balance("kernel_staked", registry.SlisBNBSymbol, registry.SlisBNBDecimals, after)
		p.detail("amount", amount.Format(value, registry.SlisBNBDecimals))
		p.detail("remaining_staked", amount.Format(after, registry.SlisBNBDecimals))
		p.result.Message = "Successfully unstaked slisBNB from KernelDAO"
		return nil
	})
}
