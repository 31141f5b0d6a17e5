package orchestrator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/execution/guard"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/registry"
)

const (
	OpListaStake   = "lista_stake"
	OpListaUnstake = "lista_unstake"
)

var stakeManager = ledger.Bind("StakeManager", registry.StakeManagerAddress, ledger.StakeManagerABI)

// Stake deposits native BNB into Lista DAO and reports the slisBNB received.
func (o *Orchestrator) Stake(ctx context.Context, amountBNB string) model.OperationResult {
	return o.run(ctx, OpListaStake, registry.NativeSymbol, "", amountBNB, func(ctx context.Context, p *op) error {
		value, err := amount.ParseDecimal(amountBNB, registry.NativeDecimals)
		if err != nil {
			return err
		}
		owner := o.Wallet()
		if _, err := o.balance.Stake(ctx, owner, value); err != nil {
			return err
		}
		before, err := o.balance.Token(ctx, registry.SlisBNBAddress, owner)
		if err != nil {
			return err
		}
		data, err := stakeManager.Pack("deposit")
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, execution.Call{
			Type:        execution.StepTypeStake,
			Description: "deposit BNB into Lista DAO",
			To:          registry.StakeManagerAddress,
			Data:        data,
			Value:       value,
			Gas:         execution.GasAuto,
		})
		if err != nil {
			return err
		}
		p.primary(receipt)
		after, err := o.balance.Token(ctx, registry.SlisBNBAddress, owner)
		if err != nil {
			return err
		}
		p.delta(registry.SlisBNBSymbol, registry.SlisBNBDecimals, before, after)
		p.balance("slisBNB", registry.SlisBNBSymbol, registry.SlisBNBDecimals, after)
		p.detail("amount_staked", amount.Format(value, registry.NativeDecimals))
		p.result.Message = "Successfully staked BNB on Lista DAO"
		return nil
	})
}

// Unstake requests a Lista DAO withdrawal and then tries to claim it at once.
// A failed claim is expected while the unbonding period runs and only adds a note.
func (o *Orchestrator) Unstake(ctx context.Context, amountSlis string) model.OperationResult {
	return o.run(ctx, OpListaUnstake, registry.SlisBNBSymbol, "", amountSlis, func(ctx context.Context, p *op) error {
		req, err := amount.Parse(amountSlis, registry.SlisBNBDecimals)
		if err != nil {
			return err
		}
		owner := o.Wallet()
		before, err := o.balance.Token(ctx, registry.SlisBNBAddress, owner)
		if err != nil {
			return err
		}
		value := req.Resolve(before)
		if err := guard.Positive(registry.SlisBNBSymbol, "No slisBNB available to unstake", value); err != nil {
			return err
		}
		if err := guard.Minimum(registry.SlisBNBSymbol, registry.SlisBNBDecimals, value, registry.MinListaUnstake); err != nil {
			return err
		}
		if err := guard.Covered(registry.SlisBNBSymbol, registry.SlisBNBDecimals, value, before); err != nil {
			return err
		}
		if _, err := o.allowance.Ensure(ctx, p.action, guard.AllowanceRequest{
			Token:   registry.SlisBNBAddress,
			Symbol:  registry.SlisBNBSymbol,
			Spender: registry.StakeManagerAddress,
			Amount:  value,
		}); err != nil {
			return err
		}

		data, err := stakeManager.Pack("requestWithdraw", value)
		if err != nil {
			return err
		}
		receipt, err := p.submit(ctx, execution.Call{
			Type:        execution.StepTypeWithdrawRequest,
			Description: "request Lista DAO withdrawal",
			To:          registry.StakeManagerAddress,
			Data:        data,
			Gas:         execution.GasAuto,
		})
		if err != nil {
			return err
		}
		p.primary(receipt)
		p.detail("amount", amount.Format(value, registry.SlisBNBDecimals))

		after, err := o.balance.Token(ctx, registry.SlisBNBAddress, owner)
		if err != nil {
			return err
		}
		p.delta(registry.SlisBNBSymbol, registry.SlisBNBDecimals, before, after)
		p.balance("slisBNB", registry.SlisBNBSymbol, registry.SlisBNBDecimals, after)

		id, ok := withdrawalID(receipt.Logs)
		if !ok {
			p.result.Message = "Withdrawal request successful! You can claim your BNB after the unbonding period (7-8 days)"
			p.result.FollowUp = registry.UnbondingHint
			p.detail("note", "Your slisBNB is now in the unstaking queue")
			return nil
		}
		p.detail("withdrawal_id", id.String())

		claim, err := stakeManager.Pack("claimWithdraw", id)
		if err != nil {
			return err
		}
		if _, err := p.submit(ctx, execution.Call{
			Type:        execution.StepTypeClaim,
			Description: "claim Lista DAO withdrawal " + id.String(),
			To:          registry.StakeManagerAddress,
			Data:        claim,
			Gas:         execution.GasAuto,
		}); err != nil {
			o.log.Info().Str("withdrawal_id", id.String()).Err(err).Msg("immediate claim not available")
			p.result.Message = "Withdrawal requested; claim is not available yet"
			p.result.FollowUp = registry.UnbondingHint
			p.detail("note", "Claim attempt failed, most likely because the unbonding period has not elapsed")
			return nil
		}
		p.result.Message = "Successfully unstaked slisBNB"
		return nil
	})
}

// withdrawalID finds the WithdrawRequested event emitted by the StakeManager.
func withdrawalID(logs []types.Log) (*big.Int, bool) {
	event := ledger.StakeManagerABI.Events["WithdrawRequested"]
	for _, l := range logs {
		if l.Address != registry.StakeManagerAddress || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		fields, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(fields) != 2 {
			continue
		}
		if id, ok := fields[1].(*big.Int); ok {
			return id, true
		}
	}
	return nil, false
}
