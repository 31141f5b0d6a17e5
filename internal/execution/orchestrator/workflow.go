package orchestrator

import (
	"context"
	"math/big"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/model"
)

const (
	WorkflowStakeAndRestake = "stake_and_restake"

	StepKeyStake   = "stake"
	StepKeyRestake = "restake"

	CategoryNoTokensReceived = "no_tokens_received"
)

// Stage is one step of a composed workflow. next receives the verified
// delta of the previous stage.
type Stage struct {
	Key string
	Run func(ctx context.Context, previous *big.Int) model.OperationResult
}

// Compose runs stages in order, feeding each one the previous stage's delta.
// It stops at the first failure or at a stage that produced no tokens.
// Completed stages are never rolled back.
func (o *Orchestrator) Compose(ctx context.Context, name string, stages ...Stage) model.WorkflowResult {
	out := model.WorkflowResult{Workflow: name, Steps: map[string]model.OperationResult{}}
	var carried *big.Int
	for i, stage := range stages {
		res := stage.Run(ctx, carried)
		if !res.Succeeded() {
			out.Steps[stage.Key] = res
			out.FailedStep = stage.Key
			out.Status = model.StatusPartial
			if i == 0 {
				out.Status = model.StatusError
			}
			out.Message = stage.Key + " failed: " + res.Message
			break
		}
		if i < len(stages)-1 {
			delta, ok := DeltaOf(res)
			if !ok || delta.Sign() <= 0 {
				res.Status = model.StatusError
				res.Error = &model.OperationError{
					Category: CategoryNoTokensReceived,
					Type:     clierr.TypeName(clierr.CodeGuard),
					Code:     int(clierr.CodeGuard),
					Message:  "No tokens received from " + stage.Key + "; later steps were skipped",
				}
				out.Steps[stage.Key] = res
				out.FailedStep = stage.Key
				out.Status = model.StatusError
				if i > 0 {
					out.Status = model.StatusPartial
				}
				out.Message = res.Error.Message
				break
			}
			carried = delta
		}
		out.Steps[stage.Key] = res
	}
	if out.Status == "" {
		out.Status = model.StatusSuccess
		out.Message = name + " completed"
	}
	out.Timestamp = o.now().UTC()
	o.log.Info().Str("workflow", name).Str("status", out.Status).Str("failed_step", out.FailedStep).Msg("workflow finished")
	return out
}

// StakeAndRestake stakes BNB on Lista DAO, then restakes exactly the slisBNB
// that stake produced on KernelDAO.
func (o *Orchestrator) StakeAndRestake(ctx context.Context, amountBNB string) model.WorkflowResult {
	res := o.Compose(ctx, WorkflowStakeAndRestake,
		Stage{Key: StepKeyStake, Run: func(ctx context.Context, _ *big.Int) model.OperationResult {
			return o.Stake(ctx, amountBNB)
		}},
		Stage{Key: StepKeyRestake, Run: func(ctx context.Context, delta *big.Int) model.OperationResult {
			return o.RestakeAmount(ctx, delta)
		}},
	)
	if res.Status == model.StatusSuccess {
		res.Message = "Successfully staked BNB on Lista DAO and restaked slisBNB on KernelDAO"
	}
	return res
}
