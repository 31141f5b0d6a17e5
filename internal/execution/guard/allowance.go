package guard

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/rs/zerolog"
)

type AllowanceRequest struct {
	Token   common.Address
	Symbol  string
	Spender common.Address
	Amount  *big.Int
	// Unbounded asks for the 2^256-1 sentinel instead of Amount.
	Unbounded bool
}

// Allowance approves a spender only when the current allowance falls short.
// Allowances are always re-read; nothing is cached between operations.
type Allowance struct {
	exec *execution.Executor
	log  zerolog.Logger
}

func NewAllowance(exec *execution.Executor, log zerolog.Logger) *Allowance {
	return &Allowance{exec: exec, log: log}
}

// Ensure returns whether an approval transaction was mined. Any approval
// failure is returned unchanged so the caller aborts before its primary call.
func (g *Allowance) Ensure(ctx context.Context, action *execution.Action, req AllowanceRequest) (bool, error) {
	owner := g.exec.Account()
	token := ledger.Bind(req.Symbol, req.Token, ledger.ERC20ABI)
	current, err := token.CallBig(ctx, g.exec.Client(), owner, "allowance", owner, req.Spender)
	if err != nil {
		return false, err
	}

	target := req.Amount
	if req.Unbounded {
		if current.Cmp(amount.MaxUint256) == 0 {
			return false, nil
		}
		target = amount.MaxUint256
	} else if current.Cmp(req.Amount) >= 0 {
		return false, nil
	}

	data, err := token.Pack("approve", req.Spender, target)
	if err != nil {
		return false, err
	}
	g.log.Info().Str("token", req.Symbol).Str("spender", req.Spender.Hex()).Bool("unbounded", req.Unbounded).Msg("approving spender")
	_, err = g.exec.Submit(ctx, action, execution.Call{
		Type:        execution.StepTypeApproval,
		Description: "approve " + req.Symbol + " for " + req.Spender.Hex(),
		To:          req.Token,
		Data:        data,
		Gas:         execution.GasAuto,

		UnboundedApproval: req.Unbounded,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
