package execution

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
)

var (
	policyERC20ABI        = ledger.ERC20ABI
	policyApproveSelector = policyERC20ABI.Methods["approve"].ID
)

var knownStepTypes = map[StepType]struct{}{
	StepTypeApproval:        {},
	StepTypeEnterMarket:     {},
	StepTypeStake:           {},
	StepTypeWithdrawRequest: {},
	StepTypeClaim:           {},
	StepTypeRestake:         {},
	StepTypeUnrestake:       {},
	StepTypeSupply:          {},
	StepTypeBorrow:          {},
	StepTypeRepay:           {},
	StepTypeRedeem:          {},
}

// checkCall rejects malformed calls before anything is estimated or signed.
func checkCall(call Call) error {
	if call.To == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("%s step has no target", call.Type))
	}
	if _, ok := knownStepTypes[call.Type]; !ok {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("unknown step type %q", call.Type))
	}
	// Only the Lista deposit is payable.
	if call.Value != nil && call.Value.Sign() != 0 && call.Type != StepTypeStake {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("%s step must not carry native value", call.Type))
	}
	if call.Type == StepTypeApproval {
		return checkApproval(call)
	}
	return nil
}

func checkApproval(call Call) error {
	data := call.Data
	if len(data) < 4 || !bytes.Equal(data[:4], policyApproveSelector) {
		return clierr.New(clierr.CodeActionPlan, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := policyERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "approval step calldata is invalid")
	}
	spender, ok := args[0].(common.Address)
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	if spender == call.To {
		return clierr.New(clierr.CodeActionPlan, "approval spender must differ from the token")
	}
	value, ok := args[1].(*big.Int)
	if !ok || value.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	if value.Cmp(amount.MaxUint256) == 0 && !call.UnboundedApproval {
		return clierr.New(clierr.CodeActionPlan, "unbounded approval requested for a bounded operation").
			WithDetails(map[string]any{"spender": spender.Hex()})
	}
	return nil
}
