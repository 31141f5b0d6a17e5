package execution

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

var (
	policyToken   = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	policySpender = common.HexToAddress("0xfD5840Cd36d94D7229439859C0112a4185BC0255")
)

func approval(t *testing.T, spender common.Address, value *big.Int) Call {
	t.Helper()
	data, err := policyERC20ABI.Pack("approve", spender, value)
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	return Call{Type: StepTypeApproval, To: policyToken, Data: data}
}

func requirePlanError(t *testing.T, err error) {
	t.Helper()
	cerr, ok := clierr.As(err)
	if !ok || cerr.Code != clierr.CodeActionPlan {
		t.Fatalf("expected action plan error, got %v", err)
	}
}

func TestCheckCallBoundedApproval(t *testing.T) {
	if err := checkCall(approval(t, policySpender, big.NewInt(100))); err != nil {
		t.Fatalf("expected bounded approval to pass, got %v", err)
	}
}

func TestCheckCallUnboundedApprovalNeedsFlag(t *testing.T) {
	call := approval(t, policySpender, amount.MaxUint256)
	requirePlanError(t, checkCall(call))
	call.UnboundedApproval = true
	if err := checkCall(call); err != nil {
		t.Fatalf("expected flagged unbounded approval to pass, got %v", err)
	}
}

func TestCheckCallRejectsBadApprovals(t *testing.T) {
	requirePlanError(t, checkCall(approval(t, common.Address{}, big.NewInt(1))))
	requirePlanError(t, checkCall(approval(t, policyToken, big.NewInt(1))))
	requirePlanError(t, checkCall(approval(t, policySpender, big.NewInt(0))))
	requirePlanError(t, checkCall(Call{Type: StepTypeApproval, To: policyToken, Data: []byte{0xde, 0xad, 0xbe, 0xef}}))
}

func TestCheckCallNativeValue(t *testing.T) {
	if err := checkCall(Call{Type: StepTypeStake, To: policySpender, Value: big.NewInt(1)}); err != nil {
		t.Fatalf("stake should accept value: %v", err)
	}
	requirePlanError(t, checkCall(Call{Type: StepTypeSupply, To: policySpender, Value: big.NewInt(1)}))
}

func TestCheckCallRejectsUnknownTypeAndTarget(t *testing.T) {
	requirePlanError(t, checkCall(Call{Type: "swap", To: policySpender}))
	requirePlanError(t, checkCall(Call{Type: StepTypeSupply}))
}
