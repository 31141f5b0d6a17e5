package guard

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
)

// EnsureEntered enables vToken as collateral when the account has not
// entered it yet, as its own enter_market transaction.
func EnsureEntered(ctx context.Context, exec *execution.Executor, bal *Balance, action *execution.Action, comptroller, vToken common.Address) (bool, error) {
	owner := exec.Account()
	entered, err := bal.EnteredMarkets(ctx, comptroller, owner)
	if err != nil {
		return false, err
	}
	for _, m := range entered {
		if m == vToken {
			return false, nil
		}
	}
	data, err := ledger.Bind("comptroller", comptroller, ledger.ComptrollerABI).Pack("enterMarkets", []common.Address{vToken})
	if err != nil {
		return false, err
	}
	if _, err := exec.Submit(ctx, action, execution.Call{
		Type:        execution.StepTypeEnterMarket,
		Description: "enter market " + vToken.Hex(),
		To:          comptroller,
		Data:        data,
		Gas:         execution.GasAuto,
	}); err != nil {
		return false, err
	}
	return true, nil
}
