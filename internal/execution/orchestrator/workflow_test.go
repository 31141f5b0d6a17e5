package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/ledger/ledgertest"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/registry"
)

func TestStakeAndRestakeForwardsStakeDelta(t *testing.T) {
	w := newWorld(t)
	w.setBalance(registry.SlisBNBAddress, bnb("0.5"))
	w.lista(bnb("0.0999"))

	res := w.orch.StakeAndRestake(context.Background(), "0.1")
	if res.Status != model.StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if _, ok := res.Steps[StepKeyStake]; !ok {
		t.Fatal("missing stake step")
	}
	var staked *big.Int
	for _, tx := range w.fake.Sent {
		if tx.Method == "stake" {
			staked = tx.Args[1].(*big.Int)
		}
	}
	// Restakes what the deposit produced, not the requested 0.1 or the whole balance.
	if staked == nil || staked.Cmp(bnb("0.0999")) != 0 {
		t.Fatalf("expected restake of 0.0999, got %v", staked)
	}
	if res.Steps[StepKeyRestake].Delta.Decimal != "0.0999" {
		t.Fatalf("unexpected restake delta %+v", res.Steps[StepKeyRestake].Delta)
	}
}

func TestStakeAndRestakeStopsOnZeroDelta(t *testing.T) {
	w := newWorld(t)
	w.lista(new(big.Int))

	res := w.orch.StakeAndRestake(context.Background(), "0.1")
	if res.Status != model.StatusError || res.FailedStep != StepKeyStake {
		t.Fatalf("unexpected workflow status %+v", res)
	}
	stake := res.Steps[StepKeyStake]
	if stake.Error == nil || stake.Error.Category != CategoryNoTokensReceived {
		t.Fatalf("expected no_tokens_received annotation, got %+v", stake.Error)
	}
	if stake.Status != model.StatusError || stake.TxHash == "" {
		t.Fatalf("expected stake step marked error with its tx hash kept, got %+v", stake)
	}
	if _, ok := res.Steps[StepKeyRestake]; ok {
		t.Fatal("restake must not be attempted")
	}
	if countMethod(w.fake, "stake") != 0 {
		t.Fatalf("unexpected kernel stake, sends %v", w.fake.SentMethods())
	}
}

func TestStakeAndRestakeStakeFailureReportsOnlyStake(t *testing.T) {
	w := newWorld(t)
	w.lista(bnb("1"))
	w.fake.SetNative(testWallet, new(big.Int))

	res := w.orch.StakeAndRestake(context.Background(), "0.1")
	if res.Status != model.StatusError || res.FailedStep != StepKeyStake || len(res.Steps) != 1 {
		t.Fatalf("unexpected workflow result %+v", res)
	}
}

func TestStakeAndRestakeRestakeFailureIsPartial(t *testing.T) {
	w := newWorld(t)
	w.lista(bnb("0.1"))
	w.fake.OnSend(registry.KernelStakerGatewayAddress, ledger.KernelABI, "stake", func(*ledgertest.SentTx) ([]types.Log, error) {
		return nil, errors.New("revert")
	})

	res := w.orch.StakeAndRestake(context.Background(), "0.1")
	if res.Status != model.StatusPartial || res.FailedStep != StepKeyRestake {
		t.Fatalf("unexpected workflow status %+v", res)
	}
	if !res.Steps[StepKeyStake].Succeeded() {
		t.Fatal("stake step must stay successful")
	}
	if res.Steps[StepKeyRestake].Error == nil {
		t.Fatal("expected restake error")
	}
}
