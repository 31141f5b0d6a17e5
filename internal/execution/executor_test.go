package execution

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/ledger/ledgertest"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/rs/zerolog"
)

var testWallet = common.HexToAddress("0x00000000000000000000000000000000000000AA")

func newTestExecutor(t *testing.T, fake *ledgertest.Fake, opts Options) (*Executor, *Store) {
	t.Helper()
	store := openTestStore(t)
	return NewExecutor(fake, store, opts, zerolog.Nop(), nil), store
}

func depositCall(t *testing.T) Call {
	t.Helper()
	data, err := ledger.StakeManagerABI.Pack("deposit")
	if err != nil {
		t.Fatalf("pack deposit: %v", err)
	}
	return Call{Type: StepTypeStake, To: registry.StakeManagerAddress, Data: data, Value: big.NewInt(1), Gas: GasAuto}
}

func TestSubmitConfirmsAndJournals(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.OnSend(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", func(*ledgertest.SentTx) ([]types.Log, error) { return nil, nil })
	exec, store := newTestExecutor(t, fake, Options{})

	action := exec.Begin("lista_stake", "BNB", "", "1")
	receipt, err := exec.Submit(context.Background(), action, depositCall(t))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	exec.Finish(action, nil)
	if !receipt.Succeeded() {
		t.Fatal("expected successful receipt")
	}
	if fake.Sent[0].GasLimit != 0 || fake.Sent[0].GasPrice != nil {
		t.Fatalf("expected auto gas to defer to the client, got %+v", fake.Sent[0])
	}

	saved, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if saved.Status != ActionStatusCompleted || len(saved.Steps) != 1 || saved.Steps[0].Status != StepStatusConfirmed {
		t.Fatalf("unexpected journal entry: %+v", saved)
	}
	if saved.Steps[0].TxHash != receipt.TxHash.Hex() {
		t.Fatalf("expected tx hash in journal, got %s", saved.Steps[0].TxHash)
	}
}

func TestSubmitPaddedGasUsesMultiplierAndFloor(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.GasEstimate = 100_000
	fake.GasPrice = big.NewInt(1_000_000_000)
	fake.OnSend(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", func(*ledgertest.SentTx) ([]types.Log, error) { return nil, nil })
	exec, _ := newTestExecutor(t, fake, Options{})

	call := depositCall(t)
	call.Gas = GasPadded
	if _, err := exec.Submit(context.Background(), exec.Begin("lista_stake", "BNB", "", "1"), call); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	sent := fake.Sent[0]
	if sent.GasLimit != 120_000 {
		t.Fatalf("expected padded gas limit 120000, got %d", sent.GasLimit)
	}
	if sent.GasPrice.Cmp(registry.GasPriceFloorWei) != 0 {
		t.Fatalf("expected gas price floor, got %s", sent.GasPrice)
	}
}

func TestSubmitFixedGasKeepsHigherSuggestedPrice(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.GasPrice = big.NewInt(5_000_000_000)
	fake.OnSend(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", func(*ledgertest.SentTx) ([]types.Log, error) { return nil, nil })
	exec, _ := newTestExecutor(t, fake, Options{})

	call := depositCall(t)
	call.Gas = GasFixed(registry.RepayGasLimit)
	if _, err := exec.Submit(context.Background(), exec.Begin("lista_stake", "BNB", "", "1"), call); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if fake.Sent[0].GasLimit != 500_000 || fake.Sent[0].GasPrice.Int64() != 5_000_000_000 {
		t.Fatalf("unexpected gas: %+v", fake.Sent[0])
	}
}

func TestSubmitRevertedReceipt(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.OnSend(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", func(*ledgertest.SentTx) ([]types.Log, error) {
		return nil, errors.New("revert")
	})
	exec, _ := newTestExecutor(t, fake, Options{})

	action := exec.Begin("lista_stake", "BNB", "", "1")
	_, err := exec.Submit(context.Background(), action, depositCall(t))
	if clierr.ExitCode(err) != int(clierr.CodeReverted) {
		t.Fatalf("expected reverted error, got %v", err)
	}
	if action.Steps[0].Status != StepStatusFailed {
		t.Fatalf("expected failed step, got %s", action.Steps[0].Status)
	}
}

func TestSubmitReceiptTimeout(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.NeverConfirm = true
	fake.OnSend(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", func(*ledgertest.SentTx) ([]types.Log, error) { return nil, nil })
	exec, _ := newTestExecutor(t, fake, Options{ReceiptTimeout: 20 * time.Millisecond})

	_, err := exec.Submit(context.Background(), exec.Begin("lista_stake", "BNB", "", "1"), depositCall(t))
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeActionTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, ok := typed.Details["tx_hash"]; !ok {
		t.Fatal("expected tx hash in timeout details")
	}
}

func TestSubmitBroadcastFailureIsWrapped(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.FailSend(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", errors.New("insufficient funds for gas * price + value"))
	exec, _ := newTestExecutor(t, fake, Options{})

	_, err := exec.Submit(context.Background(), exec.Begin("lista_stake", "BNB", "", "1"), depositCall(t))
	if clierr.ExitCode(err) != int(clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if got := NewClassifier().Classify(err); got.Category != CategoryInsufficientGasFunds {
		t.Fatalf("expected insufficient gas funds classification, got %+v", got)
	}
}

func TestSimulateFailureIsActionSim(t *testing.T) {
	fake := ledgertest.New(testWallet)
	fake.FailEstimate(registry.StakeManagerAddress, ledger.StakeManagerABI, "deposit", errors.New("execution reverted"))
	exec, _ := newTestExecutor(t, fake, Options{})

	if _, err := exec.Simulate(context.Background(), depositCall(t)); clierr.ExitCode(err) != int(clierr.CodeActionSim) {
		t.Fatalf("expected simulation error, got %v", err)
	}
	if len(fake.Sent) != 0 {
		t.Fatal("simulation must not submit")
	}
}

func TestSubmitRejectsInvalidCallBeforeSending(t *testing.T) {
	fake := ledgertest.New(testWallet)
	exec, store := newTestExecutor(t, fake, Options{})

	action := exec.Begin("venus_lend", "USDT", "core", "1")
	call := depositCall(t)
	call.Type = StepTypeSupply
	_, err := exec.Submit(context.Background(), action, call)
	if clierr.ExitCode(err) != int(clierr.CodeActionPlan) {
		t.Fatalf("expected action plan error, got %v", err)
	}
	if len(fake.Sent) != 0 {
		t.Fatal("rejected call must not be sent")
	}
	saved, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(saved.Steps) != 0 {
		t.Fatalf("rejected call must not be journaled as a step, got %+v", saved.Steps)
	}
}
