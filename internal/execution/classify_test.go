package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

func TestClassifyOrderedRules(t *testing.T) {
	c := NewClassifier()
	cases := []struct {
		err  error
		want Category
		msg  string
	}{
		{errors.New("insufficient funds for gas * price + value"), CategoryInsufficientGasFunds, "Insufficient BNB for gas fees"},
		{errors.New("execution reverted: borrow cap reached"), CategoryBorrowCap, "Borrow cap reached for this asset"},
		{errors.New("execution reverted"), CategoryReverted, "Transaction reverted - check collateral ratio"},
		{errors.New("nonce too low"), CategoryNonceConflict, ""},
		{errors.New("replacement transaction underpriced"), CategoryNonceConflict, ""},
		{clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", context.DeadlineExceeded), CategoryTimeout, ""},
		{errors.New("something odd happened"), CategoryUnclassified, "something odd happened"},
	}
	for _, tc := range cases {
		got := c.Classify(tc.err)
		if got.Category != tc.want {
			t.Fatalf("Classify(%v) category = %s, want %s", tc.err, got.Category, tc.want)
		}
		if tc.msg != "" && got.Message != tc.msg {
			t.Fatalf("Classify(%v) message = %q, want %q", tc.err, got.Message, tc.msg)
		}
		if got.Cause != tc.err.Error() {
			t.Fatalf("expected cause to keep the verbatim error, got %q", got.Cause)
		}
	}
}

func TestClassifyGuardKeepsFigures(t *testing.T) {
	err := clierr.New(clierr.CodeGuard, "Insufficient USDT balance").WithDetails(map[string]any{
		"category":  "insufficient_balance",
		"required":  "10",
		"available": "4",
	})
	got := NewClassifier().Classify(err)
	if got.Category != "insufficient_balance" || got.Code != clierr.CodeGuard {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if got.Details["available"] != "4" || got.Message != "Insufficient USDT balance" {
		t.Fatalf("expected guard figures to survive, got %+v", got)
	}
}

func TestClassifySimulationRevertStaysSimulation(t *testing.T) {
	err := clierr.Wrap(clierr.CodeActionSim, "Borrow transaction would fail", errors.New("execution reverted"))
	got := NewClassifier().Classify(err)
	if got.Category != CategorySimulationFailed || got.Message != "Borrow transaction would fail" {
		t.Fatalf("unexpected classification: %+v", got)
	}

	capped := clierr.Wrap(clierr.CodeActionSim, "Borrow transaction would fail", errors.New("execution reverted: market borrow cap reached"))
	if got := NewClassifier().Classify(capped); got.Category != CategoryBorrowCap {
		t.Fatalf("expected borrow cap to win over simulation failure, got %+v", got)
	}
}

func TestClassifyReceiptRevert(t *testing.T) {
	err := clierr.New(clierr.CodeReverted, "transaction reverted on-chain")
	if got := NewClassifier().Classify(err); got.Category != CategoryReverted {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifierWithPrependsRules(t *testing.T) {
	c := NewClassifier().With(Rule{Category: "paused", Message: "Market is paused", Match: Contains("paused")})
	got := c.Classify(fmt.Errorf("execution reverted: action paused"))
	if got.Category != "paused" {
		t.Fatalf("expected custom rule to run first, got %+v", got)
	}
	if NewClassifier().Classify(fmt.Errorf("execution reverted: action paused")).Category != CategoryReverted {
		t.Fatal("expected base classifier to be unchanged")
	}
}
