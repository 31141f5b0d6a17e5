package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsOperations(t *testing.T) {
	r := New()
	r.Operation("lista_stake", "success", 3*time.Second)
	r.Operation("lista_stake", "error", time.Second)
	r.Operation("lista_stake", "success", time.Second)

	if got := testutil.ToFloat64(r.OperationsTotal.WithLabelValues("lista_stake", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Operation("venus_lend", "success", time.Second)
	r.Transaction("supply", "confirmed")
	r.Guard("venus_lend", "insufficient_balance")
	r.ToolCall("get_apy", "ok")
	r.Cache("hit")
	r.YieldError()
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.Transaction("approval", "confirmed")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `bscdefi_chain_transactions_total{outcome="confirmed",step_type="approval"} 1`) {
		t.Fatalf("expected transaction counter in scrape, got:\n%s", body)
	}
}
