// Package metrics exposes Prometheus counters for operations, transactions and
// tool calls. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bscdefi"

type Recorder struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TransactionsTotal *prometheus.CounterVec
	GuardFailures     *prometheus.CounterVec
	ToolCallsTotal    *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	YieldFetchErrors  prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "operations_total",
			Help:      "Operations finished, by operation and result status",
		}, []string{"operation", "status"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of an operation including receipt waits",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"operation"}),
		TransactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Transactions submitted, by step type and outcome",
		}, []string{"step_type", "outcome"}),
		GuardFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "failures_total",
			Help:      "Operations stopped by a pre-flight guard",
		}, []string{"operation", "category"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serve",
			Name:      "tool_calls_total",
			Help:      "Tool invocations handled, by tool and outcome",
		}, []string{"tool", "outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss, stale)",
		}, []string{"result"}),
		YieldFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "yields",
			Name:      "fetch_errors_total",
			Help:      "DefiLlama pool chart fetches that failed",
		}),
	}
}

func (r *Recorder) Operation(operation, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *Recorder) Transaction(stepType, outcome string) {
	if r == nil {
		return
	}
	r.TransactionsTotal.WithLabelValues(stepType, outcome).Inc()
}

func (r *Recorder) Guard(operation, category string) {
	if r == nil {
		return
	}
	r.GuardFailures.WithLabelValues(operation, category).Inc()
}

func (r *Recorder) ToolCall(tool, outcome string) {
	if r == nil {
		return
	}
	r.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (r *Recorder) Cache(result string) {
	if r == nil {
		return
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) YieldError() {
	if r == nil {
		return
	}
	r.YieldFetchErrors.Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the private registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
