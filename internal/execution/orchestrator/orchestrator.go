// Package orchestrator runs mutating DeFi operations as one pipeline each:
// validate, guard, execute, confirm, re-read balances and report.
package orchestrator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/execution/guard"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/markets"
	"github.com/ggonzalez94/bscdefi/internal/metrics"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/rs/zerolog"
)

type Deps struct {
	Executor   *execution.Executor
	Resolver   *markets.Resolver
	Classifier *execution.Classifier
	Logger     zerolog.Logger
	Metrics    *metrics.Recorder
	Now        func() time.Time
}

type Orchestrator struct {
	exec       *execution.Executor
	resolver   *markets.Resolver
	balance    *guard.Balance
	allowance  *guard.Allowance
	classifier *execution.Classifier
	log        zerolog.Logger
	metrics    *metrics.Recorder
	now        func() time.Time
}

func New(d Deps) *Orchestrator {
	if d.Classifier == nil {
		d.Classifier = execution.NewClassifier()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Resolver == nil {
		d.Resolver = markets.NewResolver(d.Executor.Client(), d.Logger)
	}
	return &Orchestrator{
		exec:       d.Executor,
		resolver:   d.Resolver,
		balance:    guard.NewBalance(d.Executor.Client()),
		allowance:  guard.NewAllowance(d.Executor, d.Logger),
		classifier: d.Classifier,
		log:        d.Logger,
		metrics:    d.Metrics,
		now:        d.Now,
	}
}

func (o *Orchestrator) Wallet() common.Address { return o.exec.Account() }

// op carries one invocation's journal entry and result under construction.
type op struct {
	o      *Orchestrator
	action *execution.Action
	result model.OperationResult
}

type opFunc func(ctx context.Context, p *op) error

func (o *Orchestrator) run(ctx context.Context, name, asset, pool, requested string, fn opFunc) model.OperationResult {
	started := o.now()
	action := o.exec.Begin(name, asset, pool, requested)
	p := &op{
		o:      o,
		action: action,
		result: model.OperationResult{
			Operation:       name,
			ActionID:        action.ActionID,
			Wallet:          o.exec.Account().Hex(),
			Asset:           asset,
			Pool:            pool,
			RequestedAmount: requested,
		},
	}
	err := fn(ctx, p)
	o.exec.Finish(action, err)

	res := p.result
	res.Pool = p.action.Pool
	res.Timestamp = o.now().UTC()
	for _, s := range execution.Summaries(action) {
		res.Transactions = append(res.Transactions, model.TxSummary{Step: s.Step, TxHash: s.TxHash, BlockNumber: s.BlockNumber, GasUsed: s.GasUsed})
	}
	if err != nil {
		c := o.classifier.Classify(err)
		res.Status = model.StatusError
		res.Message = c.Message
		res.Error = &model.OperationError{
			Category: string(c.Category),
			Type:     clierr.TypeName(c.Code),
			Code:     int(c.Code),
			Message:  c.Message,
			Cause:    c.Cause,
			Details:  c.Details,
		}
		if c.Code == clierr.CodeGuard {
			o.metrics.Guard(name, string(c.Category))
		}
		o.log.Warn().Str("operation", name).Str("action_id", action.ActionID).Str("category", string(c.Category)).Err(err).Msg("operation failed")
	} else {
		res.Status = model.StatusSuccess
		o.log.Info().Str("operation", name).Str("action_id", action.ActionID).Str("tx_hash", res.TxHash).Msg("operation succeeded")
	}
	o.metrics.Operation(name, res.Status, o.now().Sub(started))
	return res
}

func (p *op) submit(ctx context.Context, call execution.Call) (ledger.Receipt, error) {
	return p.o.exec.Submit(ctx, p.action, call)
}

// primary records the receipt that represents the operation as a whole.
func (p *op) primary(r ledger.Receipt) {
	p.result.TxHash = r.TxHash.Hex()
	p.result.BlockNumber = r.BlockNumber
	p.result.GasUsed = r.GasUsed
}

func (p *op) delta(token string, decimals int32, before, after *big.Int) *big.Int {
	d := new(big.Int).Sub(after, before)
	ta := tokenAmount(token, decimals, d)
	p.result.Delta = &ta
	return d
}

func (p *op) balance(key, token string, decimals int32, v *big.Int) {
	if p.result.Balances == nil {
		p.result.Balances = map[string]model.TokenAmount{}
	}
	p.result.Balances[key] = tokenAmount(token, decimals, v)
}

func (p *op) detail(key string, v any) {
	if p.result.Details == nil {
		p.result.Details = map[string]any{}
	}
	p.result.Details[key] = v
}

func tokenAmount(token string, decimals int32, v *big.Int) model.TokenAmount {
	if v == nil {
		v = new(big.Int)
	}
	return model.TokenAmount{Token: token, BaseUnits: v.String(), Decimal: amount.Format(v, decimals)}
}

// DeltaOf reads the verified delta back out of a successful result.
func DeltaOf(r model.OperationResult) (*big.Int, bool) {
	if r.Delta == nil {
		return nil, false
	}
	v, ok := new(big.Int).SetString(r.Delta.BaseUnits, 10)
	return v, ok
}
