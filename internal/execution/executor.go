package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/metrics"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/rs/zerolog"
)

type GasMode string

const (
	// GasModeAuto leaves limit and price to the client.
	GasModeAuto GasMode = "auto"
	// GasModePadded multiplies the estimate and floors the price.
	GasModePadded GasMode = "padded"
	// GasModeFixed uses a fixed limit and floors the price.
	GasModeFixed GasMode = "fixed"
)

type GasPolicy struct {
	Mode       GasMode
	FixedLimit uint64
}

var (
	GasAuto   = GasPolicy{Mode: GasModeAuto}
	GasPadded = GasPolicy{Mode: GasModePadded}
)

func GasFixed(limit uint64) GasPolicy {
	return GasPolicy{Mode: GasModeFixed, FixedLimit: limit}
}

type Options struct {
	GasMultiplier  float64
	GasPriceFloor  *big.Int
	ReceiptTimeout time.Duration
	ChainID        string
}

func DefaultOptions() Options {
	return Options{
		GasMultiplier:  1.2,
		GasPriceFloor:  new(big.Int).Set(registry.GasPriceFloorWei),
		ReceiptTimeout: 2 * time.Minute,
		ChainID:        fmt.Sprintf("eip155:%d", registry.ChainID),
	}
}

// Call is one transaction the orchestrator wants mined.
type Call struct {
	Type        StepType
	Description string
	To          common.Address
	Data        []byte
	Value       *big.Int
	Gas         GasPolicy
	// UnboundedApproval permits an approve of 2^256-1.
	UnboundedApproval bool
}

// Executor submits single transactions, waits for their receipts and keeps
// the operation journal current.
type Executor struct {
	client  ledger.Client
	store   *Store
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Recorder
}

func NewExecutor(client ledger.Client, store *Store, opts Options, log zerolog.Logger, rec *metrics.Recorder) *Executor {
	def := DefaultOptions()
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = def.GasMultiplier
	}
	if opts.GasPriceFloor == nil {
		opts.GasPriceFloor = def.GasPriceFloor
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = def.ReceiptTimeout
	}
	if opts.ChainID == "" {
		opts.ChainID = def.ChainID
	}
	return &Executor{client: client, store: store, opts: opts, log: log, metrics: rec}
}

func (e *Executor) Client() ledger.Client { return e.client }

func (e *Executor) Account() common.Address { return e.client.Account() }

// Begin opens a journal entry for one operation invocation.
func (e *Executor) Begin(intent, asset, pool, amount string) *Action {
	action := NewAction(NewActionID(), intent, e.opts.ChainID)
	action.FromAddress = e.client.Account().Hex()
	action.Asset = asset
	action.Pool = pool
	action.InputAmount = amount
	e.save(&action)
	return &action
}

// Finish records the final status of an operation.
func (e *Executor) Finish(action *Action, err error) {
	if action == nil {
		return
	}
	if err != nil {
		action.Status = ActionStatusFailed
		action.Error = err.Error()
	} else {
		action.Status = ActionStatusCompleted
	}
	action.Touch()
	e.save(action)
}

// Simulate dry-runs a call through gas estimation. A failing estimate means
// the call would revert, so it is never submitted.
func (e *Executor) Simulate(ctx context.Context, call Call) (uint64, error) {
	gas, err := e.client.EstimateGas(ctx, e.callMsg(call))
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeActionSim, "simulate "+string(call.Type), err)
	}
	return gas, nil
}

// Submit sends one transaction and blocks until it is mined or the receipt
// timeout elapses. The step is appended to action whatever the outcome.
func (e *Executor) Submit(ctx context.Context, action *Action, call Call) (ledger.Receipt, error) {
	if err := checkCall(call); err != nil {
		e.metrics.Transaction(string(call.Type), "rejected")
		return ledger.Receipt{}, err
	}
	step := Step{
		StepID:      fmt.Sprintf("%s-%d", call.Type, len(action.Steps)+1),
		Type:        call.Type,
		Status:      StepStatusPending,
		Description: call.Description,
		Target:      call.To.Hex(),
		Data:        hexutil.Encode(call.Data),
		Value:       valueString(call.Value),
	}
	action.Steps = append(action.Steps, step)
	idx := len(action.Steps) - 1
	fail := func(err error) (ledger.Receipt, error) {
		action.Steps[idx].Status = StepStatusFailed
		action.Steps[idx].Error = err.Error()
		action.Touch()
		e.save(action)
		e.metrics.Transaction(string(call.Type), "failed")
		return ledger.Receipt{}, err
	}

	tx, err := e.buildTx(ctx, call)
	if err != nil {
		return fail(err)
	}
	if tx.GasLimit > 0 {
		action.Steps[idx].GasLimit = tx.GasLimit
		action.Steps[idx].Status = StepStatusSimulated
	}
	if tx.GasPrice != nil {
		action.Steps[idx].GasPrice = tx.GasPrice.String()
	}

	hash, err := e.client.SendTransaction(ctx, tx)
	if err != nil {
		if _, typed := clierr.As(err); typed {
			return fail(err)
		}
		return fail(clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err))
	}
	action.Steps[idx].Status = StepStatusSubmitted
	action.Steps[idx].TxHash = hash.Hex()
	action.Touch()
	e.save(action)
	e.log.Info().Str("action_id", action.ActionID).Str("step", string(call.Type)).Str("tx_hash", hash.Hex()).Msg("transaction submitted")

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ReceiptTimeout)
	defer cancel()
	started := time.Now()
	receipt, err := e.client.WaitReceipt(waitCtx, hash)
	if err != nil {
		if _, typed := clierr.As(err); !typed {
			if errors.Is(err, context.DeadlineExceeded) {
				err = clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", err)
			} else {
				err = clierr.Wrap(clierr.CodeUnavailable, "wait for receipt", err)
			}
		}
		if typed, ok := clierr.As(err); ok {
			typed.WithDetails(map[string]any{"tx_hash": hash.Hex()})
		}
		return fail(err)
	}
	action.Steps[idx].BlockNumber = receipt.BlockNumber
	action.Steps[idx].GasUsed = receipt.GasUsed
	if !receipt.Succeeded() {
		return fail(clierr.New(clierr.CodeReverted, "transaction reverted on-chain").WithDetails(map[string]any{
			"tx_hash":      hash.Hex(),
			"block_number": receipt.BlockNumber,
		}))
	}
	action.Steps[idx].Status = StepStatusConfirmed
	action.Touch()
	e.save(action)
	e.metrics.Transaction(string(call.Type), "confirmed")
	e.log.Info().
		Str("action_id", action.ActionID).
		Str("tx_hash", hash.Hex()).
		Uint64("block", receipt.BlockNumber).
		Dur("wait", time.Since(started)).
		Msg("transaction confirmed")
	return receipt, nil
}

func (e *Executor) buildTx(ctx context.Context, call Call) (ledger.Tx, error) {
	tx := ledger.Tx{To: call.To, Value: call.Value, Data: call.Data}
	switch call.Gas.Mode {
	case GasModePadded:
		est, err := e.client.EstimateGas(ctx, e.callMsg(call))
		if err != nil {
			return ledger.Tx{}, clierr.Wrap(clierr.CodeActionSim, "estimate gas", err)
		}
		tx.GasLimit = uint64(float64(est) * e.opts.GasMultiplier)
	case GasModeFixed:
		tx.GasLimit = call.Gas.FixedLimit
	default:
		return tx, nil
	}
	price, err := e.gasPrice(ctx)
	if err != nil {
		return ledger.Tx{}, err
	}
	tx.GasPrice = price
	return tx, nil
}

// gasPrice returns max(suggested, floor).
func (e *Executor) gasPrice(ctx context.Context) (*big.Int, error) {
	suggested, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if suggested.Cmp(e.opts.GasPriceFloor) < 0 {
		return new(big.Int).Set(e.opts.GasPriceFloor), nil
	}
	return suggested, nil
}

func (e *Executor) callMsg(call Call) ledger.CallMsg {
	return ledger.CallMsg{From: e.client.Account(), To: call.To, Value: call.Value, Data: call.Data}
}

func (e *Executor) save(action *Action) {
	if e.store == nil || action == nil {
		return
	}
	if err := e.store.Save(*action); err != nil {
		e.log.Warn().Err(err).Str("action_id", action.ActionID).Msg("persist operation journal")
	}
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// StepSummary is the compact per-transaction view used in results.
type StepSummary struct {
	Step        string
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

func Summaries(action *Action) []StepSummary {
	out := make([]StepSummary, 0, len(action.Steps))
	for _, s := range action.Confirmed() {
		out = append(out, StepSummary{Step: string(s.Type), TxHash: s.TxHash, BlockNumber: s.BlockNumber, GasUsed: s.GasUsed})
	}
	return out
}
