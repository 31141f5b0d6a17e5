// Package ledgertest provides an in-memory ledger.Client for orchestrator and reader tests.
package ledgertest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
)

type CallFunc func(from common.Address, args []any) ([]any, error)

// SendFunc runs the state change for a submitted transaction. A non-nil
// error produces a reverted receipt.
type SendFunc func(tx *SentTx) ([]types.Log, error)

type SentTx struct {
	To       common.Address
	Method   string
	Args     []any
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Hash     common.Hash
}

type route struct {
	to       common.Address
	selector [4]byte
}

type callRoute struct {
	method abi.Method
	fn     CallFunc
}

type sendRoute struct {
	method abi.Method
	fn     SendFunc
}

// Fake routes calls by target address and method selector.
type Fake struct {
	mu sync.Mutex

	From     common.Address
	Native   map[common.Address]*big.Int
	GasPrice *big.Int
	// GasEstimate is returned for every successful estimate.
	GasEstimate uint64
	// NeverConfirm makes WaitReceipt block until the context ends.
	NeverConfirm bool
	// NativeErr fails BalanceAt.
	NativeErr error

	calls        map[route]callRoute
	sends        map[route]sendRoute
	estimateErrs map[route]error
	sendErrs     map[route]error
	receipts     map[common.Hash]ledger.Receipt

	Sent      []SentTx
	Estimates []string
}

var _ ledger.Client = (*Fake)(nil)

func New(from common.Address) *Fake {
	return &Fake{
		From:         from,
		Native:       map[common.Address]*big.Int{},
		GasPrice:     big.NewInt(1_000_000_000),
		GasEstimate:  100_000,
		calls:        map[route]callRoute{},
		sends:        map[route]sendRoute{},
		estimateErrs: map[route]error{},
		sendErrs:     map[route]error{},
		receipts:     map[common.Hash]ledger.Receipt{},
	}
}

func keyFor(to common.Address, parsed abi.ABI, method string) (route, abi.Method) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("ledgertest: unknown method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	return route{to: to, selector: sel}, m
}

func (f *Fake) OnCall(to common.Address, parsed abi.ABI, method string, fn CallFunc) {
	k, m := keyFor(to, parsed, method)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[k] = callRoute{method: m, fn: fn}
}

// Returns registers a constant view response.
func (f *Fake) Returns(to common.Address, parsed abi.ABI, method string, outputs ...any) {
	f.OnCall(to, parsed, method, func(common.Address, []any) ([]any, error) { return outputs, nil })
}

func (f *Fake) OnSend(to common.Address, parsed abi.ABI, method string, fn SendFunc) {
	k, m := keyFor(to, parsed, method)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends[k] = sendRoute{method: m, fn: fn}
}

func (f *Fake) FailEstimate(to common.Address, parsed abi.ABI, method string, err error) {
	k, _ := keyFor(to, parsed, method)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateErrs[k] = err
}

// FailSend makes broadcast of the method fail before a hash exists.
func (f *Fake) FailSend(to common.Address, parsed abi.ABI, method string, err error) {
	k, _ := keyFor(to, parsed, method)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs[k] = err
}

func (f *Fake) SetNative(addr common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Native[addr] = new(big.Int).Set(v)
}

func (f *Fake) SentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Sent))
	for _, tx := range f.Sent {
		out = append(out, tx.Method)
	}
	return out
}

func (f *Fake) Account() common.Address { return f.From }

func (f *Fake) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NativeErr != nil {
		return nil, f.NativeErr
	}
	if v, ok := f.Native[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *Fake) CallContract(_ context.Context, msg ledger.CallMsg) ([]byte, error) {
	k, ok := routeOf(msg.To, msg.Data)
	if !ok {
		return nil, fmt.Errorf("ledgertest: short calldata to %s", msg.To.Hex())
	}
	f.mu.Lock()
	r, found := f.calls[k]
	f.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("ledgertest: no call handler for %s selector %x", msg.To.Hex(), k.selector)
	}
	args, err := r.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("ledgertest: decode %s args: %w", r.method.Name, err)
	}
	outs, err := r.fn(msg.From, args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(outs...)
}

func (f *Fake) EstimateGas(_ context.Context, msg ledger.CallMsg) (uint64, error) {
	k, ok := routeOf(msg.To, msg.Data)
	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		if r, found := f.sends[k]; found {
			f.Estimates = append(f.Estimates, r.method.Name)
		}
		if err := f.estimateErrs[k]; err != nil {
			return 0, err
		}
	}
	return f.GasEstimate, nil
}

func (f *Fake) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *Fake) SendTransaction(_ context.Context, tx ledger.Tx) (common.Hash, error) {
	k, ok := routeOf(tx.To, tx.Data)
	if !ok {
		return common.Hash{}, fmt.Errorf("ledgertest: short calldata to %s", tx.To.Hex())
	}
	f.mu.Lock()
	if err := f.sendErrs[k]; err != nil {
		f.mu.Unlock()
		return common.Hash{}, err
	}
	r, found := f.sends[k]
	f.mu.Unlock()
	if !found {
		return common.Hash{}, fmt.Errorf("ledgertest: no send handler for %s selector %x", tx.To.Hex(), k.selector)
	}
	args, err := r.method.Inputs.Unpack(tx.Data[4:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledgertest: decode %s args: %w", r.method.Name, err)
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	f.mu.Lock()
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], uint64(len(f.Sent)+1))
	sent := SentTx{
		To:       tx.To,
		Method:   r.method.Name,
		Args:     args,
		Value:    new(big.Int).Set(value),
		GasLimit: tx.GasLimit,
		GasPrice: tx.GasPrice,
		Hash:     crypto.Keccak256Hash(nonce[:], tx.Data),
	}
	block := uint64(100 + len(f.Sent))
	f.mu.Unlock()

	logs, runErr := r.fn(&sent)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, sent)
	receipt := ledger.Receipt{TxHash: sent.Hash, BlockNumber: block, GasUsed: 21_000, Status: types.ReceiptStatusSuccessful, Logs: logs}
	if runErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Logs = nil
	}
	f.receipts[sent.Hash] = receipt
	return sent.Hash, nil
}

func (f *Fake) WaitReceipt(ctx context.Context, hash common.Hash) (ledger.Receipt, error) {
	f.mu.Lock()
	never := f.NeverConfirm
	receipt, ok := f.receipts[hash]
	f.mu.Unlock()
	if never || !ok {
		<-ctx.Done()
		return ledger.Receipt{}, clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", ctx.Err())
	}
	return receipt, nil
}

// EventLog builds a log for an ABI event with the given indexed topics and data fields.
func EventLog(address common.Address, parsed abi.ABI, event string, topics []common.Hash, data ...any) types.Log {
	ev, ok := parsed.Events[event]
	if !ok {
		panic(fmt.Sprintf("ledgertest: unknown event %s", event))
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("ledgertest: pack %s: %v", event, err))
	}
	return types.Log{Address: address, Topics: append([]common.Hash{ev.ID}, topics...), Data: packed}
}

func routeOf(to common.Address, data []byte) (route, bool) {
	if len(data) < 4 {
		return route{}, false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	return route{to: to, selector: sel}, true
}
