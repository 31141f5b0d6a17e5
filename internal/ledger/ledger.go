// Package ledger is the narrow view of BNB Smart Chain the orchestrator works
// against: balance reads, eth_call, gas estimation and signed submission.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallMsg is a read-only or simulated invocation.
type CallMsg struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Tx is an unsigned transaction request. Zero GasLimit or nil GasPrice are
// filled in by the client.
type Tx struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
	Logs        []types.Log
}

func (r Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// Reader is enough for portfolio and guard reads.
type Reader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg CallMsg) ([]byte, error)
}

// Client adds the signing wallet and submission on top of Reader.
type Client interface {
	Reader
	Account() common.Address
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx Tx) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined or ctx is done.
	WaitReceipt(ctx context.Context, hash common.Hash) (Receipt, error)
}
