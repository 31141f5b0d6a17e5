package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/execution/signer"
	"github.com/rs/zerolog"
)

type Options struct {
	// ChainID is checked against the node before signing. Zero skips the check.
	ChainID      int64
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// EthClient is the JSON-RPC backed Client.
type EthClient struct {
	rpc    *ethclient.Client
	signer signer.Signer
	opts   Options
	log    zerolog.Logger

	// chainMu guards chainID and chainErr. Only a successful read or a
	// mismatch is kept; transport failures are retried on the next send.
	chainMu  sync.Mutex
	chainID  *big.Int
	chainErr error
}

// Dial connects to rawURL. txSigner may be nil for read-only use.
func Dial(ctx context.Context, rawURL string, txSigner signer.Signer, opts Options) (*EthClient, error) {
	rpc, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &EthClient{rpc: rpc, signer: txSigner, opts: opts, log: opts.Logger}, nil
}

func (c *EthClient) Close() {
	if c != nil && c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *EthClient) Account() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	v, err := c.rpc.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return v, nil
}

func (c *EthClient) CallContract(ctx context.Context, msg CallMsg) ([]byte, error) {
	return c.rpc.CallContract(ctx, toCallMsg(msg), nil)
}

func (c *EthClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	gas, err := c.rpc.EstimateGas(ctx, toCallMsg(msg))
	if err != nil {
		return 0, withRevertReason(err)
	}
	return gas, nil
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	v, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "suggest gas price", err)
	}
	return v, nil
}

func (c *EthClient) SendTransaction(ctx context.Context, req Tx) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	from := c.signer.Address()
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := req.GasPrice
	if gasPrice == nil {
		if gasPrice, err = c.SuggestGasPrice(ctx); err != nil {
			return common.Hash{}, err
		}
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.EstimateGas(ctx, CallMsg{From: from, To: req.To, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, err
		}
	}

	unlock := acquireNonceLock(chainID, from)
	defer unlock()
	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := c.signer.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	c.log.Debug().Str("tx_hash", signed.Hash().Hex()).Uint64("nonce", nonce).Uint64("gas_limit", gasLimit).Msg("transaction broadcast")
	return signed.Hash(), nil
}

func (c *EthClient) WaitReceipt(ctx context.Context, hash common.Hash) (Receipt, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return fromReceipt(receipt), nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			c.log.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("receipt poll failed")
		}
		select {
		case <-ctx.Done():
			return Receipt{}, clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *EthClient) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil || c.chainErr != nil {
		return c.chainID, c.chainErr
	}
	id, err := c.rpc.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if c.opts.ChainID != 0 && id.Int64() != c.opts.ChainID {
		c.chainErr = clierr.New(clierr.CodeActionPlan, fmt.Sprintf("rpc chain mismatch: expected %d, got %s", c.opts.ChainID, id))
		return nil, c.chainErr
	}
	c.chainID = id
	return id, nil
}

func toCallMsg(msg CallMsg) ethereum.CallMsg {
	to := msg.To
	return ethereum.CallMsg{From: msg.From, To: &to, Value: msg.Value, Data: msg.Data}
}

func fromReceipt(r *types.Receipt) Receipt {
	out := Receipt{
		TxHash:  r.TxHash,
		GasUsed: r.GasUsed,
		Status:  r.Status,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l != nil {
			out.Logs = append(out.Logs, *l)
		}
	}
	return out
}

var nonceLocks sync.Map

// acquireNonceLock serializes nonce reads and broadcasts per signer and chain.
func acquireNonceLock(chainID *big.Int, addr common.Address) func() {
	key := fmt.Sprintf("%s:%s", chainID.String(), addr.Hex())
	v, _ := nonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
