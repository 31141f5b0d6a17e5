package orchestrator

import (
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/ledger/ledgertest"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/rs/zerolog"
)

var testWallet = common.HexToAddress("0x00000000000000000000000000000000000000AA")

// world is a tiny in-memory BSC: ERC20 balances and allowances, Lista,
// KernelDAO and one Venus market, all wired onto a ledgertest.Fake.
type world struct {
	t    *testing.T
	fake *ledgertest.Fake
	orch *Orchestrator

	mu         sync.Mutex
	tokens     map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	kernel     *big.Int
	vBalance   map[common.Address]*big.Int
	debt       map[common.Address]*big.Int
	entered    []common.Address
	liquidity  *big.Int
	shortfall  *big.Int
}

func bnb(s string) *big.Int { return amount.MustParseDecimal(s, 18) }

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		t:          t,
		fake:       ledgertest.New(testWallet),
		tokens:     map[common.Address]*big.Int{},
		allowances: map[common.Address]map[common.Address]*big.Int{},
		kernel:     new(big.Int),
		vBalance:   map[common.Address]*big.Int{},
		debt:       map[common.Address]*big.Int{},
		liquidity:  new(big.Int),
		shortfall:  new(big.Int),
	}
	w.fake.SetNative(testWallet, bnb("1"))
	w.erc20(registry.SlisBNBAddress)
	w.kernelGateway()

	dir := t.TempDir()
	store, err := execution.OpenStore(filepath.Join(dir, "ops.db"), filepath.Join(dir, "ops.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exec := execution.NewExecutor(w.fake, store, execution.Options{}, zerolog.Nop(), nil)
	w.orch = New(Deps{Executor: exec, Logger: zerolog.Nop()})
	return w
}

func (w *world) balance(token common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.tokens[token]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (w *world) setBalance(token common.Address, v *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens[token] = new(big.Int).Set(v)
}

func (w *world) addBalance(token common.Address, delta *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.tokens[token]
	if !ok {
		cur = new(big.Int)
	}
	w.tokens[token] = new(big.Int).Add(cur, delta)
}

func (w *world) setAllowance(token, spender common.Address, v *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.allowances[token] == nil {
		w.allowances[token] = map[common.Address]*big.Int{}
	}
	w.allowances[token][spender] = new(big.Int).Set(v)
}

func (w *world) erc20(token common.Address) {
	w.fake.OnCall(token, ledger.ERC20ABI, "balanceOf", func(common.Address, []any) ([]any, error) {
		return []any{w.balance(token)}, nil
	})
	w.fake.OnCall(token, ledger.ERC20ABI, "allowance", func(_ common.Address, args []any) ([]any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if v, ok := w.allowances[token][args[1].(common.Address)]; ok {
			return []any{new(big.Int).Set(v)}, nil
		}
		return []any{new(big.Int)}, nil
	})
	w.fake.OnSend(token, ledger.ERC20ABI, "approve", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		w.setAllowance(token, tx.Args[0].(common.Address), tx.Args[1].(*big.Int))
		return nil, nil
	})
}

func (w *world) kernelGateway() {
	gw := registry.KernelStakerGatewayAddress
	w.fake.OnCall(gw, ledger.KernelABI, "balanceOf", func(common.Address, []any) ([]any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return []any{new(big.Int).Set(w.kernel)}, nil
	})
	w.fake.OnSend(gw, ledger.KernelABI, "stake", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		v := tx.Args[1].(*big.Int)
		w.addBalance(registry.SlisBNBAddress, new(big.Int).Neg(v))
		w.mu.Lock()
		w.kernel = new(big.Int).Add(w.kernel, v)
		w.mu.Unlock()
		return nil, nil
	})
	w.fake.OnSend(gw, ledger.KernelABI, "unstake", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		v := tx.Args[1].(*big.Int)
		w.addBalance(registry.SlisBNBAddress, v)
		w.mu.Lock()
		w.kernel = new(big.Int).Sub(w.kernel, v)
		w.mu.Unlock()
		return nil, nil
	})
}

// lista wires the StakeManager; deposit mints minted slisBNB whatever the value sent.
func (w *world) lista(minted *big.Int) {
	sm := registry.StakeManagerAddress
	w.fake.OnSend(sm, ledger.StakeManagerABI, "deposit", func(*ledgertest.SentTx) ([]types.Log, error) {
		w.addBalance(registry.SlisBNBAddress, minted)
		return nil, nil
	})
}

func coreMarket(t *testing.T, symbol string) registry.Market {
	t.Helper()
	for _, m := range registry.Markets(registry.PoolCore) {
		if m.Matches(symbol) {
			return m
		}
	}
	t.Fatalf("no core market %s", symbol)
	return registry.Market{}
}

func coreComptroller() common.Address {
	p, _ := registry.LookupPool(registry.PoolCore)
	return p.Comptroller
}

// venus wires one core market and the core comptroller.
func (w *world) venus(m registry.Market) {
	w.erc20(m.Underlying)
	vt := m.VToken
	w.fake.OnCall(vt, ledger.VTokenABI, "balanceOf", func(common.Address, []any) ([]any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return []any{valueOr(w.vBalance[vt])}, nil
	})
	w.fake.OnCall(vt, ledger.VTokenABI, "borrowBalanceStored", func(common.Address, []any) ([]any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return []any{valueOr(w.debt[vt])}, nil
	})
	// 1 underlying = 50 vTokens in 8 decimals: underlying(18) / 1e10 * 50.
	toV := func(u *big.Int) *big.Int {
		v := new(big.Int).Div(u, big.NewInt(1e10))
		return v.Mul(v, big.NewInt(50))
	}
	w.fake.OnSend(vt, ledger.VTokenABI, "mint", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		u := tx.Args[0].(*big.Int)
		w.addBalance(m.Underlying, new(big.Int).Neg(u))
		w.mu.Lock()
		w.vBalance[vt] = new(big.Int).Add(valueOr(w.vBalance[vt]), toV(u))
		w.mu.Unlock()
		return nil, nil
	})
	w.fake.OnSend(vt, ledger.VTokenABI, "borrow", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		u := tx.Args[0].(*big.Int)
		w.addBalance(m.Underlying, u)
		w.mu.Lock()
		w.debt[vt] = new(big.Int).Add(valueOr(w.debt[vt]), u)
		w.mu.Unlock()
		return nil, nil
	})
	w.fake.OnSend(vt, ledger.VTokenABI, "repayBorrow", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		u := tx.Args[0].(*big.Int)
		w.mu.Lock()
		debt := valueOr(w.debt[vt])
		if u.Cmp(amount.MaxUint256) == 0 {
			u = debt
		}
		w.debt[vt] = new(big.Int).Sub(debt, u)
		w.mu.Unlock()
		w.addBalance(m.Underlying, new(big.Int).Neg(u))
		return nil, nil
	})
	w.fake.OnSend(vt, ledger.VTokenABI, "redeem", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		v := tx.Args[0].(*big.Int)
		w.mu.Lock()
		w.vBalance[vt] = new(big.Int).Sub(valueOr(w.vBalance[vt]), v)
		w.mu.Unlock()
		u := new(big.Int).Mul(v, big.NewInt(1e10))
		w.addBalance(m.Underlying, u.Div(u, big.NewInt(50)))
		return nil, nil
	})
	w.fake.OnSend(vt, ledger.VTokenABI, "redeemUnderlying", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		u := tx.Args[0].(*big.Int)
		w.mu.Lock()
		w.vBalance[vt] = new(big.Int).Sub(valueOr(w.vBalance[vt]), toV(u))
		w.mu.Unlock()
		w.addBalance(m.Underlying, u)
		return nil, nil
	})

	comp := coreComptroller()
	w.fake.OnCall(comp, ledger.ComptrollerABI, "getAssetsIn", func(common.Address, []any) ([]any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return []any{append([]common.Address{}, w.entered...)}, nil
	})
	w.fake.OnCall(comp, ledger.ComptrollerABI, "getAccountLiquidity", func(common.Address, []any) ([]any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return []any{new(big.Int), new(big.Int).Set(w.liquidity), new(big.Int).Set(w.shortfall)}, nil
	})
	w.fake.OnSend(comp, ledger.ComptrollerABI, "enterMarkets", func(tx *ledgertest.SentTx) ([]types.Log, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.entered = append(w.entered, tx.Args[0].([]common.Address)...)
		return nil, nil
	})
}

func valueOr(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func countMethod(fake *ledgertest.Fake, method string) int {
	n := 0
	for _, m := range fake.SentMethods() {
		if m == method {
			n++
		}
	}
	return n
}
