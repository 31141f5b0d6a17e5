// Package portfolio reads balances and Venus positions. Every per-item read
// is independent: a failed read is reported as absent and never aborts the
// whole query.
package portfolio

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/markets"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

const unavailable = "unavailable"

// Read is the explicit outcome of one on-chain read.
type Read[T any] struct {
	Value   T
	Present bool
	Err     error
}

func Present[T any](v T) Read[T] { return Read[T]{Value: v, Present: true} }

func Absent[T any](err error) Read[T] { return Read[T]{Err: err} }

func readBig(v *big.Int, err error) Read[*big.Int] {
	if err != nil || v == nil {
		return Absent[*big.Int](err)
	}
	return Present(v)
}

var (
	stakeManager  = ledger.Bind("StakeManager", registry.StakeManagerAddress, ledger.StakeManagerABI)
	slisBNB       = ledger.Bind(registry.SlisBNBSymbol, registry.SlisBNBAddress, ledger.ERC20ABI)
	kernelGateway = ledger.Bind("KernelStakerGateway", registry.KernelStakerGatewayAddress, ledger.KernelABI)
)

// KernelStaked reads the slisBNB restaked by owner on KernelDAO.
func KernelStaked(ctx context.Context, r ledger.Reader, owner common.Address) (*big.Int, error) {
	return kernelGateway.CallBig(ctx, r, owner, "balanceOf", registry.SlisBNBAddress, owner)
}

type Options struct {
	Concurrency int
	Now         func() time.Time
}

type Reader struct {
	chain       ledger.Reader
	resolver    *markets.Resolver
	concurrency int
	log         zerolog.Logger
	now         func() time.Time
}

func NewReader(chain ledger.Reader, resolver *markets.Resolver, opts Options, log zerolog.Logger) *Reader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if resolver == nil {
		resolver = markets.NewResolver(chain, log)
	}
	return &Reader{chain: chain, resolver: resolver, concurrency: opts.Concurrency, log: log, now: opts.Now}
}

func (r *Reader) asOf() time.Time { return r.now().UTC() }

func (r *Reader) NativeBalance(ctx context.Context, owner common.Address) (model.BalanceReport, error) {
	bal, err := r.chain.BalanceAt(ctx, owner)
	if err != nil {
		return model.BalanceReport{}, err
	}
	return model.BalanceReport{
		Address: owner.Hex(),
		Balance: tokenAmount(registry.NativeSymbol, registry.NativeDecimals, bal),
		AsOf:    r.asOf(),
	}, nil
}

// SlisBNB reads the token balance plus the StakeManager share accounting.
// Shares and pooled BNB are optional extras.
func (r *Reader) SlisBNB(ctx context.Context, owner common.Address) (model.SlisBNBReport, error) {
	bal, err := slisBNB.CallBig(ctx, r.chain, owner, "balanceOf", owner)
	if err != nil {
		return model.SlisBNBReport{}, err
	}
	report := model.SlisBNBReport{
		Address: owner.Hex(),
		Balance: tokenAmount(registry.SlisBNBSymbol, registry.SlisBNBDecimals, bal),
		AsOf:    r.asOf(),
	}
	shares, err := stakeManager.CallBig(ctx, r.chain, owner, "sharesOf", owner)
	if err != nil {
		r.log.Debug().Err(err).Msg("read staker shares")
		return report, nil
	}
	s := tokenAmount("shares", registry.SlisBNBDecimals, shares)
	report.Shares = &s
	pooled, err := stakeManager.CallBig(ctx, r.chain, owner, "getPooledBnbByShares", shares)
	if err != nil {
		r.log.Debug().Err(err).Msg("read pooled BNB")
		return report, nil
	}
	p := tokenAmount(registry.NativeSymbol, registry.NativeDecimals, pooled)
	report.PooledBNB = &p
	return report, nil
}

func (r *Reader) KernelStake(ctx context.Context, owner common.Address) (model.BalanceReport, error) {
	staked, err := KernelStaked(ctx, r.chain, owner)
	if err != nil {
		return model.BalanceReport{}, err
	}
	return model.BalanceReport{
		Address: owner.Hex(),
		Balance: tokenAmount(registry.SlisBNBSymbol, registry.SlisBNBDecimals, staked),
		AsOf:    r.asOf(),
	}, nil
}

// Summary reads the native, slisBNB and KernelDAO balances concurrently.
func (r *Reader) Summary(ctx context.Context, owner common.Address) model.AccountSummary {
	var native, slis, kernel Read[*big.Int]
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		native = readBig(r.chain.BalanceAt(gctx, owner))
		return nil
	})
	g.Go(func() error {
		slis = readBig(slisBNB.CallBig(gctx, r.chain, owner, "balanceOf", owner))
		return nil
	})
	g.Go(func() error {
		kernel = readBig(KernelStaked(gctx, r.chain, owner))
		return nil
	})
	_ = g.Wait()

	out := model.AccountSummary{Address: owner.Hex(), AsOf: r.asOf()}
	out.BNB = r.optional("bnb", registry.NativeSymbol, registry.NativeDecimals, native, &out.Unreadable)
	out.SlisBNB = r.optional("slisbnb", registry.SlisBNBSymbol, registry.SlisBNBDecimals, slis, &out.Unreadable)
	out.KernelStake = r.optional("kernel_staked_slisbnb", registry.SlisBNBSymbol, registry.SlisBNBDecimals, kernel, &out.Unreadable)
	return out
}

func (r *Reader) optional(key, token string, decimals int32, read Read[*big.Int], unreadable *[]string) *model.TokenAmount {
	if !read.Present {
		r.log.Debug().Err(read.Err).Str("item", key).Msg("balance unreadable")
		*unreadable = append(*unreadable, key)
		return nil
	}
	v := tokenAmount(token, decimals, read.Value)
	return &v
}

// Venus reports supplies, borrows and liquidity for every pool.
func (r *Reader) Venus(ctx context.Context, owner common.Address) model.PortfolioReport {
	pools := registry.Pools()
	out := model.PortfolioReport{Address: owner.Hex(), Pools: make([]model.PositionSnapshot, len(pools))}
	var wg sync.WaitGroup
	for i, pool := range pools {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Pools[i] = r.pool(ctx, pool, owner)
		}()
	}
	wg.Wait()
	out.AsOf = r.asOf()
	return out
}

type marketRead struct {
	market   registry.Market
	vBalance Read[*big.Int]
	borrow   Read[*big.Int]
	rate     Read[*big.Int]
}

func (r *Reader) pool(ctx context.Context, pool registry.Pool, owner common.Address) model.PositionSnapshot {
	snap := model.PositionSnapshot{Pool: string(pool.ID), PoolName: pool.Name, Supplies: []model.SupplyPosition{}, Borrows: []model.BorrowPosition{}}
	resolved, err := r.resolver.Markets(ctx, pool.ID)
	if err != nil {
		snap.Error = err.Error()
		if resolved, err = r.resolver.Snapshot(pool.ID); err != nil {
			return snap
		}
	}

	reads := make([]marketRead, 0, len(resolved.Markets))
	for _, m := range resolved.Markets {
		if m.VToken == (common.Address{}) {
			snap.Unreadable = append(snap.Unreadable, m.Symbol)
			continue
		}
		reads = append(reads, marketRead{market: m})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range reads {
		vt := ledger.Bind("v"+reads[i].market.Symbol, reads[i].market.VToken, ledger.VTokenABI)
		g.Go(func() error {
			reads[i].vBalance = readBig(vt.CallBig(gctx, r.chain, owner, "balanceOf", owner))
			return nil
		})
		g.Go(func() error {
			reads[i].borrow = readBig(vt.CallBig(gctx, r.chain, owner, "borrowBalanceStored", owner))
			return nil
		})
		g.Go(func() error {
			reads[i].rate = readBig(vt.CallBig(gctx, r.chain, owner, "exchangeRateStored"))
			return nil
		})
	}
	var liquidity Read[*model.AccountLiquidity]
	g.Go(func() error {
		liquidity = r.liquidity(gctx, pool.Comptroller, owner)
		return nil
	})
	_ = g.Wait()

	for _, rd := range reads {
		m := rd.market
		if !rd.vBalance.Present || !rd.borrow.Present {
			snap.Unreadable = append(snap.Unreadable, m.Symbol)
		}
		if rd.vBalance.Present && rd.vBalance.Value.Sign() > 0 {
			underlying := unavailable
			if rd.rate.Present {
				u := new(big.Int).Mul(rd.vBalance.Value, rd.rate.Value)
				underlying = amount.Format(u.Div(u, wad), m.Decimals)
			}
			snap.Supplies = append(snap.Supplies, model.SupplyPosition{
				Asset:            m.Symbol,
				VToken:           m.VToken.Hex(),
				VTokenBalance:    amount.Format(rd.vBalance.Value, registry.VTokenDecimals),
				UnderlyingAmount: underlying,
			})
		}
		if rd.borrow.Present && rd.borrow.Value.Sign() > 0 {
			snap.Borrows = append(snap.Borrows, model.BorrowPosition{
				Asset:  m.Symbol,
				VToken: m.VToken.Hex(),
				Amount: amount.Format(rd.borrow.Value, m.Decimals),
			})
		}
	}
	if liquidity.Present {
		snap.Liquidity = liquidity.Value
	}
	sort.Strings(snap.Unreadable)
	return snap
}

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// liquidity is present only when the comptroller reports error code 0.
func (r *Reader) liquidity(ctx context.Context, comptroller, owner common.Address) Read[*model.AccountLiquidity] {
	out, err := ledger.Bind("comptroller", comptroller, ledger.ComptrollerABI).Call(ctx, r.chain, owner, "getAccountLiquidity", owner)
	if err != nil {
		return Absent[*model.AccountLiquidity](err)
	}
	if len(out) != 3 {
		return Absent[*model.AccountLiquidity](nil)
	}
	code, _ := out[0].(*big.Int)
	liq, _ := out[1].(*big.Int)
	short, _ := out[2].(*big.Int)
	if code == nil || code.Sign() != 0 || liq == nil || short == nil {
		return Absent[*model.AccountLiquidity](nil)
	}
	return Present(&model.AccountLiquidity{Liquidity: amount.Format(liq, 18), Shortfall: amount.Format(short, 18)})
}

func tokenAmount(token string, decimals int32, v *big.Int) model.TokenAmount {
	return model.TokenAmount{Token: token, BaseUnits: v.String(), Decimal: amount.Format(v, decimals)}
}
