// Package markets resolves symbolic Venus assets to market addresses. Pools
// whose vTokens are not in the static table are discovered once through the
// comptroller and cached once every market in the pool has a vToken.
package markets

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/rs/zerolog"
)

// Snapshot is an immutable copy of a pool's market table.
type Snapshot struct {
	Pool     registry.Pool
	Markets  []registry.Market
	Resolved bool
}

func (s Snapshot) Lookup(symbol string) (registry.Market, bool) {
	for _, m := range s.Markets {
		if m.Matches(symbol) {
			return m, true
		}
	}
	return registry.Market{}, false
}

type Resolver struct {
	reader ledger.Reader
	log    zerolog.Logger

	mu       sync.Mutex
	resolved map[registry.PoolID][]registry.Market
}

func NewResolver(reader ledger.Reader, log zerolog.Logger) *Resolver {
	return &Resolver{reader: reader, log: log, resolved: map[registry.PoolID][]registry.Market{}}
}

// Snapshot returns what is known about a pool without touching the chain.
func (r *Resolver) Snapshot(id registry.PoolID) (Snapshot, error) {
	pool, ok := registry.LookupPool(id)
	if !ok {
		return Snapshot{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported pool %q", id))
	}
	r.mu.Lock()
	cached, hit := r.resolved[id]
	r.mu.Unlock()
	if hit {
		return Snapshot{Pool: pool, Markets: copyMarkets(cached), Resolved: true}, nil
	}
	return Snapshot{Pool: pool, Markets: registry.Markets(id), Resolved: !pool.Discover}, nil
}

// Markets returns a snapshot with discovered vTokens filled in. A discovery that
// leaves any market without a vToken is returned but not cached, so the next
// call tries again. Discovery runs outside the lock; concurrent first calls may
// both discover and the last write wins with identical data.
func (r *Resolver) Markets(ctx context.Context, id registry.PoolID) (Snapshot, error) {
	snap, err := r.Snapshot(id)
	if err != nil || snap.Resolved {
		return snap, err
	}
	discovered, err := r.discover(ctx, snap)
	if err != nil {
		return Snapshot{}, err
	}
	if !complete(discovered) {
		return Snapshot{Pool: snap.Pool, Markets: discovered}, nil
	}
	r.mu.Lock()
	r.resolved[id] = discovered
	r.mu.Unlock()
	return Snapshot{Pool: snap.Pool, Markets: copyMarkets(discovered), Resolved: true}, nil
}

// Resolve maps a symbol to its market. An empty pool selects the asset's default pool.
func (r *Resolver) Resolve(ctx context.Context, symbol string, pool registry.PoolID) (registry.Market, error) {
	if pool == "" {
		pool = registry.DefaultPool(symbol)
	}
	snap, err := r.Snapshot(pool)
	if err != nil {
		return registry.Market{}, err
	}
	market, ok := snap.Lookup(symbol)
	if !ok {
		return registry.Market{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported asset %q in %s", symbol, snap.Pool.Name)).
			WithDetails(map[string]any{"supported": symbols(snap.Markets)})
	}
	if market.VToken != (common.Address{}) {
		return market, nil
	}
	if snap, err = r.Markets(ctx, pool); err != nil {
		return registry.Market{}, err
	}
	market, _ = snap.Lookup(symbol)
	if market.VToken == (common.Address{}) {
		return registry.Market{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no Venus market found for %s in %s", symbol, snap.Pool.Name))
	}
	return market, nil
}

func (r *Resolver) discover(ctx context.Context, snap Snapshot) ([]registry.Market, error) {
	comptroller := ledger.Bind("comptroller", snap.Pool.Comptroller, ledger.ComptrollerABI)
	vTokens, err := comptroller.CallAddresses(ctx, r.reader, common.Address{}, "getAllMarkets")
	if err != nil {
		return nil, err
	}
	byUnderlying := make(map[common.Address]common.Address, len(vTokens))
	for _, vt := range vTokens {
		out, err := ledger.Bind("vToken", vt, ledger.VTokenABI).Call(ctx, r.reader, common.Address{}, "underlying")
		if err != nil || len(out) == 0 {
			// Native-asset markets have no underlying().
			r.log.Debug().Str("vtoken", vt.Hex()).Msg("skip market without underlying")
			continue
		}
		if addr, ok := out[0].(common.Address); ok {
			byUnderlying[addr] = vt
		}
	}
	markets := copyMarkets(snap.Markets)
	for i := range markets {
		if vt, ok := byUnderlying[markets[i].Underlying]; ok {
			markets[i].VToken = vt
		}
	}
	r.log.Info().Str("pool", string(snap.Pool.ID)).Int("markets", len(vTokens)).Msg("discovered pool markets")
	return markets, nil
}

func complete(markets []registry.Market) bool {
	for _, m := range markets {
		if m.VToken == (common.Address{}) {
			return false
		}
	}
	return true
}

func copyMarkets(in []registry.Market) []registry.Market {
	out := make([]registry.Market, len(in))
	copy(out, in)
	return out
}

func symbols(in []registry.Market) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		out = append(out, m.Symbol)
	}
	return out
}
